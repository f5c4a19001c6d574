package scoring

import "time"

// DefaultFallbackURL is where denied navigations are sent when no redirect
// destination is configured.
const DefaultFallbackURL = "https://ecrm.police.go.kr/minwon/main"

// Options configures one Engine. It is fixed for the lifetime of a page load.
type Options struct {
	ClickThreshold      int
	ClickWindow         time.Duration
	AdClickThreshold    int
	AdClickWindow       time.Duration
	FlagExpiry          time.Duration
	AllowDelay          time.Duration
	FallbackURL         string
	BotDetectionEnabled bool

	// BlockOnRapidRevisit also blocks navigation in memory when the
	// rapid revisit signal fires, not just adds its weight.
	BlockOnRapidRevisit bool

	// CadenceFromPreviousClick measures the click interval against the
	// previous click instead of the already updated click timestamp. The
	// default keeps the observed behavior, where the measured interval is
	// always zero and the regular cadence signal can never fire.
	CadenceFromPreviousClick bool
}

// DefaultOptions returns the built-in defaults.
func DefaultOptions() Options {
	return Options{
		ClickThreshold:      3,
		ClickWindow:         10 * time.Second,
		AdClickThreshold:    2,
		AdClickWindow:       60 * time.Second,
		FlagExpiry:          24 * time.Hour,
		AllowDelay:          1500 * time.Millisecond,
		FallbackURL:         DefaultFallbackURL,
		BotDetectionEnabled: true,
	}
}

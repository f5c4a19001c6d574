package config

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fcaptcha/clickguard/internal/scoring"
	"github.com/mitchellh/mapstructure"
)

// Attributes mirrors the data-* attributes of the embedding script tag.
// Every field is kept as text and parsed leniently.
type Attributes struct {
	Threshold         string `mapstructure:"data-threshold" json:"data-threshold,omitempty"`
	TimeWindow        string `mapstructure:"data-timewindow" json:"data-timewindow,omitempty"`
	Expiry            string `mapstructure:"data-expiry" json:"data-expiry,omitempty"`
	Delay             string `mapstructure:"data-delay" json:"data-delay,omitempty"`
	AdThreshold       string `mapstructure:"data-ad-threshold" json:"data-ad-threshold,omitempty"`
	AdTimeWindow      string `mapstructure:"data-ad-timewindow" json:"data-ad-timewindow,omitempty"`
	Redirect          string `mapstructure:"data-redirect" json:"data-redirect,omitempty"`
	BotDetection      string `mapstructure:"data-bot-detection" json:"data-bot-detection,omitempty"`
	BlockRapidRevisit string `mapstructure:"data-block-rapid-revisit" json:"data-block-rapid-revisit,omitempty"`
	CadencePrevious   string `mapstructure:"data-cadence-previous-click" json:"data-cadence-previous-click,omitempty"`
}

// DecodeAttributes reads an attribute map. Unknown keys are ignored and
// values of any scalar type are accepted.
func DecodeAttributes(raw map[string]interface{}) Attributes {
	normalized := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if b, ok := v.(bool); ok {
			v = strconv.FormatBool(b)
		}
		normalized[k] = v
	}

	var attrs Attributes
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &attrs,
	})
	if err != nil {
		return Attributes{}
	}
	// a field that fails to decode stays empty and falls back to its default
	_ = dec.Decode(normalized)
	return attrs
}

// Options resolves the attributes against base. Missing, malformed or
// negative numbers fall back to the value in base.
func (a Attributes) Options(base scoring.Options) scoring.Options {
	opts := base
	opts.ClickThreshold = intOr(a.Threshold, base.ClickThreshold)
	opts.ClickWindow = millisOr(a.TimeWindow, base.ClickWindow)
	opts.FlagExpiry = secondsOr(a.Expiry, base.FlagExpiry)
	opts.AllowDelay = millisOr(a.Delay, base.AllowDelay)
	opts.AdClickThreshold = intOr(a.AdThreshold, base.AdClickThreshold)
	opts.AdClickWindow = millisOr(a.AdTimeWindow, base.AdClickWindow)

	if r := strings.TrimSpace(a.Redirect); r != "" {
		opts.FallbackURL = r
	}
	if a.BotDetection != "" {
		opts.BotDetectionEnabled = a.BotDetection != "false"
	}
	if a.BlockRapidRevisit != "" {
		opts.BlockOnRapidRevisit = a.BlockRapidRevisit == "true"
	}
	if a.CadencePrevious != "" {
		opts.CadenceFromPreviousClick = a.CadencePrevious == "true"
	}
	return opts
}

func intOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return def
	}
	return n
}

func millisOr(s string, def time.Duration) time.Duration {
	return durationOr(s, def, time.Millisecond)
}

func secondsOr(s string, def time.Duration) time.Duration {
	return durationOr(s, def, time.Second)
}

// durationOr reads s as a count of unit. Counts that do not fit in a
// time.Duration are invalid.
func durationOr(s string, def, unit time.Duration) time.Duration {
	n := intOr(s, -1)
	if n < 0 || int64(n) > math.MaxInt64/int64(unit) {
		return def
	}
	return time.Duration(n) * unit
}

package scoring

import "time"

// Persisted flag names.
const (
	FlagLastVisit    = "lastVisit"
	FlagClickLimit   = "clickLimit"
	FlagAdClickLimit = "adClickLimit"
	FlagBotSuspect   = "botSuspect"

	// FlagSet is the value a ban flag holds once written.
	FlagSet = "true"
)

// FlagKeys lists every flag the engine writes.
var FlagKeys = []string{FlagLastVisit, FlagClickLimit, FlagAdClickLimit, FlagBotSuspect}

// EffectKind says what the caller must do with an Effect.
type EffectKind int

const (
	// EffectSetFlag persists Key=Value for TTL.
	EffectSetFlag EffectKind = iota
	// EffectNavigate sends the page to URL after Delay.
	EffectNavigate
	// EffectSuppressDefault cancels the default action of the current
	// click, provided the flag named by Key reads back as set.
	EffectSuppressDefault
)

func (k EffectKind) String() string {
	switch k {
	case EffectSetFlag:
		return "set_flag"
	case EffectNavigate:
		return "navigate"
	case EffectSuppressDefault:
		return "suppress_default"
	default:
		return "unknown"
	}
}

// Effect is a side effect produced by a state transition. The engine never
// performs effects itself.
type Effect struct {
	Kind  EffectKind
	Key   string
	Value string
	TTL   time.Duration
	URL   string
	Delay time.Duration
}

func setFlag(key, value string, ttl time.Duration) Effect {
	return Effect{Kind: EffectSetFlag, Key: key, Value: value, TTL: ttl}
}

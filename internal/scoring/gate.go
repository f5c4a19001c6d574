package scoring

import "time"

// DenyDelay is how long a denied navigation waits before going to the
// fallback destination.
const DenyDelay = 500 * time.Millisecond

// Verdict is the outcome of a gate decision.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictDeny  Verdict = "deny"
)

// FlagReader reads persisted flags. A missing or unreadable flag reads as "".
type FlagReader interface {
	Get(key string) string
}

// FlagReaderFunc adapts a function to FlagReader.
type FlagReaderFunc func(key string) string

func (f FlagReaderFunc) Get(key string) string {
	return f(key)
}

// Decision is a gate verdict together with the navigation it implies.
type Decision struct {
	Verdict     Verdict       `json:"verdict"`
	Destination string        `json:"destination"`
	Delay       time.Duration `json:"delay"`
}

// Allowed reports whether the requested target was allowed.
func (d Decision) Allowed() bool {
	return d.Verdict == VerdictAllow
}

// Effect returns the deferred navigation the decision schedules.
func (d Decision) Effect() Effect {
	return Effect{Kind: EffectNavigate, URL: d.Destination, Delay: d.Delay}
}

// Decide gates a navigation to target. It only reads flags.
func Decide(blocked bool, flags FlagReader, target string, opts Options) Decision {
	if blocked || flags.Get(FlagClickLimit) == FlagSet || flags.Get(FlagBotSuspect) == FlagSet {
		return Decision{
			Verdict:     VerdictDeny,
			Destination: opts.FallbackURL,
			Delay:       DenyDelay,
		}
	}
	return Decision{
		Verdict:     VerdictAllow,
		Destination: target,
		Delay:       opts.AllowDelay,
	}
}

// Decide gates a navigation using the engine's in-memory block.
func (e *Engine) Decide(target string, flags FlagReader) Decision {
	return Decide(e.blocked, flags, target, e.opts)
}

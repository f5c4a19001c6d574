package scoring

import (
	"strconv"
	"time"
)

// Finalize records the visit at unload. Only the first call in a page load
// produces effects.
func (e *Engine) Finalize(now time.Time) []Effect {
	if e.visitLogged {
		return nil
	}
	e.visitLogged = true

	effects := []Effect{
		setFlag(FlagLastVisit, strconv.FormatInt(now.UnixMilli(), 10), e.opts.FlagExpiry),
	}
	if e.score > BotSuspectThreshold {
		effects = append(effects, setFlag(FlagBotSuspect, FlagSet, e.opts.FlagExpiry))
	}
	return effects
}

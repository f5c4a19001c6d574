package scoring

import (
	"strconv"
	"time"
)

// Click is one click occurrence.
type Click struct {
	At time.Time
	X  int
	Y  int
}

// Point is a screen position.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// State is a read-only snapshot of an engine's session state.
type State struct {
	ClickCount       int           `json:"clickCount"`
	LastClick        time.Time     `json:"lastClick"`
	AdClickCount     int           `json:"adClickCount"`
	LastAdClick      time.Time     `json:"lastAdClick"`
	Score            int           `json:"score"`
	Blocked          bool          `json:"blocked"`
	VisitLogged      bool          `json:"visitLogged"`
	LastPosition     *Point        `json:"lastPosition,omitempty"`
	LastInterval     time.Duration `json:"lastInterval"`
	EvaluatedSignals []Signal      `json:"evaluatedSignals"`
	Detections       []Detection   `json:"detections"`
}

// Engine holds the suspicion score and click counters of a single page load.
// It is not safe for concurrent use; callers serialize every transition.
type Engine struct {
	opts Options

	clicks   window
	adClicks window

	score       int
	blocked     bool
	visitLogged bool

	lastPosition *Point
	lastInterval time.Duration

	evaluated  map[Signal]bool
	order      []Signal
	detections []Detection
}

// NewEngine creates an engine for one page load.
func NewEngine(opts Options) *Engine {
	return &Engine{
		opts:      opts,
		clicks:    window{span: opts.ClickWindow},
		adClicks:  window{span: opts.AdClickWindow},
		evaluated: make(map[Signal]bool),
	}
}

// Options returns the engine configuration.
func (e *Engine) Options() Options {
	return e.opts
}

// Score returns the current suspicion score.
func (e *Engine) Score() int {
	return e.score
}

// Blocked reports whether navigation is blocked in memory.
func (e *Engine) Blocked() bool {
	return e.blocked
}

// DetectionsSince returns the detections recorded after the first n.
func (e *Engine) DetectionsSince(n int) []Detection {
	if n >= len(e.detections) {
		return nil
	}
	out := make([]Detection, len(e.detections)-n)
	copy(out, e.detections[n:])
	return out
}

// DetectionCount returns how many detections were recorded so far.
func (e *Engine) DetectionCount() int {
	return len(e.detections)
}

func (e *Engine) add(s Signal, at time.Time) {
	w := weights[s]
	e.score += w
	e.detections = append(e.detections, Detection{
		Signal: s,
		Weight: w,
		Reason: reasons[s],
		At:     at,
	})
}

// RecordGeneralClick counts a click against the general click window and
// runs the click pattern analysis.
func (e *Engine) RecordGeneralClick(c Click) []Effect {
	var effects []Effect

	prev, count := e.clicks.hit(c.At)
	if count > e.opts.ClickThreshold {
		e.blocked = true
		e.add(SignalExcessiveClicks, c.At)
		effects = append(effects, setFlag(FlagClickLimit, FlagSet, e.opts.FlagExpiry))
	}

	e.analyzeClickPattern(c, prev)
	return effects
}

func (e *Engine) analyzeClickPattern(c Click, prev time.Time) {
	pos := Point{X: c.X, Y: c.Y}
	if e.lastPosition != nil && *e.lastPosition == pos {
		e.add(SignalRepeatedPosition, c.At)
	}

	// By default the interval is taken against the timestamp the window
	// has just been moved to, so it is always zero.
	interval := c.At.Sub(e.clicks.last)
	if e.opts.CadenceFromPreviousClick {
		interval = 0
		if !prev.IsZero() {
			interval = c.At.Sub(prev)
		}
	}

	if e.lastInterval != 0 && absDuration(e.lastInterval-interval) < CadenceTolerance {
		e.add(SignalRegularCadence, c.At)
	}

	e.lastPosition = &pos
	e.lastInterval = interval
}

// RecordAdClick counts a click on an advertisement. Once the ad click
// threshold is exceeded the click's default action is to be suppressed.
func (e *Engine) RecordAdClick(c Click) []Effect {
	_, count := e.adClicks.hit(c.At)
	if count <= e.opts.AdClickThreshold {
		return nil
	}

	e.add(SignalExcessiveAdClicks, c.At)
	return []Effect{
		setFlag(FlagAdClickLimit, FlagSet, e.opts.FlagExpiry),
		{Kind: EffectSuppressDefault, Key: FlagAdClickLimit},
	}
}

// ApplyOneShotSignal evaluates a one-shot signal. It reports whether the
// signal added to the score; a signal already evaluated in this page load
// is ignored.
func (e *Engine) ApplyOneShotSignal(s Signal, detected bool, at time.Time) bool {
	if !oneShot[s] || e.evaluated[s] {
		return false
	}
	e.evaluated[s] = true
	e.order = append(e.order, s)

	if !detected {
		return false
	}
	e.add(s, at)
	return true
}

// CheckPreviousVisit applies the rapid revisit signal from the lastVisit
// flag read at page load. lastVisit is a unix millisecond timestamp; an
// empty or malformed value counts as no previous visit.
func (e *Engine) CheckPreviousVisit(now time.Time, lastVisit string) bool {
	detected := false
	if ms, err := strconv.ParseInt(lastVisit, 10, 64); err == nil {
		detected = now.Sub(time.UnixMilli(ms)) < RapidRevisitWindow
	}

	fired := e.ApplyOneShotSignal(SignalRapidRevisit, detected, now)
	if fired && e.opts.BlockOnRapidRevisit {
		e.blocked = true
	}
	return fired
}

// Snapshot copies the current state.
func (e *Engine) Snapshot() State {
	st := State{
		ClickCount:       e.clicks.count,
		LastClick:        e.clicks.last,
		AdClickCount:     e.adClicks.count,
		LastAdClick:      e.adClicks.last,
		Score:            e.score,
		Blocked:          e.blocked,
		VisitLogged:      e.visitLogged,
		LastInterval:     e.lastInterval,
		EvaluatedSignals: append([]Signal(nil), e.order...),
		Detections:       append([]Detection(nil), e.detections...),
	}
	if e.lastPosition != nil {
		p := *e.lastPosition
		st.LastPosition = &p
	}
	return st
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

package signals

import (
	"regexp"
	"time"

	"github.com/avct/uasurfer"
	"github.com/fcaptcha/clickguard/internal/scoring"
)

const (
	// MinMouseMoves is the number of mousemove events a human is expected
	// to produce within the mouse observation window.
	MinMouseMoves = 5

	// MinScrolls is the same for scroll events.
	MinScrolls = 2

	// MinViewport is the smallest plausible viewport edge in pixels.
	MinViewport = 100
)

// Environment describes the browser a page load runs in, as reported by
// the page itself.
type Environment struct {
	UserAgent      string `json:"userAgent"`
	ViewportWidth  int    `json:"viewportWidth"`
	ViewportHeight int    `json:"viewportHeight"`
	Webdriver      bool   `json:"webdriver"`
}

// Observation is the outcome of evaluating one signal.
type Observation struct {
	Signal   scoring.Signal
	Detected bool
}

var uaPatterns = compileUAPatterns()

func compileUAPatterns() []*regexp.Regexp {
	patterns := []string{
		`(?i)headless`,
		`(?i)phantomjs`,
		`(?i)selenium`,
		`(?i)webdriver`,
		`(?i)puppeteer`,
		`(?i)playwright`,
		`(?i)cypress`,
		`(?i)nightwatch`,
		`(?i)zombie`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			compiled = append(compiled, re)
		}
	}
	return compiled
}

// IsAutomationUserAgent reports whether ua carries an automation tool
// marker or identifies itself as a bot.
func IsAutomationUserAgent(ua string) bool {
	for _, pattern := range uaPatterns {
		if pattern.MatchString(ua) {
			return true
		}
	}
	if ua == "" {
		return false
	}
	return uasurfer.Parse(ua).IsBot()
}

// IsAbnormalViewport reports whether either viewport edge is implausibly small.
func IsAbnormalViewport(width, height int) bool {
	return width < MinViewport || height < MinViewport
}

// Collector counts passive activity for one page load. Like the engine it
// is owned by a single goroutine.
type Collector struct {
	mouseMoves int
	scrolls    int
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) ObserveMouseMove() {
	c.mouseMoves++
}

func (c *Collector) ObserveScroll() {
	c.scrolls++
}

func (c *Collector) MouseMoves() int {
	return c.mouseMoves
}

func (c *Collector) Scrolls() int {
	return c.scrolls
}

// LowMouseActivity evaluates the low mouse activity signal.
func (c *Collector) LowMouseActivity() Observation {
	return Observation{Signal: scoring.SignalLowMouseActivity, Detected: c.mouseMoves < MinMouseMoves}
}

// LowScrollActivity evaluates the low scroll activity signal.
func (c *Collector) LowScrollActivity() Observation {
	return Observation{Signal: scoring.SignalLowScrollActivity, Detected: c.scrolls < MinScrolls}
}

// Immediate evaluates the signals available as soon as the page loads.
func Immediate(env Environment) []Observation {
	return []Observation{
		{Signal: scoring.SignalAutomationUserAgent, Detected: IsAutomationUserAgent(env.UserAgent)},
		{Signal: scoring.SignalAbnormalViewport, Detected: IsAbnormalViewport(env.ViewportWidth, env.ViewportHeight)},
		{Signal: scoring.SignalWebdriver, Detected: env.Webdriver},
	}
}

// Delayed pairs a signal evaluation with the delay after page load at
// which it runs.
type Delayed struct {
	After    time.Duration
	Evaluate func() Observation
}

// Scheduled returns the delayed evaluations for c.
func (c *Collector) Scheduled() []Delayed {
	return []Delayed{
		{After: scoring.MouseObservationWindow, Evaluate: c.LowMouseActivity},
		{After: scoring.ScrollObservationWindow, Evaluate: c.LowScrollActivity},
	}
}

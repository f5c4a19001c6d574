// Package page runs one page load: a single goroutine that owns the scoring
// engine and the signal collector and executes every event, timer firing and
// side effect in order.
package page

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fcaptcha/clickguard/internal/flagstore"
	"github.com/fcaptcha/clickguard/internal/metrics"
	"github.com/fcaptcha/clickguard/internal/scoring"
	"github.com/fcaptcha/clickguard/internal/signals"
	"github.com/sirupsen/logrus"
)

const queueSize = 64

var (
	ErrClosed   = errors.New("page is closed")
	ErrNotFound = errors.New("page not found")
)

// Config wires a Page.
type Config struct {
	ID        string
	Options   scoring.Options
	Jar       *flagstore.Jar
	Navigator Navigator
	Clock     Clock
	Logger    *logrus.Logger
}

// Page is the runtime of a single page load.
type Page struct {
	id        string
	engine    *scoring.Engine
	collector *signals.Collector
	jar       *flagstore.Jar
	nav       Navigator
	clock     Clock
	log       *logrus.Entry

	loaded bool

	ctx       context.Context
	cancel    context.CancelFunc
	queue     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// New creates the page and starts its loop.
func New(cfg Config) *Page {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Navigator == nil {
		cfg.Navigator = NavigatorFunc(func(string) {})
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Jar == nil {
		cfg.Jar = flagstore.NewJar(nil, "", cfg.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Page{
		id:        cfg.ID,
		engine:    scoring.NewEngine(cfg.Options),
		collector: signals.NewCollector(),
		jar:       cfg.Jar,
		nav:       cfg.Navigator,
		clock:     cfg.Clock,
		log: cfg.Logger.WithFields(logrus.Fields{
			"page":    cfg.ID,
			"visitor": cfg.Jar.Visitor(),
		}),
		ctx:    ctx,
		cancel: cancel,
		queue:  make(chan func(), queueSize),
		done:   make(chan struct{}),
	}

	metrics.ActivePages.Inc()
	go p.run()
	return p
}

func (p *Page) ID() string {
	return p.id
}

func (p *Page) run() {
	for {
		select {
		case fn := <-p.queue:
			fn()
		case <-p.done:
			return
		}
	}
}

// do runs fn on the loop and waits for it to finish.
func (p *Page) do(fn func()) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	finished := make(chan struct{})
	select {
	case p.queue <- func() { defer close(finished); fn() }:
	case <-p.done:
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

// post queues fn without waiting. It is dropped once the page is closed.
func (p *Page) post(fn func()) {
	select {
	case p.queue <- fn:
	case <-p.done:
	}
}

// Close stops the loop. Pending timers still fire but their callbacks are
// dropped; scheduled navigations are not affected.
func (p *Page) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.cancel()
		metrics.ActivePages.Dec()
	})
}

func (p *Page) flags() scoring.FlagReader {
	return scoring.FlagReaderFunc(func(key string) string {
		return p.jar.Get(p.ctx, key)
	})
}

// track reports the detections a transition produced.
func (p *Page) track(transition func()) {
	n := p.engine.DetectionCount()
	transition()
	for _, d := range p.engine.DetectionsSince(n) {
		metrics.Detections.WithLabelValues(string(d.Signal)).Inc()
		p.log.WithFields(logrus.Fields{
			"signal": d.Signal,
			"weight": d.Weight,
			"score":  p.engine.Score(),
		}).Debug(d.Reason)
	}
}

// apply executes effects and reports whether the current click's default
// action must be suppressed.
func (p *Page) apply(effects []scoring.Effect) bool {
	suppress := false
	for _, eff := range effects {
		switch eff.Kind {
		case scoring.EffectSetFlag:
			p.jar.Set(p.ctx, eff.Key, eff.Value, eff.TTL)
		case scoring.EffectNavigate:
			url := eff.URL
			p.clock.AfterFunc(eff.Delay, func() {
				p.nav.NavigateTo(url)
			})
		case scoring.EffectSuppressDefault:
			if p.jar.Get(p.ctx, eff.Key) == scoring.FlagSet {
				suppress = true
			}
		}
	}
	return suppress
}

// Load runs the page-load phase: the rapid revisit check, the immediate
// environment signals and the observation timers. Only the first call has
// any effect.
func (p *Page) Load(env signals.Environment) error {
	return p.do(func() {
		if p.loaded {
			return
		}
		p.loaded = true
		now := p.clock.Now()

		p.track(func() {
			if p.engine.CheckPreviousVisit(now, p.jar.Get(p.ctx, scoring.FlagLastVisit)) {
				p.log.Warn("rapid revisit detected")
			}
		})

		if !p.engine.Options().BotDetectionEnabled {
			return
		}

		p.track(func() {
			for _, o := range signals.Immediate(env) {
				p.engine.ApplyOneShotSignal(o.Signal, o.Detected, now)
			}
		})

		for _, d := range p.collector.Scheduled() {
			evaluate := d.Evaluate
			p.clock.AfterFunc(d.After, func() {
				p.post(func() {
					p.track(func() {
						o := evaluate()
						p.engine.ApplyOneShotSignal(o.Signal, o.Detected, p.clock.Now())
					})
				})
			})
		}
	})
}

func (p *Page) MouseMove() error {
	return p.do(p.collector.ObserveMouseMove)
}

func (p *Page) Scroll() error {
	return p.do(p.collector.ObserveScroll)
}

// Click records a click anywhere on the page.
func (p *Page) Click(x, y int) error {
	return p.do(func() {
		p.click(x, y)
	})
}

func (p *Page) click(x, y int) {
	var effects []scoring.Effect
	p.track(func() {
		effects = p.engine.RecordGeneralClick(scoring.Click{At: p.clock.Now(), X: x, Y: y})
	})
	if len(effects) > 0 {
		p.log.WithField("score", p.engine.Score()).Warn("excessive clicks detected, redirect blocked")
	}
	p.apply(effects)
}

// AdClick records a click on an advertisement and reports whether its
// default action must be suppressed. An ad click is also a click on the
// page, so it is counted as a general click first.
func (p *Page) AdClick(x, y int) (bool, error) {
	suppressed := false
	err := p.do(func() {
		p.click(x, y)

		var effects []scoring.Effect
		p.track(func() {
			effects = p.engine.RecordAdClick(scoring.Click{At: p.clock.Now(), X: x, Y: y})
		})
		if len(effects) == 0 {
			return
		}
		p.log.WithField("score", p.engine.Score()).Warn("excessive ad clicks detected")
		suppressed = p.apply(effects)
		if suppressed {
			metrics.SuppressedAdClicks.Inc()
		}
	})
	return suppressed, err
}

// Navigate gates a navigation to target and schedules it.
func (p *Page) Navigate(target string) (scoring.Decision, error) {
	var decision scoring.Decision
	err := p.do(func() {
		decision = p.navigate(target)
	})
	return decision, err
}

// ClickAndNavigate records the click that triggered a navigation before
// gating it, so the verdict sees that click.
func (p *Page) ClickAndNavigate(x, y int, target string) (scoring.Decision, error) {
	var decision scoring.Decision
	err := p.do(func() {
		p.click(x, y)
		decision = p.navigate(target)
	})
	return decision, err
}

func (p *Page) navigate(target string) scoring.Decision {
	decision := p.engine.Decide(target, p.flags())

	metrics.Verdicts.WithLabelValues(string(decision.Verdict)).Inc()
	metrics.NavigationDelay.WithLabelValues(string(decision.Verdict)).
		Observe(float64(decision.Delay / time.Millisecond))

	if !decision.Allowed() {
		p.log.WithFields(logrus.Fields{
			"target": target,
			"score":  p.engine.Score(),
		}).Warn("redirect blocked, suspected invalid traffic")
	}

	p.apply([]scoring.Effect{decision.Effect()})
	return decision
}

// Unload records the visit. Repeated calls are no-ops.
func (p *Page) Unload() error {
	return p.do(func() {
		effects := p.engine.Finalize(p.clock.Now())
		if effects == nil {
			return
		}
		score := p.engine.Score()
		metrics.FinalScores.Observe(float64(score))
		if score > scoring.BotSuspectThreshold {
			p.log.WithField("score", score).Warn("bot suspect flagged")
		}
		p.apply(effects)
	})
}

// State returns a snapshot of the session state.
func (p *Page) State() (scoring.State, error) {
	var st scoring.State
	err := p.do(func() {
		st = p.engine.Snapshot()
	})
	return st, err
}

// TrackingState is the diagnostic dump of a page and its visitor flags.
type TrackingState struct {
	Flags map[string]string `json:"flags"`
	State *scoring.State    `json:"state,omitempty"`
}

// InspectTrackingState reads the visitor's flags without changing anything.
func InspectTrackingState(ctx context.Context, jar *flagstore.Jar) TrackingState {
	return TrackingState{Flags: jar.Inspect(ctx, scoring.FlagKeys...)}
}

// ResetTrackingState clears every flag of the visitor.
func ResetTrackingState(ctx context.Context, jar *flagstore.Jar) {
	jar.Reset(ctx, scoring.FlagKeys...)
}

// Inspect dumps the page state together with the visitor's flags.
func (p *Page) Inspect() (TrackingState, error) {
	var ts TrackingState
	err := p.do(func() {
		ts = InspectTrackingState(p.ctx, p.jar)
		st := p.engine.Snapshot()
		ts.State = &st
	})
	return ts, err
}

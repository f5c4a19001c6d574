package scoring_test

import (
	"testing"
	"time"

	"github.com/fcaptcha/clickguard/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func click(ms, x, y int) scoring.Click {
	return scoring.Click{At: at(ms), X: x, Y: y}
}

func TestRecordGeneralClick_CountsWithinWindow(t *testing.T) {
	e := scoring.NewEngine(scoring.DefaultOptions())

	e.RecordGeneralClick(click(0, 1, 1))
	e.RecordGeneralClick(click(4000, 2, 2))
	e.RecordGeneralClick(click(9000, 3, 3))

	assert.Equal(t, 3, e.Snapshot().ClickCount)
	assert.False(t, e.Blocked())
}

func TestRecordGeneralClick_WindowExpiryResetsToOne(t *testing.T) {
	e := scoring.NewEngine(scoring.DefaultOptions())

	e.RecordGeneralClick(click(0, 1, 1))
	e.RecordGeneralClick(click(1000, 2, 2))
	e.RecordGeneralClick(click(11001, 3, 3))

	assert.Equal(t, 1, e.Snapshot().ClickCount)
	assert.Equal(t, at(11001), e.Snapshot().LastClick)
}

func TestRecordGeneralClick_GapEqualToWindowKeepsCounting(t *testing.T) {
	e := scoring.NewEngine(scoring.DefaultOptions())

	e.RecordGeneralClick(click(0, 1, 1))
	e.RecordGeneralClick(click(10000, 2, 2))

	assert.Equal(t, 2, e.Snapshot().ClickCount)
}

func TestRecordGeneralClick_ThresholdScenario(t *testing.T) {
	opts := scoring.DefaultOptions()
	opts.ClickThreshold = 3
	opts.ClickWindow = 10 * time.Second
	e := scoring.NewEngine(opts)

	for i, ms := range []int{0, 1000, 2000} {
		effects := e.RecordGeneralClick(click(ms, i, i))
		assert.Empty(t, effects)
		assert.False(t, e.Blocked())
	}

	effects := e.RecordGeneralClick(click(3000, 10, 10))
	require.Len(t, effects, 1)
	assert.Equal(t, scoring.EffectSetFlag, effects[0].Kind)
	assert.Equal(t, scoring.FlagClickLimit, effects[0].Key)
	assert.Equal(t, scoring.FlagSet, effects[0].Value)
	assert.Equal(t, opts.FlagExpiry, effects[0].TTL)

	st := e.Snapshot()
	assert.Equal(t, 4, st.ClickCount)
	assert.True(t, st.Blocked)
	assert.Equal(t, 20, st.Score)
}

func TestRecordGeneralClick_BlockIsSticky(t *testing.T) {
	e := scoring.NewEngine(scoring.DefaultOptions())
	for i := 0; i < 4; i++ {
		e.RecordGeneralClick(click(i*100, i, i*2))
	}
	require.True(t, e.Blocked())

	effects := e.RecordGeneralClick(click(60000, 500, 500))
	assert.Empty(t, effects)
	assert.Equal(t, 1, e.Snapshot().ClickCount)
	assert.True(t, e.Blocked())
}

func TestRecordGeneralClick_EveryBreachingClickScores(t *testing.T) {
	e := scoring.NewEngine(scoring.DefaultOptions())
	for i := 0; i < 6; i++ {
		e.RecordGeneralClick(click(i*100, i, i*3))
	}
	// clicks 4, 5 and 6 are over the threshold of 3
	assert.Equal(t, 60, e.Score())
}

func TestRecordGeneralClick_RepeatedPosition(t *testing.T) {
	opts := scoring.DefaultOptions()
	opts.ClickThreshold = 100
	e := scoring.NewEngine(opts)

	e.RecordGeneralClick(click(0, 0, 0))
	assert.Equal(t, 0, e.Score())

	e.RecordGeneralClick(click(500, 0, 0))
	assert.Equal(t, 10, e.Score())

	e.RecordGeneralClick(click(900, 0, 1))
	assert.Equal(t, 10, e.Score())

	st := e.Snapshot()
	require.NotNil(t, st.LastPosition)
	assert.Equal(t, scoring.Point{X: 0, Y: 1}, *st.LastPosition)
}

func TestRecordGeneralClick_CadenceObservedBehaviorNeverFires(t *testing.T) {
	opts := scoring.DefaultOptions()
	opts.ClickThreshold = 100
	e := scoring.NewEngine(opts)

	for i := 0; i < 5; i++ {
		e.RecordGeneralClick(click(i*200, i, i))
	}

	assert.Equal(t, 0, e.Score())
	assert.Equal(t, time.Duration(0), e.Snapshot().LastInterval)
}

func TestRecordGeneralClick_CadenceFromPreviousClick(t *testing.T) {
	opts := scoring.DefaultOptions()
	opts.ClickThreshold = 100
	opts.CadenceFromPreviousClick = true
	e := scoring.NewEngine(opts)

	e.RecordGeneralClick(click(0, 1, 1))
	e.RecordGeneralClick(click(1000, 2, 2))
	assert.Equal(t, 0, e.Score())

	e.RecordGeneralClick(click(2020, 3, 3))
	assert.Equal(t, 15, e.Score())

	e.RecordGeneralClick(click(3500, 4, 4))
	assert.Equal(t, 15, e.Score())
	assert.Equal(t, 1480*time.Millisecond, e.Snapshot().LastInterval)
}

func TestRecordAdClick_Scenario(t *testing.T) {
	opts := scoring.DefaultOptions()
	opts.AdClickThreshold = 2
	opts.AdClickWindow = 60 * time.Second
	e := scoring.NewEngine(opts)

	assert.Empty(t, e.RecordAdClick(click(0, 1, 1)))
	assert.Empty(t, e.RecordAdClick(click(100, 1, 1)))

	effects := e.RecordAdClick(click(200, 1, 1))
	require.Len(t, effects, 2)
	assert.Equal(t, scoring.EffectSetFlag, effects[0].Kind)
	assert.Equal(t, scoring.FlagAdClickLimit, effects[0].Key)
	assert.Equal(t, scoring.FlagSet, effects[0].Value)
	assert.Equal(t, scoring.EffectSuppressDefault, effects[1].Kind)
	assert.Equal(t, scoring.FlagAdClickLimit, effects[1].Key)

	st := e.Snapshot()
	assert.Equal(t, 3, st.AdClickCount)
	assert.Equal(t, 40, st.Score)
	assert.False(t, st.Blocked, "ad clicks never block navigation in memory")
}

func TestRecordAdClick_WindowExpiry(t *testing.T) {
	e := scoring.NewEngine(scoring.DefaultOptions())

	e.RecordAdClick(click(0, 1, 1))
	e.RecordAdClick(click(100, 1, 1))
	assert.Empty(t, e.RecordAdClick(click(60200, 1, 1)))
	assert.Equal(t, 1, e.Snapshot().AdClickCount)
}

func TestRecordAdClick_IndependentOfGeneralClicks(t *testing.T) {
	e := scoring.NewEngine(scoring.DefaultOptions())

	for i := 0; i < 3; i++ {
		e.RecordGeneralClick(click(i*10, i, i))
	}
	e.RecordAdClick(click(40, 9, 9))

	st := e.Snapshot()
	assert.Equal(t, 3, st.ClickCount)
	assert.Equal(t, 1, st.AdClickCount)
}

func TestApplyOneShotSignal(t *testing.T) {
	e := scoring.NewEngine(scoring.DefaultOptions())

	assert.True(t, e.ApplyOneShotSignal(scoring.SignalLowMouseActivity, true, t0))
	assert.False(t, e.ApplyOneShotSignal(scoring.SignalLowMouseActivity, true, t0))
	assert.Equal(t, 15, e.Score())

	assert.False(t, e.ApplyOneShotSignal(scoring.SignalWebdriver, false, t0))
	assert.False(t, e.ApplyOneShotSignal(scoring.SignalWebdriver, true, t0), "already evaluated")
	assert.Equal(t, 15, e.Score())

	assert.False(t, e.ApplyOneShotSignal(scoring.SignalExcessiveClicks, true, t0), "not a one-shot signal")
	assert.Equal(t, []scoring.Signal{scoring.SignalLowMouseActivity, scoring.SignalWebdriver}, e.Snapshot().EvaluatedSignals)
}

func TestApplyOneShotSignal_Additive(t *testing.T) {
	e := scoring.NewEngine(scoring.DefaultOptions())

	e.ApplyOneShotSignal(scoring.SignalAutomationUserAgent, true, t0)
	e.ApplyOneShotSignal(scoring.SignalWebdriver, true, t0)
	e.ApplyOneShotSignal(scoring.SignalAbnormalViewport, true, t0)
	e.ApplyOneShotSignal(scoring.SignalLowMouseActivity, true, t0)
	e.ApplyOneShotSignal(scoring.SignalLowScrollActivity, true, t0)
	e.CheckPreviousVisit(t0, "1714564799000")

	assert.Equal(t, 50+50+20+15+10+30, e.Score())
	assert.Len(t, e.DetectionsSince(0), 6)
	assert.Len(t, e.DetectionsSince(4), 2)
	assert.Nil(t, e.DetectionsSince(6))
}

func TestCheckPreviousVisit(t *testing.T) {
	tests := []struct {
		name      string
		lastVisit string
		fired     bool
	}{
		{"2s ago", "1714564798000", true},
		{"just under window", "1714564795001", true},
		{"exactly window", "1714564795000", false},
		{"6s ago", "1714564794000", false},
		{"empty", "", false},
		{"garbage", "yesterday", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := scoring.NewEngine(scoring.DefaultOptions())
			assert.Equal(t, tc.fired, e.CheckPreviousVisit(t0, tc.lastVisit))
			if tc.fired {
				assert.Equal(t, 30, e.Score())
			} else {
				assert.Equal(t, 0, e.Score())
			}
			assert.False(t, e.Blocked())
		})
	}
}

func TestCheckPreviousVisit_BlockOnRapidRevisit(t *testing.T) {
	opts := scoring.DefaultOptions()
	opts.BlockOnRapidRevisit = true
	e := scoring.NewEngine(opts)

	require.True(t, e.CheckPreviousVisit(t0, "1714564798000"))
	assert.True(t, e.Blocked())
}

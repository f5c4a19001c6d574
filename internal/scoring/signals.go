package scoring

import "time"

// Signal names one kind of suspicious behavior.
type Signal string

const (
	SignalExcessiveClicks     Signal = "excessive_clicks"
	SignalExcessiveAdClicks   Signal = "excessive_ad_clicks"
	SignalRepeatedPosition    Signal = "repeated_position"
	SignalRegularCadence      Signal = "regular_cadence"
	SignalLowMouseActivity    Signal = "low_mouse_activity"
	SignalLowScrollActivity   Signal = "low_scroll_activity"
	SignalAutomationUserAgent Signal = "automation_user_agent"
	SignalAbnormalViewport    Signal = "abnormal_viewport"
	SignalWebdriver           Signal = "webdriver"
	SignalRapidRevisit        Signal = "rapid_revisit"
)

var weights = map[Signal]int{
	SignalExcessiveClicks:     20,
	SignalExcessiveAdClicks:   40,
	SignalRepeatedPosition:    10,
	SignalRegularCadence:      15,
	SignalLowMouseActivity:    15,
	SignalLowScrollActivity:   10,
	SignalAutomationUserAgent: 50,
	SignalAbnormalViewport:    20,
	SignalWebdriver:           50,
	SignalRapidRevisit:        30,
}

var reasons = map[Signal]string{
	SignalExcessiveClicks:     "Click count exceeded threshold within window",
	SignalExcessiveAdClicks:   "Ad click count exceeded threshold within window",
	SignalRepeatedPosition:    "Click at the exact position of the previous click",
	SignalRegularCadence:      "Click interval suspiciously regular",
	SignalLowMouseActivity:    "Too few mouse movements after page load",
	SignalLowScrollActivity:   "Too few scroll events after page load",
	SignalAutomationUserAgent: "Automation pattern in User-Agent",
	SignalAbnormalViewport:    "Viewport smaller than 100px",
	SignalWebdriver:           "WebDriver detected",
	SignalRapidRevisit:        "Page revisited within 5s of the last visit",
}

// oneShot lists the signals that may contribute at most once per page load.
var oneShot = map[Signal]bool{
	SignalLowMouseActivity:    true,
	SignalLowScrollActivity:   true,
	SignalAutomationUserAgent: true,
	SignalAbnormalViewport:    true,
	SignalWebdriver:           true,
	SignalRapidRevisit:        true,
}

const (
	// MouseObservationWindow is how long mouse movement is counted before
	// the low mouse activity signal is evaluated.
	MouseObservationWindow = 5 * time.Second

	// ScrollObservationWindow is the same for scroll events.
	ScrollObservationWindow = 8 * time.Second

	// RapidRevisitWindow is how soon after the last recorded visit a new
	// page load counts as a rapid revisit.
	RapidRevisitWindow = 5 * time.Second

	// CadenceTolerance is the largest difference between consecutive click
	// intervals that still counts as a regular cadence.
	CadenceTolerance = 50 * time.Millisecond

	// BotSuspectThreshold is the score a page load must exceed at unload
	// for the visitor to be flagged as a bot suspect.
	BotSuspectThreshold = 50
)

// Weight returns the score contribution of s.
func Weight(s Signal) int {
	return weights[s]
}

// IsOneShot reports whether s may fire at most once per page load.
func IsOneShot(s Signal) bool {
	return oneShot[s]
}

// Detection records one score contribution.
type Detection struct {
	Signal Signal    `json:"signal"`
	Weight int       `json:"weight"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

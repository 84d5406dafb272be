package timer

import (
	"fmt"
	"math"
	"time"
)

// Level is the urgency class of a countdown display.
type Level string

const (
	LevelNormal  Level = "normal"
	LevelWarning Level = "warning"
	LevelDanger  Level = "danger"
)

// TimeUpText is shown once a countdown reaches zero.
const TimeUpText = "Time Up!"

// Display is the presentation of a single tick.
type Display struct {
	Text     string         `json:"text"`
	Level    Level          `json:"level"`
	Progress *float64       `json:"progress,omitempty"`
	Alert    *time.Duration `json:"alert,omitempty"`
}

// Presenter turns ticks into displays. Implementations may keep per-countdown
// state, so use one Presenter per Handle.
type Presenter interface {
	Present(t Tick) Display
}

var (
	examThresholds     = thresholds{warning: 10 * time.Minute, danger: 5 * time.Minute}
	questionThresholds = thresholds{warning: 20 * time.Second, danger: 10 * time.Second, inclusive: true}

	examAlerts     = []time.Duration{10 * time.Minute, 5 * time.Minute, 2 * time.Minute}
	questionAlerts = []time.Duration{20 * time.Second, 10 * time.Second}
)

type thresholds struct {
	warning, danger time.Duration
	inclusive       bool
}

func (th thresholds) level(left time.Duration) Level {
	if th.inclusive {
		switch {
		case left <= th.danger:
			return LevelDanger
		case left <= th.warning:
			return LevelWarning
		}
		return LevelNormal
	}
	switch {
	case left < th.danger:
		return LevelDanger
	case left < th.warning:
		return LevelWarning
	}
	return LevelNormal
}

// NewPresenter selects the basic or enhanced strategy for a countdown kind.
func NewPresenter(kind Kind, enhanced bool) Presenter {
	th, alerts := examThresholds, examAlerts
	if kind == KindQuestion {
		th, alerts = questionThresholds, questionAlerts
	}
	if !enhanced {
		return basicPresenter{th: th}
	}
	return &enhancedPresenter{basic: basicPresenter{th: th}, alerts: alerts, fired: make(map[time.Duration]bool, len(alerts))}
}

type basicPresenter struct {
	th thresholds
}

func (p basicPresenter) Present(t Tick) Display {
	if t.Remaining <= 0 {
		return Display{Text: TimeUpText, Level: LevelDanger}
	}
	return Display{Text: FormatClock(t.Remaining), Level: p.th.level(t.Remaining)}
}

type enhancedPresenter struct {
	basic  basicPresenter
	alerts []time.Duration
	fired  map[time.Duration]bool
}

func (p *enhancedPresenter) Present(t Tick) Display {
	d := p.basic.Present(t)

	if t.Limit > 0 {
		pct := float64(t.Elapsed) / float64(t.Limit) * 100
		pct = math.Max(0, math.Min(100, pct))
		d.Progress = &pct
	}

	// Report only the tightest threshold crossed since the previous tick.
	for _, a := range p.alerts {
		if t.Remaining <= a && !p.fired[a] {
			p.fired[a] = true
			alert := a
			d.Alert = &alert
		}
	}
	return d
}

// FormatClock renders d as MM:SS, flooring partial seconds.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

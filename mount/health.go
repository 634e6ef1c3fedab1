package mount

import "time"

type LinkState int

const (
	LinkAlert LinkState = iota
	LinkOK
)

var linkStates = enum{"link state", []string{"ALERT", "OK"}}

func (l LinkState) String() string { return linkStates.name(int(l)) }

func (l LinkState) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *LinkState) UnmarshalText(text []byte) error {
	v, err := linkStates.parse(text)
	*l = LinkState(v)
	return err
}

// LinkMonitor flags the link when telemetry stops arriving. It is advisory
// only and never stops the mount.
type LinkMonitor struct {
	Timeout time.Duration

	last  time.Time
	state LinkState
}

// Observe records the arrival time of a valid status frame.
func (l *LinkMonitor) Observe(t time.Time) {
	l.last = t
}

// Check compares the age of the last frame with the timeout. It returns the
// new state and whether it differs from the previous check.
func (l *LinkMonitor) Check(now time.Time) (LinkState, bool) {
	state := LinkAlert
	if !l.last.IsZero() && now.Sub(l.last) < l.Timeout {
		state = LinkOK
	}
	changed := state != l.state
	l.state = state
	return state, changed
}

func (l *LinkMonitor) State() LinkState {
	return l.state
}

// LastStatus returns when the last frame was observed.
func (l *LinkMonitor) LastStatus() time.Time {
	return l.last
}

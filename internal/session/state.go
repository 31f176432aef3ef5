// Package session owns the live classification session: it keeps the model,
// the capture device and the rendered output consistent across start, stop,
// restart and single-shot classification.
package session

// State is the session lifecycle state.
type State int32

const (
	// Idle holds no resources. Initial state and the target of a failed load.
	Idle State = iota
	// Loading waits for the model.
	Loading
	// Running holds a loaded model and an attached device.
	Running
	// Stopping waits for the in-flight prediction before releasing the device.
	Stopping
	// Stopped holds no device; the model stays loaded.
	Stopped
)

var stateNames = [...]string{
	Idle:     "idle",
	Loading:  "loading",
	Running:  "running",
	Stopping: "stopping",
	Stopped:  "stopped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// StateNames lists every state name, for metrics.
func StateNames() []string {
	return stateNames[:]
}

// resting reports whether a start request may begin a new run.
func (s State) resting() bool {
	return s == Idle || s == Stopped
}

package build

// Status represents the build status as a string.
type Status string

const (
	// StatusWaiting indicates that the build is created and waits for a worker.
	StatusWaiting Status = "waiting"
	// StatusActive indicates that a worker is generating the build.
	StatusActive Status = "active"
	// StatusCompleted indicates that the build has been generated successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates that the generation has failed.
	StatusFailed Status = "failed"
)

var statuses = map[Status]struct{}{
	StatusWaiting:   {},
	StatusActive:    {},
	StatusCompleted: {},
	StatusFailed:    {},
}

// StatusFromString converts a string to a Status type and checks if it is a known status.
// It returns the Status and a boolean indicating whether the status is known.
func StatusFromString(s string) (status Status, known bool) {
	status = Status(s)
	_, known = statuses[status]
	return status, known
}

// Terminal reports whether no transition is possible from the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether the status may move forward to next.
// Waiting goes to Active or Failed, Active goes to Completed or Failed.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusWaiting:
		return next == StatusActive || next == StatusFailed
	case StatusActive:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

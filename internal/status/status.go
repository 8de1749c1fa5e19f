package status

import "fmt"

type Status int32

const (
	Pending Status = iota
	Active
	Completed
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Active:
		return "Active"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Resumable reports whether a checkpoint in this status may be continued.
func (s Status) Resumable() bool {
	return s != Completed
}

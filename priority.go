package yarl39

// Priority selects which lane a call joins. The immediate lane is fully
// drained before any background call is considered for dispatch; within a
// lane order is strictly FIFO.
type Priority int

const (
	Immediate Priority = iota
	Background
)

const nLanes = 2

func (p Priority) String() string {
	switch p {
	case Immediate:
		return "immediate"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

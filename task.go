package dirt

import "github.com/bcongdon/dirt/internal/pkg/dirtfs"

// Phase is the half of a stage a task belongs to.
type Phase int

// Phases
const (
	MapPhase Phase = iota
	ReducePhase
)

func (p Phase) String() string {
	if p == ReducePhase {
		return "reduce"
	}
	return "map"
}

// task is the unit of work sent to an executor. It is self-contained so
// that a remote worker can run it against its own copy of the stage.
type task struct {
	JobName          string
	RunID            string
	Phase            Phase
	BinID            uint
	Splits           []inputSplit
	IntermediateBins uint
	FileSystemType   dirtfs.FileSystemType
	WorkingLocation  string
	Combine          bool
	Cleanup          bool
}

// taskResult reports the work done by one task.
type taskResult struct {
	BytesRead    int64
	BytesWritten int64
}

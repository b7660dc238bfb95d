package manager

import "time"

// State represents lifecycle state of the manager.
type State string

const (
	StateEmpty   State = "empty"
	StateReady   State = "ready"
	StateLoading State = "loading"
	StateError   State = "error"
)

// ModelInfo is a minimal view of the current model.
type ModelInfo struct {
	ID       string
	Name     string
	Path     string
	LoadedAt time.Time
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State        State
	CurrentModel *ModelInfo
	Err          string
	Executed     uint64
}

// Request is one job handed to Execute.
type Request struct {
	JobID   string
	ModelID string
	// Input is the coordinator's model_input object.
	Input map[string]any
}

// Result is the outcome of a successful Execute.
type Result struct {
	ModelID      string
	Content      string
	FinishReason string
	Usage        Usage
	Duration     time.Duration
}

package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: not ready
	Error string `json:"error" example:"not ready"`
	// HTTP status code.
	// example: 503
	Code int `json:"code" example:"503"`
}

// WorkerStatus is returned by GET /status on a device worker.
type WorkerStatus struct {
	// Index of the compute device served by this worker.
	// example: 0
	Device int `json:"device" example:"0"`
	// Miner identifier assigned to the device.
	// example: 0x1234
	MinerID string `json:"miner_id" example:"0x1234"`
	// Worker version string.
	// example: 1.1.0
	Version string `json:"version" example:"1.1.0"`
	// Lifecycle state of the worker (starting, polling, executing, stopped).
	// example: polling
	State string `json:"state" example:"polling"`
	// Currently active model id, empty when nothing is loaded.
	// example: sdxl-turbo
	ActiveModel string `json:"active_model" example:"sdxl-turbo"`
	// Models currently loaded on the device.
	LoadedModels []string `json:"loaded_models"`
	// Models available in local storage.
	LocalModels []string `json:"local_models"`
	// Last heartbeat attachment (unix seconds, 0 when never sent).
	// example: 1700000000
	LastHeartbeatUnix int64 `json:"last_heartbeat_unix" example:"1700000000"`
	// Last reload signal check (unix seconds).
	// example: 1700000000
	LastSignalUnix int64 `json:"last_signal_unix" example:"1700000000"`
	// Total jobs executed since start.
	// example: 12
	JobsExecuted uint64 `json:"jobs_executed" example:"12"`
	// Total idle polls since start.
	// example: 40
	IdlePolls uint64 `json:"idle_polls" example:"40"`
	// Last error observed by the loop, if any.
	LastError string `json:"last_error,omitempty"`
	// Uptime of the worker in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}

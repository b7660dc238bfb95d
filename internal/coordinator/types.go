package coordinator

import (
	"encoding/json"
	"time"
)

// MinerRequest is the body of POST {base_url}/miner_request.
type MinerRequest struct {
	MinerID     string `json:"miner_id"`
	ModelID     string `json:"model_id"`
	MinDeadline int    `json:"min_deadline"`
	// Heartbeat fields, attached at most once per heartbeat window.
	Hardware string `json:"hardware,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Job is a coordinator-issued unit of work. It lives for one loop iteration.
type Job struct {
	JobID           string          `json:"job_id"`
	ModelID         string          `json:"model_id"`
	TempCredentials json.RawMessage `json:"temp_credentials,omitempty"`
	// Deadline is advisory and passed through untouched.
	Deadline   json.RawMessage `json:"deadline,omitempty"`
	ModelInput map[string]any  `json:"model_input,omitempty"`
}

// JobResponse is the parsed result of one miner_request round trip.
type JobResponse struct {
	Status int
	Body   string
	// Job is nil when the coordinator had no work.
	Job *Job
	// Warning holds the operator message following a "Warning:" marker.
	Warning string
	Latency time.Duration
}

// SignalOptions carries the miner's model filtering preferences.
type SignalOptions struct {
	ExcludeSDXL bool `json:"exclude_sdxl"`
}

// SignalRequest is the body of POST {signal_url}/miner_signal.
type SignalRequest struct {
	MinerID string        `json:"miner_id"`
	Options SignalOptions `json:"options"`
}

// SignalResponse is the successful miner_signal reply.
type SignalResponse struct {
	ModelID string `json:"model_id"`
}

// SubmitRequest is the body of POST {base_url}/miner_submit.
type SubmitRequest struct {
	JobID            string          `json:"job_id"`
	MinerID          string          `json:"miner_id"`
	ModelID          string          `json:"model_id"`
	TempCredentials  json.RawMessage `json:"temp_credentials,omitempty"`
	JobStartTime     float64         `json:"job_start_time"`
	RequestLatency   float64         `json:"request_latency"`
	InferenceLatency float64         `json:"inference_latency"`
	Result           string          `json:"result,omitempty"`
	FinishReason     string          `json:"finish_reason,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// CatalogEntry is one model advertised by the coordinator's model catalog.
type CatalogEntry struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url"`
	// File name to store the model under; derived from URL when empty.
	File string `json:"file,omitempty"`
	Size int64  `json:"size,omitempty"`
}

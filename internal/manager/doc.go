// Package manager owns the model loaded on one compute device and runs jobs
// against it. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: state types (State, ModelInfo, Snapshot, Request, Result).
//   - errors.go: error types and helpers (IsModelNotFound, IsDependencyUnavailable).
//   - load.go: LoadDefault/Reload lifecycle; exactly one model is loaded at a time.
//   - inference.go: Execute maps a job input onto the adapter and collects output.
//   - close.go: Close releases the session and any spawned runtime.
//
// Build tags and runtimes:
//
//   - In-process llama:
//     Uses go-llama.cpp adapter. Enabled with `-tags=llama`.
//     Files: adapter_llama.go, llama_cgo.go (linker rpath hints).
//     A no-CGO stub exists when the tag is not set: adapter_llama_stub.go.
//
//   - Subprocess llama-server (default):
//     One llama-server per loaded model, pinned to the device through
//     CUDA_VISIBLE_DEVICES. File: adapter_llama_subprocess.go.
package manager

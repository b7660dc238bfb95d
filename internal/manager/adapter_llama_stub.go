//go:build !llama

package manager

// No-CGO stub for the in-process adapter, compiled when the 'llama' build tag
// is NOT set. The real adapter lives in adapter_llama.go.

import "context"

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = false

type llamaAdapter struct {
	ctxSize int
	threads int
}

func NewLlamaAdapter(ctxSize, threads int) InferenceAdapter {
	return &llamaAdapter{ctxSize: ctxSize, threads: threads}
}

func (a *llamaAdapter) Start(ctx context.Context, modelPath string) (InferSession, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}

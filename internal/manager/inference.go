package manager

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Execute runs req against the loaded model. A job for a different local model
// swaps it in first; a job for a model absent from local storage fails with
// a model-not-found error. Panics from the runtime are returned as errors.
func (m *Manager) Execute(ctx context.Context, req Request) (res Result, err error) {
	if req.ModelID != "" && req.ModelID != m.Active() {
		if err := m.Reload(ctx, req.ModelID); err != nil {
			return Result{}, err
		}
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	sess := m.session
	cur := m.cur
	m.mu.RUnlock()
	if sess == nil || cur == nil {
		return Result{}, ErrNoModel
	}

	defer func() {
		if r := recover(); r != nil {
			err = inferencePanicError{v: r}
			m.publisher.Publish(Event{Name: "execute_panic", ModelID: cur.ID, Fields: map[string]any{"job_id": req.JobID}})
		}
	}()

	prompt, params := paramsFromInput(req.Input)
	start := time.Now()
	var b strings.Builder
	final, err := sess.Generate(ctx, prompt, params, func(tok string) error {
		b.WriteString(tok)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("execute job %s: %w", req.JobID, err)
	}
	content := final.Content
	if content == "" {
		content = b.String()
	}
	m.mu.Lock()
	m.executed++
	m.mu.Unlock()
	m.publisher.Publish(Event{Name: "execute_done", ModelID: cur.ID, Fields: map[string]any{"job_id": req.JobID}})
	return Result{
		ModelID:      cur.ID,
		Content:      content,
		FinishReason: final.FinishReason,
		Usage:        final.Usage,
		Duration:     time.Since(start),
	}, nil
}

// paramsFromInput maps a job's model_input onto a prompt and adapter params.
// Unknown keys are ignored; numbers arrive as float64 from JSON.
func paramsFromInput(in map[string]any) (string, InferParams) {
	p := InferParams{MaxTokens: defaultMaxTokens}
	prompt, _ := in["prompt"].(string)
	if v, ok := number(in["max_tokens"]); ok && v > 0 {
		p.MaxTokens = int(v)
	}
	if v, ok := number(in["temperature"]); ok {
		p.Temperature = float32(v)
	}
	if v, ok := number(in["top_p"]); ok {
		p.TopP = float32(v)
	}
	if v, ok := number(in["top_k"]); ok {
		p.TopK = int(v)
	}
	if v, ok := number(in["seed"]); ok {
		p.Seed = int(v)
	}
	if v, ok := number(in["repeat_penalty"]); ok {
		p.RepeatPenalty = float32(v)
	}
	switch s := in["stop"].(type) {
	case string:
		p.Stop = []string{s}
	case []any:
		for _, v := range s {
			if str, ok := v.(string); ok {
				p.Stop = append(p.Stop, str)
			}
		}
	case []string:
		p.Stop = append(p.Stop, s...)
	}
	return prompt, p
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

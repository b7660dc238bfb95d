package manager

import (
	"context"
	"strings"
	"time"
)

// LoadDefault loads the configured default model, or the first local model
// when no default is configured or the default is missing. With no local
// models it loads nothing and returns nil.
func (m *Manager) LoadDefault(ctx context.Context) error {
	id := m.defaultModel
	if id != "" {
		if _, ok := m.getModelByID(id); !ok {
			m.log.Warn().Str("model", id).Msg("default model not in local storage; using first local model")
			id = ""
		}
	}
	if id == "" {
		models := m.ListModels()
		if len(models) == 0 {
			return nil
		}
		id = models[0].ID
	}
	return m.Reload(ctx, id)
}

// Reload makes modelID the only loaded model. It is a no-op when modelID is
// already loaded. The previous model is released before the new one is
// started so the device never holds two.
func (m *Manager) Reload(ctx context.Context, modelID string) error {
	if strings.TrimSpace(modelID) == "" {
		return ErrModelNotFound("(unspecified)")
	}
	mdl, ok := m.getModelByID(modelID)
	if !ok || strings.TrimSpace(mdl.Path) == "" {
		return ErrModelNotFound(modelID)
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.cur != nil && m.cur.ID == modelID && m.state == StateReady {
		m.mu.Unlock()
		return nil
	}
	prev := m.cur
	old := m.session
	m.session = nil
	m.cur = nil
	m.state = StateLoading
	m.err = ""
	m.mu.Unlock()

	from := ""
	if prev != nil {
		from = prev.ID
	}
	m.publisher.Publish(Event{Name: "reload_start", ModelID: modelID, Fields: map[string]any{"from": from, "device": m.device}})
	if old != nil {
		if err := old.Close(); err != nil {
			m.log.Warn().Err(err).Str("model", from).Msg("close previous model")
		}
	}

	start := time.Now()
	sess, err := m.adapter.Start(ctx, mdl.Path)
	if err != nil {
		m.mu.Lock()
		m.state = StateError
		m.err = err.Error()
		m.mu.Unlock()
		m.publisher.Publish(Event{Name: "reload_failed", ModelID: modelID, Fields: map[string]any{"error": err.Error()}})
		return err
	}

	m.mu.Lock()
	m.session = sess
	m.cur = &ModelInfo{ID: mdl.ID, Name: mdl.Name, Path: mdl.Path, LoadedAt: time.Now()}
	m.state = StateReady
	m.mu.Unlock()
	m.publisher.Publish(Event{Name: "reload_done", ModelID: modelID, Fields: map[string]any{"from": from, "duration_ms": time.Since(start).Milliseconds()}})
	return nil
}

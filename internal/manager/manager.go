package manager

import (
	"sync"

	"github.com/rs/zerolog"

	"sdminer/pkg/types"
)

// Manager holds the single loaded model of one device. Load and swap are
// serialized with Execute through opMu; mu guards the observable state.
type Manager struct {
	opMu sync.Mutex

	mu           sync.RWMutex
	device       int
	state        State
	cur          *ModelInfo
	session      InferSession
	err          string
	registry     []types.Model
	defaultModel string
	executed     uint64

	adapter   InferenceAdapter
	publisher EventPublisher
	log       zerolog.Logger
}

// New constructs a Manager with the default runtime for device.
func New(device int, reg []types.Model, defaultModel string) *Manager {
	return NewWithConfig(ManagerConfig{Device: device, Registry: reg, DefaultModel: defaultModel})
}

// Ready reports whether a model is loaded and usable.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.cur != nil
}

// Device returns the device index this manager is bound to.
func (m *Manager) Device() int { return m.device }

// SetRegistry replaces the set of locally stored models used to resolve ids.
func (m *Manager) SetRegistry(models []types.Model) {
	cp := make([]types.Model, len(models))
	copy(cp, models)
	m.mu.Lock()
	m.registry = cp
	m.mu.Unlock()
}

func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// return a shallow copy to avoid external mutation
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	return out
}

// Loaded lists the ids of loaded models. The list holds at most one entry.
func (m *Manager) Loaded() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return nil
	}
	return []string{m.cur.ID}
}

// Active returns the id of the loaded model, or "" when none is loaded.
func (m *Manager) Active() string {
	if l := m.Loaded(); len(l) > 0 {
		return l[0]
	}
	return ""
}

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var cur *ModelInfo
	if m.cur != nil {
		c := *m.cur
		cur = &c
	}
	return Snapshot{State: m.state, CurrentModel: cur, Err: m.err, Executed: m.executed}
}

func (m *Manager) getModelByID(id string) (types.Model, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mdl := range m.registry {
		if mdl.ID == id {
			return mdl, true
		}
	}
	return types.Model{}, false
}

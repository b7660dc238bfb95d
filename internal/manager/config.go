package manager

import (
	"github.com/rs/zerolog"

	"sdminer/pkg/types"
)

// Runtime names accepted by ManagerConfig.Runtime.
const (
	RuntimeLlama      = "llama"
	RuntimeSubprocess = "subprocess"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxTokens = 256
	defaultLlamaHost = "127.0.0.1"
	defaultLlamaBin  = "llama-server"
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// Device is the compute device index this manager is bound to.
	Device       int
	Registry     []types.Model
	DefaultModel string
	Runtime      string
	// Inference / llama.cpp configuration (no envs; set by callers)
	LlamaBin       string
	LlamaHost      string
	LlamaCtxSize   int
	LlamaThreads   int
	LlamaNGL       int
	LlamaExtraArgs []string
	// Adapter overrides the runtime selected by Runtime.
	Adapter   InferenceAdapter
	Publisher EventPublisher
	Logger    zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	if cfg.LlamaHost == "" {
		cfg.LlamaHost = defaultLlamaHost
	}
	m := &Manager{
		device:       cfg.Device,
		state:        StateEmpty,
		registry:     cfg.Registry,
		defaultModel: cfg.DefaultModel,
		publisher:    cfg.Publisher,
		log:          cfg.Logger.With().Str("component", "manager").Logger(),
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	switch {
	case cfg.Adapter != nil:
		m.adapter = cfg.Adapter
	case cfg.Runtime == RuntimeLlama:
		m.adapter = NewLlamaAdapter(cfg.LlamaCtxSize, cfg.LlamaThreads)
	default:
		sa := NewLlamaSubprocessAdapter(cfg).(*llamaSubprocessAdapter)
		sa.setPublisher(m.publisher)
		m.adapter = sa
	}
	return m
}

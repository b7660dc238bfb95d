package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Identity is the immutable identity of one device worker.
type Identity struct {
	DeviceIndex int
	MinerID     string
	Version     string
}

// ErrMissingMinerID is returned when a device has no MINER_ID_<i> variable.
var ErrMissingMinerID = errors.New("miner id not found")

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// MinerIDs reads MINER_ID_0..MINER_ID_<n-1> through lookup. Every device must
// have one; ids that do not start with 0x only produce a warning.
func MinerIDs(n int, lookup func(string) (string, bool), log zerolog.Logger) ([]string, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		v, ok := lookup(fmt.Sprintf("MINER_ID_%d", i))
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			return nil, fmt.Errorf("%w for GPU %d (set MINER_ID_%d)", ErrMissingMinerID, i, i)
		}
		if !strings.HasPrefix(v, "0x") {
			log.Warn().Int("device", i).Str("miner_id", v).Msg("miner id does not start with '0x'")
		}
		ids[i] = v
	}
	return ids, nil
}

// AssignIdentity picks the miner id for device. A single-device setup always
// uses MINER_ID_0.
func AssignIdentity(cfg Config, ids []string, device int) (Identity, error) {
	if device < 0 || device >= cfg.NumCUDADevices {
		return Identity{}, fmt.Errorf("device %d out of range [0,%d)", device, cfg.NumCUDADevices)
	}
	id := ""
	if cfg.NumCUDADevices > 1 && device < len(ids) {
		id = ids[device]
	} else if len(ids) > 0 {
		id = ids[0]
	}
	if id == "" {
		return Identity{}, ErrMissingMinerID
	}
	return Identity{DeviceIndex: device, MinerID: id, Version: cfg.Version}, nil
}

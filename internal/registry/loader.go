package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sdminer/internal/common/fsutil"
	"sdminer/pkg/types"
)

// modelExts lists the file formats recognized as local models.
var modelExts = map[string]string{
	".gguf":        "gguf",
	".safetensors": "safetensors",
	".ckpt":        "ckpt",
	".onnx":        "onnx",
}

// IsModelFile reports whether name has a recognized model extension.
func IsModelFile(name string) bool {
	_, ok := modelExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ModelID derives the model id from a file name: the base name without its extension.
func ModelID(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadDir scans a directory for model files and builds a registry from filenames,
// sorted by id. A missing directory yields an empty registry.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	if !fsutil.PathExists(abs) {
		return nil, nil
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		format, ok := modelExts[strings.ToLower(filepath.Ext(name))]
		if !ok {
			continue
		}
		var size int64
		if fi, err := e.Info(); err == nil {
			size = fi.Size()
		}
		id := ModelID(name)
		models = append(models, types.Model{ID: id, Name: id, Path: filepath.Join(abs, name), Format: format, SizeBytes: size})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// IDs returns the model ids of models in order.
func IDs(models []types.Model) []string {
	out := make([]string, 0, len(models))
	for _, m := range models {
		out = append(out, m.ID)
	}
	return out
}

// Find returns the model with the given id.
func Find(models []types.Model, id string) (types.Model, bool) {
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return types.Model{}, false
}

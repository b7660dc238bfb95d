package types

// Model represents a model file present in local storage.
type Model struct {
	// Stable identifier for the model, the file name without extension.
	// example: sdxl-turbo
	ID string `json:"id" example:"sdxl-turbo"`
	// Human-friendly name.
	// example: SDXL Turbo
	Name string `json:"name" example:"SDXL Turbo"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/sdxl-turbo.safetensors
	Path string `json:"path" example:"/home/user/models/sdxl-turbo.safetensors"`
	// File format derived from the extension.
	// example: safetensors
	Format string `json:"format" example:"safetensors"`
	// Size of the model file in bytes.
	SizeBytes int64 `json:"size_bytes"`
}

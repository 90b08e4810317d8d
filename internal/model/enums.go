package model

import "strings"

// Cell status
type CellStatus string

const (
	StatusIdle       CellStatus = "idle"
	StatusPending    CellStatus = "pending"
	StatusQueued     CellStatus = "queued"
	StatusRunning    CellStatus = "running"
	StatusProcessing CellStatus = "processing"
	StatusInProgress CellStatus = "in_progress"
	StatusCompleted  CellStatus = "completed"
	StatusError      CellStatus = "error"
)

// IsActive reports whether the status marks an in-flight run. A
// persisted cell in an active status with a job id resumes polling on
// boot.
func (s CellStatus) IsActive() bool {
	switch s {
	case StatusPending, StatusQueued, StatusRunning, StatusProcessing, StatusInProgress:
		return true
	}
	return false
}

// IsTerminal reports whether the status is a run outcome.
func (s CellStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Model types
type ModelType string

const (
	ModelTypeText  ModelType = "text"
	ModelTypeImage ModelType = "image"
	ModelTypeVideo ModelType = "video"
	ModelTypeAudio ModelType = "audio"
)

var modelTypePrefixes = map[ModelType][]string{
	ModelTypeImage: {"dall-e", "gpt-image", "imagen", "flux", "stable-diffusion"},
	ModelTypeVideo: {"veo", "sora", "runway", "kling"},
	ModelTypeAudio: {"tts", "eleven", "audio"},
}

// TypeOf maps a model name to its modality. Unknown models are treated
// as text.
func TypeOf(model string) ModelType {
	name := strings.ToLower(model)
	for typ, prefixes := range modelTypePrefixes {
		for _, p := range prefixes {
			if strings.HasPrefix(name, p) {
				return typ
			}
		}
	}
	return ModelTypeText
}

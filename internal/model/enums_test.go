package model

import "testing"

func TestTypeOf(t *testing.T) {
	tests := []struct {
		model string
		want  ModelType
	}{
		{"gpt-4o", ModelTypeText},
		{"claude-sonnet", ModelTypeText},
		{"", ModelTypeText},
		{"dall-e-3", ModelTypeImage},
		{"DALL-E-3", ModelTypeImage},
		{"flux-pro", ModelTypeImage},
		{"stable-diffusion-xl", ModelTypeImage},
		{"veo-2", ModelTypeVideo},
		{"sora", ModelTypeVideo},
		{"kling-1.5", ModelTypeVideo},
		{"tts-1-hd", ModelTypeAudio},
		{"eleven-multilingual", ModelTypeAudio},
	}
	for _, tt := range tests {
		if got := TypeOf(tt.model); got != tt.want {
			t.Errorf("TypeOf(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestCellStatus(t *testing.T) {
	active := []CellStatus{StatusPending, StatusQueued, StatusRunning, StatusProcessing, StatusInProgress}
	for _, s := range active {
		if !s.IsActive() {
			t.Errorf("%q should be active", s)
		}
		if s.IsTerminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
	for _, s := range []CellStatus{StatusCompleted, StatusError} {
		if s.IsActive() {
			t.Errorf("%q should not be active", s)
		}
		if !s.IsTerminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
	if StatusIdle.IsActive() || StatusIdle.IsTerminal() {
		t.Error("idle is neither active nor terminal")
	}
	if CellStatus("").IsActive() {
		t.Error("cleared status is not active")
	}
}

package model

import "time"

// Cell is a single prompt/output unit addressed by a spreadsheet-style
// reference (A1, B2, ...). References are unique within a sheet only.
type Cell struct {
	Sheet  string     `json:"sheet"`
	Ref    string     `json:"ref"`
	UserID string     `json:"userId,omitempty"`
	Prompt string     `json:"prompt"`
	Output string     `json:"output,omitempty"`
	Status CellStatus `json:"status,omitempty"`
	JobID  string     `json:"jobId,omitempty"`

	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`

	OutputFormat   string `json:"outputFormat,omitempty"`
	CharacterLimit int    `json:"characterLimit,omitempty"`

	// Condition gates execution: when set and it evaluates false the
	// run is skipped without touching status or spending credits.
	Condition string `json:"condition,omitempty"`

	AutoRun  bool `json:"autoRun"`
	Interval int  `json:"interval,omitempty"` // seconds, 0 = disabled

	// Media parameters, meaningful only when the model's type matches.
	VideoSeconds     int     `json:"videoSeconds,omitempty"`
	VideoResolution  string  `json:"videoResolution,omitempty"`
	VideoAspectRatio string  `json:"videoAspectRatio,omitempty"`
	AudioVoice       string  `json:"audioVoice,omitempty"`
	AudioSpeed       float64 `json:"audioSpeed,omitempty"`
	AudioFormat      string  `json:"audioFormat,omitempty"`

	// Generations is append-only; history deletion is an external
	// collaborator operation.
	Generations []Generation `json:"generations,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key returns the cross-sheet cell key ("Sheet1!A1").
func (c *Cell) Key() string {
	return c.Sheet + "!" + c.Ref
}

// Generation is one historical execution record for a cell.
type Generation struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	Output      string    `json:"output"`
	Model       string    `json:"model,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Connection is an explicit manual link between two cells. It is purely
// informational and never affects scheduling.
type Connection struct {
	ID           string    `json:"id"`
	Sheet        string    `json:"sheet"`
	SourceCellID string    `json:"sourceCellId"`
	TargetCellID string    `json:"targetCellId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CellUpsertRequest is the payload for PUT /api/sheets/:sheet/cells/:ref.
type CellUpsertRequest struct {
	Prompt         string  `json:"prompt"`
	Model          string  `json:"model,omitempty"`
	Temperature    float64 `json:"temperature,omitempty" validate:"gte=0,lte=2"`
	OutputFormat   string  `json:"outputFormat,omitempty"`
	CharacterLimit int     `json:"characterLimit,omitempty" validate:"gte=0"`
	Condition      string  `json:"condition,omitempty"`
	AutoRun        bool    `json:"autoRun"`
	Interval       int     `json:"interval,omitempty" validate:"gte=0"`

	VideoSeconds     int     `json:"videoSeconds,omitempty" validate:"gte=0,lte=60"`
	VideoResolution  string  `json:"videoResolution,omitempty"`
	VideoAspectRatio string  `json:"videoAspectRatio,omitempty"`
	AudioVoice       string  `json:"audioVoice,omitempty"`
	AudioSpeed       float64 `json:"audioSpeed,omitempty" validate:"gte=0,lte=4"`
	AudioFormat      string  `json:"audioFormat,omitempty"`
}

// ConnectionCreateRequest is the payload for POST /api/sheets/:sheet/connections.
type ConnectionCreateRequest struct {
	SourceCellID string `json:"sourceCellId" validate:"required"`
	TargetCellID string `json:"targetCellId" validate:"required"`
}

// RunAcceptedResponse is returned when a manual run is enqueued.
type RunAcceptedResponse struct {
	Sheet    string    `json:"sheet"`
	Ref      string    `json:"ref"`
	Queued   bool      `json:"queued"`
	QueuedAt time.Time `json:"queuedAt"`
}

// CellDepsResponse lists a cell's parse-derived edges.
type CellDepsResponse struct {
	Sheet      string   `json:"sheet"`
	Ref        string   `json:"ref"`
	References []string `json:"references"` // cells this cell reads
	Dependents []string `json:"dependents"` // cells that read this cell
}

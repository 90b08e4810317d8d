package model

// WebSocket message types
type WSMessageType string

const (
	WSMessageTypeCellUpdate   WSMessageType = "cell_update"
	WSMessageTypeCellComplete WSMessageType = "cell_complete"
	WSMessageTypeCellError    WSMessageType = "cell_error"
	WSMessageTypePing         WSMessageType = "ping"
	WSMessageTypePong         WSMessageType = "pong"
)

// WSMessage is the base message envelope
type WSMessage struct {
	Type WSMessageType `json:"type"`
}

// WSCellUpdateMessage announces a status change for a cell
type WSCellUpdateMessage struct {
	Type   WSMessageType `json:"type"`
	Sheet  string        `json:"sheet"`
	Ref    string        `json:"ref"`
	Status CellStatus    `json:"status"`
	JobID  string        `json:"jobId,omitempty"`
}

// WSCellCompleteMessage carries a finished cell's output
type WSCellCompleteMessage struct {
	Type   WSMessageType `json:"type"`
	Sheet  string        `json:"sheet"`
	Ref    string        `json:"ref"`
	Output string        `json:"output"`
}

// WSCellErrorMessage carries a failed cell's error
type WSCellErrorMessage struct {
	Type  WSMessageType `json:"type"`
	Sheet string        `json:"sheet"`
	Ref   string        `json:"ref"`
	Error WSError       `json:"error"`
}

// WSError holds error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

package protocol

import "time"

// Command verbs accepted on the control socket.
const (
	CmdStart  = "start"
	CmdStop   = "stop"
	CmdCancel = "cancel"
	CmdStatus = "status"
	CmdToggle = "toggle"
)

// Post-processing actions carried opaquely to the text-delivery client.
const (
	ActionType = "type"
	ActionCopy = "copy"
)

// Condition codes returned to clients.
const (
	CodeOK               = "ok"
	CodeBusy             = "busy"
	CodeNotFound         = "not_found"
	CodePermissionDenied = "permission_denied"
	CodeInferenceFailed  = "inference_failed"
	CodeBadRequest       = "bad_request"
)

// Command is a single client request. One command per connection.
type Command struct {
	Cmd    string `json:"cmd"`
	Action string `json:"action,omitempty"`
}

// Response is the daemon's reply to a command.
type Response struct {
	OK     bool    `json:"ok"`
	Code   string  `json:"code"`
	State  string  `json:"state,omitempty"`
	Error  string  `json:"error,omitempty"`
	Status *Status `json:"status,omitempty"`
}

// Status mirrors the fields a status query reports.
type Status struct {
	Active              bool    `json:"active"`
	PID                 int     `json:"pid"`
	Model               string  `json:"model"`
	ModelPath           string  `json:"model_path"`
	Language            string  `json:"language"`
	MaxRecordingSeconds int     `json:"max_recording_seconds"`
	State               string  `json:"state"`
	DurationSeconds     float64 `json:"duration_seconds,omitempty"`
	LastResult          string  `json:"last_result,omitempty"`
	LastError           string  `json:"last_error,omitempty"`
}

// Transcript is broadcast on the bus after a session completes.
type Transcript struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Action    string    `json:"action,omitempty"`
	Model     string    `json:"model"`
	Language  string    `json:"language"`
	Duration  float64   `json:"duration_seconds"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTranscriptFinal = "voxd.transcript.final"
)

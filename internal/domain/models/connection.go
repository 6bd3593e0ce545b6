package models

import "time"

// Phase is the lifecycle phase of a source connection.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseReconnecting Phase = "reconnecting"
	PhaseStopped      Phase = "stopped"
)

// ConnectionState is a snapshot of one source's connection lifecycle.
// It is owned exclusively by the source's stream manager; callers only ever
// see copies.
type ConnectionState struct {
	Source            Source    `json:"source"`
	Phase             Phase     `json:"phase"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	StartedAt         time.Time `json:"startedAt,omitempty"`
	LastError         string    `json:"lastError,omitempty"`
}

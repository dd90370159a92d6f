package models

import "time"

// ConnectionInfo is a read-only view of one live timing client connection.
type ConnectionInfo struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	SourceIP   string    `json:"sourceIP"`
	SourcePort int       `json:"sourcePort"`
	OpenedAt   time.Time `json:"openedAt"`
	Identified bool      `json:"identified"`
	Locations  []string  `json:"locations"`
}

// ForwarderState is the snapshot handed to the UI/state layer.
type ForwarderState struct {
	Version           string           `json:"version"`
	UpstreamAvailable bool             `json:"upstreamAvailable"`
	Connections       []ConnectionInfo `json:"connections"`
}

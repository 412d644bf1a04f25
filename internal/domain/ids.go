// Package domain contains the error taxonomy, value objects, clocks and
// compiled defaults shared by every layer. It has no dependencies on
// provider SDKs or transports.
package domain

import "github.com/google/uuid"

// SessionID identifies one orchestrator session in logs and spans.
type SessionID struct {
	value string
}

// GenerateSessionID creates a new random SessionID.
func GenerateSessionID() SessionID {
	return SessionID{value: uuid.NewString()}
}

func (id SessionID) String() string { return id.value }
func (id SessionID) IsZero() bool   { return id.value == "" }

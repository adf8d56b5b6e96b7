package events

import (
	"github.com/engify/obo-gateway/internal/domain"
)

// EventType aliases the domain audit event identifier for subscription keys.
type EventType = domain.AuditEventType

const (
	EventTokenExchange = domain.AuditTokenExchange
)

package domain

import "time"

// ServiceClient is a registered caller of the exchange endpoint. Secrets are
// stored bcrypt-hashed, never in the clear.
type ServiceClient struct {
	ID         string
	ClientID   string
	Name       string
	SecretHash string
	Active     bool
	CreatedAt  time.Time
}

package token

import (
	"crypto/subtle"
	"errors"
)

var (
	ErrUnmappedResource = errors.New("no audience mapping for resource")
	ErrAudienceMismatch = errors.New("declared audience does not match mapped audience")
)

// DefaultMappings is the static resource -> audience table loaded at startup.
// Entries are exact URNs; there is no prefix or wildcard matching.
func DefaultMappings() map[string]string {
	return map[string]string{
		"urn:mcp:bug-reporter":   "urn:engify:rag-service",
		"urn:mcp:prompt-library": "urn:engify:content-service",
		"urn:mcp:study-insights": "urn:engify:insights-service",
	}
}

// AudienceMapper resolves a caller-declared resource to the single audience
// an exchange may target. Read-only after construction, safe to share.
type AudienceMapper struct {
	mappings map[string]string
}

// NewAudienceMapper layers overrides on top of the default table.
func NewAudienceMapper(overrides map[string]string) *AudienceMapper {
	mappings := DefaultMappings()
	for resource, audience := range overrides {
		mappings[resource] = audience
	}
	return &AudienceMapper{mappings: mappings}
}

// Resolve returns the permitted audience for declaredResource. The declared
// audience must equal the mapped value exactly; no prefix or wildcard
// matching.
func (m *AudienceMapper) Resolve(declaredResource, declaredAudience string) (string, error) {
	mapped, ok := m.mappings[declaredResource]
	if !ok {
		return "", ErrUnmappedResource
	}
	if subtle.ConstantTimeCompare([]byte(declaredAudience), []byte(mapped)) != 1 {
		return "", ErrAudienceMismatch
	}
	return mapped, nil
}

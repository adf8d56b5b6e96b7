package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/engify/obo-gateway/internal/token"
)

// JWKSHandler serves the public key set for minted OBO tokens. In HS256 mode
// the set is empty: downstream services verify with the shared secret.
type JWKSHandler struct {
	issuer *token.Issuer
}

// NewJWKSHandler constructs handler.
func NewJWKSHandler(issuer *token.Issuer) *JWKSHandler {
	return &JWKSHandler{issuer: issuer}
}

// Get handles GET /.well-known/jwks.json with ETag-based conditional GET.
func (h *JWKSHandler) Get(c *fiber.Ctx) error {
	ks := token.JWKS{Keys: []token.JWK{}}
	if jwk, ok := h.issuer.PublicJWK(); ok {
		ks.Keys = append(ks.Keys, jwk)
	}

	body, err := json.Marshal(ks)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(body)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`

	if inm := c.Get("If-None-Match"); inm != "" && inm == etag {
		return c.SendStatus(http.StatusNotModified)
	}

	c.Set("Content-Type", "application/json")
	c.Set("Cache-Control", "public, max-age=300, must-revalidate")
	c.Set("ETag", etag)
	return c.Send(body)
}

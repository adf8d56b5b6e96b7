package handlers

import (
	"encoding/base64"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/engify/obo-gateway/internal/api/dto"
	"github.com/engify/obo-gateway/internal/service"
	apperrors "github.com/engify/obo-gateway/pkg/util"
)

// ExchangeHandler exposes the OBO token exchange endpoint.
type ExchangeHandler struct {
	exchange *service.ExchangeService
}

// NewExchangeHandler constructs handler.
func NewExchangeHandler(exchangeService *service.ExchangeService) *ExchangeHandler {
	return &ExchangeHandler{exchange: exchangeService}
}

// Exchange handles POST /oauth/token/exchange.
func (h *ExchangeHandler) Exchange(c *fiber.Ctx) error {
	var req dto.TokenExchangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidRequest("malformed request body")
	}

	clientID, clientSecret := req.ClientID, req.ClientSecret
	if clientID == "" {
		clientID, clientSecret = basicAuthCredentials(c.Get("Authorization"))
	}

	resp, err := h.exchange.Exchange(c.UserContext(), service.ExchangeRequest{
		GrantType:        req.GrantType,
		SubjectToken:     req.SubjectToken,
		SubjectTokenType: req.SubjectTokenType,
		Resource:         req.Resource,
		Audience:         req.Audience,
		Scope:            req.Scope,
		ClientID:         clientID,
		ClientSecret:     clientSecret,
		CallerID:         c.IP(),
	})
	if err != nil {
		return err
	}

	return c.JSON(dto.TokenExchangeResponse{
		AccessToken:     resp.AccessToken,
		TokenType:       resp.TokenType,
		ExpiresIn:       resp.ExpiresIn,
		IssuedTokenType: resp.IssuedTokenType,
		Scope:           resp.Scope,
	})
}

// basicAuthCredentials decodes client credentials from a Basic auth header.
func basicAuthCredentials(header string) (string, string) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Basic") {
		return "", ""
	}
	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ""
	}
	creds := strings.SplitN(string(decoded), ":", 2)
	if len(creds) != 2 {
		return "", ""
	}
	return creds[0], creds[1]
}

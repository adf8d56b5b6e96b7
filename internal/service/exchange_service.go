package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/engify/obo-gateway/internal/auth"
	"github.com/engify/obo-gateway/internal/domain"
	"github.com/engify/obo-gateway/internal/events"
	"github.com/engify/obo-gateway/internal/observability"
	"github.com/engify/obo-gateway/internal/ratelimit"
	"github.com/engify/obo-gateway/internal/repository"
	"github.com/engify/obo-gateway/internal/session"
	"github.com/engify/obo-gateway/internal/token"
	apperrors "github.com/engify/obo-gateway/pkg/util"
)

// RFC 8693 URNs accepted by the exchange endpoint.
const (
	GrantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
	TokenTypeAccessToken   = "urn:ietf:params:oauth:token-type:access_token"
)

const defaultScope = "read"

// ExchangeRequest carries the parsed parameters of one exchange call.
type ExchangeRequest struct {
	GrantType        string
	SubjectToken     string
	SubjectTokenType string
	Resource         string
	Audience         string
	Scope            string
	ClientID         string
	ClientSecret     string
	// CallerID identifies the caller for rate limiting (client IP).
	CallerID string
}

// ExchangeResponse is the successful exchange result.
type ExchangeResponse struct {
	AccessToken     string
	TokenType       string
	ExpiresIn       int
	IssuedTokenType string
	Scope           string
}

// ExchangeDependencies bundles collaborator requirements.
type ExchangeDependencies struct {
	Limiter    *ratelimit.Limiter
	Validator  *token.Validator
	Mapper     *token.AudienceMapper
	Sessions   session.Checker
	Issuer     *token.Issuer
	Clients    repository.ClientRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// ExchangeService orchestrates the token exchange gate sequence: rate check,
// grant validation, subject verification, audience mapping, session liveness,
// minting, audit. Terminal failure at any gate short-circuits; minting and
// the best-effort audit write are the only side effects.
type ExchangeService struct {
	limiter           *ratelimit.Limiter
	validator         *token.Validator
	mapper            *token.AudienceMapper
	sessions          session.Checker
	issuer            *token.Issuer
	clients           repository.ClientRepository
	requireClientAuth bool
	dispatcher        events.Dispatcher
	metrics           *observability.Metrics
	logger            *zap.Logger
}

// NewExchangeService builds the service.
func NewExchangeService(deps ExchangeDependencies, requireClientAuth bool) *ExchangeService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExchangeService{
		limiter:           deps.Limiter,
		validator:         deps.Validator,
		mapper:            deps.Mapper,
		sessions:          deps.Sessions,
		issuer:            deps.Issuer,
		clients:           deps.Clients,
		requireClientAuth: requireClientAuth,
		dispatcher:        deps.Dispatcher,
		metrics:           deps.Metrics,
		logger:            logger,
	}
}

// Exchange runs the full request cycle and returns either a response or an
// *util.OAuthError describing the denial.
func (s *ExchangeService) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResponse, error) {
	res := s.limiter.Check(ctx, ratelimit.EndpointOBOExchange, req.CallerID)
	if !res.Allowed {
		s.metrics.RecordRateLimitDeny(ratelimit.EndpointOBOExchange)
		s.metrics.RecordExchange(apperrors.CodeRateLimitExceeded)
		return nil, apperrors.NewRateLimitExceeded(res.ResetAt)
	}

	if req.GrantType != GrantTypeTokenExchange {
		return nil, s.deny("", "", req.Scope, apperrors.NewUnsupportedGrantType(req.GrantType))
	}
	if req.SubjectTokenType != TokenTypeAccessToken {
		return nil, s.deny("", "", req.Scope,
			apperrors.NewInvalidRequest("subject_token_type must be "+TokenTypeAccessToken))
	}
	if req.SubjectToken == "" || req.Resource == "" || req.Audience == "" {
		return nil, s.deny("", "", req.Scope,
			apperrors.NewInvalidRequest("subject_token, resource and audience are required"))
	}

	scope := req.Scope
	if scope == "" {
		scope = defaultScope
	}

	if s.requireClientAuth {
		if err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
			return nil, s.deny("", req.Audience, scope, err)
		}
	}

	subject, err := s.validator.Verify(req.SubjectToken, req.Resource)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenExpired):
			return nil, s.deny("", req.Audience, scope, apperrors.NewInvalidGrant("subject token expired"))
		case errors.Is(err, token.ErrResourceMismatch):
			return nil, s.deny("", req.Audience, scope, apperrors.NewInvalidTarget("subject token is not bound to the declared resource"))
		default:
			return nil, s.deny("", req.Audience, scope, apperrors.NewInvalidGrant("subject token invalid"))
		}
	}

	audience, err := s.mapper.Resolve(req.Resource, req.Audience)
	if err != nil {
		return nil, s.deny(subject.Subject, req.Audience, scope,
			apperrors.NewInvalidTarget("resource has no mapping to the declared audience"))
	}

	live, err := s.sessions.Confirm(ctx, subject.Subject, subject.Resource)
	if err != nil {
		// Liveness is a security gate; a store failure here fails the
		// request, unlike the limiter's fail-open path.
		s.logger.Error("session liveness check failed", zap.Error(err))
		return nil, s.deny(subject.Subject, audience, scope, apperrors.NewServerError(err))
	}
	if !live {
		return nil, s.deny(subject.Subject, audience, scope,
			apperrors.NewInvalidGrant("no live session for subject"))
	}

	if err := ctx.Err(); err != nil {
		// Transport deadline hit; never hand back a partially-processed token.
		return nil, s.deny(subject.Subject, audience, scope, apperrors.NewServerError(err))
	}

	signed, expiresAt, err := s.issuer.Mint(subject, audience, scope)
	if err != nil {
		s.logger.Error("obo token signing failed", zap.Error(err))
		return nil, s.deny(subject.Subject, audience, scope, apperrors.NewServerError(err))
	}

	s.audit(ctx, subject.Subject, audience, scope, true, "")
	s.metrics.RecordExchange("success")

	expiresIn := int(time.Until(expiresAt).Round(time.Second).Seconds())
	return &ExchangeResponse{
		AccessToken:     signed,
		TokenType:       "Bearer",
		ExpiresIn:       expiresIn,
		IssuedTokenType: TokenTypeAccessToken,
		Scope:           scope,
	}, nil
}

func (s *ExchangeService) authenticateClient(ctx context.Context, clientID, clientSecret string) error {
	if clientID == "" || clientSecret == "" {
		return apperrors.NewInvalidClient("client credentials required")
	}
	if s.clients == nil {
		return apperrors.NewInvalidClient("client registry unavailable")
	}
	client, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewInvalidClient("unknown client")
		}
		return apperrors.NewServerError(err)
	}
	if !client.Active {
		return apperrors.NewInvalidClient("client disabled")
	}
	if err := auth.CompareSecret(client.SecretHash, clientSecret); err != nil {
		return apperrors.NewInvalidClient("invalid client secret")
	}
	return nil
}

// deny records the denial for audit/metrics and returns the error unchanged.
func (s *ExchangeService) deny(userID, audience, scope string, err error) error {
	oauthErr := apperrors.ToOAuthError(err)
	if userID != "" {
		s.audit(context.Background(), userID, audience, scope, false, oauthErr.Code)
	}
	s.metrics.RecordExchange(oauthErr.Code)
	return err
}

// audit publishes the event best-effort: a failed audit write is logged and
// never fails an otherwise-successful exchange.
func (s *ExchangeService) audit(ctx context.Context, userID, audience, scope string, success bool, errorCode string) {
	if s.dispatcher == nil {
		return
	}
	event := domain.AuditEvent{
		ID:             uuid.NewString(),
		Type:           domain.AuditTokenExchange,
		UserID:         userID,
		TargetAudience: audience,
		Scope:          scope,
		Success:        success,
		ErrorCode:      errorCode,
		Timestamp:      time.Now(),
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Error("audit publish failed", zap.Error(err))
	}
}

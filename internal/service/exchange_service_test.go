package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/engify/obo-gateway/internal/auth"
	"github.com/engify/obo-gateway/internal/domain"
	"github.com/engify/obo-gateway/internal/events"
	"github.com/engify/obo-gateway/internal/observability"
	"github.com/engify/obo-gateway/internal/ratelimit"
	"github.com/engify/obo-gateway/internal/session"
	"github.com/engify/obo-gateway/internal/token"
	apperrors "github.com/engify/obo-gateway/pkg/util"
)

const (
	subjectSecret = "subject-secret"
	oboSecret     = "obo-secret"
	testResource  = "urn:mcp:bug-reporter"
	testAudience  = "urn:engify:rag-service"
)

// captureDispatcher records published audit events.
type captureDispatcher struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (c *captureDispatcher) Publish(_ context.Context, event domain.AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (c *captureDispatcher) all() []domain.AuditEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.AuditEvent{}, c.events...)
}

// memoryClients is an in-memory ClientRepository.
type memoryClients struct {
	clients map[string]*domain.ServiceClient
}

func (m *memoryClients) Create(_ context.Context, client *domain.ServiceClient) error {
	m.clients[client.ClientID] = client
	return nil
}

func (m *memoryClients) GetByClientID(_ context.Context, clientID string) (*domain.ServiceClient, error) {
	client, ok := m.clients[clientID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return client, nil
}

type failingStore struct{}

func (failingStore) CountInWindow(context.Context, string, int64) (int64, int64, error) {
	return 0, 0, errors.New("store unreachable")
}

func (failingStore) Record(context.Context, string, int64, time.Duration) error {
	return errors.New("store unreachable")
}

type erroringChecker struct{}

func (erroringChecker) Confirm(context.Context, string, string) (bool, error) {
	return false, errors.New("session store unreachable")
}

type fixture struct {
	svc        *ExchangeService
	sessions   *session.MemoryChecker
	dispatcher *captureDispatcher
	metrics    *observability.Metrics
}

type fixtureOpt func(*ExchangeDependencies, *bool)

func withStore(store ratelimit.WindowStore) fixtureOpt {
	return func(deps *ExchangeDependencies, _ *bool) {
		deps.Limiter = ratelimit.NewLimiter(store, ratelimit.DefaultLimits(), time.Second, true, zap.NewNop())
	}
}

func withSessions(checker session.Checker) fixtureOpt {
	return func(deps *ExchangeDependencies, _ *bool) {
		deps.Sessions = checker
	}
}

func withClientAuth(clients *memoryClients) fixtureOpt {
	return func(deps *ExchangeDependencies, requireClientAuth *bool) {
		deps.Clients = clients
		*requireClientAuth = true
	}
}

func newFixture(t *testing.T, opts ...fixtureOpt) *fixture {
	t.Helper()

	sessions := session.NewMemoryChecker()
	sessions.Add(session.Record{UserID: "user-1", Resource: testResource})

	dispatcher := &captureDispatcher{}
	metrics := observability.NewMetrics()

	deps := ExchangeDependencies{
		Limiter:    ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.DefaultLimits(), time.Second, true, zap.NewNop()),
		Validator:  token.NewValidator(subjectSecret),
		Mapper:     token.NewAudienceMapper(nil),
		Sessions:   sessions,
		Issuer:     token.NewHS256Issuer(oboSecret, "urn:engify:auth", "urn:engify:obo-gateway", 30*time.Minute),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     zap.NewNop(),
	}
	requireClientAuth := false
	for _, opt := range opts {
		opt(&deps, &requireClientAuth)
	}

	return &fixture{
		svc:        NewExchangeService(deps, requireClientAuth),
		sessions:   sessions,
		dispatcher: dispatcher,
		metrics:    metrics,
	}
}

func signSubjectToken(t *testing.T, sub, resource string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":      sub,
		"email":    sub + "@example.com",
		"resource": resource,
		"iat":      time.Now().Unix(),
		"exp":      exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(subjectSecret))
	require.NoError(t, err)
	return signed
}

func validRequest(t *testing.T) ExchangeRequest {
	t.Helper()
	return ExchangeRequest{
		GrantType:        GrantTypeTokenExchange,
		SubjectToken:     signSubjectToken(t, "user-1", testResource, time.Now().Add(2*time.Hour)),
		SubjectTokenType: TokenTypeAccessToken,
		Resource:         testResource,
		Audience:         testAudience,
		CallerID:         "203.0.113.10",
	}
}

func requireOAuthCode(t *testing.T, err error, code string) *apperrors.OAuthError {
	t.Helper()
	require.Error(t, err)
	var oauthErr *apperrors.OAuthError
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, code, oauthErr.Code)
	return oauthErr
}

func TestExchangeSuccess(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Exchange(context.Background(), validRequest(t))
	require.NoError(t, err)

	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 1800, resp.ExpiresIn)
	assert.Equal(t, TokenTypeAccessToken, resp.IssuedTokenType)
	assert.Equal(t, "read", resp.Scope)

	claims := &token.OBOClaims{}
	parsed, err := jwt.ParseWithClaims(resp.AccessToken, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(oboSecret), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	assert.Equal(t, jwt.ClaimStrings{testAudience}, claims.Audience)
	assert.Equal(t, "user-1", claims.Act.For)
	assert.Equal(t, "urn:engify:obo-gateway", claims.Act.Sub)
	assert.Equal(t, testResource, claims.OriginalResource)

	events := f.dispatcher.all()
	require.Len(t, events, 1)
	assert.True(t, events[0].Success)
	assert.Equal(t, "user-1", events[0].UserID)
	assert.Equal(t, testAudience, events[0].TargetAudience)
	assert.Equal(t, int64(1), f.metrics.ExchangeCount("success"))
}

func TestExchangeWrongAudience(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)
	req.Audience = "urn:wrong-service"

	_, err := f.svc.Exchange(context.Background(), req)
	oauthErr := requireOAuthCode(t, err, apperrors.CodeInvalidTarget)
	assert.Equal(t, 400, oauthErr.HTTPStatus)

	events := f.dispatcher.all()
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
	assert.Equal(t, apperrors.CodeInvalidTarget, events[0].ErrorCode)
}

func TestExchangeUnmappedResource(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)
	req.SubjectToken = signSubjectToken(t, "user-1", "urn:mcp:unmapped", time.Now().Add(time.Hour))
	req.Resource = "urn:mcp:unmapped"
	req.Audience = testAudience

	_, err := f.svc.Exchange(context.Background(), req)
	requireOAuthCode(t, err, apperrors.CodeInvalidTarget)
}

func TestExchangeExpiredSubjectToken(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)
	req.SubjectToken = signSubjectToken(t, "user-1", testResource, time.Now().Add(-time.Minute))

	_, err := f.svc.Exchange(context.Background(), req)
	oauthErr := requireOAuthCode(t, err, apperrors.CodeInvalidGrant)
	assert.Equal(t, 401, oauthErr.HTTPStatus)
}

func TestExchangeTokenBoundToOtherResource(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)
	// Token minted for a different origin than the declared resource.
	req.SubjectToken = signSubjectToken(t, "user-1", "urn:mcp:prompt-library", time.Now().Add(time.Hour))

	_, err := f.svc.Exchange(context.Background(), req)
	requireOAuthCode(t, err, apperrors.CodeInvalidTarget)
}

func TestExchangeUnsupportedGrantType(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)
	req.GrantType = "authorization_code"

	_, err := f.svc.Exchange(context.Background(), req)
	requireOAuthCode(t, err, apperrors.CodeUnsupportedGrantType)
}

func TestExchangeWrongSubjectTokenType(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)
	req.SubjectTokenType = "urn:ietf:params:oauth:token-type:refresh_token"

	_, err := f.svc.Exchange(context.Background(), req)
	requireOAuthCode(t, err, apperrors.CodeInvalidRequest)
}

func TestExchangeMissingRequiredFields(t *testing.T) {
	f := newFixture(t)

	for _, mutate := range []func(*ExchangeRequest){
		func(r *ExchangeRequest) { r.SubjectToken = "" },
		func(r *ExchangeRequest) { r.Resource = "" },
		func(r *ExchangeRequest) { r.Audience = "" },
	} {
		req := validRequest(t)
		mutate(&req)
		_, err := f.svc.Exchange(context.Background(), req)
		requireOAuthCode(t, err, apperrors.CodeInvalidRequest)
	}
}

func TestExchangeStaleSession(t *testing.T) {
	f := newFixture(t)
	f.sessions.Remove("user-1")

	_, err := f.svc.Exchange(context.Background(), validRequest(t))
	requireOAuthCode(t, err, apperrors.CodeInvalidGrant)
}

func TestExchangeSessionStoreFailureIsFatal(t *testing.T) {
	f := newFixture(t, withSessions(erroringChecker{}))

	_, err := f.svc.Exchange(context.Background(), validRequest(t))
	oauthErr := requireOAuthCode(t, err, apperrors.CodeServerError)
	assert.Equal(t, 500, oauthErr.HTTPStatus)
}

func TestExchangeRateLimited(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 30; i++ {
		_, err := f.svc.Exchange(context.Background(), validRequest(t))
		require.NoError(t, err, "request %d within budget should succeed", i+1)
	}

	_, err := f.svc.Exchange(context.Background(), validRequest(t))
	oauthErr := requireOAuthCode(t, err, apperrors.CodeRateLimitExceeded)
	assert.Equal(t, 429, oauthErr.HTTPStatus)
	assert.True(t, oauthErr.ResetAt.After(time.Now()))
	assert.True(t, oauthErr.ResetAt.Before(time.Now().Add(61*time.Second)))
	assert.Equal(t, int64(1), f.metrics.RateLimitDenyCount(ratelimit.EndpointOBOExchange))
}

func TestExchangeRateLimiterFailsOpen(t *testing.T) {
	f := newFixture(t, withStore(failingStore{}))

	resp, err := f.svc.Exchange(context.Background(), validRequest(t))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
}

func TestExchangeCapsExpiryToSubjectLifetime(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)
	req.SubjectToken = signSubjectToken(t, "user-1", testResource, time.Now().Add(5*time.Minute))

	resp, err := f.svc.Exchange(context.Background(), req)
	require.NoError(t, err)
	assert.LessOrEqual(t, resp.ExpiresIn, 300)
	assert.Greater(t, resp.ExpiresIn, 290)
}

func TestExchangeCustomScope(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)
	req.Scope = "read write"

	resp, err := f.svc.Exchange(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "read write", resp.Scope)
}

func TestExchangeClientAuth(t *testing.T) {
	hash, err := auth.HashSecret("s3cret", 4)
	require.NoError(t, err)
	clients := &memoryClients{clients: map[string]*domain.ServiceClient{
		"svc-frontend": {ClientID: "svc-frontend", SecretHash: hash, Active: true},
		"svc-retired":  {ClientID: "svc-retired", SecretHash: hash, Active: false},
	}}
	f := newFixture(t, withClientAuth(clients))

	req := validRequest(t)
	req.ClientID = "svc-frontend"
	req.ClientSecret = "s3cret"
	_, err = f.svc.Exchange(context.Background(), req)
	require.NoError(t, err)

	req = validRequest(t)
	req.ClientID = "svc-frontend"
	req.ClientSecret = "wrong"
	_, err = f.svc.Exchange(context.Background(), req)
	requireOAuthCode(t, err, apperrors.CodeInvalidClient)

	req = validRequest(t)
	req.ClientID = "svc-unknown"
	req.ClientSecret = "s3cret"
	_, err = f.svc.Exchange(context.Background(), req)
	requireOAuthCode(t, err, apperrors.CodeInvalidClient)

	req = validRequest(t)
	req.ClientID = "svc-retired"
	req.ClientSecret = "s3cret"
	_, err = f.svc.Exchange(context.Background(), req)
	requireOAuthCode(t, err, apperrors.CodeInvalidClient)

	req = validRequest(t)
	_, err = f.svc.Exchange(context.Background(), req)
	requireOAuthCode(t, err, apperrors.CodeInvalidClient)
}

func TestExchangeRepeatedCallsMintDistinctTokens(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Exchange(context.Background(), validRequest(t))
	require.NoError(t, err)
	second, err := f.svc.Exchange(context.Background(), validRequest(t))
	require.NoError(t, err)

	assert.NotEqual(t, first.AccessToken, second.AccessToken)
}

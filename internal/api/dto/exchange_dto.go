package dto

// TokenExchangeRequest is the RFC 8693-shaped request body.
type TokenExchangeRequest struct {
	GrantType        string `json:"grant_type"`
	SubjectToken     string `json:"subject_token"`
	SubjectTokenType string `json:"subject_token_type"`
	Resource         string `json:"resource"`
	Audience         string `json:"audience"`
	Scope            string `json:"scope"`
	ClientID         string `json:"client_id"`
	ClientSecret     string `json:"client_secret"`
}

// TokenExchangeResponse is the successful exchange response body.
type TokenExchangeResponse struct {
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int    `json:"expires_in"`
	IssuedTokenType string `json:"issued_token_type"`
	Scope           string `json:"scope"`
}

// ErrorResponse is the OAuth error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

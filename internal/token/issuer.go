package token

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ActClaim carries RFC 8693 delegation identity: the service doing the
// calling and the user it acts for.
type ActClaim struct {
	Sub string `json:"sub"`
	For string `json:"for"`
}

// OBOClaims is the payload of a minted on-behalf-of token. It is a bearer
// credential returned in the exchange response and never persisted.
type OBOClaims struct {
	Email            string   `json:"email"`
	OriginalResource string   `json:"original_resource"`
	Scope            string   `json:"scope"`
	Act              ActClaim `json:"act"`
	jwt.RegisteredClaims
}

// Issuer mints downstream-bound OBO tokens. HS256 with a shared secret by
// default; RS256 when constructed from a PEM key, in which case the public
// half is served as JWKS.
type Issuer struct {
	method  jwt.SigningMethod
	signKey any
	public  *rsa.PublicKey
	keyID   string
	issuer  string
	actorID string
	ttl     time.Duration

	now func() time.Time
}

// NewHS256Issuer builds a symmetric-key issuer.
func NewHS256Issuer(secret, issuer, actorID string, ttl time.Duration) *Issuer {
	return &Issuer{
		method:  jwt.SigningMethodHS256,
		signKey: []byte(secret),
		issuer:  issuer,
		actorID: actorID,
		ttl:     ttl,
		now:     time.Now,
	}
}

// NewRS256IssuerFromPEM builds an asymmetric-key issuer from a PEM-encoded
// RSA private key (PKCS#1 or PKCS#8).
func NewRS256IssuerFromPEM(pemBytes []byte, keyID, issuer, actorID string, ttl time.Duration) (*Issuer, error) {
	if len(pemBytes) == 0 {
		return nil, errors.New("empty RSA private key pem")
	}
	blk, _ := pem.Decode(pemBytes)
	if blk == nil {
		return nil, errors.New("failed to decode RSA private key pem")
	}

	var key *rsa.PrivateKey
	var err error
	switch blk.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(blk.Bytes)
	default:
		var parsed any
		parsed, err = x509.ParsePKCS8PrivateKey(blk.Bytes)
		if err == nil {
			var ok bool
			if key, ok = parsed.(*rsa.PrivateKey); !ok {
				err = errors.New("pkcs8 key is not an RSA private key")
			}
		}
	}
	if err != nil {
		return nil, err
	}

	return &Issuer{
		method:  jwt.SigningMethodRS256,
		signKey: key,
		public:  &key.PublicKey,
		keyID:   keyID,
		issuer:  issuer,
		actorID: actorID,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// Mint builds and signs an OBO token for the verified subject. The lifetime
// is min(now+ttl, subject exp): delegation never outlives the credential it
// was derived from, and never exceeds the fixed OBO lifetime regardless of
// how long the subject token has left.
func (i *Issuer) Mint(subject *SubjectClaims, audience, scope string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)
	if subject.ExpiresAt != nil && subject.ExpiresAt.Time.Before(expiresAt) {
		expiresAt = subject.ExpiresAt.Time
	}

	claims := &OBOClaims{
		Email:            subject.Email,
		OriginalResource: subject.Resource,
		Scope:            scope,
		Act: ActClaim{
			Sub: i.actorID,
			For: subject.Subject,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject.Subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(i.method, claims)
	if i.keyID != "" {
		token.Header["kid"] = i.keyID
	}
	signed, err := token.SignedString(i.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// PublicJWK returns the signing key's public JWK when the issuer runs RS256.
func (i *Issuer) PublicJWK() (JWK, bool) {
	if i.public == nil {
		return JWK{}, false
	}
	return RSAPublicToJWK(i.public, i.keyID, i.method.Alg()), true
}

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RequestClaims binds a connection request link to its two parties.
type RequestClaims struct {
	From      uuid.UUID `json:"from"`
	To        uuid.UUID `json:"to"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// IssuedRequestToken is a freshly signed link credential.
type IssuedRequestToken struct {
	Token     string
	Hash      string
	ExpiresAt time.Time
}

// RequestTokenManager signs and verifies connection request links.
// The link is self-verifying: forged or expired links are rejected
// without touching the database.
type RequestTokenManager struct {
	secret []byte
	expiry time.Duration
	issuer string
	now    func() time.Time
}

// NewRequestTokenManager creates a manager whose links live for expiry
func NewRequestTokenManager(secret string, expiry time.Duration) *RequestTokenManager {
	return &RequestTokenManager{
		secret: []byte(secret),
		expiry: expiry,
		issuer: "kitalumni",
		now:    time.Now,
	}
}

// WithClock overrides the time source, used by tests to step past expiry.
func (m *RequestTokenManager) WithClock(now func() time.Time) *RequestTokenManager {
	m.now = now
	return m
}

// Issue signs a new link for from -> to. Each call carries a random jti, so
// two links for the same pair never collide.
func (m *RequestTokenManager) Issue(from, to uuid.UUID) (*IssuedRequestToken, error) {
	now := m.now()
	expiresAt := now.Add(m.expiry)

	jti, err := GenerateSecureToken(16)
	if err != nil {
		return nil, err
	}

	claims := &RequestClaims{
		From:      from,
		To:        to,
		TokenType: RequestToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, err
	}

	return &IssuedRequestToken{
		Token:     signed,
		Hash:      HashToken(signed),
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks signature, expiry and token type.
func (m *RequestTokenManager) Verify(token string) (*RequestClaims, error) {
	claims := &RequestClaims{}
	if err := parseHMAC(token, claims, m.secret, m.now); err != nil {
		return nil, err
	}

	if claims.TokenType != RequestToken || claims.From == uuid.Nil || claims.To == uuid.Nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Now exposes the manager's clock so stored expiry checks agree with it.
func (m *RequestTokenManager) Now() time.Time {
	return m.now()
}

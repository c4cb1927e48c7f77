package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/config"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingTenantID  = errors.New("missing tenant_id in claims")
	ErrMissingUserID    = errors.New("missing user_id in claims")
)

// DefaultSessionTTL is used when Issue is called with a zero ttl
const DefaultSessionTTL = 15 * time.Minute

// Claims are the session claims carried by a bearer token
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role,omitempty"`
}

// Session is the identity established by a verified bearer token
type Session struct {
	TenantID  string
	UserID    string
	Role      string
	ExpiresAt time.Time
}

// SessionService signs and verifies HS256 session tokens
type SessionService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSessionService creates a session service from the jwt config section
func NewSessionService(cfg config.JWTConfig) *SessionService {
	return &SessionService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

// Enabled reports whether a signing secret is configured
func (s *SessionService) Enabled() bool {
	return len(s.secret) > 0
}

// Issue signs a token for the session
func (s *SessionService) Issue(session Session, ttl time.Duration) (string, error) {
	if session.TenantID == "" {
		return "", ErrMissingTenantID
	}
	if session.UserID == "" {
		return "", ErrMissingUserID
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   session.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID: session.TenantID,
		UserID:   session.UserID,
		Role:     session.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify validates a token and returns the session it carries
func (s *SessionService) Verify(tokenString string) (*Session, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.TenantID == "" {
		return nil, ErrMissingTenantID
	}
	if claims.UserID == "" {
		return nil, ErrMissingUserID
	}

	session := &Session{
		TenantID: claims.TenantID,
		UserID:   claims.UserID,
		Role:     claims.Role,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

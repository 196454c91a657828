package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"feeshare/crypto"
	"feeshare/observability/logging"
)

// CallerHeader carries the caller address when authentication is disabled.
const CallerHeader = "X-Caller"

// AuthConfig configures bearer token authentication.
type AuthConfig struct {
	// Disabled trusts the X-Caller header. Development only.
	Disabled   bool
	HMACSecret string
	Issuer     string
	ClockSkew  time.Duration
}

type contextKey string

const contextKeyCaller contextKey = "feeshare.caller"

// Authenticator resolves the calling account of a request from an HS256 JWT
// whose subject is the caller's address.
type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
}

// NewAuthenticator builds an authenticator. An empty secret rejects every
// token unless authentication is disabled.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "auth")),
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
	}
}

// Middleware rejects requests without a resolvable caller and stores the
// caller in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.resolve(r)
		if err != nil {
			a.logger.Warn("authentication failed",
				slog.String("path", r.URL.Path),
				slog.String("authorization", logging.MaskAuthorization(r.Header.Get("Authorization"))),
				slog.Any("error", err))
			WriteError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) resolve(r *http.Request) (crypto.Address, error) {
	if a.cfg.Disabled {
		raw := strings.TrimSpace(r.Header.Get(CallerHeader))
		if raw == "" {
			return crypto.Address{}, errors.New("missing caller header")
		}
		return crypto.DecodeAddress(raw)
	}
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return crypto.Address{}, errors.New("missing bearer token")
	}
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return crypto.Address{}, errors.New("invalid token")
	}
	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return crypto.Address{}, errors.New("token subject required")
	}
	caller, err := crypto.DecodeAddress(subject)
	if err != nil {
		return crypto.Address{}, errors.New("token subject is not an address")
	}
	return caller, nil
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

// CallerFrom returns the authenticated caller stored by Middleware.
func CallerFrom(ctx context.Context) (crypto.Address, bool) {
	caller, ok := ctx.Value(contextKeyCaller).(crypto.Address)
	return caller, ok
}

// IssueToken signs a caller token. Used by operators and tests.
func IssueToken(secret string, issuer string, caller crypto.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   caller.String(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

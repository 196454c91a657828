package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"feeshare/crypto"
)

func callerEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFrom(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(caller.String()))
	})
}

func TestAuthenticatorAcceptsSignedSubject(t *testing.T) {
	alice := crypto.DeriveAddress("alice")
	auth := NewAuthenticator(AuthConfig{HMACSecret: "s3cret", Issuer: "feeshare"}, nil)
	handler := auth.Middleware(callerEcho(t))

	token, err := IssueToken("s3cret", "feeshare", alice, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/stake", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, alice.String(), res.Body.String())
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	alice := crypto.DeriveAddress("alice")
	auth := NewAuthenticator(AuthConfig{HMACSecret: "s3cret", Issuer: "feeshare"}, nil)
	handler := auth.Middleware(callerEcho(t))

	wrongSecret, err := IssueToken("other", "feeshare", alice, time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := IssueToken("s3cret", "elsewhere", alice, time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken("s3cret", "feeshare", alice, -time.Hour)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":      "",
		"not bearer":   "Basic abc",
		"wrong secret": "Bearer " + wrongSecret,
		"wrong issuer": "Bearer " + wrongIssuer,
		"expired":      "Bearer " + expired,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/stake", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			require.Equal(t, http.StatusUnauthorized, res.Code)
		})
	}
}

func TestAuthenticatorDisabledUsesHeader(t *testing.T) {
	alice := crypto.DeriveAddress("alice")
	auth := NewAuthenticator(AuthConfig{Disabled: true}, nil)
	handler := auth.Middleware(callerEcho(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/stake", nil)
	req.Header.Set(CallerHeader, alice.Hex())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, alice.String(), res.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/v1/stake", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

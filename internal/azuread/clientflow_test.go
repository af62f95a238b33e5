package azuread

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiresOnFromJWTValidToken(t *testing.T) {
	claims := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("irrelevant-since-unverified"))
	require.NoError(t, err)

	expiresOn := expiresOnFromJWT(signed)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresOn, 5*time.Second)
}

func TestExpiresOnFromJWTGarbageFallsBack(t *testing.T) {
	expiresOn := expiresOnFromJWT("not-a-jwt")
	assert.WithinDuration(t, time.Now().Add(defaultTokenLifetime), expiresOn, 5*time.Second)
}

func TestClientCredentialsFlowMissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token_type":"Bearer"}`)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cred := New(Config{
		Method:   AuthMethodClient,
		Tenant:   "tenant-id",
		ClientID: "client-id",
		Password: "secret",
	}, logger)
	cred.tokenURLOverride = srv.URL

	_, err := cred.clientCredentialsFlow(t.Context(), "scope")
	require.Error(t, err)
}

package token

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDIssuer_RoundTrip(t *testing.T) {
	var issuer IDIssuer

	tok, err := issuer.Issue("u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", tok)

	sub, err := issuer.Subject(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", sub)

	_, err = issuer.Subject("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignedIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewSignedIssuer("s3cret")
	require.NoError(t, err)

	tok, err := issuer.Issue("u-1")
	require.NoError(t, err)
	assert.NotEqual(t, "u-1", tok)

	sub, err := issuer.Subject(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", sub)
}

func TestSignedIssuer_NeverExpires(t *testing.T) {
	issuer, err := NewSignedIssuer("s3cret")
	require.NoError(t, err)
	issuer.now = func() time.Time { return time.Now().Add(-10 * 365 * 24 * time.Hour) }

	tok, err := issuer.Issue("u-1")
	require.NoError(t, err)

	sub, err := issuer.Subject(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", sub)
}

func TestSignedIssuer_Rejects(t *testing.T) {
	issuer, err := NewSignedIssuer("s3cret")
	require.NoError(t, err)
	other, err := NewSignedIssuer("other")
	require.NoError(t, err)

	foreign, err := other.Issue("u-1")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		StandardClaims: jwt.StandardClaims{Subject: "u-1", Issuer: TokenIssuer},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"bare id":      "u-1",
		"wrong secret": foreign,
		"alg none":     none,
	} {
		_, err := issuer.Subject(tok)
		assert.Error(t, err, name)
	}

	_, err = NewSignedIssuer("")
	assert.Error(t, err)
}

func TestIdentityExtractorMiddleware(t *testing.T) {
	var got *Identity
	h := IdentityExtractorMiddleware(IDIssuer{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r)
	}))

	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Nil(t, got)

	r = httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("Authorization", "Bearer u-9")
	h.ServeHTTP(httptest.NewRecorder(), r)
	require.NotNil(t, got)
	assert.Equal(t, "u-9", got.UserID)
	assert.Equal(t, "u-9", got.Token)
}

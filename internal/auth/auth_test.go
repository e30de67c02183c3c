package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "Basic abc")
	_, err = ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "bearer abc.def")
	tok, err := ExtractTokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", time.Hour)
	tok, expires, err := issuer.Issue("est-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	sub, err := issuer.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "est-1", sub)

	_, err = NewTokenIssuer("other", time.Hour).Verify(context.Background(), tok)
	assert.Error(t, err, "wrong secret")
}

func TestTokenIssuerRejectsExpiredAndForeignAlgs(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", time.Hour)
	issuer.Now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _, err := issuer.Issue("est-1")
	require.NoError(t, err)

	_, err = NewTokenIssuer("s3cret", time.Hour).Verify(context.Background(), tok)
	assert.Error(t, err, "expired")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "est-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewTokenIssuer("s3cret", time.Hour).Verify(context.Background(), none)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", time.Hour)
	var seen string
	h := Middleware(issuer, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := FromContext(r.Context())
		require.True(t, ok)
		seen = ac.EstablishmentID
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queues", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/queues", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, _, err := issuer.Issue("est-9")
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/queues", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "est-9", seen)
}

type stubVerifier struct {
	sub string
	err error
}

func (s stubVerifier) Verify(context.Context, string) (string, error) { return s.sub, s.err }

func TestChain(t *testing.T) {
	sub, err := Chain{stubVerifier{err: errors.New("no")}, stubVerifier{sub: "est-2"}}.Verify(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "est-2", sub)

	_, err = Chain{stubVerifier{err: errors.New("a")}, stubVerifier{err: errors.New("b")}}.Verify(context.Background(), "x")
	assert.ErrorContains(t, err, "a")

	_, err = Chain{}.Verify(context.Background(), "x")
	assert.Error(t, err)

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

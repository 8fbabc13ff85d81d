package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestSignInWithPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600,"refresh_token":"ref","user":{"id":"u1","email":"a@b.c"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "anon", nil)

	s, err := c.SignInWithPassword(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok", s.AccessToken)
	assert.Equal(t, "a@b.c", s.User.Email)

	_, err = c.SignInWithPassword(context.Background(), "a@b.c", "wrong")
	var authErr *Error
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "Invalid login credentials", err.Error())
	assert.Equal(t, "invalid_grant", authErr.Code)
	assert.Equal(t, http.StatusBadRequest, authErr.StatusCode)
}

func TestSignUpPendingConfirmation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		w.Write([]byte(`{"id":"u1","email":"a@b.c"}`))
	}))
	defer srv.Close()

	s, err := NewClient(srv.URL, "", nil).SignUpWithPassword(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSignUpErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"code":422,"error_code":"weak_password","msg":"Password should be at least 6 characters."}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", nil).SignUpWithPassword(context.Background(), "a@b.c", "1")
	require.Error(t, err)
	assert.Equal(t, "Password should be at least 6 characters.", err.Error())
}

func TestSignInWithOAuth(t *testing.T) {
	c := NewClient("https://proj.supabase.co/", "anon", nil)

	link, err := c.SignInWithOAuth("google", "http://localhost:3000")
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/auth/v1/authorize", u.Path)
	assert.Equal(t, "google", u.Query().Get("provider"))
	assert.Equal(t, "http://localhost:3000", u.Query().Get("redirect_to"))

	_, err = c.SignInWithOAuth("", "")
	assert.Error(t, err)
}

func TestSessionStoreRoundTrip(t *testing.T) {
	store := NewSessionStore(filepath.Join(t.TempDir(), "nested", "session.json"))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, store.Save(&Session{AccessToken: "tok", RefreshToken: "ref"}))
	s, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", s.AccessToken)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	_, err = store.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

type fakeRefresher struct {
	calls   int
	session *Session
	err     error
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (*Session, error) {
	f.calls++
	return f.session, f.err
}

func TestSessionTokenSource(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(filepath.Join(t.TempDir(), "session.json"))
	refresher := &fakeRefresher{}
	src := NewSessionTokenSource(store, refresher, nil)

	t.Run("no session", func(t *testing.T) {
		token, err := src.Token(ctx)
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("valid token", func(t *testing.T) {
		valid := signedToken(t, time.Now().Add(time.Hour))
		require.NoError(t, store.Save(&Session{AccessToken: valid, RefreshToken: "ref"}))

		token, err := src.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, valid, token)
		assert.Zero(t, refresher.calls)
	})

	t.Run("expired token is refreshed", func(t *testing.T) {
		fresh := signedToken(t, time.Now().Add(time.Hour))
		refresher.session = &Session{AccessToken: fresh, RefreshToken: "ref2"}
		require.NoError(t, store.Save(&Session{AccessToken: signedToken(t, time.Now().Add(-time.Minute)), RefreshToken: "ref"}))

		token, err := src.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, fresh, token)
		assert.Equal(t, 1, refresher.calls)

		saved, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, "ref2", saved.RefreshToken)
	})

	t.Run("refresh failure", func(t *testing.T) {
		refresher.err = errors.New("boom")
		require.NoError(t, store.Save(&Session{AccessToken: signedToken(t, time.Now().Add(-time.Minute)), RefreshToken: "ref"}))

		_, err := src.Token(ctx)
		assert.Error(t, err)
	})

	t.Run("opaque token is passed through", func(t *testing.T) {
		require.NoError(t, store.Save(&Session{AccessToken: "opaque"}))

		token, err := src.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "opaque", token)
	})
}

func TestChain(t *testing.T) {
	ctx := WithToken(context.Background(), "")
	failing := TokenSourceFunc(func(context.Context) (string, error) { return "", errors.New("down") })

	token, err := Chain{ContextTokenSource{}, failing, StaticTokenSource("static")}.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "static", token)

	token, err = Chain{ContextTokenSource{}, StaticTokenSource("static")}.Token(WithToken(ctx, "from-ctx"))
	require.NoError(t, err)
	assert.Equal(t, "from-ctx", token)

	_, err = Chain{failing, nil}.Token(ctx)
	assert.EqualError(t, err, "down")
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken(""))
}

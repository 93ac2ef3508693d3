package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, hits *atomic.Int64, response map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/tenant-1/oauth2/v2.0/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		require.Equal(t, "client-1", r.PostForm.Get("client_id"))
		require.Equal(t, "s3cret", r.PostForm.Get("client_secret"))
		require.Equal(t, DefaultScope, r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newProvider(srvURL string) *ClientCredentials {
	return NewClientCredentials(Config{
		TenantID:      "tenant-1",
		ClientID:      "client-1",
		ClientSecret:  "s3cret",
		AuthorityBase: srvURL,
	})
}

func TestToken_FetchAndCache(t *testing.T) {
	var hits atomic.Int64
	srv := newTokenServer(t, &hits, map[string]any{"access_token": "tok-1", "expires_in": 3600})

	p := newProvider(srv.URL)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok)

	tok, err = p.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok)

	require.EqualValues(t, 1, hits.Load(), "second call must hit the cache")
}

func TestToken_RefreshesWhenExpired(t *testing.T) {
	var hits atomic.Int64
	srv := newTokenServer(t, &hits, map[string]any{"access_token": "tok-1", "expires_in": 3600})

	p := newProvider(srv.URL)

	_, err := p.Token(context.Background())
	require.NoError(t, err)

	// move the clock past expiry minus leeway
	p.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = p.Token(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, hits.Load())
}

func TestToken_ConcurrentCallersShareOneFetch(t *testing.T) {
	var hits atomic.Int64
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	}))
	t.Cleanup(slow.Close)

	p := newProvider(slow.URL)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := p.Token(context.Background())
			require.NoError(t, err)
			require.Equal(t, "tok", tok)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, hits.Load())
}

func TestToken_ExpiryFromJWTClaim(t *testing.T) {
	exp := time.Now().Add(45 * time.Minute).Unix()
	claims, _ := json.Marshal(map[string]any{"exp": exp})
	token := fmt.Sprintf("%s.%s.sig",
		base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`)),
		base64.RawURLEncoding.EncodeToString(claims))

	var hits atomic.Int64
	srv := newTokenServer(t, &hits, map[string]any{"access_token": token})

	p := newProvider(srv.URL)
	_, err := p.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, exp, p.expiresAt.Unix())
}

func TestToken_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p := newProvider(srv.URL)
	_, err := p.Token(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
	require.Contains(t, err.Error(), "invalid_client")
}

func TestToken_IncompleteConfig(t *testing.T) {
	p := NewClientCredentials(Config{TenantID: "t"})
	_, err := p.Token(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "incomplete")
}

func TestTokenFunc(t *testing.T) {
	f := TokenFunc(func(ctx context.Context) (string, error) { return "static", nil })
	tok, err := f.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "static", tok)
}

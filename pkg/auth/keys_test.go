package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keysTestGenerateRSAKey generates a 2048-bit RSA key pair.
func keysTestGenerateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key pair")
	return key
}

// keysTestJWKSDocument builds a JWKS JSON document from kid to public key.
func keysTestJWKSDocument(t *testing.T, keys map[string]*rsa.PublicKey) []byte {
	t.Helper()

	type jwkEntry struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Alg string `json:"alg,omitempty"`
		Use string `json:"use,omitempty"`
		N   string `json:"n,omitempty"`
		E   string `json:"e,omitempty"`
	}

	var entries []jwkEntry
	for kid, pub := range keys {
		entries = append(entries, jwkEntry{
			Kty: "RSA",
			Kid: kid,
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}

	doc, err := json.Marshal(map[string]any{"keys": entries})
	require.NoError(t, err, "failed to marshal JWKS")
	return doc
}

// keysTestServeJWKS serves the given JWKS document and counts fetches.
func keysTestServeJWKS(t *testing.T, doc []byte, fetches *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches != nil {
			fetches.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestKeyCache_FetchesAndParsesRSAKeys(t *testing.T) {
	t.Parallel()
	priv := keysTestGenerateRSAKey(t)
	doc := keysTestJWKSDocument(t, map[string]*rsa.PublicKey{"key-1": &priv.PublicKey})
	srv := keysTestServeJWKS(t, doc, nil)

	cache := NewKeyCache(srv.URL, time.Hour, srv.Client())
	keys, err := cache.Keys(context.Background())
	require.NoError(t, err)
	require.Contains(t, keys, "key-1")
	assert.Equal(t, 0, keys["key-1"].N.Cmp(priv.PublicKey.N))
	assert.Equal(t, priv.PublicKey.E, keys["key-1"].E)
}

func TestKeyCache_SecondReadServedFromCache(t *testing.T) {
	t.Parallel()
	priv := keysTestGenerateRSAKey(t)
	doc := keysTestJWKSDocument(t, map[string]*rsa.PublicKey{"key-1": &priv.PublicKey})
	var fetches atomic.Int64
	srv := keysTestServeJWKS(t, doc, &fetches)

	cache := NewKeyCache(srv.URL, time.Hour, srv.Client())
	ctx := context.Background()

	_, err := cache.Keys(ctx)
	require.NoError(t, err)
	_, err = cache.Keys(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), fetches.Load(), "second read within TTL must not refetch")
}

func TestKeyCache_ExpiredTTLRefetches(t *testing.T) {
	t.Parallel()
	priv := keysTestGenerateRSAKey(t)
	doc := keysTestJWKSDocument(t, map[string]*rsa.PublicKey{"key-1": &priv.PublicKey})
	var fetches atomic.Int64
	srv := keysTestServeJWKS(t, doc, &fetches)

	cache := NewKeyCache(srv.URL, time.Millisecond, srv.Client())
	ctx := context.Background()

	_, err := cache.Keys(ctx)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = cache.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fetches.Load(), "expired cache must refetch")
}

func TestKeyCache_ConcurrentColdReadsShareOneFetch(t *testing.T) {
	t.Parallel()
	priv := keysTestGenerateRSAKey(t)
	doc := keysTestJWKSDocument(t, map[string]*rsa.PublicKey{"key-1": &priv.PublicKey})

	var fetches atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		<-release
		_, _ = w.Write(doc)
	}))
	t.Cleanup(srv.Close)

	cache := NewKeyCache(srv.URL, time.Hour, srv.Client())
	ctx := context.Background()

	const readers = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, readers)

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = cache.Keys(ctx)
		}(i)
	}

	close(start)
	// Let the readers pile up on the in-flight fetch before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "reader %d", i)
	}
	assert.Equal(t, int64(1), fetches.Load(), "concurrent cold reads must share one fetch")
}

func TestKeyCache_FailedRefreshKeepsLastGoodKeys(t *testing.T) {
	t.Parallel()
	priv := keysTestGenerateRSAKey(t)
	doc := keysTestJWKSDocument(t, map[string]*rsa.PublicKey{"key-1": &priv.PublicKey})

	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(doc)
	}))
	t.Cleanup(srv.Close)

	cache := NewKeyCache(srv.URL, time.Millisecond, srv.Client())
	ctx := context.Background()

	keys, err := cache.Keys(ctx)
	require.NoError(t, err)
	require.Contains(t, keys, "key-1")

	fail.Store(true)
	time.Sleep(5 * time.Millisecond)

	keys, err = cache.Keys(ctx)
	require.NoError(t, err, "failed refresh must serve the last good set")
	assert.Contains(t, keys, "key-1")
}

func TestKeyCache_ColdFetchFailureReturnsError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	cache := NewKeyCache(srv.URL, time.Hour, srv.Client())
	_, err := cache.Keys(context.Background())
	assert.Error(t, err)
}

func TestKeyCache_SkipsNonRSAAndMalformedEntries(t *testing.T) {
	t.Parallel()
	priv := keysTestGenerateRSAKey(t)
	doc := []byte(`{"keys": [
		{"kty": "EC", "kid": "ec-key", "crv": "P-256", "x": "AQ", "y": "AQ"},
		{"kty": "RSA", "kid": "", "n": "AQ", "e": "AQAB"},
		{"kty": "RSA", "kid": "bad-key", "n": "!!not-base64!!", "e": "AQAB"},
		{"kty": "RSA", "kid": "good-key",
		 "n": "` + base64.RawURLEncoding.EncodeToString(priv.PublicKey.N.Bytes()) + `",
		 "e": "` + base64.RawURLEncoding.EncodeToString(big.NewInt(int64(priv.PublicKey.E)).Bytes()) + `"}
	]}`)
	srv := keysTestServeJWKS(t, doc, nil)

	cache := NewKeyCache(srv.URL, time.Hour, srv.Client())
	keys, err := cache.Keys(context.Background())
	require.NoError(t, err)

	assert.Len(t, keys, 1, "only the well-formed RSA entry should survive")
	assert.Contains(t, keys, "good-key")
}

func TestKeyCache_Key_UnknownKid(t *testing.T) {
	t.Parallel()
	priv := keysTestGenerateRSAKey(t)
	doc := keysTestJWKSDocument(t, map[string]*rsa.PublicKey{"key-1": &priv.PublicKey})
	srv := keysTestServeJWKS(t, doc, nil)

	cache := NewKeyCache(srv.URL, time.Hour, srv.Client())
	_, err := cache.Key(context.Background(), "key-2")
	assert.ErrorContains(t, err, "key-2")
}

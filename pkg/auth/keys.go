package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// HTTPClient abstracts the HTTP client used to fetch the JWKS document,
// so callers can inject custom transports or timeouts. The standard
// [http.Client] satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// KeySet maps a key ID (kid) to its RSA public key.
type KeySet map[string]*rsa.PublicKey

// KeyCache fetches the identity provider's JWKS document and caches the
// RSA public keys it contains for a TTL. Concurrent requests that find
// the cache stale share a single fetch; while one fetch is in flight no
// second request hits the provider.
//
// A failed refresh does not drop previously fetched keys: the last good
// set keeps serving until a refresh succeeds, so a provider blip does
// not take down token verification.
//
// KeyCache is safe for concurrent use.
type KeyCache struct {
	jwksURL string
	ttl     time.Duration
	client  HTTPClient

	mu        sync.RWMutex
	keys      KeySet
	fetchedAt time.Time

	group singleflight.Group
}

// NewKeyCache creates a KeyCache for the given JWKS URL. client must not
// be nil.
func NewKeyCache(jwksURL string, ttl time.Duration, client HTTPClient) *KeyCache {
	return &KeyCache{
		jwksURL: jwksURL,
		ttl:     ttl,
		client:  client,
	}
}

// Keys returns the cached key set, refreshing it first when the TTL has
// elapsed or nothing has been fetched yet. On refresh failure the last
// good set is returned if one exists; otherwise the fetch error.
func (c *KeyCache) Keys(ctx context.Context) (KeySet, error) {
	c.mu.RLock()
	keys, fetchedAt := c.keys, c.fetchedAt
	c.mu.RUnlock()

	if keys != nil && time.Since(fetchedAt) < c.ttl {
		return keys, nil
	}

	v, err, _ := c.group.Do("jwks", func() (any, error) {
		// Another caller may have refreshed while we waited on the group.
		c.mu.RLock()
		keys, fetchedAt := c.keys, c.fetchedAt
		c.mu.RUnlock()
		if keys != nil && time.Since(fetchedAt) < c.ttl {
			return keys, nil
		}

		fetched, err := fetchJWKS(ctx, c.client, c.jwksURL)
		if err != nil {
			if keys != nil {
				return keys, nil
			}
			return nil, err
		}

		c.mu.Lock()
		c.keys = fetched
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(KeySet), nil
}

// Key returns the public key for kid, refreshing the cache on demand.
func (c *KeyCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	keys, err := c.Keys(ctx)
	if err != nil {
		return nil, err
	}
	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("auth: key ID %q not found in JWKS", kid)
	}
	return key, nil
}

// jwksResponse is the JSON shape of a JWKS endpoint response.
type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

// jwkKey holds the fields needed to rebuild an RSA public key. Non-RSA
// entries are ignored.
type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// fetchJWKS GETs the JWKS document and builds a kid-to-key map. Entries
// without a kid, with a non-RSA key type, or with malformed parameters
// are skipped. The response body is limited to 1 MB.
func fetchJWKS(ctx context.Context, client HTTPClient, jwksURL string) (KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to create JWKS request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: JWKS request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read JWKS response: %w", err)
	}

	var jwks jwksResponse
	if err := json.Unmarshal(body, &jwks); err != nil {
		return nil, fmt.Errorf("auth: failed to parse JWKS JSON: %w", err)
	}

	keys := make(KeySet, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kid == "" || k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

// parseRSAPublicKey rebuilds an *rsa.PublicKey from base64url-encoded
// modulus (n) and exponent (e) values.
func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode RSA exponent: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

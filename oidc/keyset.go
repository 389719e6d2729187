package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"
)

const maxKeySetBytes = 1 << 20

// KeySet is a cached, lazily fetched JWKS. Concurrent misses share a single
// HTTP request. The request runs detached from the callers' contexts so that
// one caller giving up does not fail the others.
type KeySet struct {
	uri      string
	client   *http.Client
	ttl      time.Duration
	timeout  time.Duration
	backoff  time.Duration
	now      func() time.Time
	group    singleflight.Group
	mu       sync.RWMutex
	keys     *jose.JSONWebKeySet
	fetched  time.Time
	expires  time.Time
	fetchCnt uint64
}

// NewKeySet returns a KeySet for cfg.JWKSURI.
func NewKeySet(cfg Config) (*KeySet, error) {
	if cfg.JWKSURI == "" {
		return nil, fmt.Errorf("%w: jwks uri required", ErrNotConfigured)
	}
	cfg = cfg.withDefaults()
	return &KeySet{
		uri:     cfg.JWKSURI,
		client:  cfg.HTTPClient,
		ttl:     cfg.KeyCacheTTL,
		timeout: cfg.FetchTimeout,
		backoff: cfg.RefreshBackoff,
		now:     cfg.Now,
	}, nil
}

// Keys returns the cached set, fetching it when absent or stale.
func (k *KeySet) Keys(ctx context.Context) (*jose.JSONWebKeySet, error) {
	k.mu.RLock()
	keys, expires := k.keys, k.expires
	k.mu.RUnlock()
	if keys != nil && k.now().Before(expires) {
		return keys, nil
	}
	return k.fetch(ctx)
}

// Key returns the key with kid. On a miss the set is refetched once, unless
// the last fetch is more recent than the refresh backoff.
func (k *KeySet) Key(ctx context.Context, kid string) (*jose.JSONWebKey, error) {
	keys, err := k.Keys(ctx)
	if err != nil {
		return nil, err
	}
	if key := lookupKey(keys, kid); key != nil {
		return key, nil
	}

	k.mu.RLock()
	recent := !k.fetched.IsZero() && k.now().Sub(k.fetched) < k.backoff
	k.mu.RUnlock()
	if recent {
		return nil, ErrKeyNotFound
	}

	keys, err = k.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if key := lookupKey(keys, kid); key != nil {
		return key, nil
	}
	return nil, ErrKeyNotFound
}

// Fetches reports how many HTTP fetches completed successfully.
func (k *KeySet) Fetches() uint64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.fetchCnt
}

func (k *KeySet) fetch(ctx context.Context) (*jose.JSONWebKeySet, error) {
	ch := k.group.DoChan("jwks", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.timeout)
		defer cancel()
		return k.download(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*jose.JSONWebKeySet), nil
	}
}

func (k *KeySet) download(ctx context.Context) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrKeyFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetchFailed, err)
	}
	keys, err := parseKeySet(body)
	if err != nil {
		return nil, err
	}

	now := k.now()
	k.mu.Lock()
	k.keys = keys
	k.fetched = now
	k.expires = now.Add(k.ttl)
	k.fetchCnt++
	k.mu.Unlock()
	return keys, nil
}

// parseKeySet requires a "keys" array and skips entries go-jose cannot
// parse, so one unsupported key does not take down the whole set.
func parseKeySet(body []byte) (*jose.JSONWebKeySet, error) {
	var raw struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(body, &raw); err != nil || raw.Keys == nil {
		return nil, ErrKeySetInvalid
	}

	set := &jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(raw.Keys))}
	for _, entry := range raw.Keys {
		var key jose.JSONWebKey
		if err := key.UnmarshalJSON(entry); err != nil {
			continue
		}
		if key.KeyID == "" || !key.Valid() {
			continue
		}
		set.Keys = append(set.Keys, key)
	}
	return set, nil
}

func lookupKey(set *jose.JSONWebKeySet, kid string) *jose.JSONWebKey {
	for i := range set.Keys {
		if set.Keys[i].KeyID == kid {
			return &set.Keys[i]
		}
	}
	return nil
}

// Package auth verifies the bearer tokens issued by the identity provider.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

type Verifier interface {
	Verify(ctx context.Context, tokenString string) (jwt.Token, error)
}

// keySet caches the JWKS of the identity provider. A failed refresh keeps serving the last good set.
type keySet struct {
	mu sync.RWMutex

	url         string
	minInterval time.Duration
	now         func() time.Time
	fetch       func(ctx context.Context, url string) (jwk.Set, error)

	set       jwk.Set
	fetchedAt time.Time
}

func (k *keySet) fresh() (jwk.Set, bool) {
	if k.set == nil || k.now().Sub(k.fetchedAt) >= k.minInterval {
		return nil, false
	}
	return k.set, true
}

func (k *keySet) get(ctx context.Context) (jwk.Set, error) {
	k.mu.RLock()
	set, ok := k.fresh()
	k.mu.RUnlock()
	if ok {
		return set, nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	// another caller may have refreshed while we waited for the lock
	if set, ok := k.fresh(); ok {
		return set, nil
	}
	set, err := k.fetch(ctx, k.url)
	if err != nil {
		if k.set != nil {
			return k.set, nil
		}
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", k.url, err)
	}
	k.set = set
	k.fetchedAt = k.now()
	return set, nil
}

// JWTVerifier checks signature, expiry, issuer and authorized party of access tokens.
type JWTVerifier struct {
	keys     *keySet
	issuer   string
	clientID string
	skew     time.Duration
}

// NewJWTVerifier fetches the JWKS once so that a misconfigured provider fails at startup.
func NewJWTVerifier(ctx context.Context, cfg config.IdP) (*JWTVerifier, error) {
	v := &JWTVerifier{
		keys: &keySet{
			url:         cfg.JwksURL,
			minInterval: cfg.MinInterval,
			now:         time.Now,
			fetch: func(ctx context.Context, url string) (jwk.Set, error) {
				return jwk.Fetch(ctx, url)
			},
		},
		issuer:   cfg.Issuer,
		clientID: cfg.ClientID,
		skew:     cfg.ClockSkew,
	}
	if _, err := v.keys.get(ctx); err != nil {
		return nil, fmt.Errorf("initial JWKS fetch failed: %w", err)
	}
	return v, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (jwt.Token, error) {
	set, err := v.keys.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get keyset for verification: %w", err)
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAcceptableSkew(v.skew),
	}
	if v.clientID != "" {
		opts = append(opts, jwt.WithClaimValue("azp", v.clientID))
	}
	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	return token, nil
}

package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/tokengate/pkg/errors"
)

const tracerName = "github.com/StricklySoft/tokengate/pkg/token"

// KeyStore persists the single signing key of a deployment.
//
// LoadKey returns "" with a nil error when no key has been stored yet.
// SaveKey is the race arbiter between concurrent initializers: a backend
// either refuses to overwrite an existing key or lets the last writer win.
// The authority re-reads after every save, so both are safe.
type KeyStore interface {
	LoadKey(ctx context.Context) (string, error)
	SaveKey(ctx context.Context, key string) error
}

// KeyAuthority hands out the signing key, creating and persisting it on
// first demand. The first successfully read key is cached for the life of
// the authority.
type KeyAuthority struct {
	store    KeyStore
	generate func() (string, error)
	tracer   trace.Tracer

	mu     sync.Mutex
	cached atomic.Pointer[string]
}

// KeyOption configures a KeyAuthority.
type KeyOption func(*KeyAuthority)

// WithKeyGenerator replaces GenerateKey.
func WithKeyGenerator(fn func() (string, error)) KeyOption {
	return func(a *KeyAuthority) {
		a.generate = fn
	}
}

// NewKeyAuthority returns an authority backed by store.
func NewKeyAuthority(store KeyStore, opts ...KeyOption) *KeyAuthority {
	a := &KeyAuthority{
		store:    store,
		generate: GenerateKey,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Key returns the deployment signing key as hex. Any failure to read or
// persist the key yields CodeUnavailableSigningKey; a locally generated key
// is never returned unless the store gave it back. A failed save is
// followed by one re-read, so a key stored by a racing writer still wins.
func (a *KeyAuthority) Key(ctx context.Context) (string, error) {
	if k := a.cached.Load(); k != nil {
		return *k, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if k := a.cached.Load(); k != nil {
		return *k, nil
	}

	ctx, span := a.tracer.Start(ctx, "token.KeyAuthority.Key")
	defer span.End()

	key, err := a.loadOrCreate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	a.cached.Store(&key)
	return key, nil
}

func (a *KeyAuthority) loadOrCreate(ctx context.Context) (string, error) {
	key, err := a.store.LoadKey(ctx)
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeUnavailableSigningKey, "token: failed to read signing key")
	}
	if strings.TrimSpace(key) != "" {
		return key, nil
	}

	generated, err := a.generate()
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeUnavailableSigningKey, "token: failed to generate signing key")
	}
	if saveErr := a.store.SaveKey(ctx, generated); saveErr != nil {
		// A racing writer may have stored its key first.
		if key, err = a.store.LoadKey(ctx); err == nil && strings.TrimSpace(key) != "" {
			return key, nil
		}
		return "", sserr.Wrap(saveErr, sserr.CodeUnavailableSigningKey, "token: failed to persist signing key")
	}

	key, err = a.store.LoadKey(ctx)
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeUnavailableSigningKey, "token: failed to re-read signing key")
	}
	if strings.TrimSpace(key) == "" {
		return "", sserr.New(sserr.CodeUnavailableSigningKey, "token: signing key missing after save")
	}
	return key, nil
}

// GenerateKey returns a random 256-bit key as hex.
func GenerateKey() (string, error) {
	buf := make([]byte, MinKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// KeyFromSecret derives a deterministic key from a configured secret. The
// secret's bytes are the key, so it must be at least MinKeyBytes long.
func KeyFromSecret(secret string) (string, error) {
	if len(secret) < MinKeyBytes {
		return "", sserr.Newf(sserr.CodeValidationRange,
			"token: secret must be at least %d bytes, got %d", MinKeyBytes, len(secret))
	}
	return hex.EncodeToString([]byte(secret)), nil
}

package token

import (
	"encoding/hex"
	"errors"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	sserr "github.com/StricklySoft/tokengate/pkg/errors"
)

// DefaultExpire is used when a token is issued without a positive lifetime.
const DefaultExpire = 24 * time.Hour

// MinKeyBytes is the minimum HMAC-SHA-256 key length.
const MinKeyBytes = 32

const signingAlgorithm = "HS256"

// Codec signs and verifies access tokens. It holds no key state; every
// call receives the hex key. A Codec is safe for concurrent use.
type Codec struct {
	now   func() time.Time
	newID func() string
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// WithIDGenerator overrides the source of jti values. The default is a
// random UUID; a fixed generator makes issued tokens reproducible in tests.
func WithIDGenerator(newID func() string) CodecOption {
	return func(c *Codec) {
		c.newID = newID
	}
}

// NewCodec returns a Codec using the wall clock and random token ids
// unless overridden.
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the codec's current time.
func (c *Codec) Now() time.Time {
	return c.now()
}

// Encode signs a token for principalID that expires at expireAt. Custom
// claims are copied first, so they cannot replace sub, exp, iat or jti.
// Every token carries a random jti, which keeps two tokens issued for the
// same principal in the same second distinct.
func (c *Codec) Encode(principalID string, claims map[string]any, expireAt time.Time, keyHex string) (string, error) {
	key, err := DecodeKey(keyHex)
	if err != nil {
		return "", err
	}

	mc := make(jwt.MapClaims, len(claims)+4)
	maps.Copy(mc, claims)
	mc["sub"] = principalID
	mc["exp"] = jwt.NewNumericDate(expireAt)
	mc["iat"] = jwt.NewNumericDate(c.now())
	mc["jti"] = c.newID()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(key)
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeInternal, "token: failed to sign")
	}
	return signed, nil
}

// Decode verifies accessToken with keyHex and returns its subject and
// claims. A correctly signed token past its expiry fails with
// CodeAuthenticationExpired; every other verification failure, including a
// wrong key or a missing subject, fails with CodeAuthenticationInvalid.
func (c *Codec) Decode(accessToken, keyHex string) (string, map[string]any, error) {
	key, err := DecodeKey(keyHex)
	if err != nil {
		return "", nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingAlgorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	parsed, err := parser.Parse(accessToken, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return "", nil, classifyError(err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", nil, sserr.New(sserr.CodeAuthenticationInvalid, "token: unexpected claims type")
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", nil, sserr.New(sserr.CodeAuthenticationInvalid, "token: subject is missing")
	}
	return subject, claims, nil
}

// Issue builds a Token for principalID valid for expireSeconds, or for
// DefaultExpire when expireSeconds is not positive. Attributes are left
// empty for the caller to fill.
func (c *Codec) Issue(principalID string, claims map[string]any, expireSeconds int64, keyHex string) (*Token, error) {
	lifetime := DefaultExpire
	if expireSeconds > 0 {
		lifetime = time.Duration(expireSeconds) * time.Second
	}
	now := c.now()
	expireAt := now.Add(lifetime)

	access, err := c.Encode(principalID, claims, expireAt, keyHex)
	if err != nil {
		return nil, err
	}
	return &Token{
		PrincipalID: principalID,
		AccessToken: access,
		Key:         keyHex,
		ExpireTime:  expireAt.UnixMilli(),
		CreateTime:  now.UnixMilli(),
		UpdateTime:  now.UnixMilli(),
	}, nil
}

// DecodeKey turns a hex key into HMAC key bytes.
func DecodeKey(keyHex string) ([]byte, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidationFormat, "token: signing key is not valid hex")
	}
	if len(key) < MinKeyBytes {
		return nil, sserr.Newf(sserr.CodeValidationFormat,
			"token: signing key must be at least %d bytes, got %d", MinKeyBytes, len(key))
	}
	return key, nil
}

func classifyError(err error) *sserr.Error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return sserr.Wrap(err, sserr.CodeAuthenticationExpired, "token: expired")
	}
	return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "token: verification failed")
}

// Times reads the issue and expiry times embedded in accessToken without
// verifying its signature. Stores that keep only the token string use it
// to fill CreateTime and ExpireTime; it must never be used to authenticate.
func Times(accessToken string) (issuedAt, expireAt time.Time, err error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, time.Time{}, sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "token: malformed")
	}
	if iat, _ := parsed.Claims.GetIssuedAt(); iat != nil {
		issuedAt = iat.Time
	}
	if exp, _ := parsed.Claims.GetExpirationTime(); exp != nil {
		expireAt = exp.Time
	}
	return issuedAt, expireAt, nil
}

// fillTimes sets the millisecond timestamps of t from its access token.
func fillTimes(t *Token) {
	issuedAt, expireAt, err := Times(t.AccessToken)
	if err != nil {
		return
	}
	if !issuedAt.IsZero() {
		t.CreateTime = issuedAt.UnixMilli()
		t.UpdateTime = t.CreateTime
	}
	if !expireAt.IsZero() {
		t.ExpireTime = expireAt.UnixMilli()
	}
}

// Reconstruct builds a Token for a stored access token, taking timestamps
// from the token's own claims.
func Reconstruct(principalID, accessToken string, attrs Attributes) *Token {
	t := &Token{PrincipalID: principalID, AccessToken: accessToken, Attributes: attrs}
	fillTimes(t)
	return t
}

// Package gate authenticates bearer tokens and enforces authorization
// requirements on incoming requests.
//
// Every request runs the same pipeline: extract the raw token, verify it
// with the store's signing key, look it up in the store, evaluate the
// operation's [authz.Requirement], and attach the token to the request
// context. Each failure kind surfaces with its own pkg/errors code:
//
//	CodeAuthenticationMissing  no token presented          401
//	CodeAuthenticationExpired  valid signature, past expiry 401
//	CodeAuthenticationInvalid  bad token or not tracked     401
//	CodeAuthorizationDenied    requirement not satisfied    403
//	CodeUnavailable*           store or key failure         503
//
// [HTTPMiddleware] and [UnaryServerInterceptor] wrap the pipeline for
// net/http and gRPC servers.
package gate

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/tokengate/pkg/authz"
	sserr "github.com/StricklySoft/tokengate/pkg/errors"
	"github.com/StricklySoft/tokengate/pkg/store"
	"github.com/StricklySoft/tokengate/pkg/token"
)

const instrumentationName = "github.com/StricklySoft/tokengate/pkg/gate"

// Gate runs the access pipeline against a store. It holds no per-request
// state and is safe for concurrent use.
type Gate struct {
	store   store.Store
	codec   *token.Codec
	logger  *slog.Logger
	tracer  trace.Tracer
	meter   metric.Meter
	metrics *decisionMetrics
}

// Option configures a Gate.
type Option func(*Gate)

// WithCodec sets the codec used to verify tokens, typically to inject a
// clock. It should match the codec the store issues with.
func WithCodec(c *token.Codec) Option {
	return func(g *Gate) {
		g.codec = c
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = l
	}
}

// WithTracerProvider sets the tracer provider. The default is the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Gate) {
		g.tracer = tp.Tracer(instrumentationName)
	}
}

// WithMeterProvider sets the meter provider. The default is the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(g *Gate) {
		g.meter = mp.Meter(instrumentationName)
	}
}

// New returns a Gate backed by s.
func New(s store.Store, opts ...Option) (*Gate, error) {
	if s == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "gate: store is required")
	}
	g := &Gate{store: s}
	for _, opt := range opts {
		opt(g)
	}
	if g.codec == nil {
		g.codec = token.NewCodec()
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer(instrumentationName)
	}
	if g.meter == nil {
		g.meter = otel.Meter(instrumentationName)
	}

	m, err := newDecisionMetrics(g.meter)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "gate: failed to create metrics")
	}
	g.metrics = m
	return g, nil
}

// Authorize verifies rawToken and checks it against req. A nil req only
// authenticates. On success the live token from the store is returned with
// its current attributes.
func (g *Gate) Authorize(ctx context.Context, rawToken string, req *authz.Requirement) (*token.Token, error) {
	ctx, span := g.tracer.Start(ctx, "gate.Authorize")
	defer span.End()

	t, err := g.authorize(ctx, strings.TrimSpace(rawToken), req)
	outcome := outcomeOf(err)
	g.metrics.record(ctx, outcome)
	span.SetAttributes(attribute.String("gate.outcome", outcome))

	if err != nil {
		if outcome == outcomeUnavailable {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("enduser.id", t.PrincipalID))
	span.SetStatus(codes.Ok, "")
	return t, nil
}

func (g *Gate) authorize(ctx context.Context, raw string, req *authz.Requirement) (*token.Token, error) {
	if raw == "" {
		g.logger.DebugContext(ctx, "token missing")
		return nil, sserr.New(sserr.CodeAuthenticationMissing, "gate: token missing")
	}

	key, err := g.store.TokenKey(ctx)
	if err != nil {
		g.logger.ErrorContext(ctx, "signing key unavailable", "error", err)
		return nil, asUnavailable(err, sserr.CodeUnavailableSigningKey)
	}

	principalID, _, err := g.codec.Decode(raw, key)
	if err != nil {
		return nil, g.rejectDecode(ctx, err)
	}

	t, err := g.store.FindToken(ctx, principalID, raw)
	switch {
	case sserr.IsNotFound(err):
		g.logger.DebugContext(ctx, "token not tracked", "principal", principalID)
		return nil, sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "gate: token not tracked")
	case sserr.IsAuthentication(err):
		return nil, g.rejectDecode(ctx, err)
	case err != nil:
		g.logger.ErrorContext(ctx, "token store unavailable", "principal", principalID, "error", err)
		return nil, asUnavailable(err, sserr.CodeUnavailableTokenStore)
	}

	if !req.Allows(t) {
		g.logger.DebugContext(ctx, "access denied", "principal", principalID)
		return nil, sserr.New(sserr.CodeAuthorizationDenied, "gate: access denied").
			WithDetail("principal", principalID)
	}
	return t, nil
}

func (g *Gate) rejectDecode(ctx context.Context, err error) error {
	if sserr.HasCode(err, sserr.CodeAuthenticationExpired) {
		g.logger.DebugContext(ctx, "token expired")
		return sserr.Wrap(err, sserr.CodeAuthenticationExpired, "gate: token expired")
	}
	if sserr.IsAuthentication(err) {
		g.logger.DebugContext(ctx, "token invalid")
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "gate: token invalid")
	}
	// A key the codec cannot use is a deployment fault, not a bad token.
	g.logger.ErrorContext(ctx, "signing key unusable", "error", err)
	return sserr.Wrap(err, sserr.CodeUnavailableSigningKey, "gate: signing key unusable")
}

func asUnavailable(err error, code sserr.Code) error {
	if sserr.IsUnavailable(err) {
		return err
	}
	return sserr.Wrap(err, code, "gate: dependency unavailable")
}

package gate

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/StricklySoft/tokengate/pkg/authz"
	sserr "github.com/StricklySoft/tokengate/pkg/errors"
)

// MethodResolver returns the requirement for a full gRPC method name such
// as "/orders.v1.Orders/Get"; nil means a valid token is enough.
type MethodResolver func(fullMethod string) *authz.Requirement

// UnaryServerInterceptor runs the gate on every unary call. The token is
// read from the "access_token" metadata key first, then from
// "authorization" with a Bearer prefix.
func UnaryServerInterceptor(g *Gate, resolve MethodResolver) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authorizeRPC(ctx, g, resolve, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is UnaryServerInterceptor for streams.
func StreamServerInterceptor(g *Gate, resolve MethodResolver) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authorizeRPC(ss.Context(), g, resolve, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func authorizeRPC(ctx context.Context, g *Gate, resolve MethodResolver, fullMethod string) (context.Context, error) {
	var req *authz.Requirement
	if resolve != nil {
		req = resolve(fullMethod)
	}
	t, err := g.Authorize(ctx, tokenFromMetadata(ctx), req)
	if err != nil {
		return ctx, rpcError(err)
	}
	return ContextWithToken(ctx, t), nil
}

func tokenFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(QueryParam); len(vals) > 0 && strings.TrimSpace(vals[0]) != "" {
		return strings.TrimSpace(vals[0])
	}
	if vals := md.Get(strings.ToLower(HeaderAuthorization)); len(vals) > 0 {
		raw, _ := ExtractBearer(vals[0])
		return raw
	}
	return ""
}

func rpcError(err error) error {
	e := sserr.FromError(err)
	var code codes.Code
	switch e.Code.Category() {
	case "AUTH":
		code = codes.Unauthenticated
	case "AUTHZ":
		code = codes.PermissionDenied
	case "UNAVAIL":
		code = codes.Unavailable
	case "TIMEOUT":
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, e.Message)
}

// wrappedServerStream overrides Context so stream handlers see the token.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the context carrying the authorized token.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

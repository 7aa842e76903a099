// Package grpc adapts the session subsystem to gRPC servers: a unary
// interceptor that authenticates requests with a bearer access token and
// places the verified claims on the request context.
package grpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/example/sessionkeeper/internal/common"
	"github.com/example/sessionkeeper/internal/logging"
	"github.com/example/sessionkeeper/internal/server/auth"
)

type ctxKey int

const claimsKey ctxKey = 0

// AccessVerifier validates a raw access token and returns its claims.
// *services.SessionService satisfies it.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, rawAccessToken string) (*auth.Claims, error)
}

// ClaimsFromContext returns the claims stored by the interceptor, if any.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

// UnaryAuthInterceptor returns a unary server interceptor that requires a
// valid bearer access token on every call except the listed public methods
// (full method names, e.g. "/session.SessionService/Refresh").
//
// Authentication failures come back as codes.Unauthenticated with no further
// detail. Store failures come back as codes.Unavailable, so a database outage
// reads as an outage and never logs clients out.
func UnaryAuthInterceptor(verifier AccessVerifier, logger logging.Logger, publicMethods ...string) grpc.UnaryServerInterceptor {
	public := make(map[string]struct{}, len(publicMethods))
	for _, m := range publicMethods {
		public[m] = struct{}{}
	}
	log := logger.With("module", "auth_interceptor")

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := public[info.FullMethod]; ok {
			return handler(ctx, req)
		}

		token, err := bearerToken(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}

		claims, err := verifier.VerifyAccess(ctx, token)
		if err != nil {
			if errors.Is(err, common.ErrStoreUnavailable) || errors.Is(err, common.ErrSecretCorrupted) {
				log.Error(ctx, "token verification unavailable", "method", info.FullMethod, "error", err.Error())
				return nil, status.Error(codes.Unavailable, "verification temporarily unavailable")
			}
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		return handler(context.WithValue(ctx, claimsKey, claims), req)
	}
}

// bearerToken extracts the token from the authorization metadata entry.
func bearerToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	values := md.Get(common.AuthorizationHeaderName)
	if len(values) == 0 {
		return "", errors.New("no authorization metadata")
	}
	token := strings.TrimPrefix(values[0], common.BearerPrefix)
	if token == "" || token == values[0] {
		return "", errors.New("malformed authorization metadata")
	}
	return token, nil
}

package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// requiredScope maps a full method name to the token scope it needs. Methods
// of other services (health) are public.
func requiredScope(fullMethod string) (auth.Scope, bool) {
	switch {
	case strings.HasPrefix(fullMethod, "/"+vaultServiceName+"/"):
		return auth.ScopeVault, true
	case strings.HasPrefix(fullMethod, "/"+billingServiceName+"/"):
		return auth.ScopeBilling, true
	}
	return "", false
}

func (s *GRPCServer) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	scope, ok := requiredScope(fullMethod)
	if !ok {
		return ctx, nil
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := auth.ParseToken(accessToken, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
		}
		return nil, status.Error(codes.Unauthenticated, common.ErrInvalidToken.Error())
	}
	if claims.Scope != scope {
		return nil, status.Error(codes.PermissionDenied, "token scope does not allow this call")
	}

	return context.WithValue(ctx, claimsKey, claims), nil
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	ctx, err := s.authenticate(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (a *authedStream) Context() context.Context { return a.ctx }

func (s *GRPCServer) accessTokenStreamInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authenticate(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
}

// userID returns the vault user of an authenticated call.
func userID(ctx context.Context) (string, error) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	if !ok || claims.UserID == "" {
		return "", status.Error(codes.Unauthenticated, common.ErrorUnauthorized.Error())
	}
	return claims.UserID, nil
}

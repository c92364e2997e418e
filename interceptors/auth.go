package interceptors

import (
	"context"
	"strings"

	"hkl-restful/auth"
	"hkl-restful/policy"
	"hkl-restful/services"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// ActorKey is the context key for the authenticated caller.
const ActorKey contextKey = "actor"

// PublicServices are reachable without a token: probes and discovery tooling
// must work before any account exists.
var PublicServices = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.v1.ServerReflection/",
	"/grpc.reflection.v1alpha.ServerReflection/",
}

func isPublic(fullMethod string) bool {
	for _, prefix := range PublicServices {
		if strings.HasPrefix(fullMethod, prefix) {
			return true
		}
	}
	return false
}

// authenticate resolves the bearer token in the incoming metadata to an actor.
func authenticate(ctx context.Context, tokens *auth.Manager, resolver auth.ActorResolver) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "metadata is not provided")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "authorization token is not provided")
	}

	tokenString, err := auth.BearerToken(values[0])
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid authorization header format")
	}
	claims, err := tokens.ParseAndValidateToken(tokenString)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
	}
	actor, err := resolver.ResolveActor(ctx, claims.UserID)
	if err != nil {
		if services.KindOf(err) == services.KindAuthentication {
			return nil, status.Error(codes.Unauthenticated, "user not found")
		}
		return nil, status.Error(codes.Internal, "server error")
	}
	return context.WithValue(ctx, ActorKey, actor), nil
}

// AuthInterceptor returns a new unary server interceptor for JWT authentication.
func AuthInterceptor(tokens *auth.Manager, resolver auth.ActorResolver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if isPublic(info.FullMethod) {
			return handler(ctx, req)
		}
		newCtx, err := authenticate(ctx, tokens, resolver)
		if err != nil {
			return nil, err
		}
		return handler(newCtx, req)
	}
}

// StreamAuthInterceptor applies the same rules to streaming calls.
func StreamAuthInterceptor(tokens *auth.Manager, resolver auth.ActorResolver) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if isPublic(info.FullMethod) {
			return handler(srv, ss)
		}
		newCtx, err := authenticate(ss.Context(), tokens, resolver)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: newCtx})
	}
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }

// ActorFromContext extracts the caller injected by the auth interceptors.
func ActorFromContext(ctx context.Context) (policy.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(policy.Actor)
	return actor, ok
}

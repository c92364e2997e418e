package interceptors

import (
	"context"
	"errors"
	"testing"
	"time"

	"hkl-restful/auth"
	"hkl-restful/models"
	"hkl-restful/policy"
	"hkl-restful/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type stubResolver map[string]policy.Actor

func (s stubResolver) ResolveActor(_ context.Context, id string) (policy.Actor, error) {
	if a, ok := s[id]; ok {
		return a, nil
	}
	return policy.Actor{}, services.AuthenticationError("User not found")
}

type brokenResolver struct{}

func (brokenResolver) ResolveActor(context.Context, string) (policy.Actor, error) {
	return policy.Actor{}, services.UnexpectedError("Database error resolving user", errors.New("database is locked"))
}

func TestAuthInterceptor(t *testing.T) {
	tokens, err := auth.NewManager("grpc-secret", "hkl-test", time.Hour)
	require.NoError(t, err)
	resolver := stubResolver{"u-1": {ID: "u-1", Role: models.RoleSuperAdmin}}
	interceptor := AuthInterceptor(tokens, resolver)

	var seen policy.Actor
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		seen, _ = ActorFromContext(ctx)
		return "ok", nil
	}
	private := &grpc.UnaryServerInfo{FullMethod: "/hkl.Admin/Export"}

	t.Run("public method", func(t *testing.T) {
		resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler)
		require.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})

	t.Run("missing metadata", func(t *testing.T) {
		_, err := interceptor(context.Background(), nil, private, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("bad token", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer nope"))
		_, err := interceptor(ctx, nil, private, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := tokens.GenerateToken(&models.User{ID: "u-1", Role: models.RoleSuperAdmin})
		require.NoError(t, err)
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
		_, err = interceptor(ctx, nil, private, handler)
		require.NoError(t, err)
		assert.Equal(t, "u-1", seen.ID)
	})

	t.Run("unknown user", func(t *testing.T) {
		token, err := tokens.GenerateToken(&models.User{ID: "gone"})
		require.NoError(t, err)
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
		_, err = interceptor(ctx, nil, private, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("resolver failure", func(t *testing.T) {
		token, err := tokens.GenerateToken(&models.User{ID: "u-1"})
		require.NoError(t, err)
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
		_, err = AuthInterceptor(tokens, brokenResolver{})(ctx, nil, private, handler)
		assert.Equal(t, codes.Internal, status.Code(err))
	})
}

func TestZapLoggingInterceptor(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	interceptor := ZapLoggingInterceptor(zap.New(core))

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, status.Error(codes.NotFound, "unknown service")
		})
	assert.Equal(t, codes.NotFound, status.Code(err))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "NotFound", logs.All()[0].ContextMap()["grpc.code"])
}

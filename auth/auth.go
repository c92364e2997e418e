package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hkl-restful/models"
	"hkl-restful/policy"
	"hkl-restful/services"

	restful "github.com/emicklei/go-restful/v3"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// ActorAttribute is the request attribute AuthFilter stores the caller under.
const ActorAttribute = "actor"

// CustomClaims identifies the account a token was issued to. Role is
// informational; authorization always uses the stored user.
type CustomClaims struct {
	UserID string      `json:"id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// ActorResolver loads the current role and city of a token subject. A missing
// user is reported as a services authentication error; any other error is a
// storage failure.
type ActorResolver interface {
	ResolveActor(ctx context.Context, userID string) (policy.Actor, error)
}

// Manager issues and validates HS256 bearer tokens.
type Manager struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewManager(secret, issuer string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Manager{signingKey: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// GenerateToken creates a new JWT for the given user.
func (m *Manager) GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.signingKey)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// ParseAndValidateToken : used for gRPC and HTTP filters
func (m *Manager) ParseAndValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.signingKey, nil
	})

	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok {
			if ve.Errors&jwt.ValidationErrorMalformed != 0 {
				return nil, errors.New("malformed token")
			} else if ve.Errors&(jwt.ValidationErrorExpired|jwt.ValidationErrorNotValidYet) != 0 {
				return nil, errors.New("token is either expired or not active yet")
			} else if ve.Errors&jwt.ValidationErrorSignatureInvalid != 0 {
				return nil, errors.New("invalid token signature")
			}
		}
		return nil, fmt.Errorf("couldn't handle this token: %w", err)
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("Missing token")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("Invalid authorization header format")
	}
	return parts[1], nil
}

// AuthFilter creates a go-restful FilterFunction for JWT authentication. The
// token subject is re-read on every request so role and city changes apply
// immediately.
func AuthFilter(m *Manager, resolver ActorResolver, logger *zap.Logger) restful.FilterFunction {
	return func(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
		tokenString, err := BearerToken(req.HeaderParameter("Authorization"))
		if err != nil {
			unauthorized(resp, err.Error())
			return
		}

		claims, err := m.ParseAndValidateToken(tokenString)
		if err != nil {
			unauthorized(resp, "Invalid token")
			return
		}

		actor, err := resolver.ResolveActor(req.Request.Context(), claims.UserID)
		if err != nil {
			if services.KindOf(err) == services.KindAuthentication {
				unauthorized(resp, "User not found")
				return
			}
			logger.Error("Failed to resolve token subject", zap.String("user_id", claims.UserID), zap.Error(err))
			_ = resp.WriteHeaderAndJson(http.StatusInternalServerError, map[string]string{"error": "Server error"}, restful.MIME_JSON)
			return
		}

		req.SetAttribute(ActorAttribute, actor)
		chain.ProcessFilter(req, resp)
	}
}

// ActorFrom returns the caller stored by AuthFilter.
func ActorFrom(req *restful.Request) (policy.Actor, bool) {
	actor, ok := req.Attribute(ActorAttribute).(policy.Actor)
	return actor, ok
}

func unauthorized(resp *restful.Response, msg string) {
	_ = resp.WriteHeaderAndJson(http.StatusUnauthorized, map[string]string{"error": msg}, restful.MIME_JSON)
}

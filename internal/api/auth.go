package api

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt"

	"github.com/teamtrack/chatrelay/internal/database"
)

const (
	userIdClaim = "user-id"

	// RoleAdmin is the only role admitted to a project's chat.
	RoleAdmin = "admin"
)

type contextKey string

const userIdKey contextKey = "user-id"

func WithUserId(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

func UserId(ctx context.Context) (string, bool) {
	userId, ok := ctx.Value(userIdKey).(string)

	return userId, ok
}

// TokenVerifier resolves a bearer credential to a stable user id. Token
// issuance happens elsewhere in the platform; the relay only verifies.
type TokenVerifier interface {
	Verify(tokenString string) (string, error)
}

type JwtVerifier struct {
	signingKey []byte
}

func NewJwtVerifier(signingKey []byte) *JwtVerifier {
	return &JwtVerifier{signingKey: signingKey}
}

func (v *JwtVerifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return "", fmt.Errorf("invalid user id claim")
	}

	return userId, nil
}

// MembershipAuthority reports a user's role on a project.
type MembershipAuthority interface {
	Role(projectId, userId string) (string, error)
}

type dbMembershipAuthority struct {
	db database.ChatRepository
}

func NewDbMembershipAuthority(db database.ChatRepository) MembershipAuthority {
	return &dbMembershipAuthority{db: db}
}

func (a *dbMembershipAuthority) Role(projectId, userId string) (string, error) {
	return a.db.GetProjectRole(projectId, userId)
}

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/model"
)

// Identity is what the external auth provider knows about the caller.
type Identity struct {
	ID          string
	Email       string
	DisplayName *string
	AvatarURL   *string
}

// Verifier resolves a session token to an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// JWTVerifier checks access tokens minted by a Supabase-style auth provider
// locally, against the project's shared HS256 secret.
type JWTVerifier struct {
	secret   []byte
	audience string
	issuer   string
	now      func() time.Time
}

func NewJWTVerifier(secret, audience, issuer string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &JWTVerifier{secret: []byte(secret), audience: audience, issuer: issuer, now: time.Now}, nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Email        string `json:"email"`
	UserMetadata struct {
		FullName  string `json:"full_name"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	} `json:"user_metadata"`
}

var ErrInvalidToken = appErrors.Unauthorized("invalid or expired session")

func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithTimeFunc(v.now),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var c sessionClaims
	if _, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return v.secret, nil }, opts...); err != nil {
		return nil, ErrInvalidToken
	}
	if c.Subject == "" || c.Email == "" {
		return nil, ErrInvalidToken
	}

	id := &Identity{ID: c.Subject, Email: model.NormalizeEmail(c.Email)}
	name := c.UserMetadata.FullName
	if name == "" {
		name = c.UserMetadata.Name
	}
	if name != "" {
		id.DisplayName = &name
	}
	if c.UserMetadata.AvatarURL != "" {
		avatar := c.UserMetadata.AvatarURL
		id.AvatarURL = &avatar
	}
	return id, nil
}

var _ Verifier = (*JWTVerifier)(nil)

type ctxKey struct{}

// WithUser stores the provisioned caller on ctx.
func WithUser(ctx context.Context, u *model.AppUser) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the caller stored by WithUser.
func UserFrom(ctx context.Context) (*model.AppUser, bool) {
	u, ok := ctx.Value(ctxKey{}).(*model.AppUser)
	return u, ok && u != nil
}

var ErrNoUser = appErrors.Unauthorized("authentication required")

// MustUser is UserFrom for handlers mounted behind the authentication middleware.
func MustUser(ctx context.Context) (*model.AppUser, error) {
	u, ok := UserFrom(ctx)
	if !ok {
		return nil, ErrNoUser
	}
	return u, nil
}

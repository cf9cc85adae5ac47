package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/coderev/coderev/backend/go-services/internal/config"
	"github.com/coderev/coderev/backend/go-services/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
)

// Subject is who an access token is issued to.
type Subject struct {
	UID       string
	Name      string
	Email     string
	SessionID string
	// Claims are extra string claims, e.g. the workspace a generated account
	// is assigned to.
	Claims map[string]string
}

// GenerateAccessToken creates a signed JWT access token for the subject
func GenerateAccessToken(cfg *config.Config, s Subject, ttl time.Duration) (string, error) {
	if s.UID == "" {
		return "", errors.New("subject uid required")
	}
	claims := jwt.MapClaims{}
	for k, v := range s.Claims {
		claims[k] = v
	}
	claims["sub"] = s.UID
	claims["name"] = s.Name
	claims["email"] = s.Email
	if s.SessionID != "" {
		claims["sid"] = s.SessionID
	}
	claims["iat"] = time.Now().Unix()
	claims["exp"] = time.Now().Add(ttl).Unix()
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(cfg.JWT.Secret))
}

type mapToken struct {
	claims jwt.MapClaims
}

func (t *mapToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Verifier checks access tokens issued by GenerateAccessToken.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return &mapToken{claims: claims}, nil
}

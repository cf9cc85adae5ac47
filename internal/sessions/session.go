package sessions

import "time"

// Providers that can open a refresh session.
const (
	ProviderOIDC    = "oidc"
	ProviderAccount = "account"
)

// Session is a persistent refresh session. Its ID doubles as the live
// session id carried in the "sid" claim of every access token issued for it.
type Session struct {
	ID           string            `bson:"_id" json:"id"`
	RefreshToken string            `bson:"refreshToken" json:"refreshToken"`
	Sub          string            `bson:"sub" json:"sub"`
	Name         string            `bson:"name,omitempty" json:"name,omitempty"`
	Email        string            `bson:"email,omitempty" json:"email,omitempty"`
	Provider     string            `bson:"provider" json:"provider"`
	Claims       map[string]string `bson:"claims,omitempty" json:"claims,omitempty"`
	ExpiresAt    time.Time         `bson:"expiresAt" json:"expiresAt"`
	CreatedAt    time.Time         `bson:"createdAt" json:"createdAt"`
}

func (s *Session) expired() bool {
	return time.Now().UTC().After(s.ExpiresAt)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coderev/coderev/backend/go-services/internal/accounts"
	"github.com/coderev/coderev/backend/go-services/internal/auth"
	"github.com/coderev/coderev/backend/go-services/internal/config"
	"github.com/coderev/coderev/backend/go-services/internal/live"
	"github.com/coderev/coderev/backend/go-services/internal/oidc"
	"github.com/coderev/coderev/backend/go-services/internal/sessions"
	"github.com/coderev/coderev/backend/go-services/internal/tokens"
	"github.com/coderev/coderev/backend/go-services/pkg/logger"
	"github.com/coderev/coderev/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Login modes.
const (
	ModeAccount  = "account"   // generated account, checked locally
	ModePassword = "password"  // Keycloak password grant (dev/testing)
	ModeAuthCode = "auth_code" // Keycloak authorization code exchange
)

// LoginRequest selects a login mode and carries its credentials.
type LoginRequest struct {
	Mode        string `json:"mode" binding:"required"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         *config.Config
	accounts    *accounts.Service
	sessionsSvc *sessions.Service
	live        *live.Manager
	idp         middleware.Verifier
}

// NewAuthHandler wires the handler. idp verifies identity provider ID
// tokens and may be nil when Keycloak is not configured; live may be nil in
// deployments without the live API.
func NewAuthHandler(cfg *config.Config, a *accounts.Service, s *sessions.Service, m *live.Manager, idp middleware.Verifier) *AuthHandler {
	return &AuthHandler{cfg: cfg, accounts: a, sessionsSvc: s, live: m, idp: idp}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
}

func (h *AuthHandler) accessTTL() time.Duration {
	if h.cfg.JWT.AccessTokenTTL > 0 {
		return h.cfg.JWT.AccessTokenTTL
	}
	return 15 * time.Minute
}

func (h *AuthHandler) refreshTTL() time.Duration {
	if h.cfg.JWT.RefreshTokenTTL > 0 {
		return h.cfg.JWT.RefreshTokenTTL
	}
	return 7 * 24 * time.Hour
}

// Login authenticates with one of the supported modes and opens a refresh
// session whose id is carried as "sid" in the access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var sess *sessions.Session
	switch req.Mode {
	case ModeAccount:
		if h.accounts == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "accounts not configured"})
			return
		}
		a, err := h.accounts.Authenticate(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			if !errors.Is(err, accounts.ErrInvalidCredentials) {
				logger.Errorf("account login for %s: %v", req.Username, err)
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}
		sess = &sessions.Session{
			Sub:      a.UID,
			Name:     a.DisplayName,
			Email:    a.Email,
			Provider: sessions.ProviderAccount,
			Claims:   a.Claims,
		}
	case ModePassword, ModeAuthCode:
		claims, status, err := h.identityProviderLogin(c.Request.Context(), req)
		if err != nil {
			c.JSON(status, gin.H{"error": "authentication failed", "details": err.Error()})
			return
		}
		actor, ok := auth.FromClaims(claims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid id token", "details": "missing sub"})
			return
		}
		sess = &sessions.Session{Sub: actor.UID, Name: actor.Name, Email: actor.Email, Provider: sessions.ProviderOIDC}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported mode"})
		return
	}

	rft, err := h.sessionsSvc.CreateSession(c.Request.Context(), sess, h.refreshTTL())
	if err != nil {
		logger.Errorf("failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session", "details": err.Error()})
		return
	}
	access, err := tokens.GenerateAccessToken(h.cfg, subjectOf(sess), h.accessTTL())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  access,
		"refreshToken": rft,
		"sessionId":    sess.ID,
		"user":         gin.H{"uid": sess.Sub, "name": sess.Name, "email": sess.Email},
		"expiresIn":    int(h.accessTTL().Seconds()),
	})
}

func subjectOf(s *sessions.Session) tokens.Subject {
	return tokens.Subject{UID: s.Sub, Name: s.Name, Email: s.Email, SessionID: s.ID, Claims: s.Claims}
}

// identityProviderLogin runs a Keycloak grant and returns the verified ID
// token claims, or the HTTP status to report.
func (h *AuthHandler) identityProviderLogin(ctx context.Context, req LoginRequest) (map[string]interface{}, int, error) {
	kc := h.cfg.Keycloak
	if kc.URL == "" || kc.Realm == "" {
		return nil, http.StatusInternalServerError, errors.New("keycloak not configured")
	}
	var (
		tr  *tokenResponse
		err error
	)
	if req.Mode == ModePassword {
		tr, err = requestPasswordToken(ctx, kc.URL, kc.Realm, kc.ClientID, kc.ClientSecret, req.Username, req.Password)
	} else {
		if req.Code == "" || req.RedirectURI == "" {
			return nil, http.StatusBadRequest, errors.New("code and redirect_uri required for auth_code mode")
		}
		logger.Debugf("Login(auth_code): received code length=%d redirect_uri=%s", len(req.Code), req.RedirectURI)
		tr, err = requestAuthCodeToken(ctx, kc.URL, kc.Realm, kc.ClientID, kc.ClientSecret, req.Code, req.RedirectURI)
	}
	if err != nil {
		logger.Errorf("%s token exchange error: %v", req.Mode, err)
		return nil, http.StatusUnauthorized, err
	}
	claims, err := oidc.VerifyClaims(ctx, h.idp, tr.IDToken)
	if err != nil {
		return nil, http.StatusUnauthorized, fmt.Errorf("invalid id token: %w", err)
	}
	return claims, http.StatusOK, nil
}

// Refresh accepts a refresh token and returns a new access token for the
// same session.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.sessionsSvc.ValidateRefresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "validation failed"})
		return
	}
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	access, err := tokens.GenerateAccessToken(h.cfg, subjectOf(sess), h.accessTTL())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": access, "expires_in": int(h.accessTTL().Seconds())})
}

// Logout invalidates the refresh token, closes its live session and
// blacklists the current access token when one is supplied.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if at, ok := middleware.BearerToken(c); ok {
		if exp, err := parseExpFromJWT(at); err == nil {
			if err := sessions.BlacklistUntil(c.Request.Context(), at, exp); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to blacklist access token"})
				return
			}
		}
	}

	sess, err := h.sessionsSvc.ValidateRefresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		logger.Warnf("logout: session lookup failed: %v", err)
	}
	if err := h.sessionsSvc.DeleteRefresh(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove session"})
		return
	}
	if sess != nil && h.live != nil {
		h.live.Close(sess.ID)
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// parseExpFromJWT returns the exp claim of tok without checking the
// signature; it only computes blacklist TTLs.
func parseExpFromJWT(tok string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errors.New("exp claim not present")
	}
	return exp.Time, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
}

func tokenURL(host, realm string) string {
	return strings.TrimRight(host, "/") + "/realms/" + realm + "/protocol/openid-connect/token"
}

func requestPasswordToken(ctx context.Context, host, realm, clientID, clientSecret, username, password string) (*tokenResponse, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"username":      {username},
		"password":      {password},
	}
	resp, err := postForm(ctx, tokenURL(host, realm), form, "", "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeTokenResponse(resp)
}

// requestAuthCodeToken exchanges an authorization code. A 401 with client
// credentials in the form is retried once with HTTP Basic client auth, and a
// transient "Code not valid" is retried once.
func requestAuthCodeToken(ctx context.Context, host, realm, clientID, clientSecret, code, redirectURI string) (*tokenResponse, error) {
	u := tokenURL(host, realm)
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
	}
	logger.Infof("requestAuthCodeToken: tokenURL=%s client_id=%s client_secret_set=%t redirect_uri=%s", u, clientID, clientSecret != "", redirectURI)

	for attempt := 1; attempt <= 2; attempt++ {
		resp, err := postForm(ctx, u, form, "", "")
		if err == nil && resp.StatusCode == http.StatusUnauthorized && clientSecret != "" {
			b, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			logger.Warnf("requestAuthCodeToken: 401 (%s); retrying with HTTP Basic auth", strings.TrimSpace(string(b)))
			resp, err = postForm(ctx, u, form, clientID, clientSecret)
		}
		if err != nil {
			if attempt == 2 {
				return nil, err
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if resp.StatusCode == http.StatusBadRequest && attempt == 1 {
			b, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if strings.Contains(string(b), "Code not valid") {
				time.Sleep(150 * time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(b))
		}
		defer resp.Body.Close()
		return decodeTokenResponse(resp)
	}
	return nil, fmt.Errorf("token exchange failed after retries")
}

func postForm(ctx context.Context, u string, form url.Values, basicUser, basicPass string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicUser != "" {
		req.SetBasicAuth(basicUser, basicPass)
	}
	return http.DefaultClient.Do(req)
}

func decodeTokenResponse(resp *http.Response) (*tokenResponse, error) {
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(b))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

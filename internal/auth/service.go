package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"beresin/internal/models"
	"beresin/internal/redis"
)

// Service issues, validates, and revokes user authentication tokens.
// The redis client is optional; when present it caches token lookups.
type Service struct {
	db             *sql.DB
	cache          *redis.Client
	tokenTTL       time.Duration
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
}

// NewService constructs an auth service with the supplied token lifetime.
func NewService(db *sql.DB, cache *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:             db,
		cache:          cache,
		tokenTTL:       ttl,
		cookieName:     "auth_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
	}
}

// IssueToken mints a new random token for the user and persists it.
func (s *Service) IssueToken(ctx context.Context, user *models.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("invalid user")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	for i := 0; i < 5; i++ {
		token, err := generateToken()
		if err != nil {
			return "", err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO user_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			token, user.ID, now, expiresAt,
		)
		if err == nil {
			s.cachePrincipal(ctx, token, user.Principal(), s.tokenTTL)
			return token, nil
		}
	}
	return "", errors.New("could not issue token")
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

// ValidateToken verifies the token exists and has not expired, returning the
// principal it authenticates.
func (s *Service) ValidateToken(ctx context.Context, authToken string) (models.Principal, error) {
	if authToken == "" {
		return models.Principal{}, errors.New("token required")
	}
	if p, ok := s.cachedPrincipal(ctx, authToken); ok {
		return p, nil
	}

	var (
		p       models.Principal
		expires time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT t.user_id, t.expires_at, u.name, u.role
		 FROM user_tokens t JOIN users u ON u.id = t.user_id
		 WHERE t.token = ?`, authToken,
	).Scan(&p.ID, &expires, &p.DisplayName, &p.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Principal{}, errors.New("invalid token")
		}
		return models.Principal{}, fmt.Errorf("lookup token: %w", err)
	}
	if time.Now().UTC().After(expires) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, authToken)
		return models.Principal{}, errors.New("token expired")
	}
	// Cache no longer than the token itself remains valid, so a cache hit
	// can never outlive the expires_at check above.
	s.cachePrincipal(ctx, authToken, p, time.Until(expires))
	return p, nil
}

// RevokeToken deletes a single token.
func (s *Service) RevokeToken(ctx context.Context, authToken string) error {
	if authToken == "" {
		return nil
	}
	_ = s.cache.Del(ctx, redis.TokenKey(authToken))
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, authToken); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeUserTokens removes all tokens belonging to the user.
func (s *Service) RevokeUserTokens(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT token FROM user_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("list user tokens: %w", err)
	}
	var keys []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			rows.Close()
			return fmt.Errorf("scan token: %w", err)
		}
		keys = append(keys, redis.TokenKey(token))
	}
	rows.Close()
	_ = s.cache.Del(ctx, keys...)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

func (s *Service) cachePrincipal(ctx context.Context, token string, p models.Principal, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, redis.TokenKey(token), raw, ttl)
}

func (s *Service) cachedPrincipal(ctx context.Context, token string) (models.Principal, bool) {
	raw, err := s.cache.Get(ctx, redis.TokenKey(token))
	if err != nil {
		return models.Principal{}, false
	}
	var p models.Principal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return models.Principal{}, false
	}
	return p, true
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCookieName returns the cookie name storing auth tokens.
func (s *Service) AuthCookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}

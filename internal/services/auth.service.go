package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	tokenIssuer        = "deskbridge"
	secretKeyFileName  = ".deskbridge-secret-key"
	minSecretKeyLength = 32
	maxViewLabelLength = 64
	DefaultTokenExpiry = 30 * 24 * time.Hour
)

// ErrInvalidView is returned for view labels outside [A-Za-z0-9_.-]{1,64}
var ErrInvalidView = errors.New("invalid view label")

// ViewClaims is the JWT payload identifying a view
type ViewClaims struct {
	View string `json:"view"`
	jwt.RegisteredClaims
}

// AuthService mints and checks view tokens
type AuthService struct {
	secretKey   []byte
	tokenExpiry time.Duration
	now         func() time.Time
}

// AuthOptions configures NewAuthService. With an empty Secret the key is
// loaded from SecretFile, or generated and persisted there on first run.
type AuthOptions struct {
	Secret      string
	SecretFile  string
	TokenExpiry time.Duration
	Now         func() time.Time
}

func NewAuthService(opts AuthOptions, logger *zap.Logger) (*AuthService, error) {
	logger = logger.Named("auth")

	secret := strings.TrimSpace(opts.Secret)
	if secret == "" {
		var err error
		secret, err = loadOrCreateSecret(opts.SecretFile, logger)
		if err != nil {
			return nil, err
		}
	}
	if len(secret) < minSecretKeyLength {
		logger.Warn("secret key is shorter than recommended for HMAC-SHA256",
			zap.Int("length", len(secret)), zap.Int("recommended", minSecretKeyLength))
	}

	if opts.TokenExpiry <= 0 {
		opts.TokenExpiry = DefaultTokenExpiry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &AuthService{
		secretKey:   []byte(secret),
		tokenExpiry: opts.TokenExpiry,
		now:         opts.Now,
	}, nil
}

// DefaultSecretFile is where the generated secret is kept when none is configured
func DefaultSecretFile() string {
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		return filepath.Join(homeDir, secretKeyFileName)
	}
	return filepath.Join(os.TempDir(), secretKeyFileName)
}

func loadOrCreateSecret(keyFile string, logger *zap.Logger) (string, error) {
	if keyFile == "" {
		keyFile = DefaultSecretFile()
	}

	if data, err := os.ReadFile(keyFile); err == nil {
		if secret := strings.TrimSpace(string(data)); secret != "" {
			logger.Info("loaded persisted secret key", zap.String("path", keyFile))
			return secret, nil
		}
	}

	randomBytes := make([]byte, minSecretKeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate secret key: %w", err)
	}
	secret := hex.EncodeToString(randomBytes)

	if err := os.WriteFile(keyFile, []byte(secret), 0o600); err != nil {
		logger.Warn("could not persist secret key, tokens will not survive a restart",
			zap.String("path", keyFile), zap.Error(err))
	} else {
		logger.Info("generated and persisted secret key", zap.String("path", keyFile))
	}
	return secret, nil
}

// ValidateViewLabel checks that a view label is safe to log and route on
func ValidateViewLabel(view string) error {
	if len(view) < 1 || len(view) > maxViewLabelLength {
		return fmt.Errorf("%w: length must be 1-%d", ErrInvalidView, maxViewLabelLength)
	}
	for _, c := range view {
		if !((c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') ||
			c == '-' || c == '_' || c == '.') {
			return fmt.Errorf("%w: %q", ErrInvalidView, view)
		}
	}
	return nil
}

// GenerateToken creates a signed token for view
func (s *AuthService) GenerateToken(view string) (string, time.Time, error) {
	if err := ValidateViewLabel(view); err != nil {
		return "", time.Time{}, err
	}

	now := s.now()
	expiresAt := now.Add(s.tokenExpiry)
	claims := ViewClaims{
		View: view,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   view,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// ValidateToken verifies tokenString and returns its claims
func (s *AuthService) ValidateToken(tokenString string) (*ViewClaims, error) {
	claims := &ViewClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if err := ValidateViewLabel(claims.View); err != nil {
		return nil, err
	}
	return claims, nil
}

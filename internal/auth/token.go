package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/guard"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager signs and validates RS256 session tokens.
type TokenManager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	now        func() time.Time
}

func NewTokenManager(privateKey *rsa.PrivateKey, issuer string) *TokenManager {
	return &TokenManager{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		issuer:     issuer,
		now:        time.Now,
	}
}

// LoadPrivateKey reads a PEM-encoded RSA private key. When publicKeyPath is
// set, the public half must match it.
func LoadPrivateKey(privateKeyPath, publicKeyPath string) (*rsa.PrivateKey, error) {
	privPEM, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	if publicKeyPath == "" {
		return priv, nil
	}
	pubPEM, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	if !pub.Equal(&priv.PublicKey) {
		return nil, fmt.Errorf("public key does not match private key")
	}
	return priv, nil
}

// GenerateEphemeralKey creates an in-memory 2048-bit key for development.
// Tokens signed with it do not survive a restart.
func GenerateEphemeralKey() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return key, nil
}

// Sign turns policy claims into a signed JWT of the given type.
func (tm *TokenManager) Sign(sc guard.SessionClaims, tokenType string) (string, error) {
	claims := &models.TokenClaims{
		Type:      tokenType,
		SessionID: sc.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(sc.Subject, 10),
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(sc.IssuedAt),
			NotBefore: jwt.NewNumericDate(sc.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(sc.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(tm.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// SignPair signs the access and refresh claims issued for one session.
func (tm *TokenManager) SignPair(access, refresh guard.SessionClaims) (*models.TokenPair, error) {
	accessToken, err := tm.Sign(access, models.TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	refreshToken, err := tm.Sign(refresh, models.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(access.ExpiresAt.Sub(access.IssuedAt).Seconds()),
	}, nil
}

// ValidateToken verifies signature, issuer and expiry and returns the claims.
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			return tm.publicKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("invalid token: missing type or session")
	}
	if _, err := SubjectID(claims); err != nil {
		return nil, err
	}

	return claims, nil
}

// SubjectID parses the numeric account id out of the subject claim.
func SubjectID(claims *models.TokenClaims) (int64, error) {
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token subject: %w", err)
	}
	return id, nil
}

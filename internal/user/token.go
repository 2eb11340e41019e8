package user

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenName is stored with every token issued by login.
const tokenName = "auth-token"

// TokenSigner produces and verifies bearer secrets. A secret is an HS256 JWT
// whose jti is the access token id and whose sub is the owning user id. It
// carries no expiry; a token ends only when its row is revoked.
type TokenSigner struct {
	key    []byte
	issuer string
}

func NewTokenSigner(key, issuer string) (*TokenSigner, error) {
	if key == "" {
		return nil, errors.New("token signing key is empty")
	}
	return &TokenSigner{key: []byte(key), issuer: issuer}, nil
}

// Sign returns the bearer secret for token tokenID of user userID.
func (s *TokenSigner) Sign(userID, tokenID int64, issuedAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:   s.issuer,
		Subject:  strconv.FormatInt(userID, 10),
		ID:       strconv.FormatInt(tokenID, 10),
		IssuedAt: jwt.NewNumericDate(issuedAt),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Parse verifies raw and returns the user and token ids it names.
func (s *TokenSigner) Parse(raw string) (userID, tokenID int64, err error) {
	var claims jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(s.issuer))
	if err != nil {
		return 0, 0, err
	}
	userID, err = strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad subject: %w", err)
	}
	tokenID, err = strconv.ParseInt(claims.ID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad token id: %w", err)
	}
	return userID, tokenID, nil
}

// hashToken is the value persisted for a bearer secret.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

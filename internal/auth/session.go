// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/zerou/internal/config"
	"github.com/jason-s-yu/zerou/internal/models"
)

// ErrInvalidToken is returned for any seat token that does not verify.
var ErrInvalidToken = errors.New("invalid seat token")

// privateKey and publicKey sign and verify seat tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// TokenTTL is how long a seat token stays valid (0 => no exp claim).
	TokenTTL time.Duration
)

// SeatClaims binds a bearer to one seat of one relay room.
type SeatClaims struct {
	Room uuid.UUID   `json:"room"`
	Seat models.Seat `json:"seat"`
	jwt.RegisteredClaims
}

// parseTokenTTL reads SEAT_TOKEN_TTL ("never", "0" or a duration, default 2h).
func parseTokenTTL() error {
	ttl := config.GetEnv("SEAT_TOKEN_TTL", "2h")
	if ttl == "never" || ttl == "0" {
		TokenTTL = 0
		return nil
	}
	d, err := time.ParseDuration(ttl)
	if err != nil {
		return fmt.Errorf("failed to parse SEAT_TOKEN_TTL: %w", err)
	}
	TokenTTL = d
	return nil
}

// Init generates a fresh ed25519 key pair at runtime and sets the token lifetime.
func Init() error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return parseTokenTTL()
}

// InitFromPath reads raw ed25519 private/public keys from file and sets the token lifetime.
func InitFromPath(privatePath, publicPath string) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return fmt.Errorf("ed25519 key files have the wrong size")
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	return parseTokenTTL()
}

// CreateSeatToken signs a token for seat in room.
func CreateSeatToken(room uuid.UUID, seat models.Seat) (string, error) {
	if privateKey == nil {
		return "", fmt.Errorf("auth keys not initialized")
	}
	if !seat.Valid() {
		return "", fmt.Errorf("cannot issue token for seat %q", seat)
	}
	now := time.Now()
	claims := SeatClaims{
		Room: room,
		Seat: seat,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  room.String() + "/" + string(seat),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if TokenTTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(TokenTTL))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateSeatToken verifies tokenString and returns its claims.
func AuthenticateSeatToken(tokenString string) (*SeatClaims, error) {
	claims := &SeatClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !t.Valid || claims.Room == uuid.Nil || !claims.Seat.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

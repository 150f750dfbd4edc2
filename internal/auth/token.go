package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSessionToken is returned for tokens that fail verification
var ErrInvalidSessionToken = errors.New("invalid session token")

// Keyring holds the active Ed25519 signing key and the public keys of
// retired keys that are still accepted for verification.
type Keyring struct {
	activeID string
	active   ed25519.PrivateKey
	public   map[string]ed25519.PublicKey
}

// NewKeyring builds a keyring from base64 encoded 32 byte seeds. An empty
// active seed produces an ephemeral key, so sessions do not survive a restart.
func NewKeyring(activeSeed string, previousSeeds []string) (*Keyring, error) {
	kr := &Keyring{public: make(map[string]ed25519.PublicKey)}

	var priv ed25519.PrivateKey
	if activeSeed == "" {
		_, generated, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate session key: %w", err)
		}
		priv = generated
	} else {
		decoded, err := decodeSeed(activeSeed)
		if err != nil {
			return nil, fmt.Errorf("active session key: %w", err)
		}
		priv = decoded
	}
	kr.activeID = keyID(priv.Public().(ed25519.PublicKey))
	kr.active = priv
	kr.public[kr.activeID] = priv.Public().(ed25519.PublicKey)

	for i, seed := range previousSeeds {
		if seed == "" {
			continue
		}
		old, err := decodeSeed(seed)
		if err != nil {
			return nil, fmt.Errorf("previous session key %d: %w", i, err)
		}
		pub := old.Public().(ed25519.PublicKey)
		kr.public[keyID(pub)] = pub
	}
	return kr, nil
}

// ActiveKeyID returns the kid stamped on newly issued tokens
func (k *Keyring) ActiveKeyID() string {
	return k.activeID
}

func decodeSeed(s string) (ed25519.PrivateKey, error) {
	seed, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func keyID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}

// SessionClaims are the claims carried by the session cookie
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// SessionTokens issues and verifies signed session tokens
type SessionTokens struct {
	keys   *Keyring
	issuer string
	ttl    time.Duration
}

// NewSessionTokens creates a SessionTokens
func NewSessionTokens(keys *Keyring, issuer string, ttl time.Duration) *SessionTokens {
	return &SessionTokens{keys: keys, issuer: issuer, ttl: ttl}
}

// TTL returns how long issued tokens stay valid
func (s *SessionTokens) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token binding userID to sessionID
func (s *SessionTokens) Issue(userID, sessionID string, now time.Time) (string, time.Time, error) {
	expires := now.Add(s.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		SessionID: sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = s.keys.activeID
	signed, err := token.SignedString(s.keys.active)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks the signature, issuer and expiry of a token and returns its claims
func (s *SessionTokens) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		pub, ok := s.keys.public[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing subject or session", ErrInvalidSessionToken)
	}
	return claims, nil
}

// GenerateToken returns a hex encoded random token of n bytes
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken creates a SHA-256 hash of a token for secure storage.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

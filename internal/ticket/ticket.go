// Package ticket issues and checks the signed tokens players present when
// joining a game instance.
package ticket

import (
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"

	"github.com/mcoot/gamelobby-go/internal/dependencies/clock"
	"github.com/mcoot/gamelobby-go/internal/model"
)

// Issuer signs HS256 join tickets. An issuer without a secret is disabled:
// it issues empty tickets and accepts anything.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// New creates an issuer. ttl bounds how long a ticket stays usable.
func New(secret string, ttl time.Duration, clock clock.Clock) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clock,
	}
}

// Enabled reports whether tickets are signed and checked
func (i *Issuer) Enabled() bool {
	return i != nil && len(i.secret) > 0
}

// Issue returns a ticket for username to join roomID
func (i *Issuer) Issue(username string, roomID model.RoomID) (string, error) {
	if !i.Enabled() {
		return "", nil
	}
	claims := jwt.MapClaims{
		"sub":  username,
		"room": string(roomID),
		"iat":  i.clock.Now().Unix(),
		"exp":  i.clock.Now().Add(i.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify checks that token was issued for username and roomID and has not expired
func (i *Issuer) Verify(token, username string, roomID model.RoomID) error {
	if !i.Enabled() {
		return nil
	}
	if token == "" {
		return fmt.Errorf("%w: missing ticket", model.ErrInvalidTicket)
	}

	// Expiry is checked against the injected clock, not jwt's wall clock
	parser := jwt.Parser{SkipClaimsValidation: true}
	parsed, err := parser.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return fmt.Errorf("%w: %v", model.ErrInvalidTicket, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return model.ErrInvalidTicket
	}
	if !claims.VerifyExpiresAt(i.clock.Now().Unix(), true) {
		return fmt.Errorf("%w: expired", model.ErrInvalidTicket)
	}
	if sub, _ := claims["sub"].(string); sub != username {
		return fmt.Errorf("%w: issued to another user", model.ErrInvalidTicket)
	}
	if room, _ := claims["room"].(string); room != string(roomID) {
		return fmt.Errorf("%w: issued for another room", model.ErrInvalidTicket)
	}
	return nil
}

package cart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusActive, StatusLocked))
	assert.True(t, CanTransition(StatusActive, StatusConverted))
	assert.True(t, CanTransition(StatusActive, StatusExpired))
	assert.True(t, CanTransition(StatusLocked, StatusActive))
	assert.True(t, CanTransition(StatusLocked, StatusConverted))

	// CONVERTED dan EXPIRED terminal.
	assert.False(t, CanTransition(StatusConverted, StatusActive))
	assert.False(t, CanTransition(StatusConverted, StatusExpired))
	assert.False(t, CanTransition(StatusExpired, StatusActive))
	assert.False(t, CanTransition(StatusExpired, StatusConverted))
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(2*time.Minute)))

	// Tanpa expiry = tidak pernah expired.
	assert.False(t, (&Session{}).Expired(now))
}

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/zerou/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeatTokenRoundTrip(t *testing.T) {
	require.NoError(t, Init())
	room := uuid.New()

	tok, err := CreateSeatToken(room, models.SeatClient)
	require.NoError(t, err)
	claims, err := AuthenticateSeatToken(tok)
	require.NoError(t, err)
	assert.Equal(t, room, claims.Room)
	assert.Equal(t, models.SeatClient, claims.Seat)
	require.NotNil(t, claims.ExpiresAt)
}

func TestSeatTokenRejections(t *testing.T) {
	require.NoError(t, Init())
	_, err := CreateSeatToken(uuid.New(), models.Seat("spectator"))
	assert.Error(t, err)

	_, err = AuthenticateSeatToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	tok, err := CreateSeatToken(uuid.New(), models.SeatHost)
	require.NoError(t, err)
	// new keys invalidate old tokens
	require.NoError(t, Init())
	_, err = AuthenticateSeatToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, SeatClaims{Room: uuid.New(), Seat: models.SeatHost})
	forged, err := hs.SignedString([]byte("guess"))
	require.NoError(t, err)
	_, err = AuthenticateSeatToken(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSeatTokenExpiry(t *testing.T) {
	t.Setenv("SEAT_TOKEN_TTL", "1ms")
	require.NoError(t, Init())
	tok, err := CreateSeatToken(uuid.New(), models.SeatHost)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	_, err = AuthenticateSeatToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	t.Setenv("SEAT_TOKEN_TTL", "never")
	require.NoError(t, Init())
	tok, err = CreateSeatToken(uuid.New(), models.SeatHost)
	require.NoError(t, err)
	claims, err := AuthenticateSeatToken(tok)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
}

func TestRoomPassword(t *testing.T) {
	hash, err := HashRoomPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckRoomPassword("hunter2", hash))
	assert.False(t, CheckRoomPassword("hunter3", hash))
	assert.False(t, CheckRoomPassword("hunter2", "$argon2id$garbage"))

	open, err := HashRoomPassword("")
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.True(t, CheckRoomPassword("anything", open))

	_, _, _, err = DecodeHash("$argon2id$v=1$m=1,t=1,p=1$AA$AA")
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

package sensor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portunus/edge/internal/hw"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/sensor"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

func fixedClock() time.Time { return time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC) }

// ── Motion ───────────────────────────────────────────────────────────────────

func TestMotion_EdgesOnly(t *testing.T) {
	ctx := context.Background()
	pin := &hw.SimPin{}
	m := sensor.NewMotion(pin, fixedClock)

	ev, err := m.Poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, ev, "low level without a transition yields nothing")

	pin.SetLevel(true)
	ev, err = m.Poll(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, types.EventMotion, ev.Kind)
	assert.Equal(t, fixedClock(), ev.At)

	ev, err = m.Poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, ev, "held high is not a new event")

	pin.SetLevel(false)
	ev, err = m.Poll(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, types.EventMotionCleared, ev.Kind)
}

// ── Tag ──────────────────────────────────────────────────────────────────────

func TestTag_ReadsAndTracksSightings(t *testing.T) {
	ctx := context.Background()
	r := &hw.SimReader{}
	r.Push(
		hw.SimRead{UID: []byte{0x8e, 0x89, 0x39, 0x03, 0x3d}},
		hw.SimRead{UID: []byte{0x8e, 0x89, 0x39, 0x03, 0x3d}},
	)
	tag := sensor.NewTag(r, 0, fixedClock)

	ev, err := tag.Poll(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, types.EventTag, ev.Kind)
	assert.Equal(t, "8E8939033D", ev.UID)
	assert.True(t, ev.FirstSighting)

	ev, err = tag.Poll(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.False(t, ev.FirstSighting)

	ev, err = tag.Poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, ev, "empty antenna")

	assert.Equal(t, []string{"8E8939033D"}, tag.Seen())
}

func TestTag_DecodeFailureIsNotAnEvent(t *testing.T) {
	r := &hw.SimReader{}
	r.Push(hw.SimRead{Err: errors.New("anticollision failed")})
	tag := sensor.NewTag(r, 0, fixedClock)

	ev, err := tag.Poll(context.Background())
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, sensor.ErrDecode)
}

func TestTag_Closed(t *testing.T) {
	tag := sensor.NewTag(&hw.SimReader{}, 0, fixedClock)
	require.NoError(t, tag.Close())

	_, err := tag.Poll(context.Background())
	assert.ErrorIs(t, err, sensor.ErrClosed)
}

func TestFormatUID(t *testing.T) {
	assert.Equal(t, "0A0B00FF", sensor.FormatUID([]byte{0x0a, 0x0b, 0x00, 0xff}))
}

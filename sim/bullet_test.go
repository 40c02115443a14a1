package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBullet(t *testing.T) {
	b := NewBullet(0, BulletSpeed)
	assert.Equal(t, 0.0, b.X)
	assert.Equal(t, 0.0, b.Y)
	assert.InDelta(t, BulletSpeed, b.DX, 1e-12)
	assert.InDelta(t, 0, b.DY, 1e-12)

	b = NewBullet(90, BulletSpeed)
	assert.InDelta(t, 0, b.DX, 1e-12)
	assert.InDelta(t, BulletSpeed, b.DY, 1e-12)
}

func TestBulletTrackAdvance(t *testing.T) {
	track := NewBulletTrack(WorldBound)
	track.Spawn(180, BulletSpeed)

	track.Advance()
	track.Advance()

	require.Equal(t, 1, track.Len())
	b := track.At(0)
	assert.InDelta(t, -10, b.X, 1e-9)
	assert.InDelta(t, 0, b.Y, 1e-9)
}

func TestBulletTrackPrunesSameTick(t *testing.T) {
	track := NewBulletTrack(WorldBound)
	track.live = []Bullet{
		{X: 97, DX: 5},         // leaves this tick
		{X: 0, Y: 95, DY: 5},   // lands exactly on the bound
		{X: -50, Y: 10, DX: 1}, // stays
	}

	track.Advance()

	require.Equal(t, 1, track.Len())
	assert.Equal(t, -49.0, track.At(0).X)
	for _, b := range track.All() {
		assert.False(t, b.OutOfBounds(WorldBound))
	}
}

func TestBulletVelocityIsFixed(t *testing.T) {
	track := NewBulletTrack(WorldBound)
	track.Spawn(45, BulletSpeed)
	before := track.At(0)
	for i := 0; i < 5; i++ {
		track.Advance()
	}
	after := track.At(0)
	assert.Equal(t, before.DX, after.DX)
	assert.Equal(t, before.DY, after.DY)
	assert.InDelta(t, 5*before.DX, after.X, 1e-9)
}

func TestBulletTrackClear(t *testing.T) {
	track := NewBulletTrack(WorldBound)
	track.Spawn(0, BulletSpeed)
	track.Spawn(90, BulletSpeed)
	track.Clear()
	assert.Equal(t, 0, track.Len())
}

package sim

import "math"

const (
	BulletSpeed = 5.0   // world units/tick
	WorldBound  = 100.0 // bullets die at |x| or |y| >= WorldBound
)

// Bullet is a shot fired from the turret at the origin
type Bullet struct {
	X, Y   float64
	DX, DY float64
}

// NewBullet creates a bullet at the origin heading along aimDeg
func NewBullet(aimDeg, speed float64) Bullet {
	rad := Radians(aimDeg)
	return Bullet{
		DX: math.Cos(rad) * speed,
		DY: math.Sin(rad) * speed,
	}
}

// Update moves the bullet one tick
func (b *Bullet) Update() {
	b.X += b.DX
	b.Y += b.DY
}

// OutOfBounds reports whether the bullet has left the arena
func (b Bullet) OutOfBounds(bound float64) bool {
	return math.Abs(b.X) >= bound || math.Abs(b.Y) >= bound
}

// BulletTrack holds the bullets in flight
type BulletTrack struct {
	live  []Bullet
	bound float64
}

// NewBulletTrack creates an empty track pruning at bound
func NewBulletTrack(bound float64) *BulletTrack {
	return &BulletTrack{bound: bound}
}

// Spawn fires a bullet along aimDeg
func (t *BulletTrack) Spawn(aimDeg, speed float64) {
	t.live = append(t.live, NewBullet(aimDeg, speed))
}

// Advance moves every bullet, then drops the ones that left the arena this tick
func (t *BulletTrack) Advance() {
	kept := t.live[:0]
	for i := range t.live {
		t.live[i].Update()
		if !t.live[i].OutOfBounds(t.bound) {
			kept = append(kept, t.live[i])
		}
	}
	t.live = kept
}

// Clear removes every bullet
func (t *BulletTrack) Clear() {
	t.live = t.live[:0]
}

// Len returns the number of live bullets
func (t *BulletTrack) Len() int {
	return len(t.live)
}

// At returns a copy of bullet i
func (t *BulletTrack) At(i int) Bullet {
	return t.live[i]
}

// All returns a copy of the live bullets
func (t *BulletTrack) All() []Bullet {
	return append([]Bullet(nil), t.live...)
}

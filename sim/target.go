package sim

import (
	"math"
	"sort"
)

const (
	NumTargets      = 3
	TargetMinRadius = 40.0
	TargetMaxRadius = 80.0
	TargetMinSpeed  = 0.02 // radians/tick
	TargetMaxSpeed  = 0.08 // radians/tick
)

// Direction is the sense of a target's orbit
type Direction int

const (
	CounterClockwise Direction = -1
	Clockwise        Direction = 1
)

func (d Direction) String() string {
	if d == CounterClockwise {
		return "ccw"
	}
	return "cw"
}

// Target orbits the turret at a fixed radius and angular speed
type Target struct {
	Radius    float64
	Theta     float64 // accumulates without wrapping
	Speed     float64
	Direction Direction
}

// Position returns the target's world coordinates
func (t Target) Position() (x, y float64) {
	return t.Radius * math.Cos(t.Theta), t.Radius * math.Sin(t.Theta)
}

// Heading returns θ in degrees wrapped to [0, 360)
func (t Target) Heading() float64 {
	return NormalizeDegrees(Degrees(t.Theta))
}

// TargetSet is a fixed arena of target slots. Slots are addressed by stable
// index and respawn overwrites a slot in place.
type TargetSet struct {
	slots []Target
	rng   *Rand
}

// NewTargetSet creates an arena of n empty slots drawing spawns from rng
func NewTargetSet(n int, rng *Rand) *TargetSet {
	return &TargetSet{slots: make([]Target, n), rng: rng}
}

// Spawn draws a fresh target. It does not touch the arena.
func (s *TargetSet) Spawn() Target {
	radius := s.rng.Uniform(TargetMinRadius, TargetMaxRadius)
	theta := s.rng.Uniform(0, 2*math.Pi)
	speed := s.rng.Uniform(TargetMinSpeed, TargetMaxSpeed)
	return Target{
		Radius:    radius,
		Theta:     theta,
		Speed:     speed,
		Direction: Direction(s.rng.Sign()),
	}
}

// Fill respawns every slot in index order
func (s *TargetSet) Fill() {
	for i := range s.slots {
		s.slots[i] = s.Spawn()
	}
}

// Advance moves every target one tick along its orbit
func (s *TargetSet) Advance() {
	for i := range s.slots {
		t := &s.slots[i]
		t.Theta += float64(t.Direction) * t.Speed
	}
}

// Respawn replaces the targets at the given indices, highest index first
func (s *TargetSet) Respawn(indices []int) {
	order := append([]int(nil), indices...)
	sort.Sort(sort.Reverse(sort.IntSlice(order)))
	for _, i := range order {
		s.slots[i] = s.Spawn()
	}
}

// Len returns the number of slots
func (s *TargetSet) Len() int {
	return len(s.slots)
}

// At returns a copy of slot i
func (s *TargetSet) At(i int) Target {
	return s.slots[i]
}

// Set overwrites slot i
func (s *TargetSet) Set(i int, t Target) {
	s.slots[i] = t
}

// All returns a copy of every slot in storage order
func (s *TargetSet) All() []Target {
	return append([]Target(nil), s.slots...)
}

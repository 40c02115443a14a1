package sim

import (
	"fmt"

	"github.com/pkg/errors"
)

// ActionMode selects how actions are interpreted for the lifetime of an Env
type ActionMode int

const (
	ModeDiscrete ActionMode = iota
	ModeContinuous
)

func (m ActionMode) String() string {
	switch m {
	case ModeDiscrete:
		return "discrete"
	case ModeContinuous:
		return "continuous"
	}
	return fmt.Sprintf("ActionMode(%d)", int(m))
}

// ParseActionMode maps "discrete"/"continuous" to a mode
func ParseActionMode(s string) (ActionMode, error) {
	switch s {
	case "", "discrete":
		return ModeDiscrete, nil
	case "continuous":
		return ModeContinuous, nil
	}
	return 0, errors.Wrapf(ErrInvalidConfig, "unknown action mode %q", s)
}

// Action is either a discrete angle index or a continuous angle in degrees
type Action struct {
	mode  ActionMode
	index int
	deg   float64
}

// DiscreteAction picks entry i of the angle table
func DiscreteAction(i int) Action {
	return Action{mode: ModeDiscrete, index: i}
}

// ContinuousAngle aims at deg degrees; any value is accepted and wrapped
func ContinuousAngle(deg float64) Action {
	return Action{mode: ModeContinuous, deg: deg}
}

// Mode returns the variant of the action
func (a Action) Mode() ActionMode { return a.mode }

// Index returns the discrete index
func (a Action) Index() int { return a.index }

// Degrees returns the continuous angle
func (a Action) Degrees() float64 { return a.deg }

func (a Action) String() string {
	if a.mode == ModeDiscrete {
		return fmt.Sprintf("discrete(%d)", a.index)
	}
	return fmt.Sprintf("continuous(%g)", a.deg)
}

// AngleTable returns n evenly spaced angles covering [0, 360)
func AngleTable(n int) []float64 {
	angles := make([]float64, n)
	for i := range angles {
		angles[i] = float64(i) * 360 / float64(n)
	}
	return angles
}

// Turret holds the aim angle and turns actions into angles
type Turret struct {
	mode   ActionMode
	angles []float64
	Angle  float64 // degrees in [0, 360)
}

// NewTurret creates a turret; numAngles is ignored in continuous mode
func NewTurret(mode ActionMode, numAngles int) *Turret {
	t := &Turret{mode: mode}
	if mode == ModeDiscrete {
		t.angles = AngleTable(numAngles)
	}
	return t
}

// Angles returns a copy of the discrete angle table
func (t *Turret) Angles() []float64 {
	return append([]float64(nil), t.angles...)
}

// ResolveAim sets and returns the aim angle for an action
func (t *Turret) ResolveAim(a Action) (float64, error) {
	if a.mode != t.mode {
		return t.Angle, errors.Wrapf(ErrActionMismatch, "%s action on %s env", a.mode, t.mode)
	}
	if t.mode == ModeDiscrete {
		if a.index < 0 || a.index >= len(t.angles) {
			return t.Angle, errors.Wrapf(ErrInvalidActionIndex, "index %d outside [0, %d)", a.index, len(t.angles))
		}
		t.Angle = t.angles[a.index]
		return t.Angle, nil
	}
	t.Angle = NormalizeDegrees(a.deg)
	return t.Angle, nil
}

// AimDirect points the turret at deg without going through the action table
func (t *Turret) AimDirect(deg float64) float64 {
	t.Angle = NormalizeDegrees(deg)
	return t.Angle
}

// TickCooldown advances the clock's cooldown and reports the angle to fire at
// when a shot is due.
func (t *Turret) TickCooldown(c *Clock) (float64, bool) {
	if !c.TickCooldown() {
		return 0, false
	}
	return t.Angle, true
}

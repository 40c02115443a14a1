// Package sim is a deterministic turret-versus-orbiting-targets simulation
// driven one tick at a time by an external controller.
package sim

import "github.com/pkg/errors"

// Config selects how an Env interprets actions
type Config struct {
	Mode        ActionMode
	NumAngles   int   // discrete mode only
	Interactive bool  // allows ManualStep
	Seed        int64 // 0 seeds from the clock
}

// DefaultConfig returns a discrete four-angle env
func DefaultConfig() Config {
	return Config{Mode: ModeDiscrete, NumAngles: 4}
}

// Validate checks the config can build an Env
func (c Config) Validate() error {
	switch c.Mode {
	case ModeDiscrete:
		if c.NumAngles < 1 {
			return errors.Wrapf(ErrInvalidConfig, "discrete mode needs at least one angle, got %d", c.NumAngles)
		}
	case ModeContinuous:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown mode %d", int(c.Mode))
	}
	return nil
}

// Info is the per-call info record. It is empty and reserved for extension.
type Info struct{}

// StepResult is what Step hands back to the controller
type StepResult struct {
	Observation Observation
	Reward      int
	Terminated  bool // always false: the env never ends an episode itself
	Truncated   bool // always false: step budgets are the caller's concern
	Info        Info
}

// Snapshot is a read-only copy of the env state for presenters
type Snapshot struct {
	Tick        uint64
	Cooldown    int
	TurretAngle float64
	Targets     []Target
	Bullets     []Bullet
}

// Frame is delivered to observers after every Reset and Step
type Frame struct {
	Snapshot
	Observation Observation
	Reward      int
	HitTargets  []int
	Reset       bool
}

// Observer watches an Env. Observers run inline after each call and only
// ever see copies.
type Observer interface {
	ObserveFrame(Frame)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Frame)

// ObserveFrame calls f
func (f ObserverFunc) ObserveFrame(fr Frame) {
	if f != nil {
		f(fr)
	}
}

// Env is one simulation instance. It is not safe for concurrent use.
type Env struct {
	cfg       Config
	rng       *Rand
	targets   *TargetSet
	bullets   *BulletTrack
	turret    *Turret
	clock     Clock
	running   bool
	observers []Observer
}

// New builds an idle env; call Reset before Step
func New(cfg Config) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := NewRand(cfg.Seed)
	return &Env{
		cfg:     cfg,
		rng:     rng,
		targets: NewTargetSet(NumTargets, rng),
		bullets: NewBulletTrack(WorldBound),
		turret:  NewTurret(cfg.Mode, cfg.NumAngles),
		clock:   NewClock(CooldownThreshold),
	}, nil
}

// Config returns the construction config
func (e *Env) Config() Config { return e.cfg }

// Seed returns the seed the current stream was started from
func (e *Env) Seed() int64 { return e.rng.Seed() }

// Running reports whether Reset has been called
func (e *Env) Running() bool { return e.running }

// Tick returns the tick counter
func (e *Env) Tick() uint64 { return e.clock.Tick }

// TurretAngle returns the aim angle in degrees
func (e *Env) TurretAngle() float64 { return e.turret.Angle }

// Targets returns a copy of the targets in storage order
func (e *Env) Targets() []Target { return e.targets.All() }

// Bullets returns a copy of the live bullets
func (e *Env) Bullets() []Bullet { return e.bullets.All() }

// ActionSpace describes the accepted actions
func (e *Env) ActionSpace() ActionSpace {
	if e.cfg.Mode == ModeDiscrete {
		return ActionSpace{
			Mode:   e.cfg.Mode.String(),
			N:      e.cfg.NumAngles,
			Angles: e.turret.Angles(),
			Low:    0,
			High:   float64(e.cfg.NumAngles - 1),
		}
	}
	return ActionSpace{Mode: e.cfg.Mode.String(), Low: 0, High: 360}
}

// ObservationSpace describes the observation bounds
func (e *Env) ObservationSpace() Box {
	return ObservationSpace(e.targets.Len())
}

// Observe registers an observer
func (e *Env) Observe(o Observer) {
	e.observers = append(e.observers, o)
}

// Reset starts a new episode continuing the current random stream
func (e *Env) Reset() (Observation, Info) {
	e.targets.Fill()
	e.turret.Angle = 0
	e.clock.Reset()
	e.bullets.Clear()
	e.running = true

	obs := Encode(e.targets)
	e.notify(Frame{Observation: obs, Reset: true})
	return obs, Info{}
}

// ResetWithSeed reseeds the random stream, then resets
func (e *Env) ResetWithSeed(seed int64) (Observation, Info) {
	e.rng.Reseed(seed)
	return e.Reset()
}

// Step advances one tick with the controller's action
func (e *Env) Step(a Action) (StepResult, error) {
	if !e.running {
		return StepResult{}, ErrNotReset
	}
	// a rejected action must leave the clock untouched
	if _, err := e.turret.ResolveAim(a); err != nil {
		return StepResult{}, err
	}
	return e.advance(), nil
}

// ManualStep advances one tick aiming straight at aimDeg. It exists for
// human input and fails unless the env was built interactive.
func (e *Env) ManualStep(aimDeg float64) (StepResult, error) {
	if !e.cfg.Interactive {
		return StepResult{}, ErrInvalidModeUsage
	}
	if !e.running {
		return StepResult{}, ErrNotReset
	}
	e.turret.AimDirect(aimDeg)
	return e.advance(), nil
}

// advance runs one tick after the aim for it has been set
func (e *Env) advance() StepResult {
	e.clock.Advance()
	e.targets.Advance()
	// bullets move before the spawn check so a new bullet sits still on its first tick
	e.bullets.Advance()
	if angle, fire := e.turret.TickCooldown(&e.clock); fire {
		e.bullets.Spawn(angle, BulletSpeed)
	}

	report := Resolve(e.targets, e.bullets, HitRadius)
	if report.Hits > 0 {
		e.targets.Respawn(report.Targets)
	}

	obs := Encode(e.targets)
	e.notify(Frame{Observation: obs, Reward: report.Hits, HitTargets: report.Targets})
	return StepResult{Observation: obs, Reward: report.Hits}
}

// Snapshot copies the current state
func (e *Env) Snapshot() Snapshot {
	return Snapshot{
		Tick:        e.clock.Tick,
		Cooldown:    e.clock.Cooldown,
		TurretAngle: e.turret.Angle,
		Targets:     e.targets.All(),
		Bullets:     e.bullets.All(),
	}
}

func (e *Env) notify(fr Frame) {
	if len(e.observers) == 0 {
		return
	}
	fr.Snapshot = e.Snapshot()
	for _, o := range e.observers {
		// each observer gets its own copy of the vector
		f := fr
		f.Observation = append(Observation(nil), fr.Observation...)
		o.ObserveFrame(f)
	}
}

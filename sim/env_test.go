package sim

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv(t *testing.T, cfg Config) *Env {
	t.Helper()
	env, err := New(cfg)
	require.NoError(t, err)
	return env
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Mode: ModeDiscrete, NumAngles: 0})
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = New(Config{Mode: ActionMode(7)})
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = New(Config{Mode: ModeContinuous})
	assert.NoError(t, err)
}

func TestStepBeforeReset(t *testing.T) {
	env := newEnv(t, DefaultConfig())
	_, err := env.Step(DiscreteAction(0))
	assert.True(t, errors.Is(err, ErrNotReset))
	assert.False(t, env.Running())
}

func TestResetState(t *testing.T) {
	env := newEnv(t, Config{Mode: ModeContinuous, Seed: 5})
	env.Reset()
	for i := 0; i < 45; i++ {
		_, err := env.Step(ContinuousAngle(123))
		require.NoError(t, err)
	}
	require.NotEmpty(t, env.Bullets())

	obs, info := env.Reset()

	assert.Len(t, obs, 15)
	assert.Equal(t, Info{}, info)
	assert.Equal(t, uint64(0), env.Tick())
	assert.Equal(t, 0.0, env.TurretAngle())
	assert.Empty(t, env.Bullets())
	assert.Equal(t, 0, env.Snapshot().Cooldown)
	assert.Len(t, env.Targets(), NumTargets)
}

func TestObservationShapeAndCount(t *testing.T) {
	env := newEnv(t, Config{Mode: ModeDiscrete, NumAngles: 16, Seed: 9})
	obs, _ := env.Reset()
	require.Len(t, obs, 15)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		res, err := env.Step(DiscreteAction(rng.Intn(16)))
		require.NoError(t, err)
		assert.Len(t, res.Observation, 15)
		assert.Len(t, env.Targets(), NumTargets)
		assert.GreaterOrEqual(t, res.Reward, 0)
		assert.False(t, res.Terminated)
		assert.False(t, res.Truncated)
		assert.True(t, env.ObservationSpace().Contains(res.Observation), "tick %d: %v", i+1, res.Observation)
	}
}

func TestBulletsStayInsideArena(t *testing.T) {
	env := newEnv(t, Config{Mode: ModeContinuous, Seed: 4})
	env.Reset()
	for i := 0; i < 600; i++ {
		_, err := env.Step(ContinuousAngle(float64(i * 7)))
		require.NoError(t, err)
		for _, b := range env.Bullets() {
			assert.False(t, b.OutOfBounds(WorldBound), "tick %d bullet %+v", i+1, b)
		}
	}
}

func TestCooldownPeriodicity(t *testing.T) {
	env := newEnv(t, Config{Mode: ModeDiscrete, NumAngles: 4, Seed: 21})
	env.Reset()

	var spawnTicks []uint64
	for i := 0; i < 120; i++ {
		_, err := env.Step(DiscreteAction(i % 4))
		require.NoError(t, err)
		// only a bullet spawned this tick is still at the origin
		for _, b := range env.Bullets() {
			if b.X == 0 && b.Y == 0 {
				spawnTicks = append(spawnTicks, env.Tick())
			}
		}
	}
	assert.Equal(t, []uint64{30, 60, 90, 120}, spawnTicks)
}

func TestDiscreteZeroFiresAlongX(t *testing.T) {
	env := newEnv(t, Config{Mode: ModeDiscrete, NumAngles: 4, Seed: 8})
	env.Reset()

	for i := 0; i < 29; i++ {
		_, err := env.Step(DiscreteAction(0))
		require.NoError(t, err)
		assert.Empty(t, env.Bullets())
	}

	for k := 0; k < 20; k++ {
		_, err := env.Step(DiscreteAction(0))
		require.NoError(t, err)
		bullets := env.Bullets()
		require.Len(t, bullets, 1, "tick %d", env.Tick())
		assert.InDelta(t, 5*float64(k), bullets[0].X, 1e-9)
		assert.InDelta(t, 0, bullets[0].Y, 1e-9)
	}

	// the step that takes it to x=100 removes it
	_, err := env.Step(DiscreteAction(0))
	require.NoError(t, err)
	assert.Empty(t, env.Bullets())
}

func TestContinuousAimWraps(t *testing.T) {
	env := newEnv(t, Config{Mode: ModeContinuous, Seed: 3})
	env.Reset()
	_, err := env.Step(ContinuousAngle(450))
	require.NoError(t, err)
	assert.Equal(t, 90.0, env.TurretAngle())

	_, err = env.Step(ContinuousAngle(-10))
	require.NoError(t, err)
	assert.Equal(t, 350.0, env.TurretAngle())
}

func TestAimChangeAffectsSameTickShot(t *testing.T) {
	env := newEnv(t, Config{Mode: ModeDiscrete, NumAngles: 4, Seed: 2})
	env.Reset()
	for i := 0; i < 29; i++ {
		_, err := env.Step(DiscreteAction(0))
		require.NoError(t, err)
	}
	_, err := env.Step(DiscreteAction(1))
	require.NoError(t, err)

	_, err = env.Step(DiscreteAction(1))
	require.NoError(t, err)
	bullets := env.Bullets()
	require.Len(t, bullets, 1)
	assert.InDelta(t, 0, bullets[0].X, 1e-9)
	assert.InDelta(t, 5, bullets[0].Y, 1e-9)
}

func TestInvalidActionLeavesStateUntouched(t *testing.T) {
	env := newEnv(t, Config{Mode: ModeDiscrete, NumAngles: 4, Seed: 2})
	env.Reset()
	before := env.Snapshot()

	_, err := env.Step(DiscreteAction(4))
	assert.True(t, errors.Is(err, ErrInvalidActionIndex))
	_, err = env.Step(ContinuousAngle(10))
	assert.True(t, errors.Is(err, ErrActionMismatch))

	assert.Equal(t, before, env.Snapshot())
}

func TestHitScoresAndRespawns(t *testing.T) {
	env := newEnv(t, Config{Mode: ModeDiscrete, NumAngles: 4, Seed: 13})
	env.Reset()

	sitting := Target{Radius: 3, Theta: 0, Speed: 0, Direction: Clockwise}
	env.targets.Set(0, sitting)
	env.bullets.live = []Bullet{{X: 0, Y: 0}}

	res, err := env.Step(DiscreteAction(0))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.Reward, 1)
	after := env.Targets()[0]
	assert.NotEqual(t, sitting.Radius, after.Radius)
	assert.NotEqual(t, sitting.Theta, after.Theta)
	assert.Len(t, env.Targets(), NumTargets)
	assert.Len(t, env.Bullets(), 1, "the scoring bullet keeps flying")
}

func TestSeededEpisodesAreReproducible(t *testing.T) {
	run := func() []Observation {
		env := newEnv(t, Config{Mode: ModeDiscrete, NumAngles: 8, Seed: 42})
		obs, _ := env.Reset()
		out := []Observation{obs}
		for i := 0; i < 300; i++ {
			res, err := env.Step(DiscreteAction((i / 10) % 8))
			require.NoError(t, err)
			out = append(out, res.Observation)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestResetWithSeed(t *testing.T) {
	env := newEnv(t, DefaultConfig())
	first, _ := env.ResetWithSeed(77)
	_, _ = env.Reset()
	again, _ := env.ResetWithSeed(77)
	assert.Equal(t, first, again)
	assert.Equal(t, int64(77), env.Seed())
}

func TestManualStepRequiresInteractive(t *testing.T) {
	env := newEnv(t, DefaultConfig())
	env.Reset()
	_, err := env.ManualStep(45)
	assert.True(t, errors.Is(err, ErrInvalidModeUsage))
	assert.Equal(t, uint64(0), env.Tick())
}

func TestManualStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interactive = true
	env := newEnv(t, cfg)

	_, err := env.ManualStep(10)
	assert.True(t, errors.Is(err, ErrNotReset))

	env.Reset()
	res, err := env.ManualStep(-45)
	require.NoError(t, err)
	assert.Len(t, res.Observation, 15)
	assert.Equal(t, 315.0, env.TurretAngle())
	assert.Equal(t, uint64(1), env.Tick())
}

func TestObserversSeeCopies(t *testing.T) {
	env := newEnv(t, Config{Mode: ModeDiscrete, NumAngles: 4, Seed: 6})
	var frames []Frame
	env.Observe(ObserverFunc(func(f Frame) {
		f.Observation[0] = 9999
		frames = append(frames, f)
	}))

	obs, _ := env.Reset()
	res, err := env.Step(DiscreteAction(2))
	require.NoError(t, err)

	require.Len(t, frames, 2)
	assert.True(t, frames[0].Reset)
	assert.False(t, frames[1].Reset)
	assert.Equal(t, uint64(1), frames[1].Tick)
	assert.Equal(t, 180.0, frames[1].TurretAngle)
	assert.NotEqual(t, float32(9999), obs[0])
	assert.NotEqual(t, float32(9999), res.Observation[0])
}

func TestActionSpace(t *testing.T) {
	env := newEnv(t, Config{Mode: ModeDiscrete, NumAngles: 4})
	space := env.ActionSpace()
	assert.Equal(t, "discrete", space.Mode)
	assert.Equal(t, 4, space.N)
	assert.Equal(t, []float64{0, 90, 180, 270}, space.Angles)

	env = newEnv(t, Config{Mode: ModeContinuous})
	space = env.ActionSpace()
	assert.Equal(t, "continuous", space.Mode)
	assert.Equal(t, 360.0, space.High)
}

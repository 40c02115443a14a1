package main

import (
	"fmt"
	"io"

	"github.com/ttacon/chalk"

	"turret-env-server/sim"
)

// rolloutResult is the outcome of a batch of random-policy episodes
type rolloutResult struct {
	Seed    int64
	Mode    sim.ActionMode
	Steps   int
	Returns []int
}

// Mean returns the average episode return
func (r rolloutResult) Mean() float64 {
	if len(r.Returns) == 0 {
		return 0
	}
	total := 0
	for _, ret := range r.Returns {
		total += ret
	}
	return float64(total) / float64(len(r.Returns))
}

// randomAction samples uniformly from the env's action space
func randomAction(rng *sim.Rand, cfg sim.Config) sim.Action {
	if cfg.Mode == sim.ModeContinuous {
		return sim.ContinuousAngle(rng.Uniform(0, 360))
	}
	return sim.DiscreteAction(rng.Intn(cfg.NumAngles))
}

// rollout runs episodes of steps random actions each. The policy draws
// from its own stream seeded alongside the env so runs repeat exactly.
func rollout(cfg sim.Config, episodes, steps int) (rolloutResult, error) {
	env, err := sim.New(cfg)
	if err != nil {
		return rolloutResult{}, err
	}
	policy := sim.NewRand(env.Seed() + 1)

	res := rolloutResult{Seed: env.Seed(), Mode: cfg.Mode, Steps: steps}
	for ep := 0; ep < episodes; ep++ {
		env.Reset()
		ret := 0
		for i := 0; i < steps; i++ {
			out, err := env.Step(randomAction(policy, cfg))
			if err != nil {
				return res, err
			}
			ret += out.Reward
		}
		res.Returns = append(res.Returns, ret)
	}
	return res, nil
}

func printRollout(w io.Writer, res rolloutResult) {
	fmt.Fprintf(w, "%s seed=%d mode=%s steps=%d\n",
		chalk.Bold.TextStyle("rollout"), res.Seed, res.Mode, res.Steps)
	best := 0
	for _, ret := range res.Returns {
		if ret > best {
			best = ret
		}
	}
	for i, ret := range res.Returns {
		color := chalk.Yellow
		switch {
		case ret == 0:
			color = chalk.Red
		case ret == best:
			color = chalk.Green
		}
		fmt.Fprintf(w, "  episode %3d  reward %s\n", i+1, color.Color(fmt.Sprint(ret)))
	}
	fmt.Fprintf(w, "  mean %s\n", chalk.Cyan.Color(fmt.Sprintf("%.2f", res.Mean())))
}

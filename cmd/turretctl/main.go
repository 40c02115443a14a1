package main

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"turret-env-server/sim"
)

func main() {
	app := makeApp()
	if err := app.Run(os.Args); err != nil {
		log.Fatal("turretctl", "err", err)
	}
}

func envFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "mode", Value: "discrete", Usage: "Action mode: discrete or continuous"},
		cli.IntFlag{Name: "angles", Value: 4, Usage: "Number of aim angles in discrete mode"},
		cli.Int64Flag{Name: "seed", Value: 0, Usage: "Random seed, 0 seeds from the clock"},
	}
}

func makeApp() *cli.App {
	app := cli.NewApp()
	app.Name = "turretctl"
	app.Usage = "Play or roll out the turret range env locally"

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "log-level", Value: "info", Usage: "Log level (debug, info, warn, error)"},
	}
	app.Before = func(c *cli.Context) error {
		level, err := log.ParseLevel(c.GlobalString("log-level"))
		if err != nil {
			return errors.Wrap(err, "log level")
		}
		log.SetLevel(level)
		log.SetReportTimestamp(false)
		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:    "play",
			Aliases: []string{"p"},
			Usage:   "Watch the env in the terminal and aim with the mouse",
			Flags: append(envFlags(),
				cli.BoolFlag{Name: "auto", Usage: "Drive random actions instead of aiming at the mouse"},
				cli.BoolFlag{Name: "mute", Usage: "Disable the hit chirp"},
				cli.IntFlag{Name: "tps", Value: 30, Usage: "Steps per second"},
			),
			Action: func(c *cli.Context) error {
				cfg, err := envConfig(c)
				if err != nil {
					return err
				}
				auto := c.Bool("auto")
				cfg.Interactive = !auto
				tps := c.Int("tps")
				if tps < 1 {
					return errors.New("tps must be positive")
				}
				return playAction(cfg, auto, c.Bool("mute"), time.Second/time.Duration(tps))
			},
		},
		{
			Name:    "rollout",
			Aliases: []string{"r"},
			Usage:   "Run random-policy episodes and print their returns",
			Flags: append(envFlags(),
				cli.IntFlag{Name: "episodes", Value: 5, Usage: "Number of episodes"},
				cli.IntFlag{Name: "steps", Value: 1000, Usage: "Steps per episode"},
			),
			Action: func(c *cli.Context) error {
				cfg, err := envConfig(c)
				if err != nil {
					return err
				}
				episodes, steps := c.Int("episodes"), c.Int("steps")
				if episodes < 1 || steps < 1 {
					return errors.New("episodes and steps must be positive")
				}
				res, err := rollout(cfg, episodes, steps)
				if err != nil {
					return err
				}
				printRollout(os.Stdout, res)
				return nil
			},
		},
	}
	return app
}

// envConfig builds the env config from the shared flags
func envConfig(c *cli.Context) (sim.Config, error) {
	mode, err := sim.ParseActionMode(c.String("mode"))
	if err != nil {
		return sim.Config{}, err
	}
	cfg := sim.Config{
		Mode:      mode,
		NumAngles: c.Int("angles"),
		Seed:      c.Int64("seed"),
	}
	return cfg, cfg.Validate()
}

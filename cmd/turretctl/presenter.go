package main

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"turret-env-server/sim"
)

const (
	statusRows = 1
	aimDots    = 4
	aimSpacing = 12.0 // world units between aim dots
)

var (
	styleTurret  = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
	styleAim     = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleCW      = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleCCW     = tcell.StyleDefault.Foreground(tcell.ColorFuchsia)
	styleBullet  = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleBorder  = tcell.StyleDefault.Foreground(tcell.ColorDarkSlateGray)
	styleStatus  = tcell.StyleDefault.Foreground(tcell.ColorSilver)
	styleHitFlag = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
)

// chirper plays a short tone on hits
type chirper struct {
	ok bool
	sr beep.SampleRate
}

func newChirper(mute bool) *chirper {
	if mute {
		return &chirper{}
	}
	sr := beep.SampleRate(44100)
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		// Non-fatal, play runs without sound
		log.Warn("audio unavailable", "err", err)
		return &chirper{}
	}
	return &chirper{ok: true, sr: sr}
}

func (c *chirper) Play() {
	if !c.ok {
		return
	}
	sine, err := generators.SineTone(c.sr, 880)
	if err != nil {
		return
	}
	speaker.Play(beep.Take(c.sr.N(50*time.Millisecond), sine))
}

func (c *chirper) Close() {
	if c.ok {
		speaker.Close()
	}
}

// presenter draws env snapshots to a terminal and turns mouse input into
// manual aim. It never mutates env state except through Reset and the
// step calls.
type presenter struct {
	screen tcell.Screen
	env    *sim.Env
	auto   bool
	policy *sim.Rand
	onHit  func()

	width, height int
	mouseX        int
	mouseY        int
	hasMouse      bool
	hits          int
	lastHit       uint64
}

func newPresenter(screen tcell.Screen, env *sim.Env, auto bool, onHit func()) *presenter {
	p := &presenter{
		screen: screen,
		env:    env,
		auto:   auto,
		policy: sim.NewRand(env.Seed() + 1),
		onHit:  onHit,
	}
	p.width, p.height = screen.Size()
	return p
}

// scale returns cells per world unit on each axis
func (p *presenter) scale() (sx, sy float64) {
	span := 2 * sim.WorldBound
	return float64(p.width-1) / span, float64(p.height-statusRows-1) / span
}

// toCell maps world coordinates to a screen cell, y pointing up
func (p *presenter) toCell(x, y float64) (int, int) {
	sx, sy := p.scale()
	col := int(math.Round((x + sim.WorldBound) * sx))
	row := int(math.Round((sim.WorldBound - y) * sy))
	return col, row
}

// toWorld is the inverse of toCell
func (p *presenter) toWorld(col, row int) (float64, float64) {
	sx, sy := p.scale()
	return float64(col)/sx - sim.WorldBound, sim.WorldBound - float64(row)/sy
}

// step advances the env by one tick with the current input
func (p *presenter) step() error {
	var (
		res sim.StepResult
		err error
	)
	switch {
	case p.auto:
		res, err = p.env.Step(randomAction(p.policy, p.env.Config()))
	case p.hasMouse:
		wx, wy := p.toWorld(p.mouseX, p.mouseY)
		res, err = p.env.ManualStep(sim.AimAt(wx, wy))
	default:
		res, err = p.env.ManualStep(p.env.TurretAngle())
	}
	if err != nil {
		return err
	}
	if res.Reward > 0 {
		p.hits += res.Reward
		p.lastHit = p.env.Tick()
		if p.onHit != nil {
			p.onHit()
		}
	}
	return nil
}

// handleEvent applies one terminal event; false means quit
func (p *presenter) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return p.handleKey(ev.Key(), ev.Rune())
	case *tcell.EventMouse:
		x, y := ev.Position()
		p.handleMouse(x, y)
	case *tcell.EventResize:
		p.width, p.height = p.screen.Size()
		p.screen.Sync()
	}
	return true
}

func (p *presenter) handleKey(key tcell.Key, r rune) bool {
	switch {
	case key == tcell.KeyEscape || key == tcell.KeyCtrlC:
		return false
	case key == tcell.KeyRune && r == 'q':
		return false
	case key == tcell.KeyRune && r == 'r':
		p.env.Reset()
		p.hits = 0
		p.lastHit = 0
	}
	return true
}

func (p *presenter) handleMouse(x, y int) {
	p.mouseX, p.mouseY = x, y
	p.hasMouse = true
}

func (p *presenter) setCell(col, row int, r rune, style tcell.Style) {
	if col < 0 || row < 0 || col >= p.width || row >= p.height-statusRows {
		return
	}
	p.screen.SetContent(col, row, r, nil, style)
}

// draw renders one snapshot
func (p *presenter) draw(snap sim.Snapshot) {
	p.screen.Clear()

	// arena corners
	left, top := p.toCell(-sim.WorldBound, sim.WorldBound)
	right, bottom := p.toCell(sim.WorldBound, -sim.WorldBound)
	p.setCell(left, top, '┌', styleBorder)
	p.setCell(right, top, '┐', styleBorder)
	p.setCell(left, bottom, '└', styleBorder)
	p.setCell(right, bottom, '┘', styleBorder)

	cx, cy := p.toCell(0, 0)
	rad := sim.Radians(snap.TurretAngle)
	for i := 1; i <= aimDots; i++ {
		d := float64(i) * aimSpacing
		col, row := p.toCell(math.Cos(rad)*d, math.Sin(rad)*d)
		if col != cx || row != cy {
			p.setCell(col, row, '·', styleAim)
		}
	}

	for _, b := range snap.Bullets {
		col, row := p.toCell(b.X, b.Y)
		p.setCell(col, row, '*', styleBullet)
	}
	for _, t := range snap.Targets {
		style := styleCW
		if t.Direction == sim.CounterClockwise {
			style = styleCCW
		}
		col, row := p.toCell(t.Position())
		p.setCell(col, row, 'O', style)
	}
	p.setCell(cx, cy, '@', styleTurret)

	control := "mouse"
	if p.auto {
		control = "auto"
	}
	status := fmt.Sprintf(" tick %d  cd %2d  aim %6.1f°  hits %d  [%s]  r reset  q quit",
		snap.Tick, snap.Cooldown, snap.TurretAngle, p.hits, control)
	style := styleStatus
	if p.lastHit != 0 && snap.Tick-p.lastHit < 10 {
		style = styleHitFlag
	}
	row := p.height - statusRows
	for i, r := range []rune(status) {
		if i >= p.width {
			break
		}
		p.screen.SetContent(i, row, r, nil, style)
	}
	p.screen.Show()
}

// run drives the env at one step per tick until the user quits
func (p *presenter) run(tick time.Duration) error {
	p.env.Reset()
	p.draw(p.env.Snapshot())

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := p.screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			events <- ev
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok || !p.handleEvent(ev) {
				return nil
			}
		case <-ticker.C:
			if err := p.step(); err != nil {
				return err
			}
			p.draw(p.env.Snapshot())
		}
	}
}

func playAction(cfg sim.Config, auto, mute bool, tick time.Duration) error {
	env, err := sim.New(cfg)
	if err != nil {
		return err
	}

	log.Debug("play", "seed", env.Seed(), "mode", cfg.Mode, "auto", auto)
	sound := newChirper(mute)
	defer sound.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	screen.EnableMouse(tcell.MouseMotionEvents)
	defer screen.Fini()

	return newPresenter(screen, env, auto, sound.Play).run(tick)
}

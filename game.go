package main

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"turret-env-server/sim"
)

const (
	maxWatchersPerSession = 32
	maxStepsLimit         = 1_000_000
)

var (
	errSessionClosed = errors.New("session closed")
	errEpisodeOver   = errors.New("episode truncated, reset required")
	errSessionFull   = errors.New("too many spectators")
)

// Broadcaster interface for sending messages to clients
type Broadcaster interface {
	SendJSON(msg interface{})
}

// EpisodeSink receives recorded steps and finished episodes
type EpisodeSink interface {
	RecordTransition(Transition)
	RecordEpisode(Episode)
}

// FrameMirror publishes spectator frames outside the process
type FrameMirror interface {
	MirrorFrame(sid string, f FrameMsg)
	Forget(sid string)
}

// GameOptions configures one session's env
type GameOptions struct {
	Config   sim.Config
	MaxSteps int  // 0 = no step budget
	Binary   bool // obs/step replies as msgpack
}

// Game owns the env of one session and fans frames out to spectators
type Game struct {
	mu       sync.Mutex
	sid      string
	opts     GameOptions
	env      *sim.Env
	episode  *Episode
	ownerID  int64
	watchers map[Broadcaster]bool
	sink     EpisodeSink
	mirror   FrameMirror
	closed   bool
}

// NewGame creates a Game; sink and mirror may be nil
func NewGame(sid string, opts GameOptions, sink EpisodeSink, mirror FrameMirror) (*Game, error) {
	if opts.MaxSteps < 0 || opts.MaxSteps > maxStepsLimit {
		return nil, errors.Errorf("max_steps must be in [0, %d]", maxStepsLimit)
	}
	env, err := sim.New(opts.Config)
	if err != nil {
		return nil, err
	}
	g := &Game{
		sid:      sid,
		opts:     opts,
		env:      env,
		watchers: make(map[Broadcaster]bool),
		sink:     sink,
		mirror:   mirror,
	}
	env.Observe(sim.ObserverFunc(g.onFrame))
	return g, nil
}

// SetOwner links the controlling account to future episodes
func (g *Game) SetOwner(controllerID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ownerID = controllerID
}

// Options returns the options the game was built with
func (g *Game) Options() GameOptions {
	return g.opts
}

// Spaces returns the action and observation spaces
func (g *Game) Spaces() (sim.ActionSpace, sim.Box) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.env.ActionSpace(), g.env.ObservationSpace()
}

// AddWatcher attaches a spectator
func (g *Game) AddWatcher(b Broadcaster) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return errSessionClosed
	}
	if len(g.watchers) >= maxWatchersPerSession {
		return errSessionFull
	}
	g.watchers[b] = true
	return nil
}

// RemoveWatcher detaches a spectator
func (g *Game) RemoveWatcher(b Broadcaster) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.watchers, b)
}

// WatcherCount returns the number of spectators
func (g *Game) WatcherCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.watchers)
}

// Tick returns the env tick
func (g *Game) Tick() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.env.Tick()
}

// Reset finishes the running episode, if any, and starts a new one.
// A nil seed continues the random stream.
func (g *Game) Reset(seed *int64) (ObsMsg, *Episode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ObsMsg{}, nil, errSessionClosed
	}

	finished := g.finishLocked(EndReset)
	var obs sim.Observation
	if seed != nil {
		obs, _ = g.env.ResetWithSeed(*seed)
	} else {
		obs, _ = g.env.Reset()
	}
	g.episode = NewEpisode(g.sid, g.ownerID, g.opts.Config.Mode.String(), g.env.Seed())
	return ObsMsg{Episode: g.episode.ID, Seed: g.episode.Seed, Observation: obs}, finished, nil
}

// Step applies one controller action
func (g *Game) Step(a sim.Action) (StepResultMsg, *Episode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.canStepLocked(); err != nil {
		return StepResultMsg{}, nil, err
	}
	res, err := g.env.Step(a)
	if err != nil {
		return StepResultMsg{}, nil, err
	}
	return g.afterStepLocked(res, a.String())
}

// Manual aims at the point (mx, my) relative to the turret and steps
func (g *Game) Manual(mx, my float64) (StepResultMsg, *Episode, error) {
	return g.ManualDegrees(sim.AimAt(mx, my))
}

// ManualDegrees aims straight at deg and steps
func (g *Game) ManualDegrees(deg float64) (StepResultMsg, *Episode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.canStepLocked(); err != nil {
		return StepResultMsg{}, nil, err
	}
	res, err := g.env.ManualStep(deg)
	if err != nil {
		return StepResultMsg{}, nil, err
	}
	return g.afterStepLocked(res, fmt.Sprintf("manual(%g)", sim.NormalizeDegrees(deg)))
}

// Close finishes the running episode and stops accepting commands
func (g *Game) Close(reason string) *Episode {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	finished := g.finishLocked(reason)
	g.closed = true
	if g.mirror != nil {
		g.mirror.Forget(g.sid)
	}
	return finished
}

// Closed reports whether Close was called
func (g *Game) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *Game) canStepLocked() error {
	if g.closed {
		return errSessionClosed
	}
	if g.episode != nil && g.episode.Done() {
		return errEpisodeOver
	}
	return nil
}

func (g *Game) afterStepLocked(res sim.StepResult, action string) (StepResultMsg, *Episode, error) {
	g.episode.Add(res.Reward)
	msg := StepResultMsg{
		Observation: res.Observation,
		Reward:      res.Reward,
		Terminated:  res.Terminated,
		Truncated:   res.Truncated,
		Tick:        g.env.Tick(),
		Return:      g.episode.Return,
	}
	if g.sink != nil {
		g.sink.RecordTransition(Transition{
			EpisodeID: g.episode.ID,
			Tick:      msg.Tick,
			Action:    action,
			Reward:    res.Reward,
			Obs:       res.Observation,
		})
	}

	var finished *Episode
	if g.opts.MaxSteps > 0 && g.episode.Steps >= g.opts.MaxSteps {
		msg.Truncated = true
		finished = g.finishLocked(EndTruncated)
	}
	return msg, finished, nil
}

// finishLocked closes the running episode and returns a copy of it
func (g *Game) finishLocked(reason string) *Episode {
	if g.episode == nil || g.episode.Done() {
		return nil
	}
	g.episode.Finish(reason)
	ep := *g.episode
	if g.sink != nil {
		g.sink.RecordEpisode(ep)
	}
	log.Debug("episode finished", "sid", g.sid, "ep", ep.ID, "steps", ep.Steps, "return", ep.Return, "reason", reason, "took", ep.Duration())
	g.broadcastMsg(Envelope{T: MsgEpisode, Data: ep.ToMsg()})
	return &ep
}

// onFrame runs inline under g.mu after every env reset and step
func (g *Game) onFrame(f sim.Frame) {
	frame := frameFromSim(g.sid, f)
	if g.mirror != nil {
		g.mirror.MirrorFrame(g.sid, frame)
	}
	if len(g.watchers) == 0 {
		return
	}
	g.broadcastState(frame)
}

// broadcastState sends a frame to all spectators
func (g *Game) broadcastState(frame FrameMsg) {
	env := Envelope{T: MsgFrame, Data: frame}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	for w := range g.watchers {
		if c, ok := w.(*Client); ok {
			c.SendRaw(data)
			continue
		}
		w.SendJSON(env)
	}
}

// broadcastMsg sends a message to all spectators
func (g *Game) broadcastMsg(msg Envelope) {
	for w := range g.watchers {
		w.SendJSON(msg)
	}
}

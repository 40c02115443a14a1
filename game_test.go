package main

import (
	"math"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"turret-env-server/sim"
)

// mockBroadcaster captures sent messages for testing
type mockBroadcaster struct {
	mu       sync.Mutex
	messages []interface{}
}

func (m *mockBroadcaster) SendJSON(msg interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// types returns the envelope types received so far
func (m *mockBroadcaster) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ts []string
	for _, msg := range m.messages {
		if env, ok := msg.(Envelope); ok {
			ts = append(ts, env.T)
		}
	}
	return ts
}

// fakeSink collects what a Game records
type fakeSink struct {
	mu          sync.Mutex
	transitions []Transition
	episodes    []Episode
}

func (s *fakeSink) RecordTransition(t Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, t)
}

func (s *fakeSink) RecordEpisode(ep Episode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes = append(s.episodes, ep)
}

// fakeMirror collects mirrored frames
type fakeMirror struct {
	mu     sync.Mutex
	frames []FrameMsg
	forgot []string
}

func (m *fakeMirror) MirrorFrame(sid string, f FrameMsg) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, f)
}

func (m *fakeMirror) Forget(sid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forgot = append(m.forgot, sid)
}

const obsSize = sim.NumTargets * sim.ObsFieldsPerTarget

func newTestGame(t *testing.T, opts GameOptions, sink EpisodeSink, mirror FrameMirror) *Game {
	t.Helper()
	if opts.Config.NumAngles == 0 {
		opts.Config.NumAngles = 4
	}
	if opts.Config.Seed == 0 {
		opts.Config.Seed = 42
	}
	g, err := NewGame("sid-1", opts, sink, mirror)
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	return g
}

func TestNewGameRejectsBadMaxSteps(t *testing.T) {
	if _, err := NewGame("x", GameOptions{Config: sim.DefaultConfig(), MaxSteps: -1}, nil, nil); err == nil {
		t.Error("expected error for negative max_steps")
	}
	if _, err := NewGame("x", GameOptions{Config: sim.DefaultConfig(), MaxSteps: maxStepsLimit + 1}, nil, nil); err == nil {
		t.Error("expected error for oversized max_steps")
	}
}

func TestGameResetAndStep(t *testing.T) {
	g := newTestGame(t, GameOptions{}, nil, nil)

	if _, _, err := g.Step(sim.DiscreteAction(0)); !errors.Is(err, sim.ErrNotReset) {
		t.Fatalf("step before reset: got %v", err)
	}

	obs, finished, err := g.Reset(nil)
	if err != nil {
		t.Fatal(err)
	}
	if finished != nil {
		t.Error("first reset should not finish an episode")
	}
	if len(obs.Observation) != obsSize {
		t.Errorf("expected %d values, got %d", obsSize, len(obs.Observation))
	}
	if obs.Seed != 42 || obs.Episode == "" {
		t.Errorf("unexpected obs header %+v", obs)
	}

	for i := 1; i <= 10; i++ {
		res, fin, err := g.Step(sim.DiscreteAction(i % 4))
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if fin != nil {
			t.Fatalf("step %d finished an episode without a budget", i)
		}
		if res.Tick != uint64(i) {
			t.Errorf("step %d: tick %d", i, res.Tick)
		}
	}
	if g.Tick() != 10 {
		t.Errorf("expected tick 10, got %d", g.Tick())
	}
}

func TestGameResetFinishesEpisode(t *testing.T) {
	sink := &fakeSink{}
	g := newTestGame(t, GameOptions{}, sink, nil)
	g.SetOwner(7)

	first, _, _ := g.Reset(nil)
	for i := 0; i < 3; i++ {
		g.Step(sim.DiscreteAction(0))
	}
	_, finished, err := g.Reset(nil)
	if err != nil {
		t.Fatal(err)
	}
	if finished == nil {
		t.Fatal("second reset should finish the first episode")
	}
	if finished.ID != first.Episode || finished.Steps != 3 || finished.Reason != EndReset {
		t.Errorf("unexpected finished episode %+v", finished)
	}
	if finished.ControllerID != 7 {
		t.Errorf("expected controller 7, got %d", finished.ControllerID)
	}

	if len(sink.transitions) != 3 {
		t.Errorf("expected 3 transitions, got %d", len(sink.transitions))
	}
	if len(sink.episodes) != 1 || sink.episodes[0].ID != first.Episode {
		t.Errorf("unexpected recorded episodes %+v", sink.episodes)
	}
	for i, tr := range sink.transitions {
		if tr.EpisodeID != first.Episode || tr.Tick != uint64(i+1) || tr.Action != "discrete(0)" {
			t.Errorf("transition %d: %+v", i, tr)
		}
		if len(tr.Obs) != obsSize {
			t.Errorf("transition %d: obs length %d", i, len(tr.Obs))
		}
	}
}

func TestGameMaxStepsTruncation(t *testing.T) {
	sink := &fakeSink{}
	g := newTestGame(t, GameOptions{MaxSteps: 2}, sink, nil)
	g.Reset(nil)

	res, fin, _ := g.Step(sim.DiscreteAction(0))
	if res.Truncated || fin != nil {
		t.Fatal("first step should not truncate")
	}
	res, fin, _ = g.Step(sim.DiscreteAction(0))
	if !res.Truncated || fin == nil {
		t.Fatal("second step should truncate")
	}
	if !fin.Truncated || fin.Reason != EndTruncated || fin.Steps != 2 {
		t.Errorf("unexpected truncated episode %+v", fin)
	}

	if _, _, err := g.Step(sim.DiscreteAction(0)); err != errEpisodeOver {
		t.Errorf("expected errEpisodeOver, got %v", err)
	}
	if _, _, err := g.ManualDegrees(10); err != errEpisodeOver {
		t.Errorf("expected errEpisodeOver from manual, got %v", err)
	}

	_, finished, err := g.Reset(nil)
	if err != nil || finished != nil {
		t.Errorf("reset after truncation: finished=%v err=%v", finished, err)
	}
	if _, _, err := g.Step(sim.DiscreteAction(0)); err != nil {
		t.Errorf("step after reset: %v", err)
	}
	if len(sink.episodes) != 1 {
		t.Errorf("truncated episode recorded %d times", len(sink.episodes))
	}
}

func TestGameRejectedActionKeepsEpisode(t *testing.T) {
	sink := &fakeSink{}
	g := newTestGame(t, GameOptions{}, sink, nil)
	g.Reset(nil)

	if _, _, err := g.Step(sim.DiscreteAction(9)); !errors.Is(err, sim.ErrInvalidActionIndex) {
		t.Errorf("expected ErrInvalidActionIndex, got %v", err)
	}
	if _, _, err := g.Step(sim.ContinuousAngle(10)); !errors.Is(err, sim.ErrActionMismatch) {
		t.Errorf("expected ErrActionMismatch, got %v", err)
	}
	if _, _, err := g.Manual(1, 1); !errors.Is(err, sim.ErrInvalidModeUsage) {
		t.Errorf("expected ErrInvalidModeUsage, got %v", err)
	}
	if g.Tick() != 0 || len(sink.transitions) != 0 {
		t.Error("rejected actions must not advance or record")
	}
}

func TestGameManualAim(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.Interactive = true
	mirror := &fakeMirror{}
	g := newTestGame(t, GameOptions{Config: cfg}, nil, mirror)
	g.Reset(nil)

	if _, _, err := g.Manual(0, 10); err != nil {
		t.Fatal(err)
	}
	last := mirror.frames[len(mirror.frames)-1]
	if math.Abs(last.Angle-90) > 1e-9 {
		t.Errorf("expected angle 90, got %v", last.Angle)
	}
	if _, _, err := g.ManualDegrees(-90); err != nil {
		t.Fatal(err)
	}
	last = mirror.frames[len(mirror.frames)-1]
	if last.Angle != 270 {
		t.Errorf("expected angle 270, got %v", last.Angle)
	}
}

func TestGameWatchersReceiveFrames(t *testing.T) {
	g := newTestGame(t, GameOptions{}, nil, nil)
	w := &mockBroadcaster{}
	if err := g.AddWatcher(w); err != nil {
		t.Fatal(err)
	}
	if g.WatcherCount() != 1 {
		t.Errorf("expected 1 watcher, got %d", g.WatcherCount())
	}

	g.Reset(nil)
	g.Step(sim.DiscreteAction(1))

	types := w.types()
	if len(types) != 2 || types[0] != MsgFrame || types[1] != MsgFrame {
		t.Fatalf("unexpected watcher messages %v", types)
	}
	w.mu.Lock()
	frame := w.messages[1].(Envelope).Data.(FrameMsg)
	w.mu.Unlock()
	if frame.SID != "sid-1" || frame.Tick != 1 || frame.Angle != 90 {
		t.Errorf("unexpected frame %+v", frame)
	}
	if len(frame.Targets) != sim.NumTargets {
		t.Errorf("expected %d targets, got %d", sim.NumTargets, len(frame.Targets))
	}

	g.RemoveWatcher(w)
	g.Step(sim.DiscreteAction(1))
	if len(w.types()) != 2 {
		t.Error("removed watcher still receives frames")
	}
}

func TestGameWatcherLimit(t *testing.T) {
	g := newTestGame(t, GameOptions{}, nil, nil)
	for i := 0; i < maxWatchersPerSession; i++ {
		if err := g.AddWatcher(&mockBroadcaster{}); err != nil {
			t.Fatalf("watcher %d: %v", i, err)
		}
	}
	if err := g.AddWatcher(&mockBroadcaster{}); err != errSessionFull {
		t.Errorf("expected errSessionFull, got %v", err)
	}
}

func TestGameClose(t *testing.T) {
	sink := &fakeSink{}
	mirror := &fakeMirror{}
	g := newTestGame(t, GameOptions{}, sink, mirror)
	w := &mockBroadcaster{}
	g.AddWatcher(w)

	g.Reset(nil)
	g.Step(sim.DiscreteAction(0))

	finished := g.Close(EndLeave)
	if finished == nil || finished.Reason != EndLeave || finished.Steps != 1 {
		t.Fatalf("unexpected close result %+v", finished)
	}
	if !g.Closed() {
		t.Error("game should report closed")
	}
	if g.Close(EndClosed) != nil {
		t.Error("second close should be a no-op")
	}

	types := w.types()
	if types[len(types)-1] != MsgEpisode {
		t.Errorf("watcher should see the episode end, got %v", types)
	}
	if len(mirror.forgot) != 1 || mirror.forgot[0] != "sid-1" {
		t.Errorf("mirror not cleared: %v", mirror.forgot)
	}

	if _, _, err := g.Reset(nil); err != errSessionClosed {
		t.Errorf("reset after close: %v", err)
	}
	if _, _, err := g.Step(sim.DiscreteAction(0)); err != errSessionClosed {
		t.Errorf("step after close: %v", err)
	}
	if err := g.AddWatcher(&mockBroadcaster{}); err != errSessionClosed {
		t.Errorf("watch after close: %v", err)
	}
}

func TestSessionManagerCreateAndClose(t *testing.T) {
	prev := SessionIdleTimeout
	SessionIdleTimeout = 0
	defer func() { SessionIdleTimeout = prev }()

	sm := NewSessionManager(nil, nil)
	sess, err := sm.CreateSession("Range", GameOptions{Config: sim.DefaultConfig()})
	if err != nil {
		t.Fatal(err)
	}
	if !uuidRegex.MatchString(sess.ID) {
		t.Errorf("session ID %q is not a UUID", sess.ID)
	}
	if sm.GetSession(sess.ID) != sess || sm.Count() != 1 {
		t.Fatal("session not registered")
	}
	if infos := sm.ListSessions(); len(infos) != 1 || infos[0].Name != "Range" {
		t.Errorf("unexpected listing %+v", infos)
	}

	if _, err := sm.CreateSession("Bad", GameOptions{Config: sim.Config{NumAngles: -1}}); err == nil {
		t.Error("expected error for invalid config")
	}

	sm.CloseSession(sess.ID, EndLeave)
	if len(sm.ListSessions()) != 0 {
		t.Error("closed session should not be listed")
	}
}

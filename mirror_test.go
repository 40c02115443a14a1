package main

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/pkg/errors"
)

// memKV is an in-memory kvStore
type memKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	puts    int
	failPut bool
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return 0, errors.New("bucket offline")
	}
	m.puts++
	m.data[key] = value
	return uint64(m.puts), nil
}

func (m *memKV) Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestKVMirrorKeepsLatestFrame(t *testing.T) {
	kv := newMemKV()
	m := NewKVMirror(kv)

	m.MirrorFrame("abc", FrameMsg{SID: "abc", Tick: 1})
	m.MirrorFrame("abc", FrameMsg{SID: "abc", Tick: 2, Angle: 45})
	m.MirrorFrame("xyz", FrameMsg{SID: "xyz", Tick: 7})
	m.Close()

	raw, ok := kv.data[mirrorKey("abc")]
	if !ok {
		t.Fatal("frame not mirrored")
	}
	var f FrameMsg
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatal(err)
	}
	if f.Tick != 2 || f.Angle != 45 {
		t.Errorf("expected latest frame, got %+v", f)
	}
	if len(kv.data) != 2 {
		t.Errorf("expected 2 keys, got %d", len(kv.data))
	}
}

func TestKVMirrorForget(t *testing.T) {
	kv := newMemKV()
	m := NewKVMirror(kv)

	m.MirrorFrame("abc", FrameMsg{SID: "abc"})
	m.Forget("abc")
	m.Close()

	if _, ok := kv.data[mirrorKey("abc")]; ok {
		t.Error("forgotten session still mirrored")
	}
}

func TestKVMirrorSurvivesWriteErrors(t *testing.T) {
	kv := newMemKV()
	kv.failPut = true
	m := NewKVMirror(kv)
	m.MirrorFrame("abc", FrameMsg{SID: "abc"})
	m.Close()
	if len(kv.data) != 0 {
		t.Error("failed put should store nothing")
	}
}

func TestGameMirrorsFrames(t *testing.T) {
	kv := newMemKV()
	m := NewKVMirror(kv)

	sm := NewSessionManager(nil, m)
	sess, err := sm.CreateSession("Mirrored", GameOptions{Config: testConfig()})
	if err != nil {
		t.Fatal(err)
	}
	sess.Game.Reset(nil)
	for i := 0; i < 5; i++ {
		sess.Game.Step(discrete(0))
	}
	m.Close()

	var f FrameMsg
	if err := json.Unmarshal(kv.data[mirrorKey(sess.ID)], &f); err != nil {
		t.Fatal(err)
	}
	if f.Tick != 5 || f.SID != sess.ID {
		t.Errorf("unexpected mirrored frame %+v", f)
	}
}

func TestMirrorKey(t *testing.T) {
	if got := mirrorKey("abc"); got != "session.abc" {
		t.Errorf("mirrorKey = %q", got)
	}
}

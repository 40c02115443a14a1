package main

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"turret-env-server/sim"
)

func testConfig() sim.Config {
	cfg := sim.DefaultConfig()
	cfg.Seed = 3
	return cfg
}

func discrete(i int) sim.Action { return sim.DiscreteAction(i) }

func TestBinaryStepRoundTrip(t *testing.T) {
	tests := []struct {
		kind byte
		v    float64
	}{
		{BinStepDiscrete, 3},
		{BinStepContinuous, -12.5},
		{BinStepManual, 359.75},
	}
	for _, tt := range tests {
		msg := encodeBinaryStep(tt.kind, tt.v)
		if len(msg) != binStepLen {
			t.Fatalf("encoded length %d, want %d", len(msg), binStepLen)
		}
		step, ok := decodeBinaryStep(msg)
		if !ok {
			t.Fatalf("decode failed for kind %d", tt.kind)
		}
		if step.Kind != tt.kind || step.Value != tt.v {
			t.Errorf("got %+v, want kind %d value %v", step, tt.kind, tt.v)
		}
	}
}

func TestBinaryStepRejectsMalformed(t *testing.T) {
	good := encodeBinaryStep(BinStepContinuous, 1)

	short := good[:binStepLen-1]
	if _, ok := decodeBinaryStep(short); ok {
		t.Error("short message accepted")
	}

	wrongMarker := append([]byte(nil), good...)
	wrongMarker[0] = 0x02
	if _, ok := decodeBinaryStep(wrongMarker); ok {
		t.Error("wrong marker accepted")
	}

	unknownKind := append([]byte(nil), good...)
	unknownKind[1] = 9
	if _, ok := decodeBinaryStep(unknownKind); ok {
		t.Error("unknown kind accepted")
	}

	nan := append([]byte(nil), good...)
	binary.BigEndian.PutUint64(nan[2:], math.Float64bits(math.NaN()))
	if _, ok := decodeBinaryStep(nan); ok {
		t.Error("NaN accepted")
	}
}

func TestFrameFromSim(t *testing.T) {
	env, err := sim.New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	var frames []sim.Frame
	env.Observe(sim.ObserverFunc(func(f sim.Frame) { frames = append(frames, f) }))
	env.Reset()
	for i := 0; i < 31; i++ {
		env.Step(discrete(1))
	}

	msg := frameFromSim("s1", frames[len(frames)-1])
	if msg.SID != "s1" || msg.Tick != 31 || msg.Angle != 90 {
		t.Errorf("unexpected frame header %+v", msg)
	}
	if len(msg.Targets) != sim.NumTargets {
		t.Errorf("expected %d targets, got %d", sim.NumTargets, len(msg.Targets))
	}
	if len(msg.Bullets) != 1 {
		t.Errorf("expected 1 bullet after the first shot, got %d", len(msg.Bullets))
	}
	if !frameFromSim("s1", frames[0]).Reset {
		t.Error("first frame should be the reset frame")
	}
}

func TestSchemaCoversMessages(t *testing.T) {
	schema := buildSchema()
	out := filepath.Join(t.TempDir(), "nested", "wire.json")
	if err := writeSchema(out, schema); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)
	for _, want := range []string{"CreateMsg", "StepResultMsg", "FrameMsg", "max_steps", "discrete"} {
		if !strings.Contains(body, want) {
			t.Errorf("schema missing %q", want)
		}
	}
	if leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(out), "*.tmp")); len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

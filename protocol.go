package main

import (
	"encoding/binary"
	"encoding/json"
	"math"

	"turret-env-server/sim"
)

// Client -> Server message types
const (
	MsgRegister    = "register"
	MsgLogin       = "login"
	MsgAuth        = "auth"
	MsgCreate      = "create" // create an env session and own it
	MsgReset       = "reset"
	MsgStep        = "step" // also the reply type
	MsgManual      = "manual"
	MsgWatch       = "watch" // attach as spectator
	MsgList        = "list"
	MsgCheck       = "check"
	MsgLeave       = "leave"
	MsgLeaderboard = "leaderboard"
	MsgProfile     = "profile"
)

// Server -> Client message types
const (
	MsgCreated         = "created"
	MsgObs             = "obs"     // reply to reset
	MsgFrame           = "frame"   // spectator snapshot
	MsgEpisode         = "episode" // an episode finished
	MsgSessions        = "sessions"
	MsgChecked         = "checked"
	MsgWatching        = "watching"
	MsgError           = "error"
	MsgAuthOK          = "auth_ok"
	MsgProfileData     = "profile_data"
	MsgLeaderboardData = "leaderboard_data"
	MsgUnlocked        = "unlocked"
)

// Binary step kinds, second byte of a binary step message
const (
	BinStepDiscrete   byte = 0
	BinStepContinuous byte = 1
	BinStepManual     byte = 2 // value is the aim angle in degrees
)

const binStepLen = 10

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t" msgpack:"t"`
	Data interface{} `json:"d,omitempty" msgpack:"d,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// CreateMsg asks for a new env session
type CreateMsg struct {
	Name        string `json:"name"`
	Mode        string `json:"mode" jsonschema:"enum=discrete,enum=continuous"`
	Angles      int    `json:"angles,omitempty"`
	Seed        int64  `json:"seed,omitempty"`
	MaxSteps    int    `json:"max_steps,omitempty"`
	Binary      bool   `json:"binary,omitempty"`
	Interactive bool   `json:"interactive,omitempty"`
}

// CreatedMsg confirms a session and describes its spaces
type CreatedMsg struct {
	SID         string          `json:"sid"`
	Action      sim.ActionSpace `json:"action"`
	Observation sim.Box         `json:"observation"`
	MaxSteps    int             `json:"max_steps,omitempty"`
}

// ResetMsg starts a new episode; a nil seed continues the random stream
type ResetMsg struct {
	Seed *int64 `json:"seed,omitempty"`
}

// StepMsg carries one action: A for discrete sessions, Deg for continuous
type StepMsg struct {
	A   *int     `json:"a,omitempty"`
	Deg *float64 `json:"deg,omitempty"`
}

// ManualMsg aims at a point relative to the turret, world coordinates
type ManualMsg struct {
	MX float64 `json:"mx"`
	MY float64 `json:"my"`
}

// ObsMsg is the reply to reset
type ObsMsg struct {
	Episode     string    `json:"ep" msgpack:"ep"`
	Seed        int64     `json:"seed" msgpack:"seed"`
	Observation []float32 `json:"obs" msgpack:"obs"`
}

// StepResultMsg is the reply to step and manual
type StepResultMsg struct {
	Observation []float32 `json:"obs" msgpack:"obs"`
	Reward      int       `json:"r" msgpack:"r"`
	Terminated  bool      `json:"term" msgpack:"term"`
	Truncated   bool      `json:"trunc" msgpack:"trunc"`
	Tick        uint64    `json:"tick" msgpack:"tick"`
	Return      int       `json:"ret" msgpack:"ret"`
}

// TargetState is one target in a frame
type TargetState struct {
	X     float64 `json:"x" msgpack:"x"`
	Y     float64 `json:"y" msgpack:"y"`
	R     float64 `json:"r" msgpack:"r"` // orbit radius
	Speed float64 `json:"s" msgpack:"s"`
	Dir   int     `json:"dir" msgpack:"dir"`
}

// BulletState is one bullet in a frame
type BulletState struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// FrameMsg is broadcast to spectators after every reset and step
type FrameMsg struct {
	SID      string        `json:"sid" msgpack:"sid"`
	Tick     uint64        `json:"tick" msgpack:"tick"`
	Cooldown int           `json:"cd" msgpack:"cd"`
	Angle    float64       `json:"angle" msgpack:"angle"`
	Targets  []TargetState `json:"tg" msgpack:"tg"`
	Bullets  []BulletState `json:"b" msgpack:"b"`
	Reward   int           `json:"r" msgpack:"r"`
	Hits     []int         `json:"hits,omitempty" msgpack:"hits,omitempty"`
	Reset    bool          `json:"reset,omitempty" msgpack:"reset,omitempty"`
}

// EpisodeMsg reports a finished episode
type EpisodeMsg struct {
	ID        string `json:"id"`
	Seed      int64  `json:"seed"`
	Steps     int    `json:"steps"`
	Return    int    `json:"ret"`
	Truncated bool   `json:"trunc"`
	Reason    string `json:"reason"`
}

// SessionInfo is used in the session list
type SessionInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Mode     string `json:"mode"`
	Tick     uint64 `json:"tick"`
	Watchers int    `json:"watchers"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// CheckMsg is sent by client to check if a session exists
type CheckMsg struct {
	SID string `json:"sid"`
}

// CheckedMsg is the response to a session check
type CheckedMsg struct {
	SID      string `json:"sid"`
	Exists   bool   `json:"exists"`
	Name     string `json:"name,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Watchers int    `json:"watchers,omitempty"`
}

// WatchMsg attaches a spectator to a session
type WatchMsg struct {
	SID string `json:"sid"`
}

// RegisterMsg creates a controller account
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginMsg authenticates a controller
type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg resumes a session from a stored token
type AuthMsg struct {
	Token string `json:"token"`
}

// AuthOKMsg confirms authentication
type AuthOKMsg struct {
	Token        string `json:"token"`
	Username     string `json:"username"`
	ControllerID int64  `json:"cid"`
}

// LeaderboardMsg requests the leaderboard
type LeaderboardMsg struct {
	By    string `json:"by,omitempty" jsonschema:"enum=best,enum=hits,enum=episodes,enum=rate"`
	Limit int    `json:"limit,omitempty"`
}

// ProfileDataMsg is the reply to profile
type ProfileDataMsg struct {
	Username     string   `json:"username"`
	Episodes     int      `json:"episodes"`
	Steps        int      `json:"steps"`
	TotalReturn  int      `json:"total_return"`
	BestReturn   int      `json:"best_return"`
	Achievements []string `json:"achievements"`
	Recent       []int    `json:"recent"` // returns of the latest episodes, newest first
}

// UnlockedMsg announces a new achievement
type UnlockedMsg struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"desc"`
}

// binaryStep is a decoded binary step message
type binaryStep struct {
	Kind  byte
	Value float64
}

// decodeBinaryStep decodes [0x01, kind, float64 big-endian]
func decodeBinaryStep(msg []byte) (binaryStep, bool) {
	if len(msg) != binStepLen || msg[0] != 0x01 {
		return binaryStep{}, false
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(msg[2:]))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return binaryStep{}, false
	}
	switch msg[1] {
	case BinStepDiscrete, BinStepContinuous, BinStepManual:
	default:
		return binaryStep{}, false
	}
	return binaryStep{Kind: msg[1], Value: v}, true
}

// encodeBinaryStep is the inverse of decodeBinaryStep
func encodeBinaryStep(kind byte, v float64) []byte {
	msg := make([]byte, binStepLen)
	msg[0] = 0x01
	msg[1] = kind
	binary.BigEndian.PutUint64(msg[2:], math.Float64bits(v))
	return msg
}

// frameFromSim converts an env frame to its wire form
func frameFromSim(sid string, f sim.Frame) FrameMsg {
	msg := FrameMsg{
		SID:      sid,
		Tick:     f.Tick,
		Cooldown: f.Cooldown,
		Angle:    f.TurretAngle,
		Targets:  make([]TargetState, 0, len(f.Targets)),
		Bullets:  make([]BulletState, 0, len(f.Bullets)),
		Reward:   f.Reward,
		Hits:     f.HitTargets,
		Reset:    f.Reset,
	}
	for _, t := range f.Targets {
		x, y := t.Position()
		msg.Targets = append(msg.Targets, TargetState{X: x, Y: y, R: t.Radius, Speed: t.Speed, Dir: int(t.Direction)})
	}
	for _, b := range f.Bullets {
		msg.Bullets = append(msg.Bullets, BulletState{X: b.X, Y: b.Y})
	}
	return msg
}

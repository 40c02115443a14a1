package main

import "time"

// Episode end reasons
const (
	EndReset     = "reset"
	EndTruncated = "truncated"
	EndLeave     = "leave"
	EndClosed    = "closed"
)

// Episode tracks one reset-to-reset run of a session
type Episode struct {
	ID           string
	SessionID    string
	ControllerID int64 // 0 = guest
	Mode         string
	Seed         int64
	Steps        int
	Return       int
	Truncated    bool
	Reason       string
	StartedAt    time.Time
	EndedAt      time.Time
}

// NewEpisode starts an episode now
func NewEpisode(sid string, controllerID int64, mode string, seed int64) *Episode {
	return &Episode{
		ID:           GenerateUUID(),
		SessionID:    sid,
		ControllerID: controllerID,
		Mode:         mode,
		Seed:         seed,
		StartedAt:    time.Now().UTC(),
	}
}

// Add accounts for one step
func (e *Episode) Add(reward int) {
	e.Steps++
	e.Return += reward
}

// Finish closes the episode
func (e *Episode) Finish(reason string) {
	e.Reason = reason
	e.Truncated = reason == EndTruncated
	e.EndedAt = time.Now().UTC()
}

// Done reports whether Finish was called
func (e *Episode) Done() bool {
	return !e.EndedAt.IsZero()
}

// Duration returns wall time spent in the episode
func (e *Episode) Duration() time.Duration {
	if e.EndedAt.IsZero() {
		return time.Since(e.StartedAt)
	}
	return e.EndedAt.Sub(e.StartedAt)
}

// ToMsg converts the episode to its wire form
func (e *Episode) ToMsg() EpisodeMsg {
	return EpisodeMsg{
		ID:        e.ID,
		Seed:      e.Seed,
		Steps:     e.Steps,
		Return:    e.Return,
		Truncated: e.Truncated,
		Reason:    e.Reason,
	}
}

// Transition is one recorded step
type Transition struct {
	EpisodeID string
	Tick      uint64
	Action    string
	Reward    int
	Obs       []float32
}

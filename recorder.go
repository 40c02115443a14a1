package main

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	recordQueueSize = 4096
	flushBatchSize  = 50
)

var flushInterval = 5 * time.Second

// record is one queued write; exactly one field is set
type record struct {
	transition *Transition
	episode    *Episode
}

// Recorder persists transitions and finished episodes with batched background writes
type Recorder struct {
	db       *DB
	records  chan record
	stop     chan struct{}
	wg       sync.WaitGroup
	onUnlock func(controllerID int64, defs []AchievementDef)

	mu      sync.Mutex
	dropped int
}

// NewRecorder creates and starts the background writer. onUnlock may be nil.
func NewRecorder(db *DB, onUnlock func(controllerID int64, defs []AchievementDef)) *Recorder {
	r := &Recorder{
		db:       db,
		records:  make(chan record, recordQueueSize),
		stop:     make(chan struct{}),
		onUnlock: onUnlock,
	}
	r.wg.Add(1)
	go r.writer()
	return r
}

// RecordTransition enqueues one step (non-blocking)
func (r *Recorder) RecordTransition(t Transition) {
	t.Obs = append([]float32(nil), t.Obs...)
	r.enqueue(record{transition: &t})
}

// RecordEpisode enqueues a finished episode (non-blocking)
func (r *Recorder) RecordEpisode(ep Episode) {
	r.enqueue(record{episode: &ep})
}

func (r *Recorder) enqueue(rec record) {
	select {
	case r.records <- rec:
	default:
		// queue full, drop rather than stall the session
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
	}
}

// Dropped returns how many records were dropped on a full queue
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Stop drains the queue and shuts the writer down
func (r *Recorder) Stop() {
	close(r.stop)
	r.wg.Wait()
}

// writer is the background goroutine that batches and writes records to DB
func (r *Recorder) writer() {
	defer r.wg.Done()

	batch := make([]record, 0, 64)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-r.records:
			batch = append(batch, rec)
			if len(batch) >= flushBatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-r.stop:
			// writer is the only reader, so a non-empty queue never blocks
			for len(r.records) > 0 {
				batch = append(batch, <-r.records)
			}
			if len(batch) > 0 {
				r.flush(batch)
			}
			return
		}
	}
}

// flush writes a batch in one transaction, then updates stats for finished episodes
func (r *Recorder) flush(batch []record) {
	if r.db == nil || len(batch) == 0 {
		return
	}
	tx, err := r.db.conn.Begin()
	if err != nil {
		log.Error("recorder: begin tx", "err", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO transitions (episode_id, tick, action, reward, obs) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		log.Error("recorder: prepare", "err", err)
		return
	}
	defer stmt.Close()

	var episodes []Episode
	for _, rec := range batch {
		switch {
		case rec.transition != nil:
			t := rec.transition
			obs, err := msgpack.Marshal(t.Obs)
			if err != nil {
				log.Error("recorder: encode obs", "err", err)
				continue
			}
			if _, err := stmt.Exec(t.EpisodeID, t.Tick, t.Action, t.Reward, obs); err != nil {
				log.Error("recorder: insert transition", "err", err)
			}
		case rec.episode != nil:
			if err := insertEpisode(tx, *rec.episode); err != nil {
				log.Error("recorder", "err", err)
				continue
			}
			episodes = append(episodes, *rec.episode)
		}
	}
	if err := tx.Commit(); err != nil {
		log.Error("recorder: commit", "err", err)
		return
	}

	for _, ep := range episodes {
		if ep.ControllerID == 0 {
			continue
		}
		stats, err := r.db.UpdateStatsAfterEpisode(ep)
		if err != nil || stats == nil {
			log.Error("recorder: stats", "cid", ep.ControllerID, "err", err)
			continue
		}
		unlocked := CheckAchievements(r.db, ep, stats)
		if len(unlocked) > 0 && r.onUnlock != nil {
			r.onUnlock(ep.ControllerID, unlocked)
		}
	}
}

// LoadObservation decodes a stored transition observation
func LoadObservation(blob []byte) ([]float32, error) {
	var obs []float32
	err := msgpack.Unmarshal(blob, &obs)
	return obs, err
}

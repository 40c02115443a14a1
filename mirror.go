package main

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/pkg/errors"
)

const (
	mirrorBucket    = "turret_frames"
	mirrorQueueSize = 1024
	mirrorTimeout   = 2 * time.Second
)

// kvStore is the part of jetstream.KeyValue the mirror uses
type kvStore interface {
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
}

type mirrorOp struct {
	key   string
	value []byte // nil = delete
}

// KVMirror writes the latest frame of every session into a JetStream
// key-value bucket so out-of-process viewers can watch it.
type KVMirror struct {
	kv   kvStore
	ops  chan mirrorOp
	stop chan struct{}
	wg   sync.WaitGroup
	nc   *nats.Conn
}

// ConnectKVMirror dials NATS and opens (or creates) the frame bucket
func ConnectKVMirror(ctx context.Context, url string) (*KVMirror, error) {
	nc, err := nats.Connect(url, nats.Name("turret-env-server"))
	if err != nil {
		return nil, errors.Wrap(err, "connect nats")
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, errors.Wrap(err, "jetstream")
	}
	kv, err := js.KeyValue(ctx, mirrorBucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      mirrorBucket,
			Description: "latest spectator frame per session",
			TTL:         time.Hour,
		})
	}
	if err != nil {
		nc.Close()
		return nil, errors.Wrap(err, "open kv bucket")
	}
	m := NewKVMirror(kv)
	m.nc = nc
	return m, nil
}

// NewKVMirror starts a mirror over an open bucket
func NewKVMirror(kv kvStore) *KVMirror {
	m := &KVMirror{
		kv:   kv,
		ops:  make(chan mirrorOp, mirrorQueueSize),
		stop: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// mirrorKey maps a session to its bucket key
func mirrorKey(sid string) string {
	return "session." + sid
}

// MirrorFrame queues the frame as the session's latest (non-blocking)
func (m *KVMirror) MirrorFrame(sid string, f FrameMsg) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	m.enqueue(mirrorOp{key: mirrorKey(sid), value: data})
}

// Forget queues removal of the session's key
func (m *KVMirror) Forget(sid string) {
	m.enqueue(mirrorOp{key: mirrorKey(sid)})
}

func (m *KVMirror) enqueue(op mirrorOp) {
	select {
	case m.ops <- op:
	default:
	}
}

// Close drains pending writes and closes the NATS connection
func (m *KVMirror) Close() {
	close(m.stop)
	m.wg.Wait()
	if m.nc != nil {
		m.nc.Close()
	}
}

func (m *KVMirror) run() {
	defer m.wg.Done()
	for {
		select {
		case op := <-m.ops:
			m.apply(op)
		case <-m.stop:
			for len(m.ops) > 0 {
				m.apply(<-m.ops)
			}
			return
		}
	}
}

func (m *KVMirror) apply(op mirrorOp) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	var err error
	if op.value == nil {
		err = m.kv.Delete(ctx, op.key)
	} else {
		_, err = m.kv.Put(ctx, op.key, op.value)
	}
	if err != nil {
		log.Warn("frame mirror write failed", "key", op.key, "err", err)
	}
}

package main

import "sync"

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// Hub manages all connected clients and routes them to sessions
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	sessions   *SessionManager
	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
	// Auth & DB, nil when running without a database
	db       *DB
	auth     *Auth
	recorder *Recorder
	// Online accounts: controllerID -> *Client
	onlineMu    sync.RWMutex
	onlineUsers map[int64]*Client
}

// NewHub creates a new Hub. db and mirror may be nil.
func NewHub(db *DB, mirror FrameMirror) *Hub {
	h := &Hub{
		clients:     make(map[*Client]bool),
		register:    make(chan *Client, 64),
		unregister:  make(chan *Client, 64),
		ipConns:     make(map[string]int),
		db:          db,
		onlineUsers: make(map[int64]*Client),
	}
	var sink EpisodeSink
	if db != nil {
		h.auth = NewAuth(db)
		h.recorder = NewRecorder(db, h.notifyUnlocked)
		sink = h.recorder
	}
	h.sessions = NewSessionManager(sink, mirror)
	return h
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			client.detach(EndLeave)
			if client.controllerID != 0 {
				h.SetOffline(client.controllerID, client)
			}
		}
	}
}

// Shutdown closes all sessions and flushes pending records
func (h *Hub) Shutdown() {
	h.sessions.CloseAll()
	if h.recorder != nil {
		h.recorder.Stop()
	}
}

// SetOnline marks an authenticated controller as online
func (h *Hub) SetOnline(controllerID int64, client *Client) {
	h.onlineMu.Lock()
	defer h.onlineMu.Unlock()
	h.onlineUsers[controllerID] = client
}

// SetOffline removes a controller from online tracking if client is still its connection
func (h *Hub) SetOffline(controllerID int64, client *Client) {
	h.onlineMu.Lock()
	defer h.onlineMu.Unlock()
	if h.onlineUsers[controllerID] == client {
		delete(h.onlineUsers, controllerID)
	}
}

// GetOnlineClient returns the client for an online controller
func (h *Hub) GetOnlineClient(controllerID int64) *Client {
	h.onlineMu.RLock()
	defer h.onlineMu.RUnlock()
	return h.onlineUsers[controllerID]
}

// notifyUnlocked tells an online controller about new achievements
func (h *Hub) notifyUnlocked(controllerID int64, defs []AchievementDef) {
	c := h.GetOnlineClient(controllerID)
	if c == nil {
		return
	}
	for _, def := range defs {
		c.SendJSON(Envelope{T: MsgUnlocked, Data: UnlockedMsg{ID: def.ID, Name: def.Name, Description: def.Description}})
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}

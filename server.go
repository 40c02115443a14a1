package main

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
)

const (
	qrSize          = 256
	maxEpisodeSteps = 5000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ServerConfig holds the HTTP-facing settings
type ServerConfig struct {
	ClientDir string // static viewer files, "" disables them
	PublicURL string // base for QR links, "" uses the request host
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub, cfg ServerConfig) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/ws", serveWS(hub))
	r.HandleFunc("/healthz", serveHealth(hub)).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", serveSessions(hub)).Methods(http.MethodGet)
	r.HandleFunc("/api/leaderboard", serveLeaderboard(hub)).Methods(http.MethodGet)
	r.HandleFunc("/api/episodes/{id}", serveEpisode(hub)).Methods(http.MethodGet)
	r.HandleFunc("/qr/{sid}", serveQR(hub, cfg.PublicURL)).Methods(http.MethodGet)

	if cfg.ClientDir != "" {
		index := filepath.Join(cfg.ClientDir, "index.html")
		r.HandleFunc("/watch/{sid}", func(w http.ResponseWriter, r *http.Request) {
			if hub.sessions.GetSession(mux.Vars(r)["sid"]) == nil {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Cache-Control", "no-cache")
			http.ServeFile(w, r, index)
		})
		// Serve static files with no-cache so browsers always revalidate
		fs := http.FileServer(http.Dir(cfg.ClientDir))
		r.PathPrefix("/").Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-cache")
			fs.ServeHTTP(w, r)
		}))
	}
	return r
}

func serveWS(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("upgrade error", "err", err)
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func serveHealth(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":   "ok",
			"sessions": hub.sessions.Count(),
			"clients":  hub.ClientCount(),
			"conns":    hub.TotalConns(),
			"db":       hub.db != nil,
		}
		if hub.recorder != nil {
			body["dropped"] = hub.recorder.Dropped()
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func serveSessions(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.sessions.ListSessions())
	}
}

func serveLeaderboard(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub.db == nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorMsg{Msg: "leaderboard unavailable"})
			return
		}
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit == 0 {
			limit = defaultBoardLimit
		}
		entries, err := hub.db.GetLeaderboard(r.URL.Query().Get("by"), ClampInt(limit, 1, maxBoardLimit))
		if err != nil {
			log.Error("leaderboard", "err", err)
			writeJSON(w, http.StatusInternalServerError, ErrorMsg{Msg: "leaderboard unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// serveEpisode returns a recorded episode; ?steps=1 includes its transitions
func serveEpisode(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub.db == nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorMsg{Msg: "recording unavailable"})
			return
		}
		id := mux.Vars(r)["id"]
		ep, err := hub.db.GetEpisode(id)
		if err != nil {
			log.Error("episode lookup", "id", id, "err", err)
			writeJSON(w, http.StatusInternalServerError, ErrorMsg{Msg: "episode lookup failed"})
			return
		}
		if ep == nil {
			writeJSON(w, http.StatusNotFound, ErrorMsg{Msg: "episode not found"})
			return
		}
		count, err := hub.db.TransitionCount(id)
		if err != nil {
			log.Error("transition count", "id", id, "err", err)
		}
		body := map[string]interface{}{"episode": ep, "transitions": count}
		if r.URL.Query().Get("steps") == "1" {
			steps, err := hub.db.GetTransitions(id, maxEpisodeSteps)
			if err != nil {
				log.Error("transitions", "id", id, "err", err)
				writeJSON(w, http.StatusInternalServerError, ErrorMsg{Msg: "episode lookup failed"})
				return
			}
			body["steps"] = steps
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// watchURL is the spectator link encoded in a session's QR code
func watchURL(base string, r *http.Request, sid string) string {
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return strings.TrimRight(base, "/") + "/watch/" + sid
}

func serveQR(hub *Hub, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid := mux.Vars(r)["sid"]
		if hub.sessions.GetSession(sid) == nil {
			http.NotFound(w, r)
			return
		}
		png, err := qrcode.Encode(watchURL(publicURL, r, sid), qrcode.Medium, qrSize)
		if err != nil {
			log.Error("qr encode", "sid", sid, "err", err)
			http.Error(w, "qr failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	}
}

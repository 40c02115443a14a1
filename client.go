package main

import (
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"turret-env-server/sim"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 500 // one message per step, so training loops are chatty
	maxNameLen        = 30
	defaultAngles     = 4
	maxAngles         = 360
	defaultBoardLimit = 10
	maxBoardLimit     = 100
	recentEpisodes    = 5
)

type clientRole int

const (
	roleNone clientRole = iota
	roleOwner
	roleWatcher
)

// Client represents a WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	msgCount   int
	msgResetAt time.Time
	// Session state
	sessionID string
	role      clientRole
	binary    bool
	// Auth state
	controllerID int64  // 0 = guest
	username     string // "" = guest
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("ws error", "addr", c.remoteAddr, "err", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Warn("rate limit exceeded, disconnecting", "addr", c.remoteAddr)
			break
		}

		if msgType == websocket.BinaryMessage {
			c.handleBinaryStep(message)
		} else {
			c.handleMessage(message)
		}
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error("marshal error", "err", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message
// Prefixes with 0xFF marker byte so WritePump can distinguish from text
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF // binary marker
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// sendReply sends an env reply as msgpack for binary sessions, JSON otherwise
func (c *Client) sendReply(t string, data interface{}) {
	env := Envelope{T: t, Data: data}
	if !c.binary {
		c.SendJSON(env)
		return
	}
	raw, err := msgpack.Marshal(env)
	if err != nil {
		log.Error("msgpack marshal error", "err", err)
		return
	}
	c.SendBinary(raw)
}

func (c *Client) sendError(msg string) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: msg}})
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Debug("unmarshal error", "addr", c.remoteAddr, "err", err)
		return
	}

	switch env.T {
	case MsgList:
		c.handleList()
	case MsgCreate:
		c.handleCreate(env.D)
	case MsgReset:
		c.handleReset(env.D)
	case MsgStep:
		c.handleStep(env.D)
	case MsgManual:
		c.handleManual(env.D)
	case MsgWatch:
		c.handleWatch(env.D)
	case MsgLeave:
		c.detach(EndLeave)
	case MsgCheck:
		c.handleCheck(env.D)
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgAuth:
		c.handleAuth(env.D)
	case MsgLeaderboard:
		c.handleLeaderboard(env.D)
	case MsgProfile:
		c.handleProfile()
	default:
		c.sendError("unknown message type")
	}
}

// detach leaves the current session; an owner leaving closes it
func (c *Client) detach(reason string) {
	if c.sessionID == "" {
		return
	}
	switch c.role {
	case roleOwner:
		c.hub.sessions.CloseSession(c.sessionID, reason)
	case roleWatcher:
		if sess := c.hub.sessions.GetSession(c.sessionID); sess != nil {
			sess.Game.RemoveWatcher(c)
		}
	}
	c.sessionID = ""
	c.role = roleNone
	c.binary = false
}

// ownedGame returns the game this client controls, replying with an error if none
func (c *Client) ownedGame() *Game {
	if c.role != roleOwner {
		c.sendError("not controlling a session")
		return nil
	}
	sess := c.hub.sessions.GetSession(c.sessionID)
	if sess == nil {
		c.sendError("session not found")
		return nil
	}
	return sess.Game
}

func (c *Client) handleList() {
	c.SendJSON(Envelope{T: MsgSessions, Data: c.hub.sessions.ListSessions()})
}

func (c *Client) handleCreate(data json.RawMessage) {
	var msg CreateMsg
	if len(data) > 0 {
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("bad create message")
			return
		}
	}
	mode, err := sim.ParseActionMode(msg.Mode)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	angles := msg.Angles
	if angles == 0 {
		angles = defaultAngles
	}
	if mode == sim.ModeDiscrete && (angles < 1 || angles > maxAngles) {
		c.sendError("angles must be in [1, 360]")
		return
	}
	name := truncate(msg.Name, maxNameLen)
	if name == "" {
		name = "Turret Range"
	}

	c.detach(EndLeave)
	opts := GameOptions{
		Config: sim.Config{
			Mode:        mode,
			NumAngles:   angles,
			Interactive: msg.Interactive,
			Seed:        msg.Seed,
		},
		MaxSteps: msg.MaxSteps,
		Binary:   msg.Binary,
	}
	sess, err := c.hub.sessions.CreateSession(name, opts)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	sess.Game.SetOwner(c.controllerID)
	c.sessionID = sess.ID
	c.role = roleOwner
	c.binary = msg.Binary

	action, obs := sess.Game.Spaces()
	c.SendJSON(Envelope{T: MsgCreated, Data: CreatedMsg{
		SID:         sess.ID,
		Action:      action,
		Observation: obs,
		MaxSteps:    opts.MaxSteps,
	}})
}

func (c *Client) handleReset(data json.RawMessage) {
	game := c.ownedGame()
	if game == nil {
		return
	}
	var msg ResetMsg
	if len(data) > 0 {
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("bad reset message")
			return
		}
	}
	obs, finished, err := game.Reset(msg.Seed)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	if finished != nil {
		c.SendJSON(Envelope{T: MsgEpisode, Data: finished.ToMsg()})
	}
	c.sendReply(MsgObs, obs)
}

func (c *Client) handleStep(data json.RawMessage) {
	game := c.ownedGame()
	if game == nil {
		return
	}
	var msg StepMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("bad step message")
		return
	}
	var action sim.Action
	switch {
	case msg.A != nil:
		action = sim.DiscreteAction(*msg.A)
	case msg.Deg != nil:
		action = sim.ContinuousAngle(*msg.Deg)
	default:
		c.sendError("step needs a or deg")
		return
	}
	c.replyStep(game.Step(action))
}

func (c *Client) handleManual(data json.RawMessage) {
	game := c.ownedGame()
	if game == nil {
		return
	}
	var msg ManualMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("bad manual message")
		return
	}
	c.replyStep(game.Manual(msg.MX, msg.MY))
}

// handleBinaryStep decodes a compact 10-byte binary step message
func (c *Client) handleBinaryStep(msg []byte) {
	step, ok := decodeBinaryStep(msg)
	if !ok {
		c.sendError("bad binary step")
		return
	}
	game := c.ownedGame()
	if game == nil {
		return
	}
	switch step.Kind {
	case BinStepDiscrete:
		idx := -1
		if step.Value >= 0 && step.Value < maxAngles {
			idx = int(step.Value)
		}
		c.replyStep(game.Step(sim.DiscreteAction(idx)))
	case BinStepContinuous:
		c.replyStep(game.Step(sim.ContinuousAngle(step.Value)))
	case BinStepManual:
		c.replyStep(game.ManualDegrees(step.Value))
	}
}

func (c *Client) replyStep(res StepResultMsg, finished *Episode, err error) {
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.sendReply(MsgStep, res)
	if finished != nil {
		c.SendJSON(Envelope{T: MsgEpisode, Data: finished.ToMsg()})
	}
}

func (c *Client) handleWatch(data json.RawMessage) {
	var msg WatchMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	sess := c.hub.sessions.GetSession(msg.SID)
	if sess == nil {
		c.sendError("session not found")
		return
	}
	c.detach(EndLeave)
	if err := sess.Game.AddWatcher(c); err != nil {
		c.sendError(err.Error())
		return
	}
	c.sessionID = sess.ID
	c.role = roleWatcher
	c.SendJSON(Envelope{T: MsgWatching, Data: map[string]string{"sid": sess.ID}})
}

func (c *Client) handleCheck(data json.RawMessage) {
	var msg CheckMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	sess := c.hub.sessions.GetSession(msg.SID)
	if sess == nil || sess.Game.Closed() {
		c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{SID: msg.SID, Exists: false}})
		return
	}
	c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{
		SID:      msg.SID,
		Exists:   true,
		Name:     sess.Name,
		Mode:     sess.Game.Options().Config.Mode.String(),
		Watchers: sess.Game.WatcherCount(),
	}})
}

// authenticated records the account on the connection
func (c *Client) authenticated(id int64, username, token string) {
	if c.controllerID != 0 && c.controllerID != id {
		c.hub.SetOffline(c.controllerID, c)
	}
	c.controllerID = id
	c.username = username
	c.hub.SetOnline(id, c)
	if c.role == roleOwner {
		if sess := c.hub.sessions.GetSession(c.sessionID); sess != nil {
			sess.Game.SetOwner(id)
		}
	}
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:        token,
		Username:     username,
		ControllerID: id,
	}})
}

func (c *Client) handleRegister(data json.RawMessage) {
	if c.hub.auth == nil {
		c.sendError("accounts unavailable")
		return
	}
	var msg RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.authenticated(id, msg.Username, token)
}

func (c *Client) handleLogin(data json.RawMessage) {
	if c.hub.auth == nil {
		c.sendError("accounts unavailable")
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.authenticated(id, msg.Username, token)
}

func (c *Client) handleAuth(data json.RawMessage) {
	if c.hub.auth == nil {
		c.sendError("accounts unavailable")
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.sendError("invalid token")
		return
	}
	c.authenticated(id, username, msg.Token)
}

func (c *Client) handleLeaderboard(data json.RawMessage) {
	if c.hub.db == nil {
		c.sendError("leaderboard unavailable")
		return
	}
	var msg LeaderboardMsg
	if len(data) > 0 {
		json.Unmarshal(data, &msg)
	}
	limit := msg.Limit
	if limit == 0 {
		limit = defaultBoardLimit
	}
	entries, err := c.hub.db.GetLeaderboard(msg.By, ClampInt(limit, 1, maxBoardLimit))
	if err != nil {
		log.Error("leaderboard", "err", err)
		c.sendError("leaderboard unavailable")
		return
	}
	c.SendJSON(Envelope{T: MsgLeaderboardData, Data: entries})
}

func (c *Client) handleProfile() {
	if c.hub.db == nil || c.controllerID == 0 {
		c.sendError("not authenticated")
		return
	}
	stats, err := c.hub.db.GetStats(c.controllerID)
	if err != nil || stats == nil {
		c.sendError("profile not found")
		return
	}
	achievements, _ := c.hub.db.GetAchievements(c.controllerID)
	recent, _ := c.hub.db.RecentReturns(c.controllerID, recentEpisodes)
	c.SendJSON(Envelope{T: MsgProfileData, Data: ProfileDataMsg{
		Username:     c.username,
		Episodes:     stats.Episodes,
		Steps:        stats.Steps,
		TotalReturn:  stats.TotalReturn,
		BestReturn:   stats.BestReturn,
		Achievements: achievements,
		Recent:       recent,
	}})
}

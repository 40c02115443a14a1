package main

import (
	"database/sql"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// ControllerRow represents a controller account
type ControllerRow struct {
	ID        int64
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// StatsRow represents a controller's aggregate results
type StatsRow struct {
	ControllerID int64
	Episodes     int
	Steps        int
	TotalReturn  int
	BestReturn   int
	Truncations  int
}

// EpisodeRow represents a recorded episode
type EpisodeRow struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sid"`
	ControllerID int64     `json:"cid,omitempty"`
	Mode         string    `json:"mode"`
	Seed         int64     `json:"seed"`
	Steps        int       `json:"steps"`
	Return       int       `json:"ret"`
	Truncated    bool      `json:"trunc"`
	Reason       string    `json:"reason"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
}

// TransitionRow is one stored step
type TransitionRow struct {
	Tick   uint64    `json:"tick"`
	Action string    `json:"action"`
	Reward int       `json:"r"`
	Obs    []float32 `json:"obs"`
}

// LeaderboardEntry represents one row in the leaderboard
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	Username    string  `json:"username"`
	Episodes    int     `json:"episodes"`
	Steps       int     `json:"steps"`
	TotalReturn int     `json:"total_return"`
	BestReturn  int     `json:"best_return"`
	HitRate     float64 `json:"hit_rate"` // hits per 1000 steps
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// in-memory databases are per connection
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "enable WAL")
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "enable foreign keys")
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS controllers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stats (
		controller_id INTEGER PRIMARY KEY REFERENCES controllers(id),
		episodes INTEGER NOT NULL DEFAULT 0,
		steps INTEGER NOT NULL DEFAULT 0,
		total_return INTEGER NOT NULL DEFAULT 0,
		best_return INTEGER NOT NULL DEFAULT 0,
		truncations INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS episodes (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		controller_id INTEGER REFERENCES controllers(id),
		mode TEXT NOT NULL,
		seed INTEGER NOT NULL,
		steps INTEGER NOT NULL DEFAULT 0,
		ret INTEGER NOT NULL DEFAULT 0,
		truncated INTEGER NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		ended_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transitions (
		episode_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		action TEXT NOT NULL,
		reward INTEGER NOT NULL,
		obs BLOB,
		PRIMARY KEY (episode_id, tick)
	);

	CREATE TABLE IF NOT EXISTS achievements (
		controller_id INTEGER NOT NULL REFERENCES controllers(id),
		achievement_id TEXT NOT NULL,
		unlocked_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (controller_id, achievement_id)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_episodes_controller ON episodes(controller_id);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Error("DB migration error", "err", err)
		return errors.Wrap(err, "migrate")
	}
	return nil
}

// CreateController creates a new account and its stats row
func (db *DB) CreateController(username, passHash string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO controllers (username, pass_hash) VALUES (?, ?)",
		username, passHash,
	)
	if err != nil {
		return 0, errors.Wrap(err, "insert controller")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	_, err = db.conn.Exec("INSERT INTO stats (controller_id) VALUES (?)", id)
	return id, errors.Wrap(err, "insert stats")
}

// GetControllerByUsername returns an account by username, nil if missing
func (db *DB) GetControllerByUsername(username string) (*ControllerRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, pass_hash, created_at FROM controllers WHERE username = ?",
		username,
	)
	c := &ControllerRow{}
	err := row.Scan(&c.ID, &c.Username, &c.PassHash, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// UsernameExists checks if a username is taken
func (db *DB) UsernameExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM controllers WHERE username = ?", username).Scan(&count)
	return count > 0, err
}

// GetStats returns a controller's stats, nil if missing
func (db *DB) GetStats(controllerID int64) (*StatsRow, error) {
	row := db.conn.QueryRow(
		"SELECT controller_id, episodes, steps, total_return, best_return, truncations FROM stats WHERE controller_id = ?",
		controllerID,
	)
	s := &StatsRow{}
	err := row.Scan(&s.ControllerID, &s.Episodes, &s.Steps, &s.TotalReturn, &s.BestReturn, &s.Truncations)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// UpdateStatsAfterEpisode folds one finished episode into the controller's stats
func (db *DB) UpdateStatsAfterEpisode(ep Episode) (*StatsRow, error) {
	trunc := 0
	if ep.Truncated {
		trunc = 1
	}
	_, err := db.conn.Exec(`
		UPDATE stats SET
			episodes = episodes + 1,
			steps = steps + ?,
			total_return = total_return + ?,
			best_return = MAX(best_return, ?),
			truncations = truncations + ?
		WHERE controller_id = ?`,
		ep.Steps, ep.Return, ep.Return, trunc, ep.ControllerID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "update stats")
	}
	return db.GetStats(ep.ControllerID)
}

// insertEpisode writes a finished episode inside tx
func insertEpisode(tx *sql.Tx, ep Episode) error {
	cid := sql.NullInt64{Int64: ep.ControllerID, Valid: ep.ControllerID > 0}
	_, err := tx.Exec(
		`INSERT OR REPLACE INTO episodes (id, session_id, controller_id, mode, seed, steps, ret, truncated, reason, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.SessionID, cid, ep.Mode, ep.Seed, ep.Steps, ep.Return, ep.Truncated, ep.Reason,
		ep.StartedAt.Format(time.RFC3339Nano), ep.EndedAt.Format(time.RFC3339Nano),
	)
	return errors.Wrap(err, "insert episode")
}

// GetEpisode returns a recorded episode, nil if missing
func (db *DB) GetEpisode(id string) (*EpisodeRow, error) {
	row := db.conn.QueryRow(`
		SELECT id, session_id, COALESCE(controller_id, 0), mode, seed, steps, ret, truncated, reason, started_at, ended_at
		FROM episodes WHERE id = ?`, id)
	var e EpisodeRow
	var started, ended string
	err := row.Scan(&e.ID, &e.SessionID, &e.ControllerID, &e.Mode, &e.Seed, &e.Steps, &e.Return, &e.Truncated, &e.Reason, &started, &ended)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	e.EndedAt, _ = time.Parse(time.RFC3339Nano, ended)
	return &e, nil
}

// RecentReturns returns the returns of a controller's latest episodes, newest first
func (db *DB) RecentReturns(controllerID int64, limit int) ([]int, error) {
	rows, err := db.conn.Query(
		"SELECT ret FROM episodes WHERE controller_id = ? ORDER BY ended_at DESC LIMIT ?",
		controllerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []int{}
	for rows.Next() {
		var r int
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// TransitionCount returns how many steps of an episode were recorded
func (db *DB) TransitionCount(episodeID string) (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM transitions WHERE episode_id = ?", episodeID).Scan(&count)
	return count, err
}

// GetTransitions returns up to limit of an episode's steps in tick order
func (db *DB) GetTransitions(episodeID string, limit int) ([]TransitionRow, error) {
	rows, err := db.conn.Query(
		"SELECT tick, action, reward, obs FROM transitions WHERE episode_id = ? ORDER BY tick LIMIT ?",
		episodeID, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "transitions")
	}
	defer rows.Close()

	result := []TransitionRow{}
	for rows.Next() {
		var t TransitionRow
		var blob []byte
		if err := rows.Scan(&t.Tick, &t.Action, &t.Reward, &blob); err != nil {
			return nil, err
		}
		if t.Obs, err = LoadObservation(blob); err != nil {
			return nil, errors.Wrapf(err, "decode obs at tick %d", t.Tick)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// GetLeaderboard returns top controllers sorted by the given field
func (db *DB) GetLeaderboard(orderBy string, limit int) ([]LeaderboardEntry, error) {
	// Whitelist valid order columns
	validCols := map[string]string{
		"best": "s.best_return", "hits": "s.total_return", "episodes": "s.episodes",
		"rate": "CASE WHEN s.steps > 0 THEN CAST(s.total_return AS REAL)*1000/s.steps ELSE 0 END",
	}
	col, ok := validCols[orderBy]
	if !ok {
		col = validCols["best"]
	}

	query := `SELECT c.username, s.episodes, s.steps, s.total_return, s.best_return
		FROM stats s JOIN controllers c ON c.id = s.controller_id
		WHERE s.episodes > 0
		ORDER BY ` + col + ` DESC, c.id ASC LIMIT ?`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "leaderboard")
	}
	defer rows.Close()

	result := []LeaderboardEntry{}
	rank := 1
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.Episodes, &e.Steps, &e.TotalReturn, &e.BestReturn); err != nil {
			return nil, err
		}
		if e.Steps > 0 {
			e.HitRate = float64(e.TotalReturn) * 1000 / float64(e.Steps)
		}
		e.Rank = rank
		rank++
		result = append(result, e)
	}
	return result, rows.Err()
}

// GetAchievements returns the achievement IDs a controller has unlocked
func (db *DB) GetAchievements(controllerID int64) ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT achievement_id FROM achievements WHERE controller_id = ? ORDER BY unlocked_at, achievement_id",
		controllerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

// UnlockAchievement records an achievement; false if it was already unlocked
func (db *DB) UnlockAchievement(controllerID int64, achievementID string) (bool, error) {
	res, err := db.conn.Exec(
		"INSERT OR IGNORE INTO achievements (controller_id, achievement_id) VALUES (?, ?)",
		controllerID, achievementID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetSetting returns a setting, "" if missing
func (db *DB) GetSetting(key string) string {
	var value string
	if err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value); err != nil {
		return ""
	}
	return value
}

// SetSetting stores a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

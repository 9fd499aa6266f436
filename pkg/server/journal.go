package server

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/weaveworld/goweave/pkg/events"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// EventJournal records the narrative event stream to SQLite so clients
// can fetch scrollback after a reconnect. It subscribes globally on
// the event bus and stores every event and message line.
type EventJournal struct {
	db *sql.DB

	mu     sync.Mutex
	closed bool
}

// JournalEntry is one recorded line.
type JournalEntry struct {
	ID   int64
	UID  worlddb.PlayerID
	Kind string
	Text string
	At   time.Time
}

// OpenEventJournal opens (or creates) the journal database.
func OpenEventJournal(path string) (*EventJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: setting busy timeout: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS eventlog (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uid TEXT NOT NULL,
	kind TEXT NOT NULL,
	text TEXT NOT NULL,
	at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS eventlog_uid_at ON eventlog (uid, at);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: creating tables: %w", err)
	}
	return &EventJournal{db: db}, nil
}

// Receive implements events.Subscriber. Only the narrative types are
// journaled; updates and errors are transient.
func (j *EventJournal) Receive(ev events.Event) {
	if ev.Type != events.EvEvent && ev.Type != events.EvMessage {
		return
	}
	if ev.Text == "" || ev.Player == "" {
		return
	}
	_, err := j.db.Exec("INSERT INTO eventlog (uid, kind, text, at) VALUES (?, ?, ?, ?)",
		string(ev.Player), ev.Type.String(), ev.Text, time.Now().Unix())
	if err != nil {
		log.Printf("journal: insert error: %v", err)
	}
}

// Closed implements events.Subscriber.
func (j *EventJournal) Closed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closed
}

// Recent returns the latest journaled lines for a player, newest last.
func (j *EventJournal) Recent(uid worlddb.PlayerID, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.Query(
		"SELECT id, uid, kind, text, at FROM eventlog WHERE uid = ? ORDER BY id DESC LIMIT ?",
		string(uid), limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var ent JournalEntry
		var playerid string
		var at int64
		if err := rows.Scan(&ent.ID, &playerid, &ent.Kind, &ent.Text, &at); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		ent.UID = worlddb.PlayerID(playerid)
		ent.At = time.Unix(at, 0)
		out = append(out, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: rows: %w", err)
	}
	// Reverse into chronological order.
	for i, n := 0, len(out); i < n/2; i++ {
		out[i], out[n-1-i] = out[n-1-i], out[i]
	}
	return out, nil
}

// Purge deletes lines older than the retention window. Returns the
// number deleted.
func (j *EventJournal) Purge(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	res, err := j.db.Exec("DELETE FROM eventlog WHERE at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("journal: purge: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// StartRetention runs an hourly purge until the journal closes.
func (j *EventJournal) StartRetention(retention time.Duration) {
	if retention <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if j.Closed() {
				return
			}
			purged, err := j.Purge(retention)
			if err != nil {
				log.Printf("journal: cleanup error: %v", err)
				continue
			}
			if purged > 0 {
				log.Printf("journal: purged %d old entries", purged)
			}
		}
	}()
}

// Close marks the journal closed and releases the database.
func (j *EventJournal) Close() error {
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()
	return j.db.Close()
}

// AttachJournal opens the configured journal, registers it on the bus,
// and starts the retention sweep. Returns nil without error when no
// journal is configured.
func (app *App) AttachJournal() error {
	conf := app.Config()
	if conf.JournalPath == "" {
		return nil
	}
	journal, err := OpenEventJournal(conf.JournalPath)
	if err != nil {
		return err
	}
	app.Journal = journal
	app.Bus.SubscribeGlobal(journal)
	journal.StartRetention(time.Duration(conf.JournalRetention) * time.Second)
	log.Printf("journal: recording events to %s", conf.JournalPath)
	return nil
}

// Package idledb is the sqlite persistence layer: idle activity
// records, player snapshots and ledger balances, written by a single
// goroutine in batched transactions.
package idledb

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"idlerealm.gg/internal/game/catalogs"
	"idlerealm.gg/internal/game/idle"
	"idlerealm.gg/internal/game/tuning"
	"idlerealm.gg/internal/ledger"
	"idlerealm.gg/internal/observability"
	"idlerealm.gg/internal/persistence/snapshot"
)

var (
	_ idle.Bridge  = (*DB)(nil)
	_ ledger.Store = (*DB)(nil)
)

var ErrClosed = errors.New("idledb: closed")

// DB owns the sqlite handle. All writes flow through one goroutine so
// the database only ever sees a single writer; reads issue a barrier
// first so a login observes the records the logout just queued.
//
// Close must not race other calls: the server stops accepting traffic
// before it closes the database.
type DB struct {
	db     *sql.DB
	logger *log.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed          atomic.Bool
	droppedAccounts atomic.Int64
}

type reqKind int

const (
	reqActivities reqKind = iota + 1
	reqClear
	reqSnapshot
	reqAccount
	reqBarrier
)

type req struct {
	kind   reqKind
	userID string

	acts []activityRow
	snap snapshot.Stored

	accountKey string
	balance    string

	done chan struct{}
}

type activityRow struct {
	ID         string
	Kind       string
	StartMs    int64
	DurationMs int64
	LogoutMs   int64
	Payload    string
}

// Open creates the schema if needed and starts the writer goroutine.
// queueSize <= 0 falls back to the tuning default.
func Open(path string, queueSize int, logger *log.Logger) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if queueSize <= 0 {
		queueSize = tuning.Defaults().DBQueueSize
	}
	d := &DB{
		db:     db,
		logger: logger,
		ch:     make(chan req, queueSize),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads; NORMAL loses at
	// most the last batch on power failure.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS idle_activities (
			user_id     TEXT NOT NULL,
			activity_id TEXT NOT NULL,
			kind        TEXT NOT NULL,
			start_ms    INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			logout_ms   INTEGER NOT NULL,
			payload     TEXT NOT NULL,
			PRIMARY KEY (user_id, activity_id)
		);`,
		`CREATE TABLE IF NOT EXISTS player_snapshots (
			user_id    TEXT PRIMARY KEY,
			version    INTEGER NOT NULL,
			logout_ms  INTEGER NOT NULL,
			compressed INTEGER NOT NULL,
			raw_size   INTEGER NOT NULL,
			data       BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ledger_accounts (
			account    TEXT PRIMARY KEY,
			balance    TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name       TEXT PRIMARY KEY,
			digest     TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue, commits the final batch and closes the
// handle. Safe to call twice.
func (d *DB) Close() error {
	var err error
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
		err = d.db.Close()
	})
	return err
}

// Store replaces the user's activity records. Blocks if the queue is
// full: activity records must survive a restart, unlike account
// writes they are never dropped.
func (d *DB) Store(userID string, recs []idle.RecordV1) error {
	if d == nil || d.closed.Load() {
		return ErrClosed
	}
	acts := make([]activityRow, 0, len(recs))
	for _, rec := range recs {
		acts = append(acts, activityRow{
			ID:         rec.ID,
			Kind:       string(rec.Kind),
			StartMs:    rec.StartMs,
			DurationMs: rec.DurationMs,
			LogoutMs:   rec.LogoutMs,
			Payload:    string(rec.Payload),
		})
	}
	d.ch <- req{kind: reqActivities, userID: userID, acts: acts}
	observability.SetDBQueueDepth(len(d.ch))
	return nil
}

// Load returns the user's stored activity records in a stable order.
// A barrier flushes any queued writes for the user first, so a logout
// immediately followed by a login reads its own records back.
func (d *DB) Load(userID string) ([]idle.RecordV1, error) {
	if d == nil {
		return nil, nil
	}
	d.barrier()

	rows, err := d.db.Query(
		`SELECT activity_id, kind, start_ms, duration_ms, logout_ms, payload
		 FROM idle_activities WHERE user_id = ? ORDER BY start_ms, activity_id`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []idle.RecordV1
	for rows.Next() {
		rec := idle.RecordV1{UserID: userID}
		var payload string
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.StartMs, &rec.DurationMs, &rec.LogoutMs, &payload); err != nil {
			return nil, err
		}
		rec.Payload = json.RawMessage(payload)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteAll removes the user's activity records. Queued behind any
// pending Store so replace-then-delete keeps its order.
func (d *DB) DeleteAll(userID string) error {
	if d == nil || d.closed.Load() {
		return ErrClosed
	}
	d.ch <- req{kind: reqClear, userID: userID}
	observability.SetDBQueueDepth(len(d.ch))
	return nil
}

// SaveSnapshot upserts a player snapshot. Blocks if the queue is full.
func (d *DB) SaveSnapshot(st snapshot.Stored) error {
	if d == nil || d.closed.Load() {
		return ErrClosed
	}
	if st.UserID == "" {
		return fmt.Errorf("snapshot without user id")
	}
	d.ch <- req{kind: reqSnapshot, userID: st.UserID, snap: st}
	observability.SetDBQueueDepth(len(d.ch))
	return nil
}

// LoadSnapshot fetches the stored snapshot for a user. The second
// return is false when none exists.
func (d *DB) LoadSnapshot(userID string) (snapshot.Stored, bool, error) {
	var st snapshot.Stored
	if d == nil {
		return st, false, nil
	}
	d.barrier()

	st.UserID = userID
	var compressed int
	err := d.db.QueryRow(
		`SELECT version, logout_ms, compressed, raw_size, data
		 FROM player_snapshots WHERE user_id = ?`,
		userID).Scan(&st.Version, &st.LogoutMs, &compressed, &st.RawSize, &st.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Stored{}, false, nil
	}
	if err != nil {
		return snapshot.Stored{}, false, err
	}
	st.Compressed = compressed != 0
	return st, true, nil
}

// LoadAccounts reads every persisted ledger balance. Called once at
// boot; the barrier only matters for tests that write first.
func (d *DB) LoadAccounts() (map[string]string, error) {
	out := map[string]string{}
	if d == nil {
		return out, nil
	}
	d.barrier()

	rows, err := d.db.Query(`SELECT account, balance FROM ledger_accounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SaveAccount queues a balance upsert. Dropped if the queue is full:
// the in-memory ledger stays authoritative and the balance re-persists
// on the next transfer.
func (d *DB) SaveAccount(key, balance string) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	select {
	case d.ch <- req{kind: reqAccount, accountKey: key, balance: balance}:
		observability.SetDBQueueDepth(len(d.ch))
	default:
		if n := d.droppedAccounts.Add(1); d.logger != nil && (n == 1 || n%256 == 0) {
			d.logger.Printf("[idledb] account writes dropped: %d", n)
		}
	}
	return nil
}

// UpsertCatalogs records which content the server booted with. Runs
// synchronously on the caller; boot happens before the writer has
// traffic.
func (d *DB) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if d == nil || cats == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct{ name, digest string }
	rows := []kv{
		{"items", cats.Items.Digest},
		{"farmables", cats.Farmables.Digest},
		{"recipes", cats.Recipes.Digest},
		{"monsters", cats.Monsters.Digest},
		{"domains", cats.Domains.Digest},
		{"dungeons", cats.Dungeons.Digest},
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:])})
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,updated_at) VALUES(?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// barrier waits until the writer has committed everything queued
// before it. Reads issued after a barrier see all prior writes.
func (d *DB) barrier() {
	if d.closed.Load() {
		return
	}
	done := make(chan struct{})
	d.ch <- req{kind: reqBarrier, done: done}
	<-done
}

func (d *DB) loop() {
	insertActivity, _ := d.db.Prepare(`INSERT OR REPLACE INTO idle_activities(user_id,activity_id,kind,start_ms,duration_ms,logout_ms,payload) VALUES(?,?,?,?,?,?,?)`)
	deleteActivities, _ := d.db.Prepare(`DELETE FROM idle_activities WHERE user_id=?`)
	insertSnapshot, _ := d.db.Prepare(`INSERT OR REPLACE INTO player_snapshots(user_id,version,logout_ms,compressed,raw_size,data,updated_at) VALUES(?,?,?,?,?,?,?)`)
	insertAccount, _ := d.db.Prepare(`INSERT OR REPLACE INTO ledger_accounts(account,balance,updated_at) VALUES(?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertActivity, deleteActivities, insertSnapshot, insertAccount} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := d.db.Begin()
		if err != nil {
			if d.logger != nil {
				d.logger.Printf("[idledb] begin: %v", err)
			}
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil && d.logger != nil {
			d.logger.Printf("[idledb] commit: %v", err)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		if d.logger != nil {
			d.logger.Printf("[idledb] write failed, batch rolled back: %v", err)
		}
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	// The ticker bounds how long a logout's records sit in an open
	// transaction when no further traffic arrives.
	flush := time.NewTicker(commitMaxWait)
	defer flush.Stop()

	for {
		select {
		case r, ok := <-d.ch:
			if !ok {
				commit()
				return
			}
			observability.SetDBQueueDepth(len(d.ch))

			if r.kind == reqBarrier {
				commit()
				close(r.done)
				continue
			}

			begin()
			if tx == nil {
				continue
			}
			switch r.kind {
			case reqActivities:
				if _, err := tx.Stmt(deleteActivities).Exec(r.userID); err != nil {
					rollback(err)
					continue
				}
				opCount++
				failed := false
				for _, a := range r.acts {
					if _, err := tx.Stmt(insertActivity).Exec(r.userID, a.ID, a.Kind, a.StartMs, a.DurationMs, a.LogoutMs, a.Payload); err != nil {
						rollback(err)
						failed = true
						break
					}
					opCount++
				}
				if failed {
					continue
				}

			case reqClear:
				if _, err := tx.Stmt(deleteActivities).Exec(r.userID); err != nil {
					rollback(err)
					continue
				}
				opCount++

			case reqSnapshot:
				sn := r.snap
				compressed := 0
				if sn.Compressed {
					compressed = 1
				}
				now := time.Now().UTC().Format(time.RFC3339Nano)
				if _, err := tx.Stmt(insertSnapshot).Exec(sn.UserID, sn.Version, sn.LogoutMs, compressed, sn.RawSize, sn.Data, now); err != nil {
					rollback(err)
					continue
				}
				opCount++

			case reqAccount:
				now := time.Now().UTC().Format(time.RFC3339Nano)
				if _, err := tx.Stmt(insertAccount).Exec(r.accountKey, r.balance, now); err != nil {
					rollback(err)
					continue
				}
				opCount++
			}
			flushIfNeeded()

		case <-flush.C:
			flushIfNeeded()
		}
	}
}

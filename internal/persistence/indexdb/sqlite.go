// Package indexdb keeps a queryable SQLite history of stream uploads. It is
// a secondary index; the JSONL tick logs remain the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelstream.ai/internal/stream/driver"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan driver.TickEntry
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

// Upload is one indexed chunk or index-map frame.
type Upload struct {
	Tick   uint64 `json:"tick"`
	Kind   string `json:"kind"`
	Slot   int    `json:"slot"`
	World  [3]int `json:"world"`
	Digest string `json:"digest"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
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

	s := &SQLiteIndex{
		db: db,
		ch: make(chan driver.TickEntry, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
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
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			anchor_x INTEGER NOT NULL,
			anchor_y INTEGER NOT NULL,
			anchor_z INTEGER NOT NULL,
			initialized INTEGER NOT NULL,
			frames INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS uploads (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			slot INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			digest TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_slot_tick ON uploads(slot, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_pos_tick ON uploads(x, z, y, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts entries discarded because the writer fell behind.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

// WriteTick implements driver.TickLog. It never blocks the tick.
func (s *SQLiteIndex) WriteTick(entry driver.TickEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- entry:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// SlotHistory lists every frame uploaded into slot, oldest first.
func (s *SQLiteIndex) SlotHistory(ctx context.Context, slot int) ([]Upload, error) {
	return s.query(ctx, `SELECT tick,kind,slot,x,y,z,digest FROM uploads WHERE slot=? ORDER BY tick,seq`, slot)
}

// ChunkHistory lists every upload of the chunk at world, oldest first.
func (s *SQLiteIndex) ChunkHistory(ctx context.Context, world [3]int) ([]Upload, error) {
	return s.query(ctx, `SELECT tick,kind,slot,x,y,z,digest FROM uploads WHERE kind='CHUNK' AND x=? AND z=? AND y=? ORDER BY tick,seq`, world[0], world[2], world[1])
}

func (s *SQLiteIndex) query(ctx context.Context, q string, args ...any) ([]Upload, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Upload
	for rows.Next() {
		var (
			u    Upload
			tick int64
		)
		if err := rows.Scan(&tick, &u.Kind, &u.Slot, &u.World[0], &u.World[1], &u.World[2], &u.Digest); err != nil {
			return nil, err
		}
		u.Tick = uint64(tick)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,anchor_x,anchor_y,anchor_z,initialized,frames,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertUpload, _ := s.db.Prepare(`INSERT OR REPLACE INTO uploads(tick,seq,kind,slot,x,y,z,digest) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertTick != nil {
			_ = insertTick.Close()
		}
		if insertUpload != nil {
			_ = insertUpload.Close()
		}
	}()
	if insertTick == nil || insertUpload == nil {
		for range s.ch {
			s.dropped.Add(1)
		}
		return
	}

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
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
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for e := range s.ch {
		begin()
		if tx == nil {
			s.dropped.Add(1)
			continue
		}
		raw, _ := json.Marshal(e)
		if _, err := tx.Stmt(insertTick).Exec(
			int64(e.Tick),
			e.Anchor[0], e.Anchor[1], e.Anchor[2],
			e.Initialized,
			len(e.Frames),
			string(raw),
		); err != nil {
			rollback()
			continue
		}
		opCount++
		for i, f := range e.Frames {
			if _, err := tx.Stmt(insertUpload).Exec(
				int64(e.Tick), i, f.Kind, f.Slot,
				f.World[0], f.World[1], f.World[2],
				fmt.Sprintf("%016x", f.Digest),
			); err != nil {
				rollback()
				break
			}
			opCount++
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"verdant.ai/internal/protocol"
	"verdant.ai/internal/sim/sector"
	"verdant.ai/internal/sim/tuning"
	"verdant.ai/internal/sim/vegetation"
)

// SQLiteIndex is a queryable read model of generated sectors. It is a
// vegetation sink that never fails the batch: rows are written by a
// background goroutine and dropped when it falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan sectorRow
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTotal  atomic.Uint64
	writeTotal atomic.Uint64
}

type sectorRow struct {
	X             int
	Y             int
	Count         int
	Digest        string
	CatalogDigest string
	GeneratedAt   string
}

// SectorRecord is one row of the sectors table.
type SectorRecord struct {
	Sector        sector.Sector
	Count         int
	Digest        string
	CatalogDigest string
	GeneratedAt   time.Time
	Emits         int
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DropTotal     uint64
	WriteTotal    uint64
}

// Fixed width so generated_at sorts lexicographically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

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
		ch: make(chan sectorRow, 65536),
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
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sectors (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			count INTEGER NOT NULL,
			digest TEXT NOT NULL,
			catalog_digest TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			emits INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (x, y)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sectors_generated_at ON sectors(generated_at);`,
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

func (s *SQLiteIndex) EmitBatch(b vegetation.Batch) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	r := sectorRow{
		X:             b.Sector.X,
		Y:             b.Sector.Y,
		Count:         len(b.Placements),
		Digest:        protocol.DigestString(b.Digest()),
		CatalogDigest: b.CatalogDigest,
		GeneratedAt:   time.Now().UTC().Format(tsLayout),
	}
	select {
	case s.ch <- r:
	default:
		// The placement log stays the source of truth.
		s.dropTotal.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTotal:     s.dropTotal.Load(),
		WriteTotal:    s.writeTotal.Load(),
	}
}

// UpsertCatalog records the variant table and the tuning in effect.
func (s *SQLiteIndex) UpsertCatalog(cat *vegetation.Catalog, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b, err := json.Marshal(protocol.NewCatalogInfo(cat)); err == nil {
		rows = append(rows, kv{name: "variants", digest: cat.Digest(), json: b})
	}
	if b, err := json.Marshal(tune); err == nil {
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CatalogDigest returns the stored digest for name, or "" if absent.
func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name=?`, name).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}

func (s *SQLiteIndex) Sector(ctx context.Context, sec sector.Sector) (SectorRecord, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT x,y,count,digest,catalog_digest,generated_at,emits FROM sectors WHERE x=? AND y=?`, sec.X, sec.Y)
	if err != nil {
		return SectorRecord{}, false, err
	}
	recs, err := scanSectors(rows)
	if err != nil || len(recs) == 0 {
		return SectorRecord{}, false, err
	}
	return recs[0], true, nil
}

// RecentSectors returns up to limit sectors, most recently generated first.
func (s *SQLiteIndex) RecentSectors(ctx context.Context, limit int) ([]SectorRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT x,y,count,digest,catalog_digest,generated_at,emits FROM sectors ORDER BY generated_at DESC, x, y LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanSectors(rows)
}

func scanSectors(rows *sql.Rows) ([]SectorRecord, error) {
	defer rows.Close()
	var out []SectorRecord
	for rows.Next() {
		var r SectorRecord
		var at string
		if err := rows.Scan(&r.Sector.X, &r.Sector.Y, &r.Count, &r.Digest, &r.CatalogDigest, &at, &r.Emits); err != nil {
			return nil, err
		}
		r.GeneratedAt, _ = time.Parse(tsLayout, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	upsert, _ := s.db.Prepare(`INSERT INTO sectors(x,y,count,digest,catalog_digest,generated_at,emits)
		VALUES(?,?,?,?,?,?,1)
		ON CONFLICT(x,y) DO UPDATE SET
			count=excluded.count,
			digest=excluded.digest,
			catalog_digest=excluded.catalog_digest,
			generated_at=excluded.generated_at,
			emits=sectors.emits+1`)
	defer func() {
		if upsert != nil {
			_ = upsert.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
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

	for r := range s.ch {
		if upsert == nil {
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		if _, err := tx.Stmt(upsert).Exec(r.X, r.Y, r.Count, r.Digest, r.CatalogDigest, r.GeneratedAt); err != nil {
			rollback()
			continue
		}
		s.writeTotal.Add(1)
		opCount++
		// Commit when idle so readers see rows promptly.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}

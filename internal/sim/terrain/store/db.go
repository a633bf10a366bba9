package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"verdant.ai/internal/sim/sector"
	"verdant.ai/internal/sim/terrain/heightmap"
)

var ErrNotFound = errors.New("heightmap not found")

// HeightmapDB stores one compressed grid per sector.
type HeightmapDB struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Info describes a stored grid without decoding it.
type Info struct {
	Sector sector.Sector
	Size   int
	Bytes  int
}

func OpenHeightmapDB(path string) (*HeightmapDB, error) {
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

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS heightmaps (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			size INTEGER NOT NULL,
			samples BLOB NOT NULL,
			PRIMARY KEY (x, y)
		);`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = db.Close()
		return nil, err
	}
	return &HeightmapDB{db: db, enc: enc, dec: dec}, nil
}

func (h *HeightmapDB) Close() error {
	h.dec.Close()
	_ = h.enc.Close()
	return h.db.Close()
}

func (h *HeightmapDB) Put(ctx context.Context, hm *heightmap.Heightmap) error {
	if hm == nil || len(hm.Samples) != hm.Size*hm.Size {
		return fmt.Errorf("put heightmap: bad grid")
	}
	raw := make([]byte, 4*len(hm.Samples))
	for i, v := range hm.Samples {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	blob := h.enc.EncodeAll(raw, nil)
	_, err := h.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO heightmaps(x,y,size,samples) VALUES(?,?,?,?)`,
		hm.Sector.X, hm.Sector.Y, hm.Size, blob)
	if err != nil {
		return fmt.Errorf("put heightmap %v: %w", hm.Sector, err)
	}
	return nil
}

func (h *HeightmapDB) Get(ctx context.Context, s sector.Sector) (*heightmap.Heightmap, error) {
	var size int
	var blob []byte
	err := h.db.QueryRowContext(ctx,
		`SELECT size, samples FROM heightmaps WHERE x=? AND y=?`, s.X, s.Y).Scan(&size, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, s)
	}
	if err != nil {
		return nil, fmt.Errorf("get heightmap %v: %w", s, err)
	}
	raw, err := h.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("get heightmap %v: decompress: %w", s, err)
	}
	if size <= 0 || len(raw) != 4*size*size {
		return nil, fmt.Errorf("get heightmap %v: %d bytes for size %d", s, len(raw), size)
	}
	samples := make([]float32, size*size)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return heightmap.New(s, size, samples)
}

func (h *HeightmapDB) Delete(ctx context.Context, s sector.Sector) error {
	_, err := h.db.ExecContext(ctx, `DELETE FROM heightmaps WHERE x=? AND y=?`, s.X, s.Y)
	return err
}

// Sectors lists stored grids ordered by (x, y).
func (h *HeightmapDB) Sectors(ctx context.Context) ([]Info, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT x, y, size, length(samples) FROM heightmaps ORDER BY x, y`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Info
	for rows.Next() {
		var in Info
		if err := rows.Scan(&in.Sector.X, &in.Sector.Y, &in.Size, &in.Bytes); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

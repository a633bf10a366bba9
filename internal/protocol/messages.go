package protocol

import (
	"fmt"

	"verdant.ai/internal/sim/vegetation"
)

type SectorRef struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	SessionID       string           `json:"session_id"`
	Generation      GenerationParams `json:"generation"`
	Catalog         CatalogInfo      `json:"catalog"`
}

type GenerationParams struct {
	PlacementsPerSector int     `json:"placements_per_sector"`
	ChunkSize           int     `json:"chunk_size"`
	HeightScale         float64 `json:"height_scale"`
}

type CatalogInfo struct {
	Digest   string       `json:"digest"`
	Variants []VariantRef `json:"variants"`
}

type VariantRef struct {
	Index     int      `json:"index"`
	Name      string   `json:"name"`
	Mesh      string   `json:"mesh"`
	Materials []string `json:"materials"`
	Weight    float64  `json:"weight"`
}

// PLACEMENTS (server -> client): one complete sector batch.
type PlacementsMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Sector          SectorRef      `json:"sector"`
	Digest          string         `json:"digest"`
	CatalogDigest   string         `json:"catalog_digest"`
	Placements      []PlacementRec `json:"placements"`
}

// PlacementRec carries a local shift, a unit quaternion as [x,y,z,w] and a
// per-axis scale.
type PlacementRec struct {
	Variant  int        `json:"variant"`
	Shift    [3]float64 `json:"shift"`
	Rotation [4]float64 `json:"rotation"`
	Scale    [3]float64 `json:"scale"`
}

// VISIBLE (client -> server): sectors that became visible and need vegetation.
type VisibleMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Sectors         []SectorRef `json:"sectors"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}

func DigestString(d uint64) string { return fmt.Sprintf("%016x", d) }

func NewPlacements(b vegetation.Batch) PlacementsMsg {
	m := PlacementsMsg{
		Type:            TypePlacements,
		ProtocolVersion: Version,
		Sector:          SectorRef{X: b.Sector.X, Y: b.Sector.Y},
		Digest:          DigestString(b.Digest()),
		CatalogDigest:   b.CatalogDigest,
		Placements:      make([]PlacementRec, len(b.Placements)),
	}
	for i, p := range b.Placements {
		q := p.Rotation
		m.Placements[i] = PlacementRec{
			Variant:  p.VariantIndex,
			Shift:    [3]float64{p.Shift[0], p.Shift[1], p.Shift[2]},
			Rotation: [4]float64{q.V[0], q.V[1], q.V[2], q.W},
			Scale:    [3]float64{p.Scale[0], p.Scale[1], p.Scale[2]},
		}
	}
	return m
}

func NewCatalogInfo(cat *vegetation.Catalog) CatalogInfo {
	info := CatalogInfo{Digest: cat.Digest(), Variants: []VariantRef{}}
	for i := 0; i < cat.Len(); i++ {
		v := cat.Variant(i)
		mats := make([]string, len(v.Materials))
		for j, m := range v.Materials {
			mats[j] = m.ID
		}
		info.Variants = append(info.Variants, VariantRef{
			Index:     i,
			Name:      v.Name,
			Mesh:      v.Mesh.ID,
			Materials: mats,
			Weight:    v.Weight,
		})
	}
	return info
}

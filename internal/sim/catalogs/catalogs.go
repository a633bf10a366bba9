package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var (
	ErrAssetNotFound     = errors.New("asset not found")
	ErrSubObjectNotFound = errors.New("sub-object not found")
)

//go:embed variants.schema.json
var variantsSchemaSrc string

var variantsSchema = jsonschema.MustCompileString("variants.schema.json", variantsSchemaSrc)

type Catalogs struct {
	Variants VariantCatalog
	Assets   AssetManifest
}

// VariantCatalog is the ordered list of configured vegetation variants. Order
// is significant: it breaks ties during weighted selection.
type VariantCatalog struct {
	Defs   []VariantDef
	Digest string
}

type VariantDef struct {
	Name   string  `yaml:"name" json:"name"`
	Asset  string  `yaml:"asset" json:"asset"`
	LOD    string  `yaml:"lod" json:"lod"`
	Weight float64 `yaml:"weight" json:"weight"`
}

type AssetManifest struct {
	ByPath map[string]AssetDef
	Digest string
}

type AssetDef struct {
	Path    string      `json:"path"`
	Objects []ObjectDef `json:"objects"`
}

// ObjectDef is one renderable child of an asset, typically a LOD level.
type ObjectDef struct {
	Name      string     `json:"name"`
	Mesh      Mesh       `json:"mesh"`
	Materials []Material `json:"materials"`
}

type Mesh struct {
	ID       string `json:"id"`
	Vertices int    `json:"vertices,omitempty"`
}

type Material struct {
	ID string `json:"id"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadVariants(filepath.Join(configDir, "vegetation.yaml"), &c.Variants); err != nil {
		return nil, err
	}
	if err := loadAssets(filepath.Join(configDir, "assets.json"), &c.Assets); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadVariants(path string, out *VariantCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return parseVariants(raw, out)
}

func parseVariants(raw []byte, out *VariantCatalog) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("vegetation.yaml: %w", err)
	}
	// The validator wants JSON-shaped values (float64 numbers, string-keyed maps).
	js, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("vegetation.yaml: %w", err)
	}
	var generic any
	if err := json.Unmarshal(js, &generic); err != nil {
		return fmt.Errorf("vegetation.yaml: %w", err)
	}
	if err := variantsSchema.Validate(generic); err != nil {
		return fmt.Errorf("vegetation.yaml: %w", err)
	}

	var file struct {
		Variants []VariantDef `yaml:"variants"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("vegetation.yaml: %w", err)
	}
	seen := map[string]bool{}
	for _, d := range file.Variants {
		if seen[d.Name] {
			return fmt.Errorf("vegetation.yaml: duplicate variant %q", d.Name)
		}
		seen[d.Name] = true
	}
	out.Defs = file.Variants
	out.Digest = sha256Hex(raw)
	return nil
}

func loadAssets(path string, out *AssetManifest) error {
	out.ByPath = map[string]AssetDef{}
	raw, err := os.ReadFile(path)
	if err != nil {
		// A missing manifest leaves every variant unresolved, which the
		// vegetation catalog tolerates.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	return parseAssets(raw, out)
}

func parseAssets(raw []byte, out *AssetManifest) error {
	out.ByPath = map[string]AssetDef{}
	out.Digest = sha256Hex(raw)

	var defs []AssetDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("assets.json: %w", err)
	}
	for _, d := range defs {
		if d.Path == "" {
			return fmt.Errorf("assets.json: empty path")
		}
		out.ByPath[d.Path] = d
	}
	return nil
}

// Resolve looks up the sub-object of an asset and returns its mesh and
// materials.
func (m AssetManifest) Resolve(path, subObject string) (Mesh, []Material, error) {
	a, ok := m.ByPath[path]
	if !ok {
		return Mesh{}, nil, fmt.Errorf("%w: %s", ErrAssetNotFound, path)
	}
	for _, o := range a.Objects {
		if o.Name == subObject {
			mats := make([]Material, len(o.Materials))
			copy(mats, o.Materials)
			return o.Mesh, mats, nil
		}
	}
	return Mesh{}, nil, fmt.Errorf("%w: %s in %s", ErrSubObjectNotFound, subObject, path)
}

// Paths lists manifest asset paths in sorted order.
func (m AssetManifest) Paths() []string {
	out := make([]string, 0, len(m.ByPath))
	for p := range m.ByPath {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"verdant.ai/internal/persistence/indexdb"
)

// openRuntimeIndex opens the optional sector read model. A nil index means
// indexing is off.
func openRuntimeIndex(dataDir string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VERDANT_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}
	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "sectors.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported VERDANT_INDEX_BACKEND: %s", backend)
	}
}

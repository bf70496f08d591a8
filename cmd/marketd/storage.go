package main

import (
	"os"
	"path/filepath"

	"nhbmarket/storage"
)

// storageOpen creates the data directory if needed and opens the LevelDB
// backend underneath it.
func storageOpen(dataDir string) (storage.Database, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return storage.NewLevelDB(filepath.Join(dataDir, "market.db"))
}

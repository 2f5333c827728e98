package storage

import (
	"os"
	"path/filepath"
)

// Footprint is the on-disk size of the record store and the full-text index.
type Footprint struct {
	DatabaseBytes int64 `json:"database_bytes"`
	IndexBytes    int64 `json:"index_bytes"`
}

// Total returns the combined size.
func (f Footprint) Total() int64 {
	return f.DatabaseBytes + f.IndexBytes
}

// MeasureFootprint sizes the SQLite database (with its -wal/-shm sidecars) and the bleve directory.
func MeasureFootprint(dbPath, indexPath string) (Footprint, error) {
	db, err := DiskUsageBytes(dbPath, dbPath+"-wal", dbPath+"-shm")
	if err != nil {
		return Footprint{}, err
	}
	idx, err := DiskUsageBytes(indexPath)
	if err != nil {
		return Footprint{}, err
	}
	return Footprint{DatabaseBytes: db, IndexBytes: idx}, nil
}

// DiskUsageBytes sums the sizes of files and directory trees. Missing paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.Walk(p, func(_ string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() {
				total += info.Size()
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return 0, err
		}
	}
	return total, nil
}

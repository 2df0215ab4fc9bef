package asset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"time"

	"github.com/reelfeed/reelfeed/filesystem"
	"github.com/reelfeed/reelfeed/log"
)

// diskTier stores payloads as individual files in a private, process-owned
// directory. File names are the SHA-256 of the resource key, written via an
// atomic tmp+rename swap. The layout is implementation-defined: the whole
// directory can be removed at any time without semantic loss.
type diskTier struct {
	dir string
}

// fileName generates the deterministic on-disk identifier for a resource key.
func fileName(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// read retrieves a payload, treating any I/O or corruption problem as a miss.
func (d *diskTier) read(ctx context.Context, key string) ([]byte, bool) {
	if err := ctx.Err(); err != nil {
		return nil, false
	}

	path := filepath.Join(d.dir, fileName(key))
	payload, err := filesystem.API().ReadFile(path)
	if err != nil || len(payload) == 0 {
		return nil, false
	}
	return payload, true
}

// write persists a payload using an atomic file swap to ensure integrity.
func (d *diskTier) write(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fs := filesystem.API()
	if err := fs.MkdirAll(d.dir, 0755); err != nil {
		return err
	}

	path := filepath.Join(d.dir, fileName(key))
	tmpPath := path + ".tmp"

	if err := fs.WriteFile(tmpPath, payload, 0644); err != nil {
		return err
	}
	return fs.Rename(tmpPath, path)
}

func (d *diskTier) remove(key string) {
	_ = filesystem.API().Remove(filepath.Join(d.dir, fileName(key)))
}

func (d *diskTier) clear() {
	fs := filesystem.API()
	entries, err := fs.ReadDir(d.dir)
	if err != nil {
		return
	}
	for _, info := range entries {
		if !info.IsDir() {
			_ = fs.Remove(filepath.Join(d.dir, info.Name()))
		}
	}
}

// CollectGarbage launches an asynchronous sweep pruning disk-tier entries
// untouched for longer than ttl. Errors are ignored: a failed sweep only
// means the entries get another chance next startup.
func CollectGarbage(dir string, ttl time.Duration) {
	go func() {
		fs := filesystem.API()
		entries, err := fs.ReadDir(dir)
		if err != nil {
			return
		}

		var pruned int
		for _, info := range entries {
			if info.IsDir() {
				continue
			}
			if time.Since(info.ModTime()) > ttl {
				if err := fs.Remove(filepath.Join(dir, info.Name())); err == nil {
					pruned++
				}
			}
		}
		if pruned > 0 {
			log.Infof("asset cache: pruned %d stale disk entries", pruned)
		}
	}()
}

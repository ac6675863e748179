package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"arcc/internal/drop"
	"arcc/internal/ownership"
)

// Current schema version - increment when a payload format changes
const diskCacheSchemaVersion uint16 = 1

// Digest is a SHA-256 cache key.
type Digest [32]byte

// DiskCache keeps borrow signatures and drop descriptors between runs.
// Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// SignaturePayload is stored per input path: signatures are validated per
// function body, so an edited file still reuses what did not change.
type SignaturePayload struct {
	Schema uint16
	Path   string
	Cache  *ownership.SignatureCache
}

// DropPayload is stored per input content hash. Type ids are only stable
// for identical documents.
type DropPayload struct {
	Schema uint16
	Infos  []drop.Info
}

// OpenDiskCache creates dir if needed.
func OpenDiskCache(dir string) (*DiskCache, error) {
	if dir == "" {
		return nil, errors.New("empty cache directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *DiskCache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *DiskCache) pathFor(kind string, key Digest) string {
	return filepath.Join(c.dir, kind, hex.EncodeToString(key[:])+".mp")
}

func (c *DiskCache) put(kind string, key Digest, payload any) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(kind, key)
	if err = os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err = msgpack.NewEncoder(f).Encode(payload); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), p)
}

func (c *DiskCache) get(kind string, key Digest, out any) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(kind, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

func pathKey(path string) Digest {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return sha256.Sum256([]byte(path))
}

// Signatures returns the signature cache recorded for path, or an empty one
// when nothing usable is stored. The error is reported alongside the empty
// cache so callers can continue without it.
func (c *DiskCache) Signatures(path string) (*ownership.SignatureCache, error) {
	var payload SignaturePayload
	ok, err := c.get("sigs", pathKey(path), &payload)
	if err != nil || !ok || payload.Schema != diskCacheSchemaVersion || payload.Cache == nil {
		return ownership.NewSignatureCache(), err
	}
	if payload.Cache.Entries == nil {
		payload.Cache.Entries = make(map[string]ownership.SigEntry)
	}
	return payload.Cache, nil
}

// PutSignatures stores sc for path.
func (c *DiskCache) PutSignatures(path string, sc *ownership.SignatureCache) error {
	return c.put("sigs", pathKey(path), &SignaturePayload{Schema: diskCacheSchemaVersion, Path: path, Cache: sc})
}

// Drops returns the descriptors stored for a document with this content
// hash.
func (c *DiskCache) Drops(content Digest) ([]drop.Info, bool, error) {
	var payload DropPayload
	ok, err := c.get("drops", content, &payload)
	if err != nil || !ok || payload.Schema != diskCacheSchemaVersion {
		return nil, false, err
	}
	return payload.Infos, true, nil
}

// PutDrops stores the descriptors computed for a document.
func (c *DiskCache) PutDrops(content Digest, infos []drop.Info) error {
	return c.put("drops", content, &DropPayload{Schema: diskCacheSchemaVersion, Infos: infos})
}

// DropAll invalidates the cache, useful after format changes.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}

package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/eduvpn/eduvpn-core/internal/config/atomicfile"
	"github.com/eduvpn/eduvpn-core/internal/util"
	"github.com/go-errors/errors"
)

// cached is the last verified copy of a document
type cached struct {
	// Raw are the exact bytes that were verified
	Raw []byte `json:"raw"`
	// Signature is the .minisig file
	Signature []byte `json:"signature"`
	// SignTime is the time from the trusted comment, zero if it was not checked
	SignTime uint64    `json:"sign_time"`
	Fetched  time.Time `json:"fetched"`
}

// Cache stores a file per discovery document
type Cache struct {
	dir string
}

// NewCache creates a cache in directory 'dir'
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

func (c *Cache) filename(doc Document) string {
	return filepath.Join(c.dir, doc.cacheName()+".json")
}

// load returns the cached document, nil if there is none
func (c *Cache) load(doc Document) (*cached, error) {
	b, err := os.ReadFile(c.filename(doc))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.WrapPrefix(err, "failed reading discovery cache", 0)
	}
	var v cached
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, errors.WrapPrefix(err, fmt.Sprintf("failed decoding discovery cache for: '%s'", doc), 0)
	}
	return &v, nil
}

func (c *Cache) save(doc Document, v *cached) error {
	if err := util.EnsureDirectory(c.dir); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errors.WrapPrefix(err, "failed encoding discovery cache", 0)
	}
	return atomicfile.WriteFile(c.filename(doc), b, 0o600)
}

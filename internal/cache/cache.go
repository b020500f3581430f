// Package cache persists face embeddings on disk, one file per identity.
//
// An entry lives at <dir>/<name>.encoding and holds nothing but the embedding's raw
// little-endian IEEE-754 elements. Readers must know the element width (and, ideally,
// the dimension) ahead of time.
package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/facematch"
)

// Extension is the file suffix of every cache entry.
const Extension = ".encoding"

// Supported element widths in bytes.
const (
	Float32Width = 4
	Float64Width = 8
)

var (
	// ErrCacheMiss means there is no usable entry for the name.
	ErrCacheMiss = errors.New("cache miss")
	// ErrCacheCorrupt means an entry exists but is not a whole number of elements.
	ErrCacheCorrupt = errors.New("cache entry corrupt")
	// ErrCacheDirUnavailable means the cache directory could not be created.
	ErrCacheDirUnavailable = errors.New("cache directory unavailable")
	// ErrInvalidName means the identity name cannot be used as a file name.
	ErrInvalidName = errors.New("invalid identity name")
	// ErrDimensionMismatch means an embedding does not have the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Cache is a directory of raw embedding files.
type Cache struct {
	dir    string
	dim    int
	width  int
	logger *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithDimension sets the expected number of elements per embedding (0 accepts any).
func WithDimension(dim int) Option {
	return func(c *Cache) { c.dim = dim }
}

// WithElementWidth sets the element width in bytes (Float32Width or Float64Width).
func WithElementWidth(width int) Option {
	return func(c *Cache) { c.width = width }
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New opens the cache rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Cache, error) {
	c := &Cache{
		dir:    dir,
		width:  Float64Width,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.width != Float32Width && c.width != Float64Width {
		return nil, fmt.Errorf("unsupported element width %d", c.width)
	}
	if c.dim < 0 {
		return nil, fmt.Errorf("invalid dimension %d", c.dim)
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: empty path", ErrCacheDirUnavailable)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheDirUnavailable, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheDirUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrCacheDirUnavailable, dir)
	}
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Path returns the entry path for name.
func (c *Cache) Path(name string) string {
	return filepath.Join(c.dir, name+Extension)
}

// Read loads the embedding stored for name.
// A missing entry or one with the wrong element count is ErrCacheMiss; an entry whose
// size is not a multiple of the element width is ErrCacheCorrupt.
func (c *Cache) Read(name string) (facematch.Embedding, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	path := c.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCacheMiss, name)
		}
		return nil, fmt.Errorf("failed to read cache entry %s: %w", path, err)
	}

	if len(data)%c.width != 0 {
		return nil, fmt.Errorf("%w: %s has %d bytes, not a multiple of %d", ErrCacheCorrupt, path, len(data), c.width)
	}
	count := len(data) / c.width
	if count == 0 || (c.dim > 0 && count != c.dim) {
		c.logger.Debug("cache entry has unexpected dimension",
			zap.String("name", name),
			zap.Int("elements", count),
			zap.Int("expected", c.dim),
		)
		return nil, fmt.Errorf("%w: %s has %d elements", ErrCacheMiss, name, count)
	}
	return c.decode(data, count), nil
}

// Write stores emb for name, replacing any previous entry.
// The file is written to a temporary name and renamed into place.
func (c *Cache) Write(name string, emb facematch.Embedding) error {
	if err := validateName(name); err != nil {
		return err
	}
	if len(emb) == 0 {
		return fmt.Errorf("%w: empty embedding for %s", ErrDimensionMismatch, name)
	}
	if c.dim > 0 && len(emb) != c.dim {
		return fmt.Errorf("%w: %s has %d elements, want %d", ErrDimensionMismatch, name, len(emb), c.dim)
	}

	path := c.Path(name)
	if err := renameio.WriteFile(path, c.encode(emb), 0o644); err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", path, err)
	}
	c.logger.Debug("cache entry written", zap.String("name", name), zap.String("path", path))
	return nil
}

// List returns the names of all entries, sorted.
func (c *Cache) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), Extension))
	}
	sort.Strings(names)
	return names, nil
}

func (c *Cache) encode(emb facematch.Embedding) []byte {
	out := make([]byte, len(emb)*c.width)
	for i, v := range emb {
		if c.width == Float32Width {
			binary.LittleEndian.PutUint32(out[i*c.width:], math.Float32bits(float32(v)))
		} else {
			binary.LittleEndian.PutUint64(out[i*c.width:], math.Float64bits(v))
		}
	}
	return out
}

func (c *Cache) decode(data []byte, count int) facematch.Embedding {
	out := make(facematch.Embedding, count)
	for i := range out {
		if c.width == Float32Width {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*c.width:])))
		} else {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*c.width:]))
		}
	}
	return out
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

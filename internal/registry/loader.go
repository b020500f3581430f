package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/cache"
	"github.com/kozaktomas/face-id/internal/facematch"
)

var (
	// ErrInvalidPath means the load path is neither a regular file nor a directory.
	ErrInvalidPath = errors.New("path is not a file or directory")
	// ErrNoFaceDetected means a reference image contains no face.
	ErrNoFaceDetected = errors.New("no face detected")
)

// DefaultExtensions are the image file extensions loaded from directories.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

// Failure describes a reference image that could not be loaded.
type Failure struct {
	Path string
	Name string
	Err  error
}

// Report summarizes a Load call.
type Report struct {
	Loaded    []string // identity names in load order
	CacheHits int
	Computed  int
	Failures  []Failure
}

// Loader builds registries from reference images, consulting the cache first.
type Loader struct {
	detector   facematch.Detector
	images     facematch.ImageLoader
	cache      *cache.Cache
	extensions map[string]struct{}
	logger     *zap.Logger
	progress   func(path string)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithCache enables the embedding cache. A nil cache disables caching.
func WithCache(c *cache.Cache) LoaderOption {
	return func(l *Loader) { l.cache = c }
}

// WithExtensions replaces the recognized image extensions. Matching ignores case
// and the leading dot is optional.
func WithExtensions(exts ...string) LoaderOption {
	return func(l *Loader) { l.extensions = extensionSet(exts) }
}

// WithLogger sets the logger for warnings about skipped or suspicious files.
func WithLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithProgress registers a callback invoked after each file is processed.
func WithProgress(fn func(path string)) LoaderOption {
	return func(l *Loader) { l.progress = fn }
}

// NewLoader creates a loader using detector for embeddings and images for decoding.
func NewLoader(detector facematch.Detector, images facematch.ImageLoader, opts ...LoaderOption) *Loader {
	l := &Loader{
		detector:   detector,
		images:     images,
		extensions: extensionSet(DefaultExtensions),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

// IsImage reports whether path has a recognized image extension.
func (l *Loader) IsImage(path string) bool {
	_, ok := l.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// NameFromPath derives the identity name: the base name without its last extension.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Scan returns the files Load would process for path, in processing order.
func (l *Loader) Scan(path string) ([]string, error) {
	files, _, err := l.scan(path)
	return files, err
}

func (l *Loader) scan(path string) ([]string, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", ErrInvalidPath, path, err)
	}

	switch {
	case info.IsDir():
		var files []string
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !l.IsImage(p) {
				return nil
			}
			files = append(files, p)
			return nil
		})
		if err != nil {
			return nil, true, fmt.Errorf("failed to scan %s: %w", path, err)
		}
		return files, true, nil
	case info.Mode().IsRegular():
		return []string{path}, false, nil
	default:
		return nil, false, fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
}

// abortError marks failures that stop the whole load instead of skipping one file.
type abortError struct{ err error }

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

// Load adds the identities found at path to reg.
//
// A directory is walked recursively and every file with a recognized extension is
// loaded; other files are ignored. A single file is always loaded, with a warning
// when its extension is not recognized.
//
// A name that is already in reg is recomputed rather than read from the cache, so the
// last loaded file wins with or without caching.
//
// Images that cannot be decoded, contain no face or yield an embedding of the wrong
// dimension are reported in Report.Failures and skipped. A corrupt cache entry or a
// failed cache write aborts the load; the identities loaded before the error stay in reg.
func (l *Loader) Load(ctx context.Context, path string, reg *Registry) (*Report, error) {
	files, isDir, err := l.scan(path)
	if err != nil {
		return nil, err
	}
	if !isDir && !l.IsImage(path) {
		l.logger.Warn("explicitly loaded file does not have a recognized image extension, make sure it is an image",
			zap.String("path", path))
	}

	report := &Report{}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		name := NameFromPath(file)
		_, seen := reg.Get(name)
		emb, hit, err := l.resolve(ctx, file, name, seen)
		if l.progress != nil {
			l.progress(file)
		}
		if err != nil {
			var abort *abortError
			if errors.As(err, &abort) {
				return report, abort.err
			}
			l.logger.Warn("skipping reference image", zap.String("path", file), zap.Error(err))
			report.Failures = append(report.Failures, Failure{Path: file, Name: name, Err: err})
			continue
		}

		if hit {
			report.CacheHits++
		} else {
			report.Computed++
		}
		l.add(reg, name, emb, file)
		report.Loaded = append(report.Loaded, name)
	}
	return report, nil
}

func (l *Loader) add(reg *Registry, name string, emb facematch.Embedding, file string) {
	for _, existing := range reg.Names() {
		if existing != name && facematch.SamePerson(existing, name) {
			l.logger.Warn("identity names look like the same person",
				zap.String("name", name), zap.String("existing", existing))
		}
	}
	if reg.Set(name, emb) {
		l.logger.Warn("identity loaded twice, keeping the latest", zap.String("name", name), zap.String("path", file))
	}
}

// resolve returns the embedding for one reference image and whether it came from the cache.
// When the name is already registered the cache entry may belong to another file with the
// same name, so the image is recomputed and the entry overwritten.
func (l *Loader) resolve(ctx context.Context, file, name string, registered bool) (facematch.Embedding, bool, error) {
	if name == "" {
		return nil, false, fmt.Errorf("cannot derive identity name from %s", file)
	}

	if l.cache != nil && !registered {
		emb, err := l.cache.Read(name)
		switch {
		case err == nil:
			return emb, true, nil
		case errors.Is(err, cache.ErrInvalidName):
			return nil, false, err
		case !errors.Is(err, cache.ErrCacheMiss):
			return nil, false, &abortError{err: err}
		}
	}

	emb, err := l.compute(ctx, file)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, &abortError{err: err}
		}
		return nil, false, err
	}

	if l.cache != nil {
		if err := l.cache.Write(name, emb); err != nil {
			if errors.Is(err, cache.ErrDimensionMismatch) || errors.Is(err, cache.ErrInvalidName) {
				return nil, false, err
			}
			return nil, false, &abortError{err: err}
		}
	}
	return emb, false, nil
}

// compute embeds the first face of the reference image. Reference images are
// expected to show exactly one person.
func (l *Loader) compute(ctx context.Context, file string) (facematch.Embedding, error) {
	img, err := l.images.LoadImage(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}

	faces, err := l.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to detect faces: %w", err)
	}
	if len(faces) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFaceDetected, file)
	}
	if len(faces) > 1 {
		l.logger.Warn("reference image contains several faces, using the first one",
			zap.String("path", file), zap.Int("faces", len(faces)))
	}
	return faces[0].Embedding, nil
}

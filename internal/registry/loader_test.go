package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kozaktomas/face-id/internal/cache"
	"github.com/kozaktomas/face-id/internal/facematch"
)

// fakeImages "decodes" any file whose name does not contain "broken".
type fakeImages struct{}

func (fakeImages) LoadImage(path string) (*facematch.Image, error) {
	if strings.Contains(path, "broken") {
		return nil, errors.New("unsupported image format")
	}
	return &facematch.Image{Path: path}, nil
}

// fakeDetector returns the faces registered for a file path, falling back to the faces
// registered for its identity name, and counts calls per file.
type fakeDetector struct {
	faces  map[string][]facematch.Face
	byPath map[string][]facematch.Face
	calls  map[string]int
}

func newFakeDetector() *fakeDetector {
	return &fakeDetector{
		faces:  make(map[string][]facematch.Face),
		byPath: make(map[string][]facematch.Face),
		calls:  make(map[string]int),
	}
}

func (d *fakeDetector) withPath(path string, emb facematch.Embedding) *fakeDetector {
	d.byPath[path] = append(d.byPath[path], facematch.Face{Embedding: emb})
	return d
}

func (d *fakeDetector) with(name string, embs ...facematch.Embedding) *fakeDetector {
	for _, e := range embs {
		d.faces[name] = append(d.faces[name], facematch.Face{Embedding: e})
	}
	return d
}

func (d *fakeDetector) Detect(_ context.Context, img *facematch.Image) ([]facematch.Face, error) {
	d.calls[img.Path]++
	if faces, ok := d.byPath[img.Path]; ok {
		return faces, nil
	}
	return d.faces[NameFromPath(img.Path)], nil
}

func (d *fakeDetector) totalCalls() int {
	n := 0
	for _, c := range d.calls {
		n += c
	}
	return n
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("image"), 0o644))
}

func referenceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "alice.jpg"))
	touch(t, filepath.Join(dir, "team", "bob.PNG"))
	touch(t, filepath.Join(dir, "team", "carol.jpeg"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "README"))
	return dir
}

func abcDetector() *fakeDetector {
	return newFakeDetector().
		with("alice", facematch.Embedding{0, 0}).
		with("bob", facematch.Embedding{1, 1}).
		with("carol", facematch.Embedding{2, 2})
}

func TestNameFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/refs/alice.jpg", "alice"},
		{"bob.smith.png", "bob.smith"},
		{"carol", "carol"},
		{"dir/Dave.JPEG", "Dave"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, NameFromPath(tt.path))
		})
	}
}

func TestLoader_IsImage(t *testing.T) {
	l := NewLoader(newFakeDetector(), fakeImages{})
	assert.True(t, l.IsImage("a.jpg"))
	assert.True(t, l.IsImage("a.JPEG"))
	assert.True(t, l.IsImage("a.Png"))
	assert.False(t, l.IsImage("a.jpgx"))
	assert.False(t, l.IsImage("a.gif"))
	assert.False(t, l.IsImage("jpg"))

	custom := NewLoader(newFakeDetector(), fakeImages{}, WithExtensions("webp", " .BMP "))
	assert.True(t, custom.IsImage("a.webp"))
	assert.True(t, custom.IsImage("a.bmp"))
	assert.False(t, custom.IsImage("a.jpg"))
}

func TestLoader_Scan(t *testing.T) {
	dir := referenceDir(t)
	l := NewLoader(newFakeDetector(), fakeImages{})

	files, err := l.Scan(dir)

	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "alice.jpg"),
		filepath.Join(dir, "team", "bob.PNG"),
		filepath.Join(dir, "team", "carol.jpeg"),
	}, files)
}

func TestLoader_InvalidPath(t *testing.T) {
	l := NewLoader(newFakeDetector(), fakeImages{})

	_, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "missing"), New())

	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestLoader_DirectoryWithCache(t *testing.T) {
	dir := referenceDir(t)
	c, err := cache.New(t.TempDir(), cache.WithDimension(2))
	require.NoError(t, err)
	det := abcDetector()
	l := NewLoader(det, fakeImages{}, WithCache(c))

	reg := New()
	report, err := l.Load(context.Background(), dir, reg)

	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, reg.Names())
	assert.Equal(t, []string{"alice", "bob", "carol"}, report.Loaded)
	assert.Equal(t, 3, report.Computed)
	assert.Zero(t, report.CacheHits)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 3, det.totalCalls())
	for path, n := range det.calls {
		assert.Equal(t, 1, n, path)
	}

	names, err := c.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, names)

	// Second load is served from the cache only.
	reg2 := New()
	report2, err := l.Load(context.Background(), dir, reg2)

	require.NoError(t, err)
	assert.Equal(t, 3, det.totalCalls(), "second load must not call the detector")
	assert.Equal(t, 3, report2.CacheHits)
	assert.Zero(t, report2.Computed)
	assert.Equal(t, reg.Entries(), reg2.Entries())
}

func TestLoader_CachingDisabled(t *testing.T) {
	dir := referenceDir(t)
	det := abcDetector()
	l := NewLoader(det, fakeImages{})

	for i := 0; i < 2; i++ {
		_, err := l.Load(context.Background(), dir, New())
		require.NoError(t, err)
	}

	assert.Equal(t, 6, det.totalCalls())
}

func TestLoader_SameFileTwiceIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "alice.jpg")
	touch(t, file)
	l := NewLoader(abcDetector(), fakeImages{})

	reg := New()
	for i := 0; i < 2; i++ {
		_, err := l.Load(context.Background(), file, reg)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, reg.Len())
	got, ok := reg.Get("alice")
	require.True(t, ok)
	assert.Equal(t, facematch.Embedding{0, 0}, got)
}

func TestLoader_MergesIntoExistingRegistry(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	touch(t, filepath.Join(dir1, "alice.jpg"))
	touch(t, filepath.Join(dir2, "bob.jpg"))
	l := NewLoader(abcDetector(), fakeImages{})

	reg := New()
	_, err := l.Load(context.Background(), dir1, reg)
	require.NoError(t, err)
	_, err = l.Load(context.Background(), dir2, reg)
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob"}, reg.Names())
}

func TestLoader_SingleFileWithUnknownExtensionWarns(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "alice.raw")
	touch(t, file)
	core, logs := observer.New(zap.WarnLevel)
	l := NewLoader(abcDetector(), fakeImages{}, WithLogger(zap.New(core)))

	reg := New()
	report, err := l.Load(context.Background(), file, reg)

	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, report.Loaded)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("recognized image extension").Len())
}

func TestLoader_NoFaceIsSkipped(t *testing.T) {
	dir := referenceDir(t)
	touch(t, filepath.Join(dir, "empty.jpg"))
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	l := NewLoader(abcDetector(), fakeImages{}, WithCache(c))

	reg := New()
	report, err := l.Load(context.Background(), dir, reg)

	require.NoError(t, err)
	assert.Equal(t, 3, reg.Len())
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "empty", report.Failures[0].Name)
	assert.ErrorIs(t, report.Failures[0].Err, ErrNoFaceDetected)

	_, err = c.Read("empty")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestLoader_UndecodableImageIsSkipped(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "alice.jpg"))
	touch(t, filepath.Join(dir, "broken.png"))
	l := NewLoader(abcDetector(), fakeImages{})

	reg := New()
	report, err := l.Load(context.Background(), dir, reg)

	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, reg.Names())
	require.Len(t, report.Failures, 1)
	assert.Equal(t, filepath.Join(dir, "broken.png"), report.Failures[0].Path)
}

func TestLoader_CorruptCacheEntryAborts(t *testing.T) {
	dir := referenceDir(t)
	c, err := cache.New(t.TempDir(), cache.WithDimension(2))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(c.Path("bob"), make([]byte, 11), 0o644))
	det := abcDetector()
	l := NewLoader(det, fakeImages{}, WithCache(c))

	reg := New()
	_, err = l.Load(context.Background(), dir, reg)

	require.Error(t, err)
	assert.ErrorIs(t, err, cache.ErrCacheCorrupt)
	assert.Equal(t, []string{"alice"}, reg.Names(), "identities loaded before the error are kept")
	assert.Zero(t, det.calls[filepath.Join(dir, "team", "bob.PNG")], "corrupt entry must not be recomputed")
}

func TestLoader_DimensionMismatchIsRecomputed(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "alice.jpg"))
	c, err := cache.New(t.TempDir(), cache.WithDimension(2))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(c.Path("alice"), make([]byte, 8*3), 0o644))
	det := abcDetector()
	l := NewLoader(det, fakeImages{}, WithCache(c))

	report, err := l.Load(context.Background(), dir, New())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Computed)
	got, err := c.Read("alice")
	require.NoError(t, err)
	assert.Equal(t, facematch.Embedding{0, 0}, got)
}

func TestLoader_DuplicateNamesLastLoadedWins(t *testing.T) {
	tests := []struct {
		name   string
		cached bool
	}{
		{"no cache", false},
		{"cache", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cached := tt.cached
			dir := t.TempDir()
			first := filepath.Join(dir, "a", "jan.jpg")
			second := filepath.Join(dir, "b", "jan.jpg")
			touch(t, first)
			touch(t, second)
			det := newFakeDetector().
				withPath(first, facematch.Embedding{0, 0}).
				withPath(second, facematch.Embedding{5, 5})

			var opts []LoaderOption
			var c *cache.Cache
			if cached {
				var err error
				c, err = cache.New(t.TempDir(), cache.WithDimension(2))
				require.NoError(t, err)
				opts = append(opts, WithCache(c))
			}
			core, logs := observer.New(zap.WarnLevel)
			opts = append(opts, WithLogger(zap.New(core)))
			l := NewLoader(det, fakeImages{}, opts...)

			reg := New()
			report, err := l.Load(context.Background(), dir, reg)

			require.NoError(t, err)
			assert.Equal(t, []string{"jan", "jan"}, report.Loaded)
			assert.Equal(t, 2, report.Computed)
			got, _ := reg.Get("jan")
			assert.Equal(t, facematch.Embedding{5, 5}, got)
			assert.Equal(t, 1, det.calls[second])
			assert.Equal(t, 1, logs.FilterMessageSnippet("loaded twice").Len())
			assert.Zero(t, logs.FilterMessageSnippet("same person").Len())

			if cached {
				stored, err := c.Read("jan")
				require.NoError(t, err)
				assert.Equal(t, facematch.Embedding{5, 5}, stored)
			}
		})
	}
}

func TestLoader_DuplicateNamesAcrossLoads(t *testing.T) {
	first := filepath.Join(t.TempDir(), "jan.jpg")
	second := filepath.Join(t.TempDir(), "jan.jpg")
	touch(t, first)
	touch(t, second)
	det := newFakeDetector().
		withPath(first, facematch.Embedding{0, 0}).
		withPath(second, facematch.Embedding{5, 5})
	c, err := cache.New(t.TempDir(), cache.WithDimension(2))
	require.NoError(t, err)
	l := NewLoader(det, fakeImages{}, WithCache(c))

	reg := New()
	_, err = l.Load(context.Background(), first, reg)
	require.NoError(t, err)
	_, err = l.Load(context.Background(), second, reg)
	require.NoError(t, err)

	got, _ := reg.Get("jan")
	assert.Equal(t, facematch.Embedding{5, 5}, got)
}

func TestLoader_WrongDimensionFromDetectorIsSkipped(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "alice.jpg"))
	touch(t, filepath.Join(dir, "bob.jpg"))
	wide := make(facematch.Embedding, 512)
	det := newFakeDetector().
		with("alice", wide).
		with("bob", facematch.Embedding{1, 1})
	c, err := cache.New(t.TempDir(), cache.WithDimension(2))
	require.NoError(t, err)
	l := NewLoader(det, fakeImages{}, WithCache(c))

	reg := New()
	report, err := l.Load(context.Background(), dir, reg)

	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, reg.Names())
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "alice", report.Failures[0].Name)
	assert.ErrorIs(t, report.Failures[0].Err, cache.ErrDimensionMismatch)
}

func TestLoader_MultipleFacesUsesFirst(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "group.jpg"))
	det := newFakeDetector().with("group", facematch.Embedding{5, 5}, facematch.Embedding{6, 6})
	core, logs := observer.New(zap.WarnLevel)
	l := NewLoader(det, fakeImages{}, WithLogger(zap.New(core)))

	reg := New()
	_, err := l.Load(context.Background(), dir, reg)

	require.NoError(t, err)
	got, _ := reg.Get("group")
	assert.Equal(t, facematch.Embedding{5, 5}, got)
	assert.Equal(t, 1, logs.FilterMessageSnippet("several faces").Len())
}

func TestLoader_WarnsOnSimilarNames(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a", "jan_novak.jpg"))
	touch(t, filepath.Join(dir, "b", "Jan Novák.jpg"))
	det := newFakeDetector().
		with("jan_novak", facematch.Embedding{1}).
		with("Jan Novák", facematch.Embedding{2})
	core, logs := observer.New(zap.WarnLevel)
	l := NewLoader(det, fakeImages{}, WithLogger(zap.New(core)))

	reg := New()
	_, err := l.Load(context.Background(), dir, reg)

	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("same person").Len())
}

func TestLoader_Progress(t *testing.T) {
	dir := referenceDir(t)
	var seen []string
	l := NewLoader(abcDetector(), fakeImages{}, WithProgress(func(path string) {
		seen = append(seen, filepath.Base(path))
	}))

	_, err := l.Load(context.Background(), dir, New())

	require.NoError(t, err)
	assert.Equal(t, []string{"alice.jpg", "bob.PNG", "carol.jpeg"}, seen)
}

func TestLoader_CancelledContext(t *testing.T) {
	dir := referenceDir(t)
	det := abcDetector()
	l := NewLoader(det, fakeImages{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Load(ctx, dir, New())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, det.totalCalls())
}

package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Recognizer backends.
const (
	BackendHTTP = "http"
	BackendDlib = "dlib"
)

// Backend defaults used when the dimension or tolerance is not configured.
// The HTTP embedding server returns unit-length 512-d vectors, where a Euclidean
// distance of 1.0 equals a cosine distance of 0.5. dlib descriptors are 128-d and
// are conventionally matched at 0.6.
const (
	HTTPDimension = 512
	HTTPTolerance = 1.0
	DlibDimension = 128
	DlibTolerance = 0.6
)

type Config struct {
	LogLevel    string            `yaml:"log_level"`
	Cache       CacheConfig       `yaml:"cache"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Recognizer  RecognizerConfig  `yaml:"recognizer"`
}

type CacheConfig struct {
	Dir          string `yaml:"dir"`
	Enabled      bool   `yaml:"enabled"`
	Dimension    int    `yaml:"dimension"`     // elements per embedding, 0 = backend default
	ElementWidth int    `yaml:"element_width"` // bytes per element, 8 (float64) or 4 (float32)
}

type RecognitionConfig struct {
	Tolerance  float64  `yaml:"tolerance"` // 0 = backend default
	Extensions []string `yaml:"extensions"`
}

type RecognizerConfig struct {
	Backend      string `yaml:"backend"` // "http" or "dlib"
	URL          string `yaml:"url"`
	MaxImageSize int    `yaml:"max_image_size"` // downscale uploads above this size, 0 = never
	ModelsDir    string `yaml:"models_dir"`
}

// EmbeddingDimension returns the configured dimension or the backend's default.
func (c *Config) EmbeddingDimension() int {
	if c.Cache.Dimension > 0 {
		return c.Cache.Dimension
	}
	switch c.Recognizer.Backend {
	case BackendHTTP:
		return HTTPDimension
	case BackendDlib:
		return DlibDimension
	default:
		return 0
	}
}

// MatchTolerance returns the configured tolerance or the backend's default.
func (c *Config) MatchTolerance() float64 {
	if c.Recognition.Tolerance > 0 {
		return c.Recognition.Tolerance
	}
	if c.Recognizer.Backend == BackendDlib {
		return DlibTolerance
	}
	return HTTPTolerance
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma separated list, falling back to defaultVal.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

// Load returns the embedded defaults overridden by environment variables.
func Load() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)

	cfg.Cache.Dir = envString("FACEID_CACHE_DIR", cfg.Cache.Dir)
	if disabled, err := strconv.ParseBool(os.Getenv("FACEID_CACHE_DISABLED")); err == nil {
		cfg.Cache.Enabled = !disabled
	}
	cfg.Cache.Dimension = envInt("FACEID_EMBEDDING_DIM", cfg.Cache.Dimension)
	cfg.Cache.ElementWidth = envInt("FACEID_ELEMENT_WIDTH", cfg.Cache.ElementWidth)

	cfg.Recognition.Tolerance = envFloat("FACEID_TOLERANCE", cfg.Recognition.Tolerance)
	cfg.Recognition.Extensions = envList("FACEID_EXTENSIONS", cfg.Recognition.Extensions)

	cfg.Recognizer.Backend = strings.ToLower(envString("FACEID_BACKEND", cfg.Recognizer.Backend))
	cfg.Recognizer.URL = envString("EMBEDDING_URL", cfg.Recognizer.URL)
	cfg.Recognizer.MaxImageSize = envInt("FACEID_MAX_IMAGE_SIZE", cfg.Recognizer.MaxImageSize)
	cfg.Recognizer.ModelsDir = envString("FACEID_DLIB_MODELS", cfg.Recognizer.ModelsDir)

	return &cfg
}

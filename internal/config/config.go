package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// Recognizer backends.
const (
	RecognizerDlib    = "dlib"
	RecognizerService = "service"
)

type Config struct {
	Data        DataConfig        `yaml:"data"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Web         WebConfig         `yaml:"web"`
	Database    DatabaseConfig    `yaml:"database"`
	LogLevel    string            `yaml:"log_level"`
}

type DataConfig struct {
	Dir string `yaml:"dir"` // base directory, defaults to "data"
}

// ImagesDir is the directory holding one reference image per roll.
func (c *DataConfig) ImagesDir() string { return filepath.Join(c.Dir, "images") }

// RosterFile is the roll,name CSV file.
func (c *DataConfig) RosterFile() string { return filepath.Join(c.Dir, "students.csv") }

// EncodingsFile is the serialized known-face blob.
func (c *DataConfig) EncodingsFile() string { return filepath.Join(c.Dir, "face_encodings.gob") }

// AttendanceFile is the JSON attendance snapshot.
func (c *DataConfig) AttendanceFile() string { return filepath.Join(c.Dir, "attendance.json") }

type RecognitionConfig struct {
	Backend      string  `yaml:"backend"`        // dlib or service
	ModelsDir    string  `yaml:"models_dir"`     // dlib model files
	Detector     string  `yaml:"detector"`       // hog or cnn (dlib only)
	ServiceURL   string  `yaml:"service_url"`    // face embedding server, defaults to http://localhost:8000
	Tolerance    float64 `yaml:"tolerance"`      // max Euclidean distance for a match
	MatchPolicy  string  `yaml:"match_policy"`   // first or closest
	CropMargin   float64 `yaml:"crop_margin"`    // fraction of the box added on each side of a face crop
	MaxFrameSize int     `yaml:"max_frame_size"` // request body limit in bytes
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`            // PostgreSQL connection URL, empty disables the snapshot archive
	MaxOpenConns int    `yaml:"max_open_conns"` // default 5
	MaxIdleConns int    `yaml:"max_idle_conns"` // default 2
}

// Defaults returns the configuration used when neither a file nor the environment say otherwise.
func Defaults() *Config {
	return &Config{
		Data: DataConfig{Dir: "data"},
		Recognition: RecognitionConfig{
			Backend:      RecognizerDlib,
			ModelsDir:    "models",
			Detector:     "hog",
			ServiceURL:   "http://localhost:8000",
			Tolerance:    0.6,
			MatchPolicy:  recognition.PolicyFirst,
			CropMargin:   0,
			MaxFrameSize: 10 << 20,
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 5000,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 5,
			MaxIdleConns: 2,
		},
		LogLevel: "info",
	}
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

// envFloat reads an environment variable and parses it as a non-negative float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
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

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_FILE, and finally environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Data.Dir = envString("DATA_DIR", c.Data.Dir)

	c.Recognition.Backend = envString("RECOGNIZER", c.Recognition.Backend)
	c.Recognition.ModelsDir = envString("MODELS_DIR", c.Recognition.ModelsDir)
	c.Recognition.Detector = envString("FACE_DETECTOR", c.Recognition.Detector)
	c.Recognition.ServiceURL = envString("EMBEDDING_URL", c.Recognition.ServiceURL)
	c.Recognition.Tolerance = envFloat("MATCH_TOLERANCE", c.Recognition.Tolerance)
	c.Recognition.MatchPolicy = envString("MATCH_POLICY", c.Recognition.MatchPolicy)
	c.Recognition.CropMargin = envFloat("CROP_MARGIN", c.Recognition.CropMargin)
	c.Recognition.MaxFrameSize = envInt("MAX_FRAME_BYTES", c.Recognition.MaxFrameSize)

	c.Web.Host = envString("WEB_HOST", c.Web.Host)
	c.Web.Port = envInt("WEB_PORT", c.Web.Port)
	if env := os.Getenv("WEB_ALLOWED_ORIGINS"); env != "" {
		c.Web.AllowedOrigins = nil
		for o := range strings.SplitSeq(env, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Web.AllowedOrigins = append(c.Web.AllowedOrigins, o)
			}
		}
	}

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	c.LogLevel = envString("LOG_LEVEL", c.LogLevel)
}

// Validate rejects values the rest of the program cannot work with.
func (c *Config) Validate() error {
	if c.Data.Dir == "" {
		return fmt.Errorf("%w: data dir must not be empty", ErrInvalidConfig)
	}
	switch c.Recognition.Backend {
	case RecognizerDlib, RecognizerService:
	default:
		return fmt.Errorf("%w: unknown recognizer %q", ErrInvalidConfig, c.Recognition.Backend)
	}
	switch c.Recognition.MatchPolicy {
	case recognition.PolicyFirst, recognition.PolicyClosest:
	default:
		return fmt.Errorf("%w: unknown match policy %q", ErrInvalidConfig, c.Recognition.MatchPolicy)
	}
	if c.Recognition.Tolerance <= 0 {
		return fmt.Errorf("%w: tolerance must be positive", ErrInvalidConfig)
	}
	if c.Recognition.CropMargin > 1 {
		return fmt.Errorf("%w: crop margin must be within [0, 1]", ErrInvalidConfig)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

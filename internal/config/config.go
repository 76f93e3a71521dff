package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	MinIO       MinIOConfig       `yaml:"minio"`
	Redis       RedisConfig       `yaml:"redis"`
	Vision      VisionConfig      `yaml:"vision"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Attendance  AttendanceConfig  `yaml:"attendance"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port          int           `yaml:"port"`
	MetricsPort   int           `yaml:"metrics_port"`
	APIKey        string        `yaml:"api_key"`
	StatsCacheTTL time.Duration `yaml:"stats_cache_ttl"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // postgres or sqlite
	SQLitePath string `yaml:"sqlite_path"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Name       string `yaml:"name"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	MaxConns   int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// NATSConfig enables the training queue and event fan-out when URL is set.
// Without it the API trains inline and feeds its own websocket hub.
type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	// LocalDir holds objects on disk when Endpoint is empty.
	LocalDir string `yaml:"local_dir"`
}

// RedisConfig enables the cross-process training lock when Addr is set.
type RedisConfig struct {
	Addr    string        `yaml:"addr"`
	LockKey string        `yaml:"lock_key"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

type VisionConfig struct {
	CascadePath   string  `yaml:"cascade_path"`
	ScaleFactor   float64 `yaml:"scale_factor"`
	MinNeighbors  int     `yaml:"min_neighbors"`
	MinFaceSize   int     `yaml:"min_face_size"`
	FaceSize      int     `yaml:"face_size"`
	BlurKernel    int     `yaml:"blur_kernel"`
	MinImageSize  int     `yaml:"min_image_size"`
	MaxImageBytes int64   `yaml:"max_image_bytes"`
	CameraDevice  int     `yaml:"camera_device"`
}

type RecognitionConfig struct {
	HighBelow       float64 `yaml:"high_below"`
	MediumBelow     float64 `yaml:"medium_below"`
	AcceptableBelow float64 `yaml:"acceptable_below"`
	SnapshotBackend string  `yaml:"snapshot_backend"` // file or minio
	SnapshotDir     string  `yaml:"snapshot_dir"`
	GridX           int     `yaml:"grid_x"`
	GridY           int     `yaml:"grid_y"`
}

type AttendanceConfig struct {
	ClassStart   string `yaml:"class_start"`   // HH:MM
	GraceMinutes *int   `yaml:"grace_minutes"` // nil means the default; 0 is no grace
	Timezone     string `yaml:"timezone"`
	HistoryLimit int    `yaml:"history_limit"`
}

// DefaultGraceMinutes applies when grace_minutes is absent.
const DefaultGraceMinutes = 15

// Grace is the period after class start during which a mark is still Present.
func (a AttendanceConfig) Grace() time.Duration {
	if a.GraceMinutes == nil {
		return DefaultGraceMinutes * time.Minute
	}
	return time.Duration(*a.GraceMinutes) * time.Minute
}

// Location resolves Timezone, falling back to the process local zone.
func (a AttendanceConfig) Location() (*time.Location, error) {
	if a.Timezone == "" || a.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A .env file in the working directory is honoured when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied and nothing read from disk.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Validate checks cross-field constraints that defaults cannot repair.
func (c *Config) Validate() error {
	r := c.Recognition
	if !(r.HighBelow < r.MediumBelow && r.MediumBelow < r.AcceptableBelow) {
		return fmt.Errorf("recognition thresholds must be ascending: high=%v medium=%v acceptable=%v",
			r.HighBelow, r.MediumBelow, r.AcceptableBelow)
	}
	if c.Vision.ScaleFactor <= 1 {
		return fmt.Errorf("vision.scale_factor must be > 1, got %v", c.Vision.ScaleFactor)
	}
	if _, err := time.Parse("15:04", c.Attendance.ClassStart); err != nil {
		return fmt.Errorf("attendance.class_start %q: %w", c.Attendance.ClassStart, err)
	}
	if g := c.Attendance.GraceMinutes; g != nil && *g < 0 {
		return fmt.Errorf("attendance.grace_minutes must not be negative, got %d", *g)
	}
	if _, err := c.Attendance.Location(); err != nil {
		return err
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Recognition.SnapshotBackend {
	case "file", "minio":
	default:
		return fmt.Errorf("unknown snapshot backend %q", c.Recognition.SnapshotBackend)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 8082
	}
	if cfg.Server.StatsCacheTTL == 0 {
		cfg.Server.StatsCacheTTL = 30 * time.Second
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/attendance.db"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "attendance"
	}
	if cfg.MinIO.LocalDir == "" {
		cfg.MinIO.LocalDir = "data/objects"
	}
	if cfg.Redis.LockKey == "" {
		cfg.Redis.LockKey = "attendance:training-lock"
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = 10 * time.Minute
	}
	if cfg.Vision.CascadePath == "" {
		cfg.Vision.CascadePath = "models/haarcascade_frontalface_default.xml"
	}
	if cfg.Vision.ScaleFactor == 0 {
		cfg.Vision.ScaleFactor = 1.1
	}
	if cfg.Vision.MinNeighbors == 0 {
		cfg.Vision.MinNeighbors = 5
	}
	if cfg.Vision.MinFaceSize == 0 {
		cfg.Vision.MinFaceSize = 30
	}
	if cfg.Vision.FaceSize == 0 {
		cfg.Vision.FaceSize = 200
	}
	if cfg.Vision.BlurKernel == 0 {
		cfg.Vision.BlurKernel = 5
	}
	if cfg.Vision.MinImageSize == 0 {
		cfg.Vision.MinImageSize = 100
	}
	if cfg.Vision.MaxImageBytes == 0 {
		cfg.Vision.MaxImageBytes = 5 * 1024 * 1024
	}
	if cfg.Recognition.HighBelow == 0 {
		cfg.Recognition.HighBelow = 40
	}
	if cfg.Recognition.MediumBelow == 0 {
		cfg.Recognition.MediumBelow = 70
	}
	if cfg.Recognition.AcceptableBelow == 0 {
		cfg.Recognition.AcceptableBelow = 100
	}
	if cfg.Recognition.SnapshotBackend == "" {
		cfg.Recognition.SnapshotBackend = "file"
	}
	if cfg.Recognition.SnapshotDir == "" {
		cfg.Recognition.SnapshotDir = "recognizer"
	}
	if cfg.Recognition.GridX == 0 {
		cfg.Recognition.GridX = 8
	}
	if cfg.Recognition.GridY == 0 {
		cfg.Recognition.GridY = 8
	}
	if cfg.Attendance.ClassStart == "" {
		cfg.Attendance.ClassStart = "09:00"
	}
	if cfg.Attendance.GraceMinutes == nil {
		grace := DefaultGraceMinutes
		cfg.Attendance.GraceMinutes = &grace
	}
	if cfg.Attendance.HistoryLimit == 0 {
		cfg.Attendance.HistoryLimit = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ATT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ATT_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("ATT_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("ATT_DB_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("ATT_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("ATT_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("ATT_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("ATT_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("ATT_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("ATT_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("ATT_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("ATT_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("ATT_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("ATT_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("ATT_OBJECT_DIR"); v != "" {
		cfg.MinIO.LocalDir = v
	}
	if v := os.Getenv("ATT_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("ATT_CASCADE_PATH"); v != "" {
		cfg.Vision.CascadePath = v
	}
	if v := os.Getenv("ATT_SNAPSHOT_BACKEND"); v != "" {
		cfg.Recognition.SnapshotBackend = v
	}
	if v := os.Getenv("ATT_SNAPSHOT_DIR"); v != "" {
		cfg.Recognition.SnapshotDir = v
	}
	if v := os.Getenv("ATT_CLASS_START"); v != "" {
		cfg.Attendance.ClassStart = v
	}
	if v := os.Getenv("ATT_GRACE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Attendance.GraceMinutes = &n
		}
	}
	if v := os.Getenv("ATT_TIMEZONE"); v != "" {
		cfg.Attendance.Timezone = v
	}
	if v := os.Getenv("ATT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

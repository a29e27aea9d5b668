package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	ServerAddress string       `json:"serverAddress" mapstructure:"serverAddress"`
	DatabasePath  string       `json:"databasePath" mapstructure:"databasePath"`
	DatabaseURL   string       `json:"databaseUrl" mapstructure:"databaseUrl"`
	PhotoStorage  PhotoStorage `json:"photoStorage" mapstructure:"photoStorage"`
	MinIO         MinIO        `json:"minio" mapstructure:"minio"`
	Security      Security     `json:"security" mapstructure:"security"`
	Agent         Agent        `json:"agent" mapstructure:"agent"`
	Logging       Logging      `json:"logging" mapstructure:"logging"`
}

// UsePostgres returns true if PostgreSQL should be used
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// PhotoStorage configuration
type PhotoStorage struct {
	Backend           string   `json:"backend" mapstructure:"backend"`
	BasePath          string   `json:"basePath" mapstructure:"basePath"`
	MaxFileSizeMB     int64    `json:"maxFileSizeMB" mapstructure:"maxFileSizeMB"`
	AllowedExtensions []string `json:"allowedExtensions" mapstructure:"allowedExtensions"`
	ThumbnailSize     int      `json:"thumbnailSize" mapstructure:"thumbnailSize"`
}

// UseObjectStorage returns true if received photos go to a MinIO bucket
func (p PhotoStorage) UseObjectStorage() bool {
	return strings.EqualFold(p.Backend, "minio")
}

// MinIO configuration for the object storage backend
type MinIO struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"accessKey" mapstructure:"accessKey"`
	SecretKey string `json:"secretKey" mapstructure:"secretKey"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `json:"useSSL" mapstructure:"useSSL"`
}

// Security configuration
type Security struct {
	APIKey       string `json:"apiKey" mapstructure:"apiKey"`
	APIKeyHash   string `json:"apiKeyHash" mapstructure:"apiKeyHash"`
	APIKeyHeader string `json:"apiKeyHeader" mapstructure:"apiKeyHeader"`
}

// Agent configures the device-side sync agent
type Agent struct {
	WatchPath               string   `json:"watchPath" mapstructure:"watchPath"`
	StatePath               string   `json:"statePath" mapstructure:"statePath"`
	EndpointURL             string   `json:"endpointUrl" mapstructure:"endpointUrl"`
	AuthToken               string   `json:"authToken" mapstructure:"authToken"`
	DeviceID                string   `json:"deviceId" mapstructure:"deviceId"`
	StatusAddress           string   `json:"statusAddress" mapstructure:"statusAddress"`
	DebounceMS              int      `json:"debounceMs" mapstructure:"debounceMs"`
	SettleMS                int      `json:"settleMs" mapstructure:"settleMs"`
	PeriodicIntervalMinutes int      `json:"periodicIntervalMinutes" mapstructure:"periodicIntervalMinutes"`
	RunTimeoutMinutes       int      `json:"runTimeoutMinutes" mapstructure:"runTimeoutMinutes"`
	UploadTimeoutSeconds    int      `json:"uploadTimeoutSeconds" mapstructure:"uploadTimeoutSeconds"`
	MaxFileSizeMB           int64    `json:"maxFileSizeMB" mapstructure:"maxFileSizeMB"`
	RequireUnmetered        bool     `json:"requireUnmetered" mapstructure:"requireUnmetered"`
	RequireCharging         bool     `json:"requireCharging" mapstructure:"requireCharging"`
	ConditionsPath          string   `json:"conditionsPath" mapstructure:"conditionsPath"`
	AllowedExtensions       []string `json:"allowedExtensions" mapstructure:"allowedExtensions"`
}

// DebounceInterval is the quiet period the change trigger waits for
func (a Agent) DebounceInterval() time.Duration {
	return time.Duration(a.DebounceMS) * time.Millisecond
}

// SettleDelay is how long a file must be left untouched before it is indexed
func (a Agent) SettleDelay() time.Duration {
	return time.Duration(a.SettleMS) * time.Millisecond
}

// MaxFileSize is the largest file the intake accepts, in bytes. Zero means no limit.
func (a Agent) MaxFileSize() int64 {
	return a.MaxFileSizeMB * 1024 * 1024
}

// PeriodicInterval is the period of the background trigger
func (a Agent) PeriodicInterval() time.Duration {
	return time.Duration(a.PeriodicIntervalMinutes) * time.Minute
}

// RunTimeout is the deadline of a periodic run; zero means none
func (a Agent) RunTimeout() time.Duration {
	return time.Duration(a.RunTimeoutMinutes) * time.Minute
}

// UploadTimeout bounds a single upload request
func (a Agent) UploadTimeout() time.Duration {
	return time.Duration(a.UploadTimeoutSeconds) * time.Second
}

// ResolveDeviceID returns the configured device ID, or a stable ID
// derived from the host name and watch path.
func (a Agent) ResolveDeviceID() string {
	if a.DeviceID != "" {
		return a.DeviceID
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("photosync://"+host+"/"+a.WatchPath)).String()
}

// Validate checks the settings the agent cannot run without
func (a Agent) Validate() error {
	if strings.TrimSpace(a.WatchPath) == "" {
		return fmt.Errorf("agent.watchPath is required")
	}
	if strings.TrimSpace(a.EndpointURL) == "" {
		return fmt.Errorf("agent.endpointUrl is required")
	}
	if a.PeriodicIntervalMinutes <= 0 {
		return fmt.Errorf("agent.periodicIntervalMinutes must be positive")
	}
	if a.SettleMS <= 0 {
		return fmt.Errorf("agent.settleMs must be positive")
	}
	return nil
}

// Logging configuration
type Logging struct {
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	MaxSizeMB  int    `json:"maxSizeMB" mapstructure:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups"`
}

var imageExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".heif",
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ServerAddress: ":5000",
		DatabasePath:  "photosync.db",
		PhotoStorage: PhotoStorage{
			Backend:           "local",
			BasePath:          "./photos",
			MaxFileSizeMB:     50,
			AllowedExtensions: append([]string(nil), imageExtensions...),
			ThumbnailSize:     320,
		},
		MinIO: MinIO{
			Bucket: "photosync",
		},
		Security: Security{
			APIKey:       "CHANGE_THIS_TO_A_SECURE_API_KEY_AT_LEAST_32_CHARS",
			APIKeyHeader: "Authorization",
		},
		Agent: Agent{
			StatePath:               "photosync-agent.db",
			EndpointURL:             "http://localhost:5000/api/upload",
			StatusAddress:           "127.0.0.1:5050",
			DebounceMS:              2000,
			SettleMS:                1000,
			PeriodicIntervalMinutes: 15,
			UploadTimeoutSeconds:    120,
			MaxFileSizeMB:           50,
			AllowedExtensions:       append([]string(nil), imageExtensions...),
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// envBindings maps config keys to the environment variables that override them
var envBindings = map[string]string{
	"serverAddress":                 "SERVER_ADDRESS",
	"databasePath":                  "DATABASE_PATH",
	"databaseUrl":                   "DATABASE_URL",
	"photoStorage.basePath":         "PHOTO_STORAGE_PATH",
	"photoStorage.backend":          "PHOTO_STORAGE_BACKEND",
	"minio.endpoint":                "MINIO_ENDPOINT",
	"minio.accessKey":               "MINIO_ACCESS_KEY",
	"minio.secretKey":               "MINIO_SECRET_KEY",
	"minio.bucket":                  "MINIO_BUCKET",
	"minio.useSSL":                  "MINIO_USE_SSL",
	"security.apiKey":               "API_KEY",
	"security.apiKeyHash":           "API_KEY_HASH",
	"agent.watchPath":               "AGENT_WATCH_PATH",
	"agent.statePath":               "AGENT_STATE_PATH",
	"agent.endpointUrl":             "AGENT_ENDPOINT_URL",
	"agent.authToken":               "AGENT_AUTH_TOKEN",
	"agent.deviceId":                "AGENT_DEVICE_ID",
	"agent.statusAddress":           "AGENT_STATUS_ADDRESS",
	"agent.debounceMs":              "AGENT_DEBOUNCE_MS",
	"agent.periodicIntervalMinutes": "AGENT_SYNC_INTERVAL_MINUTES",
	"agent.runTimeoutMinutes":       "AGENT_RUN_TIMEOUT_MINUTES",
	"agent.maxFileSizeMB":           "AGENT_MAX_FILE_SIZE_MB",
	"agent.requireUnmetered":        "AGENT_REQUIRE_UNMETERED",
	"agent.requireCharging":         "AGENT_REQUIRE_CHARGING",
	"agent.conditionsPath":          "AGENT_CONDITIONS_PATH",
	"logging.level":                 "LOG_LEVEL",
	"logging.file":                  "LOG_FILE",
}

// Load loads configuration from file or environment
func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from the given JSON file, if it exists,
// then applies environment overrides.
func LoadFile(configPath string) (*Config, error) {
	cfg := defaultConfig()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Lists from the file replace the defaults instead of merging into them.
	if v.IsSet("photoStorage.allowedExtensions") {
		cfg.PhotoStorage.AllowedExtensions = v.GetStringSlice("photoStorage.allowedExtensions")
	}
	if v.IsSet("agent.allowedExtensions") {
		cfg.Agent.AllowedExtensions = v.GetStringSlice("agent.allowedExtensions")
	}

	return cfg, nil
}

// EnsurePhotoStorage creates the local photo directory and makes its path absolute
func (c *Config) EnsurePhotoStorage() error {
	if err := os.MkdirAll(c.PhotoStorage.BasePath, 0755); err != nil {
		return err
	}

	absPath, err := filepath.Abs(c.PhotoStorage.BasePath)
	if err != nil {
		return err
	}
	c.PhotoStorage.BasePath = absPath
	return nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lpernett/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// DefaultInstruction is sent with every image of a touch-up batch.
const DefaultInstruction = "Remove some wrinkles. Don't change the layout."

// AgentsConfig configures the batch touch-up submitter.
type AgentsConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	WatchPath      string        `mapstructure:"watch_path"`
	ProcessingPath string        `mapstructure:"processing_path"`
	OutputPath     string        `mapstructure:"output_path"`
	StateFile      string        `mapstructure:"state_file"`
	TempDir        string        `mapstructure:"temp_dir"` // "" means os.TempDir()
	Instruction    string        `mapstructure:"instruction"`
	Interval       time.Duration `mapstructure:"interval"`
	Jitter         time.Duration `mapstructure:"jitter"`
}

// GarmentConfig configures the editor round-trip watcher.
type GarmentConfig struct {
	WatchPath      string        `mapstructure:"watch_path"`
	ExportPath     string        `mapstructure:"export_path"` // where the editor drops its results
	OutPath        string        `mapstructure:"out_path"`
	FilterApp      string        `mapstructure:"filter_app"`
	OpenCommand    string        `mapstructure:"open_command"`
	OpenDelay      time.Duration `mapstructure:"open_delay"`
	OpenExisting   bool          `mapstructure:"open_existing"` // also open photos already in WatchPath at startup
	Debounce       time.Duration `mapstructure:"debounce"`
	APIURL         string        `mapstructure:"api_url"`
	WaitAttempts   int           `mapstructure:"wait_attempts"`
	WaitInterval   time.Duration `mapstructure:"wait_interval"`
	UploadAttempts int           `mapstructure:"upload_attempts"`
	UploadDelay    time.Duration `mapstructure:"upload_delay"`
}

// StorageConfig points at an S3-compatible bucket (GCS interoperability by default).
type StorageConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	CreateBucket bool   `mapstructure:"create_bucket"`
}

type Config struct {
	Agents  AgentsConfig  `mapstructure:"agents"`
	Garment GarmentConfig `mapstructure:"garment"`
	Storage StorageConfig `mapstructure:"storage"`

	Monitor struct {
		RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	} `mapstructure:"monitor"`

	Log struct {
		Level   string `mapstructure:"level"`
		File    string `mapstructure:"file"`
		NoColor bool   `mapstructure:"no_color"`
	} `mapstructure:"log"`
}

// legacyEnv maps config keys to the environment variable names the hotfolder
// scripts have always used. HOTFOLDER_<KEY> works for every key as well.
var legacyEnv = map[string]string{
	"agents.api_key":         "GEMINI_API_KEY",
	"agents.model":           "GEMINI_BATCH_MODEL",
	"agents.watch_path":      "AGENTS_WATCH_PATH",
	"agents.processing_path": "AGENTS_PROCESSING_PATH",
	"agents.output_path":     "AGENTS_UPSCALE_OUT_PATH",
	"agents.state_file":      "AGENTS_STATE_FILE",
	"garment.watch_path":     "GARMENT_WATCH_PATH",
	"garment.export_path":    "GARMENT_PS_WATCH_PATH",
	"garment.out_path":       "GARMENT_OUT_PATH",
	"garment.filter_app":     "GARMENT_FILTER_APP",
	"garment.api_url":        "API_URL",
	"storage.access_key":     "STORAGE_ACCESS_KEY",
	"storage.secret_key":     "STORAGE_SECRET_KEY",
	"storage.bucket":         "STORAGE_BUCKET",
}

const envPrefix = "HOTFOLDER"

func setDefaults(v *viper.Viper) {
	v.SetDefault("agents.api_key", "")
	v.SetDefault("agents.model", "gemini-3-pro-image-preview")
	v.SetDefault("agents.watch_path", "agents/watch")
	v.SetDefault("agents.processing_path", "agents/processing")
	v.SetDefault("agents.output_path", "agents/upscaled")
	v.SetDefault("agents.state_file", "agents-state.json")
	v.SetDefault("agents.temp_dir", "")
	v.SetDefault("agents.instruction", DefaultInstruction)
	v.SetDefault("agents.interval", 5*time.Minute)
	v.SetDefault("agents.jitter", time.Duration(0))

	v.SetDefault("garment.watch_path", "garment/watch")
	v.SetDefault("garment.export_path", "garment/export")
	v.SetDefault("garment.out_path", "garment/out")
	v.SetDefault("garment.filter_app", "")
	v.SetDefault("garment.open_command", "open")
	v.SetDefault("garment.open_delay", time.Second)
	v.SetDefault("garment.open_existing", false)
	v.SetDefault("garment.debounce", 500*time.Millisecond)
	v.SetDefault("garment.api_url", "")
	v.SetDefault("garment.wait_attempts", 10)
	v.SetDefault("garment.wait_interval", 200*time.Millisecond)
	v.SetDefault("garment.upload_attempts", 3)
	v.SetDefault("garment.upload_delay", 2*time.Second)

	v.SetDefault("storage.endpoint", "storage.googleapis.com")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", "minikit-images-garments")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.create_bucket", false)

	v.SetDefault("monitor.refresh_interval", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.no_color", false)
}

// LoadConfig reads .env, then config.yaml (or configFile when set), then the environment.
func LoadConfig(configFile string) (*Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}
	return Load(viper.New(), configFile)
}

// Load resolves the configuration using v. Exposed for tests.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// --- Environment Variable Binding ---
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config.yaml; defaults and env vars only.
	} else {
		log.Debugf("Using config file: %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/example/traffic-sign/internal/classifier"
	"github.com/example/traffic-sign/internal/result"
)

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" env:"HTTP_MAX_UPLOAD_BYTES" env-default:"10485760"`
}

type GRPCConfig struct {
	// ListenAddr exposes the local classifier as a scorer service. Empty disables it.
	ListenAddr string `yaml:"listen_addr" env:"GRPC_LISTEN_ADDR"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT"`
}

type RedisConfig struct {
	// Addr of the session store. Empty keeps sessions in process memory.
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type SessionConfig struct {
	Secret       string        `yaml:"secret" env:"SESSION_SECRET" env-default:"dev-secret"`
	TTL          time.Duration `yaml:"ttl" env:"SESSION_TTL" env-default:"720h"`
	CookieName   string        `yaml:"cookie_name" env:"SESSION_COOKIE" env-default:"traffic_sign_session"`
	SecureCookie bool          `yaml:"secure_cookie" env:"SESSION_SECURE_COOKIE"`
	PipelineTTL  time.Duration `yaml:"pipeline_ttl" env:"SESSION_PIPELINE_TTL" env-default:"1m"`
}

type PipelineConfig struct {
	TargetWidth      int     `yaml:"target_width" env:"PIPELINE_TARGET_WIDTH" env-default:"224"`
	TargetHeight     int     `yaml:"target_height" env:"PIPELINE_TARGET_HEIGHT" env-default:"224"`
	DisplayThreshold float64 `yaml:"display_threshold" env:"PIPELINE_DISPLAY_THRESHOLD" env-default:"0.01"`
	MaxPixels        int     `yaml:"max_pixels" env:"PIPELINE_MAX_PIXELS" env-default:"25000000"`
	ShowAllEntries   bool    `yaml:"show_all_entries" env:"PIPELINE_SHOW_ALL"`
	LabelsPreset     string  `yaml:"labels_preset" env:"PIPELINE_LABELS_PRESET" env-default:"gtsrb"`
	LabelsFile       string  `yaml:"labels_file" env:"PIPELINE_LABELS_FILE"`
}

type ClassifierConfig struct {
	Kind              string `yaml:"kind" env:"CLASSIFIER_KIND" env-default:"untrained"`
	Seed              int64  `yaml:"seed" env:"CLASSIFIER_SEED" env-default:"42"`
	HiddenUnits       int    `yaml:"hidden_units" env:"CLASSIFIER_HIDDEN_UNITS" env-default:"128"`
	InputWidth        int    `yaml:"input_width" env:"CLASSIFIER_INPUT_WIDTH" env-default:"224"`
	InputHeight       int    `yaml:"input_height" env:"CLASSIFIER_INPUT_HEIGHT" env-default:"224"`
	ModelPath         string `yaml:"model_path" env:"CLASSIFIER_MODEL_PATH"`
	MetadataPath      string `yaml:"metadata_path" env:"CLASSIFIER_METADATA_PATH"`
	SharedLibraryPath string `yaml:"shared_library_path" env:"ONNXRUNTIME_LIB"`
	RemoteAddr        string `yaml:"remote_addr" env:"CLASSIFIER_REMOTE_ADDR"`
}

type MetricsConfig struct {
	ProcessSampleInterval time.Duration `yaml:"process_sample_interval" env:"METRICS_PROCESS_SAMPLE_INTERVAL" env-default:"15s"`
}

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Log        LogConfig        `yaml:"log"`
	Redis      RedisConfig      `yaml:"redis"`
	Session    SessionConfig    `yaml:"session"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// Load reads the YAML file at path, when given, and applies environment
// overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is Load that panics.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Threshold is the display threshold in effect.
func (c *Config) Threshold() float64 {
	if c.Pipeline.ShowAllEntries {
		return result.NoThreshold
	}
	return c.Pipeline.DisplayThreshold
}

// ClassifierOptions converts the classifier section for classifier.Open.
func (c *Config) ClassifierOptions(numLabels int) classifier.Options {
	return classifier.Options{
		Kind:        c.Classifier.Kind,
		InputWidth:  c.Classifier.InputWidth,
		InputHeight: c.Classifier.InputHeight,
		HiddenUnits: c.Classifier.HiddenUnits,
		Seed:        c.Classifier.Seed,
		NumLabels:   numLabels,
		ONNX: classifier.ONNXConfig{
			ModelPath:         c.Classifier.ModelPath,
			MetadataPath:      c.Classifier.MetadataPath,
			SharedLibraryPath: c.Classifier.SharedLibraryPath,
		},
		RemoteAddr: c.Classifier.RemoteAddr,
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("http.max_upload_bytes must be positive"))
	}
	if c.Session.Secret == "" {
		errs = append(errs, errors.New("session.secret is required"))
	}
	if c.Session.TTL <= 0 || c.Session.PipelineTTL <= 0 {
		errs = append(errs, errors.New("session ttls must be positive"))
	}
	if c.Pipeline.TargetWidth <= 0 || c.Pipeline.TargetHeight <= 0 {
		errs = append(errs, fmt.Errorf("pipeline target size %dx%d must be positive", c.Pipeline.TargetWidth, c.Pipeline.TargetHeight))
	}
	if c.Pipeline.MaxPixels <= 0 {
		errs = append(errs, errors.New("pipeline.max_pixels must be positive"))
	}
	if t := c.Pipeline.DisplayThreshold; t < 0 || t >= 1 {
		errs = append(errs, fmt.Errorf("pipeline.display_threshold %v outside [0,1)", t))
	}
	if c.Pipeline.LabelsPreset == "" && c.Pipeline.LabelsFile == "" {
		errs = append(errs, errors.New("pipeline needs labels_preset or labels_file"))
	}
	switch c.Classifier.Kind {
	case classifier.KindUntrained:
		if c.Classifier.InputWidth <= 0 || c.Classifier.InputHeight <= 0 || c.Classifier.HiddenUnits <= 0 {
			errs = append(errs, errors.New("classifier input size and hidden_units must be positive"))
		}
	case classifier.KindONNX:
		if c.Classifier.ModelPath == "" || c.Classifier.MetadataPath == "" {
			errs = append(errs, errors.New("onnx classifier needs model_path and metadata_path"))
		}
	case classifier.KindRemote:
		if c.Classifier.RemoteAddr == "" {
			errs = append(errs, errors.New("remote classifier needs remote_addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown classifier kind %q", c.Classifier.Kind))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

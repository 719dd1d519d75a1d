// Package config loads worker settings from defaults, an optional YAML file,
// a .env file and the environment, in that order of precedence (last wins).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredential is returned by CheckCredential when no API key is set.
var ErrMissingCredential = errors.New("Missing GEMINI_KEY")

type Config struct {
	Gemini    GeminiConfig    `yaml:"gemini"`
	Worker    WorkerConfig    `yaml:"worker"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Database  DatabaseConfig  `yaml:"database"`
	R2        R2Config        `yaml:"r2"`
	Converter ConverterConfig `yaml:"converter"`
	Log       LogConfig       `yaml:"log"`
}

type GeminiConfig struct {
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model" validate:"required"`
	Backend    string `yaml:"backend" validate:"oneof=genai agent"`
	MaxRetries int    `yaml:"max_retries" validate:"gte=0,lte=10"`
}

type WorkerConfig struct {
	Transport      string        `yaml:"transport" validate:"oneof=stdio amqp"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`
	Annotate       bool          `yaml:"annotate"`
}

type RabbitMQConfig struct {
	URL          string `yaml:"url"`
	Queue        string `yaml:"queue" validate:"required"`
	ResultsQueue string `yaml:"results_queue" validate:"required"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// R2Config is all-or-nothing: once any field is set, all are required.
type R2Config struct {
	AccountID string `yaml:"account_id" validate:"required_with=Bucket AccessKey SecretKey"`
	Bucket    string `yaml:"bucket" validate:"required_with=AccountID AccessKey SecretKey"`
	AccessKey string `yaml:"access_key" validate:"required_with=AccountID Bucket SecretKey"`
	SecretKey string `yaml:"secret_key" validate:"required_with=AccountID Bucket AccessKey"`
}

func (c R2Config) Enabled() bool { return c.AccountID != "" }

type ConverterConfig struct {
	Kind        string `yaml:"kind" validate:"oneof=auto soffice docx none"`
	SofficePath string `yaml:"soffice_path"`
	FontPath    string `yaml:"font_path"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json pretty"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Gemini: GeminiConfig{
			Model:      "gemini-2.5-flash",
			Backend:    "genai",
			MaxRetries: 2,
		},
		Worker: WorkerConfig{
			Transport:      "stdio",
			RequestTimeout: 120 * time.Second,
			Annotate:       true,
		},
		RabbitMQ: RabbitMQConfig{
			Queue:        "cv_reviews",
			ResultsQueue: "cv_review_results",
		},
		Converter: ConverterConfig{Kind: "auto"},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration. path names an optional YAML file.
func Load(path string) (*Config, error) {
	return load(path, ".env")
}

func load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "load %s", envFile)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Gemini.APIKey, "GOOGLE_API_KEY")
	setString(&c.Gemini.APIKey, "GEMINI_KEY")
	setString(&c.Gemini.Model, "GEMINI_MODEL")
	setString(&c.Gemini.Backend, "ORACLE_BACKEND")
	setString(&c.Worker.Transport, "TRANSPORT")
	setString(&c.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&c.RabbitMQ.Queue, "RABBITMQ_QUEUE")
	setString(&c.RabbitMQ.ResultsQueue, "RABBITMQ_RESULTS_QUEUE")
	setString(&c.Database.URL, "DB_URL")
	setString(&c.R2.AccountID, "R2_ACCOUNT_ID")
	setString(&c.R2.Bucket, "R2_BUCKET")
	setString(&c.R2.AccessKey, "R2_ACCESS_KEY")
	setString(&c.R2.SecretKey, "R2_SECRET_KEY")
	setString(&c.Converter.Kind, "CONVERTER")
	setString(&c.Converter.SofficePath, "SOFFICE_PATH")
	setString(&c.Converter.FontPath, "DOCX_FONT_PATH")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	if v, ok := lookup("ORACLE_MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "ORACLE_MAX_RETRIES")
		}
		c.Gemini.MaxRetries = n
	}
	if v, ok := lookup("REQUEST_TIMEOUT"); ok {
		d, err := parseDuration(v)
		if err != nil {
			return errors.Wrap(err, "REQUEST_TIMEOUT")
		}
		c.Worker.RequestTimeout = d
	}
	if v, ok := lookup("ANNOTATE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "ANNOTATE")
		}
		c.Worker.Annotate = b
	}
	return nil
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		c := sl.Current().Interface().(Config)
		if c.Worker.Transport == "amqp" && c.RabbitMQ.URL == "" {
			sl.ReportError(c.RabbitMQ.URL, "RabbitMQ.URL", "URL", "required_for_amqp", "")
		}
	}, Config{})
	return v
}

// Validate checks field ranges and cross-field requirements. The API key is
// checked separately by CheckCredential.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fe.Namespace()+" failed "+fe.Tag())
			}
			return errors.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

func (c *Config) CheckCredential() error {
	if c.Gemini.APIKey == "" {
		return ErrMissingCredential
	}
	return nil
}

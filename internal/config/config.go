package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Environment string `yaml:"environment"`

	Server struct {
		Port    int    `yaml:"port"`
		Host    string `yaml:"host"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Whisper struct {
		Model    string `yaml:"model"`
		Command  string `yaml:"command"`
		Language string `yaml:"language"`
	} `yaml:"whisper"`

	Workers struct {
		Count     int `yaml:"count"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"workers"`

	Pipeline struct {
		StageTimeout  time.Duration `yaml:"stage_timeout"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"pipeline"`

	Storage struct {
		Driver        string `yaml:"driver"`
		Database      string `yaml:"database"`
		TempDir       string `yaml:"temp_dir"`
		OutputDir     string `yaml:"output_dir"`
		MongoURI      string `yaml:"mongo_uri"`
		MongoDatabase string `yaml:"mongo_database"`
	} `yaml:"storage"`

	OpenAI struct {
		APIKey         string        `yaml:"api_key"`
		BaseURL        string        `yaml:"base_url"`
		ChatModel      string        `yaml:"chat_model"`
		EmbeddingModel string        `yaml:"embedding_model"`
		MaxRetries     int           `yaml:"max_retries"`
		RetryDelay     time.Duration `yaml:"retry_delay"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		EmbedChunks    bool          `yaml:"embed_chunks"`
	} `yaml:"openai"`

	Vapi struct {
		APIKey         string        `yaml:"api_key"`
		BaseURL        string        `yaml:"base_url"`
		AssistantID    string        `yaml:"assistant_id"`
		PhoneNumber    string        `yaml:"phone_number"`
		ScriptFile     string        `yaml:"script_file"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		MaxRetryTime   time.Duration `yaml:"max_retry_time"`
	} `yaml:"vapi"`

	Continuation struct {
		StoreFile string `yaml:"store_file"`
	} `yaml:"continuation"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Render struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"render"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb"`
	} `yaml:"limits"`
}

// Default returns a configuration with every key set
func Default() *Config {
	cfg := &Config{Environment: "local"}
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 3000
	cfg.Server.BaseURL = "http://localhost:3000"
	cfg.Log.Level = "info"
	cfg.Whisper.Model = "small"
	cfg.Whisper.Command = "python"
	cfg.Whisper.Language = "en"
	cfg.Workers.Count = 4
	cfg.Workers.QueueSize = 100
	cfg.Pipeline.StageTimeout = 10 * time.Minute
	cfg.Pipeline.SweepInterval = time.Minute
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Database = "data/pipeline.db"
	cfg.Storage.TempDir = "temp"
	cfg.Storage.OutputDir = "outputs"
	cfg.Storage.MongoDatabase = "selfcast"
	cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	cfg.OpenAI.ChatModel = "gpt-4"
	cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	cfg.OpenAI.MaxRetries = 3
	cfg.OpenAI.RetryDelay = 2 * time.Second
	cfg.OpenAI.RequestTimeout = 60 * time.Second
	cfg.Vapi.BaseURL = "https://api.vapi.ai/v1"
	cfg.Vapi.ScriptFile = "config/interview-script.json"
	cfg.Vapi.RequestTimeout = 15 * time.Second
	cfg.Vapi.MaxRetryTime = 30 * time.Second
	cfg.Continuation.StoreFile = "data/conversations.json"
	cfg.Cleanup.IntervalMinutes = 60
	cfg.Cleanup.MaxAgeHours = 24
	cfg.GoogleDrive.CredentialsFile = "config/credentials.json"
	cfg.GoogleDrive.TokenFile = "config/token.json"
	cfg.GoogleDrive.FolderName = "Content"
	cfg.Render.Timeout = 30 * time.Second
	cfg.Limits.MaxFileSizeMB = 100
	return cfg
}

// Load reads the YAML file at path over the defaults, then applies .env and
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Environment, "ENVIRONMENT")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Server.BaseURL, "BASE_URL")
	setInt(&c.Server.Port, "PORT")
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.ChatModel, "OPENAI_MODEL")
	setString(&c.Vapi.APIKey, "VAPI_API_KEY")
	setString(&c.Vapi.AssistantID, "VAPI_ASSISTANT_ID")
	setString(&c.Vapi.PhoneNumber, "VAPI_PHONE_NUMBER")
	setString(&c.Storage.MongoURI, "MONGODB_URI")
	setString(&c.Storage.Driver, "STORAGE_DRIVER")
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be positive, got %d", c.Workers.Count)
	}
	if c.Workers.QueueSize <= 0 {
		return fmt.Errorf("workers.queue_size must be positive, got %d", c.Workers.QueueSize)
	}
	if c.Pipeline.StageTimeout <= 0 {
		return fmt.Errorf("pipeline.stage_timeout must be positive")
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Database == "" {
			return fmt.Errorf("storage.database is required for the sqlite driver")
		}
	case "mongo":
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("storage.mongo_uri (or MONGODB_URI) is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Limits.MaxFileSizeMB <= 0 {
		return fmt.Errorf("limits.max_file_size_mb must be positive")
	}
	return nil
}

// Addr is the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

package cmd

import (
	"log"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/jobboard/internal/evaluation"
)

const (
	app = "jobboard"
)

type Config struct {
	Server   *ServerConfig   `mapstructure:"server"`
	Database *DatabaseConfig `mapstructure:"database"`
	Uploads  *UploadsConfig  `mapstructure:"uploads"`
	AI       *AIConfig       `mapstructure:"ai"`
	Dispatch *DispatchConfig `mapstructure:"dispatch"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	FrontendURL     string        `mapstructure:"frontend-url"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
	RecoverOnStart  bool          `mapstructure:"recover-on-start"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type UploadsConfig struct {
	Dir       string `mapstructure:"dir"`
	MaxSizeMB int    `mapstructure:"max-size-mb"`
}

type AIConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Provider           string        `mapstructure:"provider"`
	ScoreThreshold     int           `mapstructure:"score-threshold"`
	Timeout            time.Duration `mapstructure:"timeout"`
	FailOpenWithoutKey bool          `mapstructure:"fail-open-without-key"`
	Gemini             *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey            string  `mapstructure:"api-key"`
	APIKeyFile        string  `mapstructure:"api-key-file"`
	Model             string  `mapstructure:"model"`
	Temperature       float32 `mapstructure:"temperature"`
	MaxRetries        int     `mapstructure:"max-retries"`
	RequestsPerMinute int     `mapstructure:"requests-per-minute"`
	MaxLogLength      int     `mapstructure:"max-log-length"`
}

type DispatchConfig struct {
	Driver  string `mapstructure:"driver"`
	Workers int    `mapstructure:"workers"`
	AMQPURL string `mapstructure:"amqp-url"`
	Queue   string `mapstructure:"queue"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobboard is a job board backend that screens resumes with Gemini before HR review",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

var envBindings = map[string]string{
	"server.port":            "PORT",
	"server.frontend-url":    "FRONTEND_URL",
	"database.path":          "DATABASE_PATH",
	"uploads.dir":            "UPLOAD_DIR",
	"ai.gemini.api-key":      "GEMINI_API_KEY",
	"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
	"ai.gemini.model":        "GEMINI_MODEL",
	"ai.score-threshold":     "AI_SCORE_THRESHOLD",
	"dispatch.amqp-url":      "RABBITMQ_URL",
	"dispatch.driver":        "DISPATCH_DRIVER",
}

func init() {
	setDefaults()

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobboard.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults() {
	viper.SetDefault("server.port", 5001)
	viper.SetDefault("server.frontend-url", "http://localhost:5173")
	viper.SetDefault("server.shutdown-timeout", 10*time.Second)
	viper.SetDefault("server.recover-on-start", true)

	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "./data/jobboard.db")

	viper.SetDefault("uploads.dir", "./uploads")
	viper.SetDefault("uploads.max-size-mb", 5)

	viper.SetDefault("ai.enabled", true)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.score-threshold", evaluation.DefaultScoreThreshold)
	viper.SetDefault("ai.timeout", evaluation.DefaultTimeout)
	viper.SetDefault("ai.fail-open-without-key", false)
	viper.SetDefault("ai.gemini.model", "gemini-1.5-flash")
	viper.SetDefault("ai.gemini.temperature", 0.3)
	viper.SetDefault("ai.gemini.max-retries", 2)
	viper.SetDefault("ai.gemini.requests-per-minute", 60)
	viper.SetDefault("ai.gemini.max-log-length", 200)

	viper.SetDefault("dispatch.driver", "inprocess")
	viper.SetDefault("dispatch.workers", 4)
	viper.SetDefault("dispatch.queue", "evaluation_queue")
}

func initConfig() {
	if versionCmd.CalledAs() != "" {
		return
	}

	// A missing .env is fine, values may come from the real environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("loading .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Defaults and env are enough without a file, unless one was asked for explicitly.
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c == nil || c.Server == nil || c.Database == nil || c.Uploads == nil || c.AI == nil || c.Dispatch == nil {
		return errors.New("config is incomplete")
	}
	if c.AI.Gemini == nil {
		c.AI.Gemini = &GeminiConfig{}
	}
	if c.AI.ScoreThreshold < 1 || c.AI.ScoreThreshold > 10 {
		return errors.WithHint(
			errors.Newf("ai.score-threshold %d is out of range", c.AI.ScoreThreshold),
			"set AI_SCORE_THRESHOLD or ai.score-threshold to a value between 1 and 10",
		)
	}
	switch c.Database.Driver {
	case "sqlite", "memory":
	default:
		return errors.Newf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Dispatch.Driver {
	case "inprocess", "amqp":
	default:
		return errors.Newf("unknown dispatch driver %q", c.Dispatch.Driver)
	}
	return nil
}

package cmd

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skillscope/skillscope/internal/enrich"
	"github.com/skillscope/skillscope/internal/evaluate"
	"github.com/skillscope/skillscope/internal/match"
	"github.com/skillscope/skillscope/internal/pipeline"
	"github.com/skillscope/skillscope/internal/scheduler"
	"github.com/skillscope/skillscope/internal/server"
)

const (
	app       = "skillscope"
	envPrefix = "SKILLSCOPE"
)

type Config struct {
	// Profile is the path to the candidate profile file.
	Profile  string          `mapstructure:"profile"`
	Database *DatabaseConfig `mapstructure:"database" validate:"required"`
	Sources  *SourcesConfig  `mapstructure:"sources" validate:"required"`
	AI       *AIConfig       `mapstructure:"ai"`
	Queue    *QueueConfig    `mapstructure:"queue" validate:"required"`

	Match    match.Config     `mapstructure:"match"`
	Evaluate evaluate.Config  `mapstructure:"evaluate"`
	Enrich   enrich.Config    `mapstructure:"enrich"`
	Pipeline pipeline.Config  `mapstructure:"pipeline"`
	Schedule scheduler.Config `mapstructure:"schedule"`
	Server   server.Config    `mapstructure:"server"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	Path     string `mapstructure:"path" validate:"required_if=Driver sqlite"`
	URL      string `mapstructure:"url" validate:"required_if=Driver postgres"`
	MaxConns int32  `mapstructure:"max-conns" validate:"gte=0"`
}

type SourcesConfig struct {
	Headhunter *HeadhunterConfig `mapstructure:"headhunter"`
	Adzuna     *AdzunaConfig     `mapstructure:"adzuna"`
}

type HeadhunterConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	TokenFile string `mapstructure:"token-file"`
	UserAgent string `mapstructure:"user-agent"`
	Areas     []int  `mapstructure:"areas"`
	MaxPages  int    `mapstructure:"max-pages" validate:"gte=0"`
	// FetchDetails loads full descriptions, one extra request per vacancy.
	FetchDetails      bool    `mapstructure:"fetch-details"`
	RequestsPerMinute float64 `mapstructure:"requests-per-minute" validate:"gte=0"`
}

type AdzunaConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	AppID             string  `mapstructure:"app-id" validate:"required_if=Enabled true"`
	AppKeyFile        string  `mapstructure:"app-key-file"`
	Country           string  `mapstructure:"country"`
	RequestsPerMinute float64 `mapstructure:"requests-per-minute" validate:"gte=0"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries" validate:"gte=0"`
}

type QueueConfig struct {
	Driver        string        `mapstructure:"driver" validate:"oneof=memory redis"`
	RedisURL      string        `mapstructure:"redis-url" validate:"required_if=Driver redis"`
	RedisKey      string        `mapstructure:"redis-key"`
	Capacity      int           `mapstructure:"capacity" validate:"gte=0"`
	FlushInterval time.Duration `mapstructure:"flush-interval"`
}

func defaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{Driver: "sqlite", Path: app + ".db"},
		Sources: &SourcesConfig{
			Headhunter: &HeadhunterConfig{Enabled: true, RequestsPerMinute: 60},
			Adzuna:     &AdzunaConfig{Country: "gb", RequestsPerMinute: 25},
		},
		AI: &AIConfig{
			Enabled:  true,
			Provider: "gemini",
			Gemini:   &GeminiConfig{},
		},
		Queue: &QueueConfig{
			Driver:        "memory",
			RedisKey:      enrich.DefaultRedisKey,
			Capacity:      1000,
			FlushInterval: 30 * time.Second,
		},
		Match:    match.DefaultConfig(),
		Evaluate: evaluate.DefaultConfig(),
		Enrich:   enrich.DefaultConfig(),
		Pipeline: pipeline.DefaultConfig(),
		Schedule: scheduler.DefaultConfig(),
		Server:   server.DefaultConfig(),
	}
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "skillscope matches a candidate profile against job postings and explains the fit",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Variables from the environment win over the .env file.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	for key, env := range map[string]string{
		"database.url":                  "DATABASE_URL",
		"ai.gemini.api-key-file":        "GEMINI_API_KEY_FILE",
		"sources.headhunter.token-file": "HH_TOKEN_FILE",
		"sources.adzuna.app-id":         "ADZUNA_APP_ID",
		"sources.adzuna.app-key-file":   "ADZUNA_APP_KEY_FILE",
		"queue.redis-url":               "REDIS_URL",
	} {
		if err := viper.BindEnv(key, envPrefix+"_"+envKey(key), env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is skillscope.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().StringP("profile", "p", "", "candidate profile file (yaml or json)")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("profile", rootCmd.PersistentFlags().Lookup("profile"))
}

func envKey(key string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	// A missing default config file is fine: everything has defaults or env overrides.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

var validate = validator.New()

func getConfig() (*Config, error) {
	config := defaultConfig()
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// STUNServers is the fixed set handed to every peer connection.
	STUNServers []string `mapstructure:"stun_servers"`

	Sync SyncConfig `mapstructure:"sync"`
}

// SyncConfig holds the playback sync heuristics. The write-suppression
// threshold must stay tighter than the follower drift tolerance or host and
// followers oscillate around each other.
type SyncConfig struct {
	FollowerDriftSec    float64       `mapstructure:"follower_drift_sec"`
	WriteSuppressionSec float64       `mapstructure:"write_suppression_sec"`
	Interval            time.Duration `mapstructure:"interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("stun_servers", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	})
	v.SetDefault("sync.follower_drift_sec", 2.0)
	v.SetDefault("sync.write_suppression_sec", 1.0)
	v.SetDefault("sync.interval", "2s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Sync.WriteSuppressionSec >= cfg.Sync.FollowerDriftSec {
		return nil, fmt.Errorf("sync.write_suppression_sec (%v) must be below sync.follower_drift_sec (%v)",
			cfg.Sync.WriteSuppressionSec, cfg.Sync.FollowerDriftSec)
	}
	return &cfg, nil
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "VOICECALL"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	DevTokens      bool          `mapstructure:"dev_tokens"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	InitiateLimit  int           `mapstructure:"initiate_limit"`
	InitiateWindow time.Duration `mapstructure:"initiate_window"`

	Client Client `mapstructure:"client"`

	v    *viper.Viper
	file string
}

// Client holds the call client settings.
type Client struct {
	RelayURL          string        `mapstructure:"relay_url"`
	StatePath         string        `mapstructure:"state_path"`
	RingTimeout       time.Duration `mapstructure:"ring_timeout"`
	ResumeWindow      time.Duration `mapstructure:"resume_window"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	HealthInterval    time.Duration `mapstructure:"health_interval"`
	CandidateRate     float64       `mapstructure:"candidate_rate"`
	CandidateBatch    int           `mapstructure:"candidate_batch"`

	ICEServers          []string      `mapstructure:"ice_servers"`
	DisconnectedTimeout time.Duration `mapstructure:"disconnected_timeout"`
	FailedTimeout       time.Duration `mapstructure:"failed_timeout"`
	KeepAliveInterval   time.Duration `mapstructure:"keepalive_interval"`

	Microphone bool `mapstructure:"microphone"`
	Camera     bool `mapstructure:"camera"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("dev_tokens", false)
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("initiate_limit", 10)
	v.SetDefault("initiate_window", "1m")

	v.SetDefault("client.relay_url", "http://localhost:8080")
	v.SetDefault("client.state_path", "./state/call.db")
	v.SetDefault("client.ring_timeout", "0s")
	v.SetDefault("client.resume_window", "10s")
	v.SetDefault("client.reconcile_interval", "2s")
	v.SetDefault("client.health_interval", "5s")
	v.SetDefault("client.candidate_rate", 10)
	v.SetDefault("client.candidate_batch", 5)
	v.SetDefault("client.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("client.disconnected_timeout", "30s")
	v.SetDefault("client.failed_timeout", "120s")
	v.SetDefault("client.keepalive_interval", "2s")
	v.SetDefault("client.microphone", true)
	v.SetDefault("client.camera", true)
}

// Flags registers the overrides every binary accepts.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	fs.Int("port", 8080, "relay listen port")
	fs.String("log-level", "info", "log level")
	fs.String("relay-url", "http://localhost:8080", "relay base url")
}

// Load reads .env, the yaml file picked by CONFIG_ENV (or --config),
// VOICECALL_* environment variables and the flags in fs, in rising priority.
func Load(fs *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("module", "config").Msg(".env not loaded")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileName := ""
	if fs != nil {
		for key, flag := range map[string]string{"port": "port", "log_level": "log-level", "client.relay_url": "relay-url"} {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
		if f := fs.Lookup("config"); f != nil {
			fileName = f.Value.String()
		}
	}
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	loaded := ""
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		loaded = fileName
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.v = v
	cfg.file = loaded
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("log_level", cfg.LogLevel).Msg("config ready")
	return &cfg, nil
}

// ApplyLogLevel sets the global zerolog level; unknown names keep info.
func ApplyLogLevel(name string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return level
}

// WatchLogLevel re-applies log_level whenever the config file changes.
// It does nothing when no file was loaded.
func (c *Config) WatchLogLevel() bool {
	if c.v == nil || c.file == "" {
		return false
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := ApplyLogLevel(c.v.GetString("log_level"))
		log.Info().Str("module", "config").Str("file", e.Name).Str("level", level.String()).Msg("log level reloaded")
	})
	c.v.WatchConfig()
	return true
}

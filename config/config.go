package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/spf13/viper"
)

type Config struct {
	API       API       `mapstructure:"api"`
	Token     Token     `mapstructure:"token"`
	Collector Collector `mapstructure:"collector"`
	Feed      Feed      `mapstructure:"feed"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Web       Web       `mapstructure:"web"`
	Log       Log       `mapstructure:"log"`
	Dev       Dev       `mapstructure:"dev"`
}

type API struct {
	BaseURL        string        `mapstructure:"base_url"`
	AuthScheme     string        `mapstructure:"auth_scheme"`
	UserAgents     []string      `mapstructure:"user_agents"`
	AttemptCeiling int           `mapstructure:"attempt_ceiling"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffCap     time.Duration `mapstructure:"backoff_cap"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type Token struct {
	RefreshURL  string `mapstructure:"refresh_url"`
	AccessToken string `mapstructure:"access_token"`
}

type Collector struct {
	Pace       time.Duration `mapstructure:"pace"`
	BatchSize  int           `mapstructure:"batch_size"`
	BatchPause time.Duration `mapstructure:"batch_pause"`
}

type Feed struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	TokenURL       string        `mapstructure:"token_url"`
	Channel        string        `mapstructure:"channel"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	HandshakePause time.Duration `mapstructure:"handshake_pause"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffCap     time.Duration `mapstructure:"backoff_cap"`
	BackoffGrowth  float64       `mapstructure:"backoff_growth"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
	AggregateCap   int           `mapstructure:"aggregate_cap"`
}

type Kafka struct {
	Brokers     []string `mapstructure:"brokers"`
	RoundsTopic string   `mapstructure:"rounds_topic"`
}

func (k Kafka) SaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true

	return cfg
}

type Web struct {
	Addr string `mapstructure:"addr"`
}

type Log struct {
	Level       string `mapstructure:"level"`
	RingEntries int    `mapstructure:"ring_entries"`
	RingBytes   int    `mapstructure:"ring_bytes"`
}

type Dev struct {
	FakeUpstreamAddr string `mapstructure:"fake_upstream_addr"`
}

// Build reads the optional config file named by CRASHFEED_CONFIG, then
// applies CRASHFEED_* environment overrides on top of the defaults.
func Build() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRASHFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://cs2run.app/games")
	v.SetDefault("api.auth_scheme", "JWT")
	v.SetDefault("api.user_agents", []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		"Mozilla/5.0 (X11; Linux x86_64)",
	})
	v.SetDefault("api.attempt_ceiling", 12)
	v.SetDefault("api.backoff_base", time.Second)
	v.SetDefault("api.backoff_cap", time.Second*30)
	v.SetDefault("api.retry_delay", time.Second*2)
	v.SetDefault("api.request_timeout", time.Second*10)

	v.SetDefault("token.refresh_url", "https://cs2run.app/auth/refresh")

	v.SetDefault("collector.pace", time.Second)
	v.SetDefault("collector.batch_size", 18)
	v.SetDefault("collector.batch_pause", time.Second*3)

	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.dial_timeout", time.Second*15)
	v.SetDefault("feed.handshake_pause", time.Millisecond*300)
	v.SetDefault("feed.backoff_base", time.Second)
	v.SetDefault("feed.backoff_cap", time.Minute)
	v.SetDefault("feed.backoff_growth", 1.5)
	v.SetDefault("feed.heartbeat", time.Minute*5)
	v.SetDefault("feed.aggregate_cap", 2048)

	v.SetDefault("kafka.rounds_topic", "rounds")

	v.SetDefault("web.addr", "0.0.0.0:3000")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.ring_entries", 1000)
	v.SetDefault("log.ring_bytes", 512*1024)
}

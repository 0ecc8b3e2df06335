package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"netbench/pkg/stats"
)

// Mode selects the underlying transport for a run.
type Mode string

const (
	ModeStream   Mode = "stream"
	ModeDatagram Mode = "datagram"
)

// Default run parameters.
const (
	DefaultPort             = 5000
	DefaultPayloadSize      = 100
	DefaultMaxPackets       = 1000
	DefaultSendDelay        = 0.01
	DefaultIdleTimeoutCount = 20
	DefaultLogFrequency     = 10
	DefaultOutput           = "benchmark_results.json"
)

// Config describes one benchmark run. It is constructed once before the
// run starts and never mutated afterwards.
type Config struct {
	Mode Mode   `mapstructure:"mode" json:"mode"`
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`

	// Role flags; both may be true for a loopback-style run.
	Sender   bool `mapstructure:"sender" json:"sender"`
	Receiver bool `mapstructure:"receiver" json:"receiver"`

	PayloadSize int     `mapstructure:"payload-size" json:"payload_size"`
	MaxPackets  int     `mapstructure:"max-packets" json:"max_packets"`
	SendDelay   float64 `mapstructure:"send-delay" json:"send_delay"` // seconds between packets
	Duration    int     `mapstructure:"duration" json:"duration"`     // seconds; overrides max-packets termination

	// IdleTimeoutCount is the number of consecutive 1-second read
	// timeouts after which the receiver stops.
	IdleTimeoutCount int `mapstructure:"idle-timeout-count" json:"idle_timeout_count"`

	Quiet        bool   `mapstructure:"quiet" json:"quiet"`
	LogFrequency int    `mapstructure:"log-frequency" json:"log_frequency"`
	Output       string `mapstructure:"output" json:"output"`

	// Optional host-level sampling during the run.
	SampleSystem   bool `mapstructure:"sample-system" json:"sample_system"`
	SampleInterval int  `mapstructure:"sample-interval" json:"sample_interval"` // seconds
}

// Default returns a config populated with the standard run parameters.
func Default() Config {
	return Config{
		Mode:             ModeStream,
		Host:             "127.0.0.1",
		Port:             DefaultPort,
		Sender:           true,
		Receiver:         true,
		PayloadSize:      DefaultPayloadSize,
		MaxPackets:       DefaultMaxPackets,
		SendDelay:        DefaultSendDelay,
		IdleTimeoutCount: DefaultIdleTimeoutCount,
		LogFrequency:     DefaultLogFrequency,
		Output:           DefaultOutput,
		SampleInterval:   1,
	}
}

// Load assembles a run config with precedence flags > env (NETBENCH_*) >
// config file > defaults. configFile may be empty.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("mode", string(def.Mode))
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("payload-size", def.PayloadSize)
	v.SetDefault("max-packets", def.MaxPackets)
	v.SetDefault("send-delay", def.SendDelay)
	v.SetDefault("idle-timeout-count", def.IdleTimeoutCount)
	v.SetDefault("log-frequency", def.LogFrequency)
	v.SetDefault("output", def.Output)
	v.SetDefault("sample-interval", def.SampleInterval)

	v.SetEnvPrefix("NETBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects parameter combinations that cannot produce a run.
func (c *Config) Validate() error {
	if c.Mode != ModeStream && c.Mode != ModeDatagram {
		return fmt.Errorf("invalid mode %q: must be %q or %q", c.Mode, ModeStream, ModeDatagram)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PayloadSize < 0 {
		return fmt.Errorf("payload size must not be negative, got %d", c.PayloadSize)
	}
	if c.MaxPackets < 1 {
		return fmt.Errorf("max packets must be at least 1, got %d", c.MaxPackets)
	}
	if c.SendDelay < 0 {
		return fmt.Errorf("send delay must not be negative, got %f", c.SendDelay)
	}
	if c.IdleTimeoutCount < 1 {
		return fmt.Errorf("idle timeout count must be at least 1, got %d", c.IdleTimeoutCount)
	}
	if c.LogFrequency < 1 {
		return fmt.Errorf("log frequency must be at least 1, got %d", c.LogFrequency)
	}
	return nil
}

// Delay returns the inter-packet pause as a duration.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.SendDelay * float64(time.Second))
}

// RunInfo builds the config echo embedded into the results report.
func (c *Config) RunInfo() stats.RunInfo {
	return stats.RunInfo{
		Mode:        string(c.Mode),
		Host:        c.Host,
		Port:        c.Port,
		PayloadSize: c.PayloadSize,
		MaxPackets:  c.MaxPackets,
		SendDelay:   c.SendDelay,
	}
}

// Addr returns the remote endpoint in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

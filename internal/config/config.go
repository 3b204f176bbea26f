package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dkeye/AppBridge/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type SafeConfig struct {
	Address   string   `mapstructure:"address"`
	ChainID   uint64   `mapstructure:"chain_id"`
	Threshold int      `mapstructure:"threshold"`
	Owners    []string `mapstructure:"owners"`
	ReadOnly  bool     `mapstructure:"read_only"`
}

type ChainConfig struct {
	Name           string `mapstructure:"name"`
	ShortName      string `mapstructure:"short_name"`
	CurrencyName   string `mapstructure:"currency_name"`
	CurrencySymbol string `mapstructure:"currency_symbol"`
	Decimals       int    `mapstructure:"decimals"`
	BlockExplorer  string `mapstructure:"block_explorer"`
}

type AdmissionConfig struct {
	RPS         float64 `mapstructure:"rps"`
	Burst       int     `mapstructure:"burst"`
	MaxInFlight int     `mapstructure:"max_inflight"`
}

type ApprovalsConfig struct {
	Capacity int           `mapstructure:"capacity"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// SelfCheckConfig drives the startup call made by an in-process app over the bus.
type SelfCheckConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Origin  string        `mapstructure:"origin"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ConnectLimit   int           `mapstructure:"connect_limit"`
	ConnectWindow  time.Duration `mapstructure:"connect_window"`

	Safe         SafeConfig  `mapstructure:"safe"`
	Chain        ChainConfig `mapstructure:"chain"`
	TxServiceURL string      `mapstructure:"tx_service_url"`
	RPCURL       string      `mapstructure:"rpc_url"`

	ReplyUnhandled bool            `mapstructure:"reply_unhandled"`
	QuietCalls     []string        `mapstructure:"quiet_calls"`
	Admission      AdmissionConfig `mapstructure:"admission"`
	Approvals      ApprovalsConfig `mapstructure:"approvals"`
	SelfCheck      SelfCheckConfig `mapstructure:"self_check"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("connect_limit", 20)
	v.SetDefault("connect_window", "1m")

	v.SetDefault("safe.chain_id", 1)
	v.SetDefault("safe.threshold", 1)
	v.SetDefault("chain.name", "Ethereum")
	v.SetDefault("chain.short_name", "eth")
	v.SetDefault("chain.currency_name", "Ether")
	v.SetDefault("chain.currency_symbol", "ETH")
	v.SetDefault("chain.decimals", 18)

	v.SetDefault("reply_unhandled", false)
	v.SetDefault("quiet_calls", []string{"eth_getBlockByNumber"})
	v.SetDefault("admission.rps", 0)
	v.SetDefault("admission.burst", 0)
	v.SetDefault("admission.max_inflight", 0)
	v.SetDefault("approvals.capacity", 256)
	v.SetDefault("approvals.ttl", "10m")
	v.SetDefault("self_check.enabled", true)
	v.SetDefault("self_check.origin", "appbridge://self")
	v.SetDefault("self_check.timeout", "2s")
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

	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

// Validate rejects settings the server cannot start with. An empty safe address
// is allowed; the host then serves without a safe selected.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Safe.Address != "" {
		if err := domain.ValidateSafeAddress(c.Safe.Address); err != nil {
			return fmt.Errorf("safe.address: %w", err)
		}
	}
	for i, owner := range c.Safe.Owners {
		if err := domain.ValidateSafeAddress(owner); err != nil {
			return fmt.Errorf("safe.owners[%d]: %w", i, err)
		}
	}
	if c.Safe.Threshold > len(c.Safe.Owners) && len(c.Safe.Owners) > 0 {
		return errors.New("safe.threshold exceeds owner count")
	}
	if c.Approvals.Capacity <= 0 {
		return errors.New("approvals.capacity must be positive")
	}
	if c.SelfCheck.Enabled && len(c.AllowedOrigins) > 0 && !slices.Contains(c.AllowedOrigins, c.SelfCheck.Origin) {
		return fmt.Errorf("self_check.origin %q is not in allowed_origins", c.SelfCheck.Origin)
	}
	return nil
}

func (c *Config) SafeInfo() domain.SafeInfo {
	owners := c.Safe.Owners
	if owners == nil {
		owners = []string{}
	}
	return domain.SafeInfo{
		SafeAddress: c.Safe.Address,
		ChainID:     c.Safe.ChainID,
		Threshold:   c.Safe.Threshold,
		Owners:      owners,
		IsReadOnly:  c.Safe.ReadOnly,
	}
}

func (c *Config) ChainInfo() domain.ChainInfo {
	return domain.ChainInfo{
		ChainName: c.Chain.Name,
		ChainID:   fmt.Sprintf("%d", c.Safe.ChainID),
		ShortName: c.Chain.ShortName,
		NativeCurrency: domain.NativeCurrency{
			Name:     c.Chain.CurrencyName,
			Symbol:   c.Chain.CurrencySymbol,
			Decimals: c.Chain.Decimals,
		},
		BlockExplorer: c.Chain.BlockExplorer,
	}
}

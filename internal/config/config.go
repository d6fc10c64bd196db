package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ammcore/internal/engine"
)

const envPrefix = "AMM"

// EngineConfig holds the settlement engine settings shared by every command.
type EngineConfig struct {
	MaxPriceImpactBps    uint16
	QuoteSlippageBps     uint16
	AllowPartialFills    bool
	ProtocolFeeRecipient string
	LogLevel             string
}

// Engine converts the loaded values into a validated engine.Config.
func (c EngineConfig) Engine() (engine.Config, error) {
	cfg := engine.Config{
		MaxPriceImpactBps: c.MaxPriceImpactBps,
		QuoteSlippageBps:  c.QuoteSlippageBps,
		AllowPartialFills: c.AllowPartialFills,
	}
	if c.ProtocolFeeRecipient != "" {
		if !common.IsHexAddress(c.ProtocolFeeRecipient) {
			return engine.Config{}, fmt.Errorf("invalid protocol fee recipient: %s", c.ProtocolFeeRecipient)
		}
		cfg.ProtocolFeeRecipient = common.HexToAddress(c.ProtocolFeeRecipient)
	}
	if err := cfg.Validate(); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}

// LoadEngine merges config file, environment variables, and flags into EngineConfig.
func LoadEngine(cfgFile string, flags *pflag.FlagSet) (EngineConfig, error) {
	v, err := load(cfgFile, flags)
	if err != nil {
		return EngineConfig{}, err
	}
	return engineConfig(v), nil
}

func engineConfig(v *viper.Viper) EngineConfig {
	return EngineConfig{
		MaxPriceImpactBps:    v.GetUint16("max-price-impact-bps"),
		QuoteSlippageBps:     v.GetUint16("quote-slippage-bps"),
		AllowPartialFills:    v.GetBool("allow-partial-fills"),
		ProtocolFeeRecipient: strings.TrimSpace(v.GetString("protocol-fee-recipient")),
		LogLevel:             v.GetString("log-level"),
	}
}

// load builds a viper instance with the shared defaults, env binding under
// AMM_, bound flags and the optional config file.
func load(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	defaults := engine.DefaultConfig()
	v.SetDefault("max-price-impact-bps", defaults.MaxPriceImpactBps)
	v.SetDefault("quote-slippage-bps", defaults.QuoteSlippageBps)
	v.SetDefault("allow-partial-fills", false)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

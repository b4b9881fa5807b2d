package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig carries the feature prices, free quotas and model defaults.
// It is hot-reloadable so price changes do not require a restart.
type BillingConfig struct {
	// Costs maps a billed feature to its price in credits.
	Costs map[string]int64 `mapstructure:"costs"`
	// FreeQuotas maps a usage category to its monthly free allotment.
	FreeQuotas map[string]int64 `mapstructure:"freeQuotas"`
	// SignupGrant is the credit balance a lazily created account starts with.
	SignupGrant int64 `mapstructure:"signupGrant"`

	DefaultTitleModel string `mapstructure:"defaultTitleModel"`
	DefaultImageModel string `mapstructure:"defaultImageModel"`
}

const (
	FeatureTitleOptimization = "title_optimization"
	FeatureImageGeneration   = "image_generation"
)

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Costs: map[string]int64{
			FeatureTitleOptimization: 1,
			FeatureImageGeneration:   10,
		},
		FreeQuotas: map[string]int64{
			"ai_optimizations":      10,
			"image_generations":     3,
			"color_recommendations": 20,
		},
		SignupGrant:       0,
		DefaultTitleModel: "anthropic/claude-3-haiku",
		DefaultImageModel: "zimage",
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewBillingConfigHolder reads billing.yml (when present) and watches it for
// changes. Missing file falls back to defaults.
func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/creditd/config")
	v.AddConfigPath("/etc/creditd")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CREDITD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.costs", defaults.Costs)
	v.SetDefault("billing.freeQuotas", defaults.FreeQuotas)
	v.SetDefault("billing.signupGrant", defaults.SignupGrant)
	v.SetDefault("billing.defaultTitleModel", defaults.DefaultTitleModel)
	v.SetDefault("billing.defaultImageModel", defaults.DefaultImageModel)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticBillingConfigHolder wraps a fixed config, used in tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if len(cfg.Costs) == 0 {
		return errors.New("billing.costs cannot be empty")
	}
	for feature, cost := range cfg.Costs {
		if cost <= 0 {
			return errors.New("billing.costs." + feature + " must be positive")
		}
	}
	if cfg.SignupGrant < 0 {
		return errors.New("billing.signupGrant cannot be negative")
	}
	return nil
}

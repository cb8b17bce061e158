package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/auction"
	"main/internal/clearing"
	"main/internal/pricing"
	"main/internal/schema"
	"main/internal/settle"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Registry RegistryConfig  `json:"registry"`
	Auction  AuctionConfig   `json:"auction"`
	Pricing  PricingConfig   `json:"pricing"`
	Clearing ClearingConfig  `json:"clearing"`
	Settle   SettleConfig    `json:"settle"`
	Bus      BusConfig       `json:"bus"`
	Database *DatabaseConfig `json:"database"`
}

// RegistryConfig defines category and topic mappings.
type RegistryConfig struct {
	Categories []CategoryConfig `json:"categories"`
	Topics     []TopicConfig    `json:"topics"`
}

// CategoryConfig describes a category entry.
type CategoryConfig struct {
	Name string `json:"name"`
}

// TopicConfig describes a tradable topic entry.
type TopicConfig struct {
	Ticker       string  `json:"ticker"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	TotalShares  int64   `json:"totalShares"`
	InitialPrice float64 `json:"initialPrice"`
}

// AuctionConfig controls window scheduling.
type AuctionConfig struct {
	BaseIntervalSec int64 `json:"baseIntervalSec"`
	JitterSec       int64 `json:"jitterSec"`
}

// PricingConfig controls the attention pricing cycle.
type PricingConfig struct {
	RepriceIntervalSec int64    `json:"repriceIntervalSec"`
	Sensitivity        *float64 `json:"sensitivity"`
	MaxMovePct         *float64 `json:"maxMovePct"`
	FatigueGain        *float64 `json:"fatigueGain"`
	FatigueHalfLife    *float64 `json:"fatigueHalfLife"`
	FatigueThreshold   *float64 `json:"fatigueThreshold"`
	FatiguePenaltyPct  *float64 `json:"fatiguePenaltyPct"`
}

// ClearingConfig controls short supply and squeeze handling.
type ClearingConfig struct {
	ShortCapFraction  *float64 `json:"shortCapFraction"`
	SqueezeMultiplier *float64 `json:"squeezeMultiplier"`
}

// SettleConfig controls account bootstrapping.
type SettleConfig struct {
	StartingCash string `json:"startingCash"`
}

// BusConfig controls event fan-out buffering.
type BusConfig struct {
	Buffer int `json:"buffer"`
}

// DatabaseConfig enables the audit store when present.
type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry        *schema.Registry
	Auction         auction.Config
	Pricing         pricing.Config
	RepriceInterval time.Duration
	Clearing        clearing.Config
	Settle          settle.Config
	BusBuffer       int
	Database        *DatabaseConfig
}

// Load reads a JSON config file, applies defaults and builds the
// registry.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve turns a parsed FileConfig into a Loaded configuration.
func Resolve(cfg FileConfig) (Loaded, error) {
	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}

	auctionCfg, err := resolveAuction(cfg.Auction)
	if err != nil {
		return Loaded{}, err
	}
	pricingCfg, repriceInterval, err := resolvePricing(cfg.Pricing)
	if err != nil {
		return Loaded{}, err
	}
	clearingCfg, err := resolveClearing(cfg.Clearing, pricingCfg.MaxMovePct)
	if err != nil {
		return Loaded{}, err
	}
	settleCfg, err := resolveSettle(cfg.Settle)
	if err != nil {
		return Loaded{}, err
	}

	busBuffer := cfg.Bus.Buffer
	if busBuffer < 0 {
		return Loaded{}, fmt.Errorf("bus buffer must be >= 0")
	}

	return Loaded{
		Registry:        registry,
		Auction:         auctionCfg,
		Pricing:         pricingCfg,
		RepriceInterval: repriceInterval,
		Clearing:        clearingCfg,
		Settle:          settleCfg,
		BusBuffer:       busBuffer,
		Database:        cfg.Database,
	}, nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, cat := range cfg.Categories {
		if _, err := reg.AddCategory(cat.Name); err != nil {
			return nil, err
		}
	}
	for _, topic := range cfg.Topics {
		categoryID, ok := reg.CategoryIDByName(topic.Category)
		if !ok {
			return nil, fmt.Errorf("category not found: %s", topic.Category)
		}
		if topic.TotalShares <= 0 {
			return nil, fmt.Errorf("totalShares must be > 0 for %s", topic.Ticker)
		}
		if topic.InitialPrice <= 0 {
			return nil, fmt.Errorf("initialPrice must be > 0 for %s", topic.Ticker)
		}
		if _, err := reg.AddTopic(topic.Ticker, topic.Name, categoryID, topic.TotalShares, topic.InitialPrice); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func resolveAuction(cfg AuctionConfig) (auction.Config, error) {
	out := auction.DefaultConfig()
	if cfg.BaseIntervalSec != 0 {
		if cfg.BaseIntervalSec < 0 {
			return auction.Config{}, fmt.Errorf("baseIntervalSec must be > 0")
		}
		out.BaseInterval = time.Duration(cfg.BaseIntervalSec) * time.Second
	}
	if cfg.JitterSec != 0 {
		if cfg.JitterSec < 0 {
			return auction.Config{}, fmt.Errorf("jitterSec must be >= 0")
		}
		out.Jitter = time.Duration(cfg.JitterSec) * time.Second
	}
	if out.Jitter >= out.BaseInterval {
		return auction.Config{}, fmt.Errorf("jitter must be shorter than the base interval")
	}
	return out, nil
}

func resolvePricing(cfg PricingConfig) (pricing.Config, time.Duration, error) {
	out := pricing.DefaultConfig()
	if cfg.Sensitivity != nil {
		out.Sensitivity = *cfg.Sensitivity
	}
	if cfg.MaxMovePct != nil {
		out.MaxMovePct = *cfg.MaxMovePct
	}
	if cfg.FatigueGain != nil {
		out.FatigueGain = *cfg.FatigueGain
	}
	if cfg.FatigueHalfLife != nil {
		out.FatigueHalfLife = *cfg.FatigueHalfLife
	}
	if cfg.FatigueThreshold != nil {
		out.FatigueThreshold = *cfg.FatigueThreshold
	}
	if cfg.FatiguePenaltyPct != nil {
		out.FatiguePenaltyPct = *cfg.FatiguePenaltyPct
	}
	if out.Sensitivity <= 0 {
		return pricing.Config{}, 0, fmt.Errorf("sensitivity must be > 0")
	}
	if out.MaxMovePct <= 0 || out.MaxMovePct >= 1 {
		return pricing.Config{}, 0, fmt.Errorf("maxMovePct must be in (0, 1)")
	}
	if out.FatigueHalfLife <= 0 {
		return pricing.Config{}, 0, fmt.Errorf("fatigueHalfLife must be > 0")
	}
	if out.FatigueThreshold <= 0 || out.FatigueThreshold >= 1 {
		return pricing.Config{}, 0, fmt.Errorf("fatigueThreshold must be in (0, 1)")
	}

	interval := 10 * time.Minute
	if cfg.RepriceIntervalSec != 0 {
		if cfg.RepriceIntervalSec < 0 {
			return pricing.Config{}, 0, fmt.Errorf("repriceIntervalSec must be > 0")
		}
		interval = time.Duration(cfg.RepriceIntervalSec) * time.Second
	}
	return out, interval, nil
}

func resolveClearing(cfg ClearingConfig, maxMovePct float64) (clearing.Config, error) {
	out := clearing.DefaultConfig()
	out.MaxMovePct = maxMovePct
	if cfg.ShortCapFraction != nil {
		out.ShortCapFraction = *cfg.ShortCapFraction
	}
	if cfg.SqueezeMultiplier != nil {
		out.SqueezeMultiplier = *cfg.SqueezeMultiplier
	}
	if out.ShortCapFraction < 0 || out.ShortCapFraction >= 1 {
		return clearing.Config{}, fmt.Errorf("shortCapFraction must be in [0, 1)")
	}
	if out.SqueezeMultiplier < 1 {
		return clearing.Config{}, fmt.Errorf("squeezeMultiplier must be >= 1")
	}
	return out, nil
}

func resolveSettle(cfg SettleConfig) (settle.Config, error) {
	out := settle.DefaultConfig()
	if cfg.StartingCash != "" {
		cash, err := decimal.NewFromString(cfg.StartingCash)
		if err != nil {
			return settle.Config{}, fmt.Errorf("invalid startingCash: %w", err)
		}
		if cash.IsNegative() {
			return settle.Config{}, fmt.Errorf("startingCash must be >= 0")
		}
		out.StartingCash = cash
	}
	return out, nil
}

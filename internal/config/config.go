package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Trading   Trading   `mapstructure:"trading"`
	Monitor   Monitor   `mapstructure:"monitor"`
	Courtyard Courtyard `mapstructure:"courtyard"`
	Polygon   Polygon   `mapstructure:"polygon"`
	Wallet    Wallet    `mapstructure:"wallet"`
	Market    Market    `mapstructure:"market"`
	Redis     Redis     `mapstructure:"redis"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// Trading holds the thresholds and limits used by the trade cycle.
type Trading struct {
	MinDiscount      float64       `mapstructure:"min_discount"`
	ProfitTarget     float64       `mapstructure:"profit_target"`
	StopLoss         float64       `mapstructure:"stop_loss"`
	MaxPositionSize  float64       `mapstructure:"max_position_size"`
	MaxPortfolioSize float64       `mapstructure:"max_portfolio_size"`
	DryRun           bool          `mapstructure:"dry_run"`
	TradeInterval    time.Duration `mapstructure:"trade_interval"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	Category         string        `mapstructure:"category"`
	ListingLimit     int           `mapstructure:"listing_limit"`
	CandidateLimit   int           `mapstructure:"candidate_limit"`
}

// Monitor holds the configuration for the opportunity scanner.
type Monitor struct {
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	MaxPrice     float64       `mapstructure:"max_price"`
	WatchedSets  []string      `mapstructure:"watched_sets"`
	SetLimit     int           `mapstructure:"set_limit"`
	ListingLimit int           `mapstructure:"listing_limit"`
}

// Courtyard holds the configuration for the marketplace API.
type Courtyard struct {
	BaseURL        string  `mapstructure:"base_url"`
	UserAgent      string  `mapstructure:"user_agent"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Polygon holds the configuration for the chain RPC used to read balances.
type Polygon struct {
	RPCURL         string  `mapstructure:"rpc_url"`
	StableContract string  `mapstructure:"stable_contract"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Wallet points at the local wallet file. Address, when set, wins over the file.
type Wallet struct {
	Path    string `mapstructure:"path"`
	Address string `mapstructure:"address"`
}

// Market selects the market data provider: "courtyard" or "fake".
type Market struct {
	Provider string `mapstructure:"provider"`
}

// Redis enables the price stats cache when URL is set.
type Redis struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

// Server holds the configuration for the web server. EnginePort, when
// non-zero, makes the trader serve the same API with engine status.
type Server struct {
	Port           int           `mapstructure:"port"`
	EnginePort     int           `mapstructure:"engine_port"`
	StreamInterval time.Duration `mapstructure:"stream_interval"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaultWatchedSets = []string{
	"base-set", "jungle", "fossil", "team-rocket", "gym-heroes",
	"gym-challenge", "neo-genesis", "neo-discovery", "neo-revelation",
	"neo-destiny", "expedition", "aquapolis", "skyridge",
	"ex-ruby-sapphire", "celebrations", "evolving-skies", "151",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.min_discount", 0.15)
	v.SetDefault("trading.profit_target", 0.10)
	v.SetDefault("trading.stop_loss", 0.20)
	v.SetDefault("trading.max_position_size", 100)
	v.SetDefault("trading.max_portfolio_size", 500)
	v.SetDefault("trading.dry_run", true)
	v.SetDefault("trading.trade_interval", "5m")
	v.SetDefault("trading.request_timeout", "10s")
	v.SetDefault("trading.category", "pokemon")
	v.SetDefault("trading.listing_limit", 100)
	v.SetDefault("trading.candidate_limit", 20)

	v.SetDefault("monitor.scan_interval", "1m")
	v.SetDefault("monitor.max_price", 100)
	v.SetDefault("monitor.watched_sets", defaultWatchedSets)
	v.SetDefault("monitor.set_limit", 5)
	v.SetDefault("monitor.listing_limit", 50)

	v.SetDefault("courtyard.base_url", "https://courtyard.io")
	v.SetDefault("courtyard.user_agent", "PokeTrader/1.0")
	v.SetDefault("courtyard.rate_limit", 5)       // requests per second
	v.SetDefault("courtyard.rate_limit_burst", 2) // burst size

	v.SetDefault("polygon.rpc_url", "https://polygon-rpc.com")
	v.SetDefault("polygon.stable_contract", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	v.SetDefault("polygon.rate_limit", 5)
	v.SetDefault("polygon.rate_limit_burst", 2)

	v.SetDefault("wallet.path", ".wallet.json")
	v.SetDefault("market.provider", "courtyard")
	v.SetDefault("redis.ttl", "30s")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.engine_port", 8081)
	v.SetDefault("server.stream_interval", "5s")
	v.SetDefault("database.dsn", "trades.db?_busy_timeout=5000")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment apply.
func LoadConfig(path string) (config Config, err error) {
	// Pick up secrets from a local .env; it is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}
	err = config.Validate()
	return
}

// Validate rejects threshold combinations the trade cycle cannot honour.
func (c *Config) Validate() error {
	t := c.Trading
	switch {
	case t.MinDiscount <= 0 || t.MinDiscount >= 1:
		return fmt.Errorf("trading.min_discount must be in (0,1), got %v", t.MinDiscount)
	case t.ProfitTarget <= 0:
		return fmt.Errorf("trading.profit_target must be positive, got %v", t.ProfitTarget)
	case t.StopLoss <= 0 || t.StopLoss >= 1:
		return fmt.Errorf("trading.stop_loss must be in (0,1), got %v", t.StopLoss)
	case t.MaxPositionSize <= 0:
		return fmt.Errorf("trading.max_position_size must be positive, got %v", t.MaxPositionSize)
	case t.MaxPortfolioSize < t.MaxPositionSize:
		return fmt.Errorf("trading.max_portfolio_size (%v) is below max_position_size (%v)", t.MaxPortfolioSize, t.MaxPositionSize)
	case t.TradeInterval <= 0:
		return fmt.Errorf("trading.trade_interval must be positive")
	case t.RequestTimeout <= 0:
		return fmt.Errorf("trading.request_timeout must be positive")
	}
	switch c.Market.Provider {
	case "courtyard", "fake":
	default:
		return fmt.Errorf("unknown market.provider %q", c.Market.Provider)
	}
	return nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	App      AppConfig              `mapstructure:"app"`
	NATS     NATSConfig             `mapstructure:"nats"`
	Neo4J    Neo4JConfig            `mapstructure:"neo4j"`
	Chains   map[string]ChainConfig `mapstructure:"chains"`
	Analysis AnalysisConfig         `mapstructure:"analysis"`
	Tiers    TierConfig             `mapstructure:"tiers"`
	Metrics  MetricsConfig          `mapstructure:"metrics"`
}

// AppConfig represents application-specific configuration
type AppConfig struct {
	Env            string `mapstructure:"env"`
	LogLevel       string `mapstructure:"log_level"`
	HTTPPort       int    `mapstructure:"http_port"`
	WorkerPoolSize int    `mapstructure:"worker_pool_size"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL                string        `mapstructure:"url"`
	SubjectPrefix      string        `mapstructure:"subject_prefix"`
	ConsumerGroup      string        `mapstructure:"consumer_group"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	ReconnectAttempts  int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay     time.Duration `mapstructure:"reconnect_delay"`
	MaxPendingMessages int           `mapstructure:"max_pending_messages"`
	Enabled            bool          `mapstructure:"enabled"`
}

// EventSubject returns the raw-event subject for a chain.
func (c *NATSConfig) EventSubject(chain string) string {
	return fmt.Sprintf("%s.events.%s", c.SubjectPrefix, chain)
}

// OutcomeSubject returns the subject carrying realized-outcome feedback.
func (c *NATSConfig) OutcomeSubject() string {
	return fmt.Sprintf("%s.outcomes", c.SubjectPrefix)
}

// AlertSubject returns the subject the alert stream is published on.
func (c *NATSConfig) AlertSubject() string {
	return fmt.Sprintf("%s.alerts", c.SubjectPrefix)
}

// Neo4JConfig represents Neo4J configuration
type Neo4JConfig struct {
	URI                          string        `mapstructure:"uri"`
	Username                     string        `mapstructure:"username"`
	Password                     string        `mapstructure:"password"`
	Database                     string        `mapstructure:"database"`
	ConnectTimeout               time.Duration `mapstructure:"connect_timeout"`
	MaxConnectionPoolSize        int           `mapstructure:"max_connection_pool_size"`
	ConnectionAcquisitionTimeout time.Duration `mapstructure:"connection_acquisition_timeout"`
}

// ChainConfig describes one source chain: its base assets for buy/sell
// classification and the dust threshold tuned to that chain.
type ChainConfig struct {
	NativeAsset   string   `mapstructure:"native_asset"`
	WrappedNative []string `mapstructure:"wrapped_native"`
	Stablecoins   []string `mapstructure:"stablecoins"`
	MinAmount     float64  `mapstructure:"min_amount"`
}

// AnalysisConfig carries the detection thresholds and cadences.
type AnalysisConfig struct {
	CycleInterval    time.Duration `mapstructure:"cycle_interval"`
	RetentionHorizon time.Duration `mapstructure:"retention_horizon"`
	MaxPerToken      int           `mapstructure:"max_per_token"`
	MaxPerWallet     int           `mapstructure:"max_per_wallet"`

	CoActivityInterval time.Duration `mapstructure:"co_activity_interval"`
	CoActivityHalfLife time.Duration `mapstructure:"co_activity_half_life"`
	MinEdgeWeight      float64       `mapstructure:"min_edge_weight"`
	MinClusterScore    float64       `mapstructure:"min_cluster_score"`
	HighClusterScore   float64       `mapstructure:"high_cluster_score"`

	CorrelationWindow time.Duration `mapstructure:"correlation_window"`
	LagSmoothing      float64       `mapstructure:"lag_smoothing"`
	ConfidenceGain    float64       `mapstructure:"confidence_gain"`
	ConfidenceDecay   float64       `mapstructure:"confidence_decay"`
	MinEdgeConfidence float64       `mapstructure:"min_edge_confidence"`
	CrossTokenBonus   float64       `mapstructure:"cross_token_bonus"`
	MinLeadConfidence float64       `mapstructure:"min_lead_confidence"`

	DecayWindow    time.Duration `mapstructure:"decay_window"`
	PromoteHitRate float64       `mapstructure:"promote_hit_rate"`
	DemoteHitRate  float64       `mapstructure:"demote_hit_rate"`
	MinTierSamples int           `mapstructure:"min_tier_samples"`

	ContrarianWindow time.Duration `mapstructure:"contrarian_window"`
	AlertCooldown    time.Duration `mapstructure:"alert_cooldown"`
}

// TierConfig seeds the tier store from the curated list. Keys are
// chain-qualified wallet ids, values are tier letters.
type TierConfig struct {
	Seed   map[string]string `mapstructure:"seed"`
	Labels map[string]string `mapstructure:"labels"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from environment variables and files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/crypto-alpha-tracker")

	// Environment variables
	viper.AutomaticEnv()
	viper.SetEnvPrefix("")

	// Map environment variables to nested config keys
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Default values
	setDefaults()

	// Read config file if exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.http_port", 8080)
	viper.SetDefault("app.worker_pool_size", 4)

	// NATS defaults
	viper.SetDefault("nats.url", "nats://localhost:4222")
	viper.SetDefault("nats.subject_prefix", "alpha")
	viper.SetDefault("nats.consumer_group", "alpha-tracker")
	viper.SetDefault("nats.connect_timeout", "10s")
	viper.SetDefault("nats.reconnect_attempts", 5)
	viper.SetDefault("nats.reconnect_delay", "2s")
	viper.SetDefault("nats.max_pending_messages", 10000)
	viper.SetDefault("nats.enabled", true)

	// Neo4J defaults
	viper.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	viper.SetDefault("neo4j.username", "neo4j")
	viper.SetDefault("neo4j.password", "password")
	viper.SetDefault("neo4j.database", "neo4j")
	viper.SetDefault("neo4j.connect_timeout", "10s")
	viper.SetDefault("neo4j.max_connection_pool_size", 50)
	viper.SetDefault("neo4j.connection_acquisition_timeout", "60s")

	// Chain defaults: Solana and an EVM mainnet. Dust thresholds are tuned
	// per chain, near the smallest observed dust value, never shared.
	viper.SetDefault("chains.solana.native_asset", "SOL")
	viper.SetDefault("chains.solana.wrapped_native", []string{"WSOL", "wSOL"})
	viper.SetDefault("chains.solana.stablecoins", []string{"USDC", "USDT"})
	viper.SetDefault("chains.solana.min_amount", 0.000001)
	viper.SetDefault("chains.ethereum.native_asset", "ETH")
	viper.SetDefault("chains.ethereum.wrapped_native", []string{"WETH"})
	viper.SetDefault("chains.ethereum.stablecoins", []string{"USDC", "USDT", "DAI"})
	viper.SetDefault("chains.ethereum.min_amount", 0.0000001)

	// Analysis defaults
	viper.SetDefault("analysis.cycle_interval", "60s")
	viper.SetDefault("analysis.retention_horizon", "24h")
	viper.SetDefault("analysis.max_per_token", 2000)
	viper.SetDefault("analysis.max_per_wallet", 2000)
	viper.SetDefault("analysis.co_activity_interval", "3m")
	viper.SetDefault("analysis.co_activity_half_life", "30m")
	viper.SetDefault("analysis.min_edge_weight", 0.5)
	viper.SetDefault("analysis.min_cluster_score", 2.0)
	viper.SetDefault("analysis.high_cluster_score", 0.8)
	viper.SetDefault("analysis.correlation_window", "2h")
	viper.SetDefault("analysis.lag_smoothing", 0.3)
	viper.SetDefault("analysis.confidence_gain", 0.2)
	viper.SetDefault("analysis.confidence_decay", 0.02)
	viper.SetDefault("analysis.min_edge_confidence", 0.05)
	viper.SetDefault("analysis.cross_token_bonus", 0.1)
	viper.SetDefault("analysis.min_lead_confidence", 0.35)
	viper.SetDefault("analysis.decay_window", "168h")
	viper.SetDefault("analysis.promote_hit_rate", 0.65)
	viper.SetDefault("analysis.demote_hit_rate", 0.35)
	viper.SetDefault("analysis.min_tier_samples", 8)
	viper.SetDefault("analysis.contrarian_window", "1h")
	viper.SetDefault("analysis.alert_cooldown", "30m")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)

	// Bind env for NATS URL
	viper.BindEnv("nats.url", "NATS_URL")
}

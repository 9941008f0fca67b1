// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. WAREHOUSE_SERVER_ADDR.
const EnvPrefix = "WAREHOUSE"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Server() ServerConfig
	Edges() EdgesConfig
	Warehouse() WarehouseConfig
	Policy() PolicyConfig
	Telemetry() TelemetryConfig

	SetServerWorkerConcurrency(int)
	SetWarehouseOrderTotal(int)
	SetWarehouseSeed(int64)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	ServerCfg    ServerConfig    `mapstructure:"server" yaml:"server"`
	EdgesCfg     EdgesConfig     `mapstructure:"edges" yaml:"edges"`
	WarehouseCfg WarehouseConfig `mapstructure:"warehouse" yaml:"warehouse"`
	PolicyCfg    PolicyConfig    `mapstructure:"policy" yaml:"policy"`
	TelemetryCfg TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }
func (c *Config) Server() ServerConfig       { return c.ServerCfg }
func (c *Config) Edges() EdgesConfig         { return c.EdgesCfg }
func (c *Config) Warehouse() WarehouseConfig { return c.WarehouseCfg }
func (c *Config) Policy() PolicyConfig       { return c.PolicyCfg }
func (c *Config) Telemetry() TelemetryConfig { return c.TelemetryCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetServerWorkerConcurrency(n int) { c.ServerCfg.WorkerConcurrency = n }
func (c *Config) SetWarehouseOrderTotal(n int)     { c.WarehouseCfg.OrderTotal = n }
func (c *Config) SetWarehouseSeed(s int64)         { c.WarehouseCfg.Seed = s }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig selects and configures the record store.
// An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	MaxConns       int32         `mapstructure:"max_conns" yaml:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// ServerConfig configures the HTTP command surface.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	WorkerConcurrency int           `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	AcquireTimeout    time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// EdgesConfig holds the base URLs of the edge controllers and the outbound
// notification limits. An empty URL disables notifications to that edge.
type EdgesConfig struct {
	ClassificationURL string        `mapstructure:"classification_url" yaml:"classification_url"`
	RepositoryURL     string        `mapstructure:"repository_url" yaml:"repository_url"`
	ShipmentURL       string        `mapstructure:"shipment_url" yaml:"shipment_url"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit         float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
}

// WarehouseConfig holds the engine constants and experiment defaults.
type WarehouseConfig struct {
	CapConveyor     int      `mapstructure:"cap_conveyor" yaml:"cap_conveyor"`
	CapWait         int      `mapstructure:"cap_wait" yaml:"cap_wait"`
	RewardOrder     float64  `mapstructure:"reward_order" yaml:"reward_order"`
	RewardTrash     float64  `mapstructure:"reward_trash" yaml:"reward_trash"`
	RewardWait      float64  `mapstructure:"reward_wait" yaml:"reward_wait"`
	OrderTotal      int      `mapstructure:"order_total" yaml:"order_total"`
	AnomalyMTBF     int      `mapstructure:"anomaly_mtbf" yaml:"anomaly_mtbf"`
	AnomalyDuration int      `mapstructure:"anomaly_duration" yaml:"anomaly_duration"`
	AnomalyWait     int      `mapstructure:"anomaly_wait" yaml:"anomaly_wait"`
	AnomalyAware    bool     `mapstructure:"anomaly_aware" yaml:"anomaly_aware"`
	FaultProne      []string `mapstructure:"fault_prone" yaml:"fault_prone"`
	DecisionRule    string   `mapstructure:"decision_rule" yaml:"decision_rule"`
	Seed            int64    `mapstructure:"seed" yaml:"seed"`
}

// PolicyConfig configures the learned policy and its background updater.
type PolicyConfig struct {
	LearningRate     float64       `mapstructure:"learning_rate" yaml:"learning_rate"`
	Discount         float64       `mapstructure:"discount" yaml:"discount"`
	ExplorationBonus float64       `mapstructure:"exploration_bonus" yaml:"exploration_bonus"`
	BatchSize        int           `mapstructure:"batch_size" yaml:"batch_size"`
	BufferSize       int           `mapstructure:"buffer_size" yaml:"buffer_size"`
	FlushInterval    time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
	UpdateBudget     time.Duration `mapstructure:"update_budget" yaml:"update_budget"`
	SnapshotDir      string        `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`
	Specialists      bool          `mapstructure:"specialists" yaml:"specialists"`
}

// TelemetryConfig configures OTLP trace export. Tracing is off unless an
// endpoint is set.
type TelemetryConfig struct {
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// Enabled reports whether traces should be exported.
func (t TelemetryConfig) Enabled() bool { return t.Endpoint != "" }

// NewDefaultConfig creates a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "warehouse-cloud")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.connect_timeout", "10s")

	// -- Server --
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.worker_concurrency", 16)
	v.SetDefault("server.acquire_timeout", "2s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// -- Edges --
	v.SetDefault("edges.classification_url", "")
	v.SetDefault("edges.repository_url", "")
	v.SetDefault("edges.shipment_url", "")
	v.SetDefault("edges.timeout", "5s")
	v.SetDefault("edges.rate_limit", 20.0)
	v.SetDefault("edges.burst", 10)

	// -- Warehouse --
	v.SetDefault("warehouse.cap_conveyor", 5)
	v.SetDefault("warehouse.cap_wait", 5)
	v.SetDefault("warehouse.reward_order", 30.0)
	v.SetDefault("warehouse.reward_trash", 70.0)
	v.SetDefault("warehouse.reward_wait", 1.0)
	v.SetDefault("warehouse.order_total", 20)
	v.SetDefault("warehouse.anomaly_mtbf", 5)
	v.SetDefault("warehouse.anomaly_duration", 10)
	v.SetDefault("warehouse.anomaly_wait", 3)
	v.SetDefault("warehouse.anomaly_aware", false)
	v.SetDefault("warehouse.fault_prone", []string{"left", "right"})
	v.SetDefault("warehouse.decision_rule", DecisionRuleSelective)
	v.SetDefault("warehouse.seed", 1)

	// -- Policy --
	v.SetDefault("policy.learning_rate", 0.01)
	v.SetDefault("policy.discount", 0.99)
	v.SetDefault("policy.exploration_bonus", 1.0)
	v.SetDefault("policy.batch_size", 128)
	v.SetDefault("policy.buffer_size", 10000)
	v.SetDefault("policy.flush_interval", "500ms")
	v.SetDefault("policy.update_budget", "5ms")
	v.SetDefault("policy.snapshot_dir", "")
	v.SetDefault("policy.specialists", false)

	// -- Telemetry --
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Decision rule variants for the Classification stage.
const (
	// DecisionRuleSelective asks the policy only when demand is pending and
	// more than one conveyor is eligible.
	DecisionRuleSelective = "selective"
	// DecisionRuleAvailability asks the policy whenever more than one conveyor is eligible.
	DecisionRuleAvailability = "availability"
)

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Credentials should never have to live in a config file.
	_ = v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.ServerCfg.WorkerConcurrency <= 0 {
		return fmt.Errorf("server.worker_concurrency must be a positive integer")
	}
	if c.EdgesCfg.RateLimit < 0 {
		return fmt.Errorf("edges.rate_limit must not be negative")
	}
	if err := c.WarehouseCfg.Validate(); err != nil {
		return fmt.Errorf("warehouse configuration invalid: %w", err)
	}
	if err := c.PolicyCfg.Validate(); err != nil {
		return fmt.Errorf("policy configuration invalid: %w", err)
	}
	if r := c.TelemetryCfg.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0.0 and 1.0")
	}
	return nil
}

// Validate checks the warehouse constants.
func (w *WarehouseConfig) Validate() error {
	if w.CapConveyor <= 0 {
		return fmt.Errorf("cap_conveyor must be a positive integer")
	}
	if w.CapWait < 0 || w.AnomalyWait < 0 {
		return fmt.Errorf("cap_wait and anomaly_wait must not be negative")
	}
	if w.OrderTotal < 0 {
		return fmt.Errorf("order_total must not be negative")
	}
	if w.AnomalyDuration <= 0 {
		return fmt.Errorf("anomaly_duration must be a positive integer")
	}
	if w.AnomalyMTBF <= 0 {
		return fmt.Errorf("anomaly_mtbf must be a positive integer")
	}
	switch w.DecisionRule {
	case DecisionRuleSelective, DecisionRuleAvailability:
	default:
		return fmt.Errorf("unknown decision_rule %q", w.DecisionRule)
	}
	if _, err := w.FaultProneConveyors(); err != nil {
		return err
	}
	return nil
}

// FaultProneConveyors resolves the configured conveyor names to indexes
// (left=0, middle=1, right=2).
func (w *WarehouseConfig) FaultProneConveyors() ([]int, error) {
	out := make([]int, 0, len(w.FaultProne))
	for _, name := range w.FaultProne {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "left":
			out = append(out, 0)
		case "middle":
			out = append(out, 1)
		case "right":
			out = append(out, 2)
		default:
			return nil, fmt.Errorf("unknown fault_prone conveyor %q", name)
		}
	}
	return out, nil
}

// Validate checks the policy settings.
func (p *PolicyConfig) Validate() error {
	if p.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive")
	}
	if p.Discount < 0 || p.Discount > 1 {
		return fmt.Errorf("discount must be between 0.0 and 1.0")
	}
	if p.BatchSize <= 0 || p.BufferSize <= 0 {
		return fmt.Errorf("batch_size and buffer_size must be positive integers")
	}
	if p.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be a positive duration")
	}
	return nil
}

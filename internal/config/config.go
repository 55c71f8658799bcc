package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cloudscout/cloudscout/internal/incident"
	"github.com/cloudscout/cloudscout/internal/telemetry"
)

// Default values applied when fields are absent from the config file.
// Detector defaults mirror the thresholds the detectors were designed around.
const (
	DefaultScanInterval = 5 * time.Minute
	DefaultLookback     = time.Hour
	DefaultFetchTimeout = 30 * time.Second
	DefaultMaxParallel  = 8
	DefaultPeriod       = 5 * time.Minute

	DefaultSaturationThreshold = 95.0
	DefaultSaturationDuration  = 10 * time.Minute
	DefaultErrorMax            = 5
	DefaultErrorTimeoutMS      = 25000.0
	DefaultUsageThreshold      = 100000.0
	DefaultUsageWindow         = time.Hour
	DefaultUsageCostPer1K      = 0.01

	DefaultCooldown         = 15 * time.Minute
	DefaultLedgerRetention  = 24 * time.Hour
	DefaultLedgerCapacity   = 1024
	DefaultEvidenceMaxAge   = 30 * 24 * time.Hour
	DefaultMaxArtifactBytes = 1 << 20
	DefaultListen           = ":8090"
)

// Config is the top-level configuration for the cloudscout process.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	// LogLevel sets the slog level: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	Scan      ScanConfig      `yaml:"scan"`
	Detectors DetectorsConfig `yaml:"detectors"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Evidence  EvidenceConfig  `yaml:"evidence"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Inventory InventoryConfig `yaml:"inventory"`
	Server    ServerConfig    `yaml:"server"`
}

// Level maps the configured log level onto slog. Unknown values fall back
// to Info rather than failing the load.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ScanConfig shapes the scan cycle.
type ScanConfig struct {
	// Interval between continuous-mode scan cycles.
	Interval time.Duration `yaml:"interval"`

	// Lookback is the telemetry window each scan inspects.
	Lookback time.Duration `yaml:"lookback"`

	// FetchTimeout bounds each individual telemetry fetch.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// MaxParallel caps how many resource and detector pairs are evaluated
	// concurrently within one scan.
	MaxParallel int `yaml:"max_parallel"`

	// Period is the sample period requested from the telemetry source.
	Period time.Duration `yaml:"period"`
}

// DetectorsConfig holds per-detector thresholds.
type DetectorsConfig struct {
	Saturation SaturationConfig `yaml:"saturation"`
	ErrorRate  ErrorRateConfig  `yaml:"error_rate"`
	Usage      UsageConfig      `yaml:"usage"`
}

// SaturationConfig tunes the compute-saturation detector.
type SaturationConfig struct {
	// Threshold is the CPU percentage at which a sample counts as saturated.
	Threshold float64 `yaml:"threshold"`

	// MinDuration is the shortest saturated run worth reporting.
	MinDuration time.Duration `yaml:"min_duration"`
}

// ErrorRateConfig tunes the function-error-rate detector.
type ErrorRateConfig struct {
	// MaxErrors is the in-window error count at which an incident fires.
	MaxErrors int `yaml:"max_errors"`

	// TimeoutMS escalates severity when any duration sample reaches it.
	TimeoutMS float64 `yaml:"timeout_ms"`
}

// UsageConfig tunes the usage-volume-spike detector.
type UsageConfig struct {
	// Threshold is the trailing-window token sum at which an incident fires.
	Threshold float64 `yaml:"threshold"`

	// Window is the trailing span the token sum covers.
	Window time.Duration `yaml:"window"`

	// CostPer1K prices the overage estimate in dollars per thousand tokens.
	CostPer1K float64 `yaml:"cost_per_1k"`
}

// AlertsConfig holds the dispatch gate, cooldown ledger sizing, and
// transport targets.
type AlertsConfig struct {
	// Severities lists the bands that page: low | medium | high | critical.
	// Empty means high and critical.
	Severities []string `yaml:"severities"`

	// Cooldown suppresses repeat alerts for a fingerprint after a send.
	Cooldown time.Duration `yaml:"cooldown"`

	// LedgerRetention is how long alert records are kept before eviction.
	LedgerRetention time.Duration `yaml:"ledger_retention"`

	// LedgerCapacity bounds the number of fingerprints tracked at once.
	LedgerCapacity int `yaml:"ledger_capacity"`

	// Webhooks lists webhook delivery targets.
	Webhooks []WebhookConfig `yaml:"webhooks"`

	// NATS configures the optional NATS transport.
	NATS NATSConfig `yaml:"nats"`
}

// SeverityGate parses the configured severities. An empty list returns nil,
// which the dispatcher treats as its default gate.
func (a AlertsConfig) SeverityGate() ([]incident.Severity, error) {
	var out []incident.Severity
	for _, raw := range a.Severities {
		sev, err := incident.ParseSeverity(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, sev)
	}
	return out, nil
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Name identifies the target in logs and dispatch reports.
	Name string `yaml:"name"`

	// Type is one of: slack | teams | generic.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
// Returns empty string if URLEnv is unset or the variable is not found.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// NATSConfig configures the NATS alert transport.
type NATSConfig struct {
	// URL is the NATS server address. Empty disables the transport.
	URL string `yaml:"url"`

	// Subject overrides the default publish subject.
	Subject string `yaml:"subject"`
}

// EvidenceConfig controls on-disk evidence archival.
type EvidenceConfig struct {
	// Dir is where evidence bundles are written. Empty disables archival.
	Dir string `yaml:"dir"`

	// MaxArtifactBytes caps a single serialized artifact.
	MaxArtifactBytes int `yaml:"max_artifact_bytes"`

	// MaxAge is how long archived bundles are kept before the sweep
	// removes them.
	MaxAge time.Duration `yaml:"max_age"`

	// Pack additionally writes each bundle as a .tar.gz.
	Pack bool `yaml:"pack"`
}

// TelemetryConfig selects and configures the telemetry backend.
type TelemetryConfig struct {
	// Provider is one of: aws | scrape | fixture.
	Provider string `yaml:"provider"`

	// Region is the AWS region. Used when Provider == "aws".
	Region string `yaml:"region"`

	// FixtureDir holds per-resource JSON documents. Used when
	// Provider == "fixture".
	FixtureDir string `yaml:"fixture_dir"`

	// Targets lists scrape endpoints. Used when Provider == "scrape".
	Targets []telemetry.ScrapeTarget `yaml:"targets"`
}

// InventoryConfig points at the resource inventory file.
type InventoryConfig struct {
	// File is the YAML resource inventory, watched for changes while the
	// process runs.
	File string `yaml:"file"`
}

// ServerConfig holds the REST and WebSocket listener settings.
type ServerConfig struct {
	// Listen is the bind address for the REST API and WebSocket hub.
	Listen string `yaml:"listen"`

	// APIKeyEnv is the name of the environment variable holding the
	// expected API key. Unset leaves the API open.
	APIKeyEnv string `yaml:"api_key_env"`
}

// APIKey returns the API key resolved from the environment.
func (s ServerConfig) APIKey() string {
	if s.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(s.APIKeyEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		LogLevel: "info",
		Scan: ScanConfig{
			Interval:     DefaultScanInterval,
			Lookback:     DefaultLookback,
			FetchTimeout: DefaultFetchTimeout,
			MaxParallel:  DefaultMaxParallel,
			Period:       DefaultPeriod,
		},
		Detectors: DetectorsConfig{
			Saturation: SaturationConfig{
				Threshold:   DefaultSaturationThreshold,
				MinDuration: DefaultSaturationDuration,
			},
			ErrorRate: ErrorRateConfig{
				MaxErrors: DefaultErrorMax,
				TimeoutMS: DefaultErrorTimeoutMS,
			},
			Usage: UsageConfig{
				Threshold: DefaultUsageThreshold,
				Window:    DefaultUsageWindow,
				CostPer1K: DefaultUsageCostPer1K,
			},
		},
		Alerts: AlertsConfig{
			Cooldown:        DefaultCooldown,
			LedgerRetention: DefaultLedgerRetention,
			LedgerCapacity:  DefaultLedgerCapacity,
		},
		Evidence: EvidenceConfig{
			MaxArtifactBytes: DefaultMaxArtifactBytes,
			MaxAge:           DefaultEvidenceMaxAge,
		},
		Telemetry: TelemetryConfig{
			Provider: "fixture",
		},
		Server: ServerConfig{
			Listen: DefaultListen,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Scan.Interval <= 0 {
		return fmt.Errorf("scan.interval must be positive")
	}
	if cfg.Scan.Lookback <= 0 {
		return fmt.Errorf("scan.lookback must be positive")
	}
	if cfg.Scan.FetchTimeout <= 0 {
		return fmt.Errorf("scan.fetch_timeout must be positive")
	}
	if cfg.Scan.MaxParallel <= 0 {
		return fmt.Errorf("scan.max_parallel must be positive")
	}
	if cfg.Scan.Period <= 0 {
		return fmt.Errorf("scan.period must be positive")
	}

	if t := cfg.Detectors.Saturation.Threshold; t <= 0 || t > 100 {
		return fmt.Errorf("detectors.saturation.threshold must be between 0 and 100")
	}
	if cfg.Detectors.Saturation.MinDuration <= 0 {
		return fmt.Errorf("detectors.saturation.min_duration must be positive")
	}
	if cfg.Detectors.ErrorRate.MaxErrors <= 0 {
		return fmt.Errorf("detectors.error_rate.max_errors must be positive")
	}
	if cfg.Detectors.ErrorRate.TimeoutMS <= 0 {
		return fmt.Errorf("detectors.error_rate.timeout_ms must be positive")
	}
	if cfg.Detectors.Usage.Threshold <= 0 {
		return fmt.Errorf("detectors.usage.threshold must be positive")
	}
	if cfg.Detectors.Usage.Window <= 0 {
		return fmt.Errorf("detectors.usage.window must be positive")
	}
	if cfg.Detectors.Usage.CostPer1K < 0 {
		return fmt.Errorf("detectors.usage.cost_per_1k must not be negative")
	}

	if _, err := cfg.Alerts.SeverityGate(); err != nil {
		return fmt.Errorf("alerts.severities: %w", err)
	}
	if cfg.Alerts.Cooldown < 0 {
		return fmt.Errorf("alerts.cooldown must not be negative")
	}
	if cfg.Alerts.LedgerRetention <= 0 {
		return fmt.Errorf("alerts.ledger_retention must be positive")
	}
	if cfg.Alerts.LedgerCapacity <= 0 {
		return fmt.Errorf("alerts.ledger_capacity must be positive")
	}
	for i, wh := range cfg.Alerts.Webhooks {
		if wh.Name == "" {
			return fmt.Errorf("alerts.webhooks[%d]: name is required", i)
		}
		switch wh.Type {
		case "slack", "teams", "generic":
		default:
			return fmt.Errorf("alerts.webhooks[%d] %q: unknown type %q", i, wh.Name, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("alerts.webhooks[%d] %q: url_env is required", i, wh.Name)
		}
	}

	if cfg.Evidence.MaxArtifactBytes <= 0 {
		return fmt.Errorf("evidence.max_artifact_bytes must be positive")
	}
	if cfg.Evidence.MaxAge <= 0 {
		return fmt.Errorf("evidence.max_age must be positive")
	}

	switch cfg.Telemetry.Provider {
	case "aws":
		if cfg.Telemetry.Region == "" {
			return fmt.Errorf("telemetry.region is required for the aws provider")
		}
	case "fixture":
		if cfg.Telemetry.FixtureDir == "" {
			return fmt.Errorf("telemetry.fixture_dir is required for the fixture provider")
		}
	case "scrape":
		if len(cfg.Telemetry.Targets) == 0 {
			return fmt.Errorf("telemetry.targets must list at least one endpoint for the scrape provider")
		}
		for i, t := range cfg.Telemetry.Targets {
			if t.Resource.ID == "" {
				return fmt.Errorf("telemetry.targets[%d]: resource.id is required", i)
			}
			if t.Endpoint == "" {
				return fmt.Errorf("telemetry.targets[%d] %q: endpoint is required", i, t.Resource.ID)
			}
		}
	default:
		return fmt.Errorf("telemetry.provider must be one of aws, scrape, fixture (got %q)", cfg.Telemetry.Provider)
	}

	if cfg.Inventory.File == "" {
		return fmt.Errorf("inventory.file is required")
	}
	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	return nil
}

// Inventory is the resource inventory document.
type Inventory struct {
	Resources []telemetry.Resource `yaml:"resources"`
}

// LoadInventory reads the YAML resource inventory at path.
func LoadInventory(path string) ([]telemetry.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inventory: read file: %w", err)
	}

	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("inventory: parse yaml: %w", err)
	}

	seen := make(map[string]bool, len(inv.Resources))
	for i, r := range inv.Resources {
		if r.ID == "" {
			return nil, fmt.Errorf("inventory: resources[%d]: id is required", i)
		}
		switch r.Kind {
		case telemetry.KindInstance, telemetry.KindFunction, telemetry.KindModel, telemetry.KindBucket:
		default:
			return nil, fmt.Errorf("inventory: resources[%d] %q: unknown kind %q", i, r.ID, r.Kind)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("inventory: duplicate resource id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return inv.Resources, nil
}

// Package config loads configuration for the Arena, Culture-Graph Indexer,
// and Operator Telemetry binaries from environment variables, an optional
// local .env file, and an optional YAML overlay, in that precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig controls the Persistent Store Adapter's Postgres connection.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifeSecs int    `yaml:"conn_max_lifetime_seconds" env:"DATABASE_CONN_MAX_LIFETIME"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// RedisConfig controls the influence-score cache.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// LedgerConfig addresses the abstract Ledger collaborator (spec §6).
type LedgerConfig struct {
	RPCURL              string        `yaml:"rpc_url" env:"ENERGY_ORACLE_RPC_URL"`
	ChainID              int64         `yaml:"chain_id" env:"ENERGY_ORACLE_CHAIN_ID"`
	MintedTopicAddress   string        `yaml:"minted_topic_address" env:"LEDGER_MINT_ADDRESS"`
	RoundTopicAddress    string        `yaml:"round_topic_address" env:"LEDGER_ROUND_ADDRESS"`
	VerifyingContract    string        `yaml:"verifying_contract" env:"ENERGY_ORACLE_ADDRESS"`
	RequestTimeout       time.Duration `yaml:"request_timeout" env:"LEDGER_REQUEST_TIMEOUT"`
}

// IndexerConfig controls the Culture-Graph Indexer's backfill/tail behavior.
type IndexerConfig struct {
	FinalityDepth  uint64        `yaml:"finality_depth" env:"INDEXER_FINALITY_DEPTH"`
	BlockBatchSize uint64        `yaml:"block_batch_size" env:"INDEXER_BLOCK_BATCH_SIZE"`
	StartBlock     uint64        `yaml:"start_block" env:"INDEXER_START_BLOCK"`
	TailInterval   time.Duration `yaml:"tail_interval" env:"INDEXER_TAIL_INTERVAL"`
	ForceReorg     bool          `yaml:"force_reorg" env:"INDEXER_FORCE_REORG"`
	HTTPAddr       string        `yaml:"http_addr" env:"INDEXER_HTTP_ADDR"`
}

// InfluenceConfig tunes the PageRank engine (spec §4.3).
type InfluenceConfig struct {
	MaxIterations     int     `yaml:"max_iterations" env:"INFLUENCE_MAX_ITERATIONS"`
	Damping           float64 `yaml:"damping" env:"INFLUENCE_DAMPING"`
	Tolerance         float64 `yaml:"tolerance" env:"INFLUENCE_TOLERANCE"`
	ValidatorEndpoint string  `yaml:"validator_endpoint" env:"INFLUENCE_VALIDATOR_ENDPOINT"`
}

// ArenaConfig controls round windows and scoring defaults (spec §4.4-§4.6).
type ArenaConfig struct {
	CommitWindowSeconds int     `yaml:"commit_window_seconds" env:"ARENA_COMMIT_WINDOW_SECONDS"`
	RevealWindowSeconds int     `yaml:"reveal_window_seconds" env:"ARENA_REVEAL_WINDOW_SECONDS"`
	EloK                float64 `yaml:"elo_k" env:"ARENA_ELO_K"`
	QualityWeight       float64 `yaml:"quality_weight" env:"ARENA_QUALITY_WEIGHT"`
	DiversityWeight     float64 `yaml:"diversity_weight" env:"ARENA_DIVERSITY_WEIGHT"`
	SweepInterval       time.Duration `yaml:"sweep_interval" env:"ARENA_SWEEP_INTERVAL"`
	HTTPAddr            string  `yaml:"http_addr" env:"ARENA_HTTP_ADDR"`
}

// DifficultyConfig holds PID gains and bounds (spec §4.5).
type DifficultyConfig struct {
	Kp             float64 `yaml:"kp" env:"DIFFICULTY_KP"`
	Ki             float64 `yaml:"ki" env:"DIFFICULTY_KI"`
	Kd             float64 `yaml:"kd" env:"DIFFICULTY_KD"`
	Min            float64 `yaml:"min" env:"DIFFICULTY_MIN"`
	Max            float64 `yaml:"max" env:"DIFFICULTY_MAX"`
	TargetSeconds  float64 `yaml:"target_seconds" env:"DIFFICULTY_TARGET_SECONDS"`
}

// CASConfig controls the content-addressed snapshotter (spec §4.7).
type CASConfig struct {
	SnapshotDir string `yaml:"snapshot_dir" env:"CAS_SNAPSHOT_DIR"`
}

// ModerationConfig controls the Moderation Gateway (spec §4.10).
type ModerationConfig struct {
	ExternalEndpoint string `yaml:"external_endpoint" env:"MODERATION_ENDPOINT"`
	ScriptPath       string `yaml:"script_path" env:"MODERATION_SCRIPT_PATH"`
}

// TelemetryConfig maps directly onto the TELEMETRY_* / ENERGY_* / ENERGY_ORACLE_*
// environment variables named in spec §6.
type TelemetryConfig struct {
	Mode               string        `yaml:"mode" env:"TELEMETRY_MODE"`
	PollIntervalMS     int           `yaml:"poll_interval_ms" env:"TELEMETRY_POLL_INTERVAL_MS"`
	MaxRetries         int           `yaml:"max_retries" env:"TELEMETRY_MAX_RETRIES"`
	RetryDelayMS       int           `yaml:"retry_delay_ms" env:"TELEMETRY_RETRY_DELAY_MS"`
	DeadlineBufferSec  int64         `yaml:"deadline_buffer_sec" env:"TELEMETRY_DEADLINE_BUFFER_SEC"`
	EpochDurationSec   int64         `yaml:"epoch_duration_sec" env:"TELEMETRY_EPOCH_DURATION_SEC"`
	EnergyScaling      float64       `yaml:"energy_scaling" env:"TELEMETRY_ENERGY_SCALING"`
	ValueScaling       float64       `yaml:"value_scaling" env:"TELEMETRY_VALUE_SCALING"`
	Role               int           `yaml:"role" env:"TELEMETRY_ROLE"`
	StateFile          string        `yaml:"state_file" env:"TELEMETRY_STATE_FILE"`
	MaxBatchSize       int           `yaml:"max_batch" env:"TELEMETRY_MAX_BATCH"`
	EnergyLogDir       string        `yaml:"energy_log_dir" env:"ENERGY_LOG_DIR"`
	JSONPathFallback   string        `yaml:"jsonpath_fallback" env:"TELEMETRY_JSONPATH_FALLBACK"`
	APIURL             string        `yaml:"api_url" env:"ENERGY_ORACLE_API_URL"`
	APIToken           string        `yaml:"api_token" env:"ENERGY_ORACLE_API_TOKEN"`
	SignerKey          string        `yaml:"signer_key" env:"ENERGY_ORACLE_SIGNER_KEY"`
	HTTPAddr           string        `yaml:"http_addr" env:"TELEMETRY_HTTP_ADDR"`

	pollInterval time.Duration
}

const defaultPollInterval = 10 * time.Second

// PollInterval returns the configured poll interval, defaulting to 10s.
func (t TelemetryConfig) PollInterval() time.Duration {
	if t.PollIntervalMS <= 0 {
		return defaultPollInterval
	}
	return time.Duration(t.PollIntervalMS) * time.Millisecond
}

// Config is the top-level configuration for all three binaries; each cmd
// only reads the sections relevant to it.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Redis      RedisConfig      `yaml:"redis"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Influence  InfluenceConfig  `yaml:"influence"`
	Arena      ArenaConfig      `yaml:"arena"`
	Difficulty DifficultyConfig `yaml:"difficulty"`
	CAS        CASConfig        `yaml:"cas"`
	Moderation ModerationConfig `yaml:"moderation"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// New returns a Config populated with the defaults spec.md calls out
// explicitly (PID gains, PageRank iteration/damping/tolerance, windows,
// retry counts, and so on).
func New() *Config {
	return &Config{
		Database: DatabaseConfig{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifeSecs: 300},
		Logging:  LoggingConfig{Level: "info", Format: "text", Output: "stdout", FilePrefix: "culture-arena"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Ledger:   LedgerConfig{RequestTimeout: 15 * time.Second},
		Indexer:  IndexerConfig{FinalityDepth: 5, BlockBatchSize: 50, TailInterval: 5 * time.Second, HTTPAddr: ":8083"},
		Influence: InfluenceConfig{
			MaxIterations: 25,
			Damping:       0.85,
			Tolerance:     1e-6,
		},
		Arena: ArenaConfig{
			CommitWindowSeconds: 300,
			RevealWindowSeconds: 300,
			EloK:                32,
			QualityWeight:       0.6,
			DiversityWeight:     0.4,
			SweepInterval:       30 * time.Second,
			HTTPAddr:            ":8081",
		},
		Difficulty: DifficultyConfig{
			Kp: 0.4, Ki: 0.05, Kd: 0.1,
			Min: 0.25, Max: 4, TargetSeconds: 600,
		},
		CAS: CASConfig{SnapshotDir: "./snapshots"},
		Telemetry: TelemetryConfig{
			Mode:              "api",
			PollIntervalMS:    10_000,
			MaxRetries:        5,
			RetryDelayMS:      2_000,
			DeadlineBufferSec: 3600,
			EpochDurationSec:  86400,
			EnergyScaling:     1,
			ValueScaling:      1_000_000,
			Role:              2,
			StateFile:         "./telemetry-state.json",
			MaxBatchSize:      20,
			EnergyLogDir:      "./energy-logs",
			HTTPAddr:          ":8082",
		},
	}
}

// Load reads configuration from (in precedence order) an optional local
// .env file, an optional YAML overlay named by CONFIG_FILE, and finally
// environment variables, which always win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// ConnectionString returns DSN unchanged; it does not build a DSN from
// other fields.
func (d DatabaseConfig) ConnectionString() string {
	return d.DSN
}

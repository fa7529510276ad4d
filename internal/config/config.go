// Package config handles application configuration.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
)

// Config defines the structure for all application configuration.
type Config struct {
	LogLevel   string       `yaml:"log_level"`
	Input      InputConf    `yaml:"input"`
	OutputDir  string       `yaml:"output_dir"`
	Clean      CleanConf    `yaml:"clean"`
	Features   FeatureConf  `yaml:"features"`
	Split      SplitConf    `yaml:"split"`
	PCA        PCAConf      `yaml:"pca"`
	Trainers   TrainersConf `yaml:"trainers"`
	Evaluation EvalConf     `yaml:"evaluation"`
	Store      StoreConf    `yaml:"store"`
	Report     ReportConf   `yaml:"report"`
	Metrics    MetricsConf  `yaml:"metrics"`
}

// InputConf locates the two source tables and the column they are joined on.
type InputConf struct {
	FlightsPath  string `yaml:"flights_path"`
	AirlinesPath string `yaml:"airlines_path"`
	JoinKey      string `yaml:"join_key"`
	// AirlineNameColumn is renamed to JoinKey in the airline table before joining.
	AirlineNameColumn string `yaml:"airline_name_column"`
}

// CleanConf holds the cleaning stage settings.
type CleanConf struct {
	RowBudget int `yaml:"row_budget"`
	// SampleSeed of 0 seeds the subsample from the clock.
	SampleSeed          int64       `yaml:"sample_seed"`
	DropColumns         []string    `yaml:"drop_columns"`
	DropConstantColumns FlexBool    `yaml:"drop_constant_columns"`
	Outliers            OutlierConf `yaml:"outliers"`
	Filter              string      `yaml:"filter"`
}

// OutlierConf holds the percentile band used by the IQR rule.
type OutlierConf struct {
	LowPercentile  float64 `yaml:"low_percentile"`
	HighPercentile float64 `yaml:"high_percentile"`
	Multiplier     float64 `yaml:"multiplier"`
}

// FeatureConf names the target and the fixed training features.
type FeatureConf struct {
	Target             string   `yaml:"target"`
	CorrelationExclude []string `yaml:"correlation_exclude"`
	Columns            []string `yaml:"columns"`
}

// SplitConf holds the train/test split settings.
type SplitConf struct {
	TestRatio float64 `yaml:"test_ratio"`
	Seed      int64   `yaml:"seed"`
}

// PCAConf configures the principal-component projection.
// Components > 0 wins over VarianceCutoff.
type PCAConf struct {
	Components     int     `yaml:"components"`
	VarianceCutoff float64 `yaml:"variance_cutoff"`
}

// TrainersConf holds per-model settings.
type TrainersConf struct {
	Parallel FlexBool     `yaml:"parallel"`
	Linear   LinearConf   `yaml:"linear"`
	Network  NetworkConf  `yaml:"network"`
	Forest   ForestConf   `yaml:"forest"`
	Baseline BaselineConf `yaml:"baseline"`
}

// LinearConf configures the least squares trainer.
type LinearConf struct {
	Enabled FlexBool `yaml:"enabled"`
	PCA     FlexBool `yaml:"pca"`
}

// NetworkConf configures the feed-forward network trainer.
type NetworkConf struct {
	Enabled      FlexBool `yaml:"enabled"`
	PCA          FlexBool `yaml:"pca"`
	Hidden       []int    `yaml:"hidden"`
	LearningRate float64  `yaml:"learning_rate"`
	Epochs       int      `yaml:"epochs"`
	BatchSize    int      `yaml:"batch_size"`
	Seed         int64    `yaml:"seed"`
}

// ForestConf configures the random forest trainer and its grid search.
type ForestConf struct {
	Enabled FlexBool `yaml:"enabled"`
	PCA     FlexBool `yaml:"pca"`
	Grid    GridConf `yaml:"grid"`
	Folds   int      `yaml:"folds"`
	// Workers bounds concurrent grid candidates. 0 means GOMAXPROCS.
	Workers int   `yaml:"workers"`
	Seed    int64 `yaml:"seed"`
}

// GridConf lists the candidate values per forest hyperparameter.
type GridConf struct {
	NEstimators     []int `yaml:"n_estimators"`
	MaxDepth        []int `yaml:"max_depth"`
	MinSamplesSplit []int `yaml:"min_samples_split"`
	MinSamplesLeaf  []int `yaml:"min_samples_leaf"`
}

// BaselineConf toggles the mean-predictor benchmark.
type BaselineConf struct {
	Enabled FlexBool `yaml:"enabled"`
}

// EvalConf holds evaluation settings.
type EvalConf struct {
	AccuracyThreshold float64 `yaml:"accuracy_threshold"`
}

// StoreConf selects the run store. Driver is "sqlite", "pgx" or "memory".
type StoreConf struct {
	Driver                string `yaml:"driver"`
	DSN                   string `yaml:"dsn"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
}

// ReportConf sets the comparison report path. The extension picks the format.
type ReportConf struct {
	Path string `yaml:"path"`
}

// MetricsConf sets where the Prometheus textfile is written. Empty disables it.
type MetricsConf struct {
	TextfilePath string `yaml:"textfile_path"`
}

// DefaultFeatures is the curated training feature list.
var DefaultFeatures = []string{
	"ArrivalDelayGroups", "DepDelay", "TaxiOut", "DepTime", "WheelsOff",
	"TaxiIn", "CRSDepTime", "CRSArrTime", "Marketing_Airline_Network", "IATA_Code_Marketing_Airline",
}

// DefaultFilter keeps Pennsylvania flights that were neither cancelled nor diverted.
const DefaultFilter = "(OriginState == 'PA' || DestState == 'PA') && !Cancelled && !Diverted"

// Default returns the configuration used when a key is absent from the YAML file.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Input: InputConf{
			FlightsPath:       "data/Combined_Flights_2022.csv",
			AirlinesPath:      "data/Airlines.csv",
			JoinKey:           "Airline",
			AirlineNameColumn: "Description",
		},
		OutputDir: "out",
		Clean: CleanConf{
			RowBudget:           1_500_000,
			DropColumns:         []string{"ArrDel15", "DepDel15"},
			DropConstantColumns: true,
			Outliers: OutlierConf{
				LowPercentile:  1,
				HighPercentile: 99,
				Multiplier:     1.5,
			},
			Filter: DefaultFilter,
		},
		Features: FeatureConf{
			Target:             "ArrDelay",
			CorrelationExclude: []string{"ArrDelayMinutes"},
			Columns:            append([]string(nil), DefaultFeatures...),
		},
		Split: SplitConf{TestRatio: 0.2, Seed: 42},
		PCA:   PCAConf{VarianceCutoff: 0.8},
		Trainers: TrainersConf{
			Linear: LinearConf{Enabled: true},
			Network: NetworkConf{
				Enabled:      true,
				PCA:          true,
				Hidden:       []int{128, 64, 32, 16},
				LearningRate: 0.01,
				Epochs:       25,
				BatchSize:    20,
				Seed:         42,
			},
			Forest: ForestConf{
				Enabled: true,
				PCA:     true,
				Grid: GridConf{
					NEstimators:     []int{10, 50, 100},
					MaxDepth:        []int{10, 20, 30},
					MinSamplesSplit: []int{2, 5, 10},
					MinSamplesLeaf:  []int{1, 2, 4},
				},
				Folds: 3,
				Seed:  42,
			},
			Baseline: BaselineConf{Enabled: true},
		},
		Evaluation: EvalConf{AccuracyThreshold: 5},
		Store: StoreConf{
			Driver:                "sqlite",
			DSN:                   "file:out/runs.db?_pragma=busy_timeout(5000)",
			ConnectTimeoutSeconds: 30,
		},
		Report: ReportConf{Path: "out/report.xlsx"},
		Metrics: MetricsConf{TextfilePath: "out/metrics.prom"},
	}
}

// LoadConfig loads configuration from the specified YAML file path
// and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, errs.Configuration("parse "+configPath, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if dir := os.Getenv("FORECAST_OUTPUT_DIR"); dir != "" {
		cfg.OutputDir = dir
	}
	if driver := os.Getenv("FORECAST_STORE_DRIVER"); driver != "" {
		cfg.Store.Driver = driver
	}
	if dsn := os.Getenv("FORECAST_STORE_DSN"); dsn != "" {
		cfg.Store.DSN = dsn
	}
	if p := os.Getenv("FORECAST_FLIGHTS_PATH"); p != "" {
		cfg.Input.FlightsPath = p
	}
	if p := os.Getenv("FORECAST_AIRLINES_PATH"); p != "" {
		cfg.Input.AirlinesPath = p
	}
}

// Validate checks value ranges. Every failure is a ConfigurationError.
func (c *Config) Validate() error {
	const op = "validate config"

	if c.Input.JoinKey == "" {
		return errs.Configurationf(op, "input.join_key must be set")
	}
	if c.Clean.RowBudget <= 0 {
		return errs.Configurationf(op, "clean.row_budget must be positive, got %d", c.Clean.RowBudget)
	}
	o := c.Clean.Outliers
	if o.LowPercentile < 0 || o.HighPercentile > 100 || o.LowPercentile >= o.HighPercentile {
		return errs.Configurationf(op, "clean.outliers percentiles must satisfy 0 <= low < high <= 100, got %v/%v", o.LowPercentile, o.HighPercentile)
	}
	if o.Multiplier < 0 {
		return errs.Configurationf(op, "clean.outliers.multiplier must not be negative")
	}
	if strings.TrimSpace(c.Features.Target) == "" {
		return errs.Configurationf(op, "features.target must be set")
	}
	if len(c.Features.Columns) == 0 {
		return errs.Configurationf(op, "features.columns must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Features.Columns))
	for _, col := range c.Features.Columns {
		if _, dup := seen[col]; dup {
			return errs.Configurationf(op, "features.columns lists %q twice", col)
		}
		if col == c.Features.Target {
			return errs.Configurationf(op, "features.columns must not contain the target %q", col)
		}
		seen[col] = struct{}{}
	}
	if c.Split.TestRatio <= 0 || c.Split.TestRatio >= 1 {
		return errs.Configurationf(op, "split.test_ratio must be in (0,1), got %v", c.Split.TestRatio)
	}
	if c.PCA.Components < 0 {
		return errs.Configurationf(op, "pca.components must not be negative, got %d", c.PCA.Components)
	}
	if c.PCA.Components > len(c.Features.Columns) {
		return errs.Configurationf(op, "pca.components %d exceeds feature count %d", c.PCA.Components, len(c.Features.Columns))
	}
	if c.PCA.Components == 0 && (c.PCA.VarianceCutoff <= 0 || c.PCA.VarianceCutoff > 1) {
		return errs.Configurationf(op, "pca.variance_cutoff must be in (0,1], got %v", c.PCA.VarianceCutoff)
	}

	n := c.Trainers.Network
	if n.Enabled {
		if n.Epochs <= 0 || n.BatchSize <= 0 {
			return errs.Configurationf(op, "trainers.network epochs and batch_size must be positive")
		}
		if n.LearningRate <= 0 {
			return errs.Configurationf(op, "trainers.network.learning_rate must be positive")
		}
		for _, h := range n.Hidden {
			if h <= 0 {
				return errs.Configurationf(op, "trainers.network.hidden widths must be positive, got %v", n.Hidden)
			}
		}
	}

	f := c.Trainers.Forest
	if f.Enabled {
		if f.Folds < 2 {
			return errs.Configurationf(op, "trainers.forest.folds must be at least 2, got %d", f.Folds)
		}
		axes := map[string][]int{
			"n_estimators":      f.Grid.NEstimators,
			"max_depth":         f.Grid.MaxDepth,
			"min_samples_split": f.Grid.MinSamplesSplit,
			"min_samples_leaf":  f.Grid.MinSamplesLeaf,
		}
		for name, values := range axes {
			if len(values) == 0 {
				return errs.Configurationf(op, "trainers.forest.grid.%s must not be empty", name)
			}
			for _, v := range values {
				if v <= 0 {
					return errs.Configurationf(op, "trainers.forest.grid.%s values must be positive, got %v", name, values)
				}
			}
		}
		if f.Workers < 0 {
			return errs.Configurationf(op, "trainers.forest.workers must not be negative")
		}
	}

	if c.Evaluation.AccuracyThreshold < 0 {
		return errs.Configurationf(op, "evaluation.accuracy_threshold must not be negative")
	}

	switch c.Store.Driver {
	case "sqlite", "pgx", "memory":
	default:
		return errs.Configurationf(op, "store.driver must be sqlite, pgx or memory, got %q", c.Store.Driver)
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return errs.Configurationf(op, "store.dsn must be set for driver %q", c.Store.Driver)
	}
	return nil
}

// SearchWorkers resolves the grid search worker count.
func (c *Config) SearchWorkers() int {
	if c.Trainers.Forest.Workers > 0 {
		return c.Trainers.Forest.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Digest returns a stable hash of the configuration, recorded with every run.
func (c *Config) Digest() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

package pipeline

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Phillip-Gao/Flight-Forecast/internal/config"
	"github.com/Phillip-Gao/Flight-Forecast/internal/learning"
	"github.com/Phillip-Gao/Flight-Forecast/pkg/atomicfile"
)

// Manifest summarises one run next to its artifacts.
type Manifest struct {
	RunID        string          `yaml:"run_id"`
	ConfigDigest string          `yaml:"config_digest"`
	CreatedAt    time.Time       `yaml:"created_at"`
	RowsLoaded   int             `yaml:"rows_loaded"`
	RowsCleaned  int             `yaml:"rows_cleaned"`
	RowsEncoded  int             `yaml:"rows_encoded"`
	Target       string          `yaml:"target"`
	Features     []string        `yaml:"features"`
	Models       []ManifestModel `yaml:"models"`
}

// ManifestModel is one trained model in a Manifest.
type ManifestModel struct {
	Kind       string  `yaml:"kind"`
	Version    string  `yaml:"version"`
	Bundle     string  `yaml:"bundle"`
	RMSE       float64 `yaml:"rmse"`
	MSE        float64 `yaml:"mse"`
	R2         float64 `yaml:"r2"`
	Accuracy   float64 `yaml:"accuracy"`
	Components int     `yaml:"components,omitempty"`
	Params     string  `yaml:"params,omitempty"`
}

func newManifest(o *Outcome, cfg *config.Config, bundles map[learning.Kind]string) Manifest {
	digest, _ := cfg.Digest()
	m := Manifest{
		RunID:        o.RunID,
		ConfigDigest: digest,
		CreatedAt:    time.Now().UTC(),
		RowsLoaded:   o.RowsLoaded,
		RowsCleaned:  o.RowsCleaned,
		RowsEncoded:  o.RowsEncoded,
		Target:       cfg.Features.Target,
		Features:     append([]string(nil), cfg.Features.Columns...),
	}
	for _, res := range o.Results {
		m.Models = append(m.Models, ManifestModel{
			Kind:       string(res.Kind),
			Version:    res.Version,
			Bundle:     bundles[res.Kind],
			RMSE:       res.Metrics.RMSE,
			MSE:        res.Metrics.MSE,
			R2:         res.Metrics.R2,
			Accuracy:   res.Metrics.Accuracy,
			Components: res.Components,
			Params:     FormatParams(res.Params),
		})
	}
	return m
}

// WriteManifest writes m to path as YAML.
func WriteManifest(path string, m Manifest) error {
	return atomicfile.Write(path, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("failed to encode manifest: %w", err)
		}
		return enc.Close()
	})
}

// ReadManifest reads a manifest written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return m, nil
}

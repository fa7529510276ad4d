package pipeline

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/Phillip-Gao/Flight-Forecast/internal/config"
	"github.com/Phillip-Gao/Flight-Forecast/internal/csvwriter"
	"github.com/Phillip-Gao/Flight-Forecast/internal/dataset"
	"github.com/Phillip-Gao/Flight-Forecast/internal/encode"
	"github.com/Phillip-Gao/Flight-Forecast/internal/features"
	"github.com/Phillip-Gao/Flight-Forecast/internal/learning"
)

// Predict scores every row of in.FlightsPath with the bundle at bundlePath and
// writes one prediction per input row to outPath. When in.AirlinesPath is set
// the flights are joined with it first, like in a run. Rows are never dropped:
// missing or unseen values fall back to the training mean. It returns the
// number of rows written.
func Predict(ctx context.Context, bundlePath string, in config.InputConf, outPath string, logger *zap.Logger) (int, error) {
	b, err := learning.LoadBundle(bundlePath)
	if err != nil {
		return 0, err
	}
	logger = logger.With(zap.String("model", string(b.Kind)), zap.String("version", b.Version))

	df, err := dataset.ReadFile(in.FlightsPath)
	if err != nil {
		return 0, err
	}
	if in.AirlinesPath != "" {
		airlines, err := dataset.ReadFile(in.AirlinesPath)
		if err != nil {
			return 0, err
		}
		if airlines, err = dataset.RenameKey(airlines, in.AirlineNameColumn, in.JoinKey); err != nil {
			return 0, err
		}
		if df, err = dataset.InnerJoin(df, airlines, in.JoinKey); err != nil {
			return 0, err
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if b.Encoder != nil {
		var unseen map[string]int
		df, unseen, err = b.Encoder.Restrict(b.Features).Transform(df)
		if err != nil {
			return 0, err
		}
		if len(unseen) > 0 {
			logger.Warn("Unseen categories scored with the training mean", zap.Any("unseen", unseen))
		}
	}
	if df, err = encode.Indicators(df, b.Features); err != nil {
		return 0, err
	}
	x, err := features.Matrix(df, b.Features)
	if err != nil {
		return 0, err
	}
	pred, err := b.Predict(x)
	if err != nil {
		return 0, err
	}

	var actual []float64
	header := []string{"row", "predicted_" + b.Target}
	if b.Target != "" && dataset.HasColumn(df, b.Target) {
		actual = df.Col(b.Target).Float()
		header = append(header, b.Target)
	}
	w, err := csvwriter.NewWriter(outPath, logger)
	if err != nil {
		return 0, err
	}
	if err := w.Write(header); err != nil {
		w.Close()
		return 0, err
	}
	for i, v := range pred {
		record := []string{strconv.Itoa(i), csvwriter.Float(v)}
		if actual != nil {
			record = append(record, csvwriter.Float(actual[i]))
		}
		if err := w.Write(record); err != nil {
			w.Close()
			return 0, err
		}
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	logger.Info("Predictions written", zap.String("path", outPath), zap.Int("rows", len(pred)))
	return len(pred), nil
}

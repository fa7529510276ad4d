package learning

import (
	"context"
	"math"
	"math/rand"

	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
	"github.com/Phillip-Gao/Flight-Forecast/pkg/stats"
)

// NetworkConfig holds the network shape and optimiser settings.
type NetworkConfig struct {
	Hidden       []int
	LearningRate float64
	Epochs       int
	BatchSize    int
	Seed         int64
	// AccuracyThreshold is used for the per-epoch accuracy in History.
	AccuracyThreshold float64
}

// DefaultNetworkConfig returns the [128 64 32 16] network trained with Adam
// at 0.01 for 25 epochs in batches of 20.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Hidden:            []int{128, 64, 32, 16},
		LearningRate:      0.01,
		Epochs:            25,
		BatchSize:         20,
		Seed:              42,
		AccuracyThreshold: DefaultAccuracyThreshold,
	}
}

// EpochStats records losses and accuracies after one epoch. The Test fields
// are zero when no validation set was given.
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	TrainAcc  float64
	TestLoss  float64
	TestAcc   float64
}

// Layer is a dense layer; W is row-major out×in.
type Layer struct {
	In  int
	Out int
	W   []float64
	B   []float64
}

// Network is a feed-forward regressor with ReLU hidden layers and a linear
// output, trained on mean squared error with Adam.
type Network struct {
	Config  NetworkConfig
	Layers  []Layer
	History []EpochStats

	validX [][]float64
	validY []float64
}

// NewNetwork returns an unfitted network.
func NewNetwork(cfg NetworkConfig) *Network {
	return &Network{Config: cfg}
}

// Kind implements Model.
func (n *Network) Kind() Kind { return KindNetwork }

// Params implements Model.
func (n *Network) Params() map[string]any {
	return map[string]any{
		"hidden":        n.Config.Hidden,
		"learning_rate": n.Config.LearningRate,
		"epochs":        n.Config.Epochs,
		"batch_size":    n.Config.BatchSize,
	}
}

// SetValidation makes Fit also record loss and accuracy on x, y after every epoch.
func (n *Network) SetValidation(x [][]float64, y []float64) {
	n.validX, n.validY = x, y
}

func (n *Network) init(in int, rng *rand.Rand) {
	sizes := append(append([]int{in}, n.Config.Hidden...), 1)
	n.Layers = make([]Layer, len(sizes)-1)
	for l := range n.Layers {
		fanIn, fanOut := sizes[l], sizes[l+1]
		bound := 1 / math.Sqrt(float64(fanIn))
		layer := Layer{In: fanIn, Out: fanOut, W: make([]float64, fanIn*fanOut), B: make([]float64, fanOut)}
		for i := range layer.W {
			layer.W[i] = (rng.Float64()*2 - 1) * bound
		}
		for i := range layer.B {
			layer.B[i] = (rng.Float64()*2 - 1) * bound
		}
		n.Layers[l] = layer
	}
}

// scratch holds the per-row buffers of one forward and backward pass, reused
// across rows. acts[0] aliases the input row.
type scratch struct {
	acts  [][]float64
	delta [][]float64
}

func (n *Network) newScratch() *scratch {
	s := &scratch{acts: make([][]float64, len(n.Layers)+1), delta: make([][]float64, len(n.Layers))}
	for l, layer := range n.Layers {
		s.acts[l+1] = make([]float64, layer.Out)
		s.delta[l] = make([]float64, layer.Out)
	}
	return s
}

// forward fills s.acts for row x and returns the network output.
func (n *Network) forward(s *scratch, x []float64) float64 {
	s.acts[0] = x
	for l, layer := range n.Layers {
		in, out := s.acts[l], s.acts[l+1]
		for o := range out {
			v := layer.B[o]
			w := layer.W[o*layer.In : (o+1)*layer.In]
			for i, xi := range in {
				v += w[i] * xi
			}
			if l < len(n.Layers)-1 && v < 0 {
				v = 0
			}
			out[o] = v
		}
	}
	return s.acts[len(n.Layers)][0]
}

type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	mW, vW, mB, vB        [][]float64
}

func newAdam(layers []Layer, lr float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
	for _, l := range layers {
		a.mW = append(a.mW, make([]float64, len(l.W)))
		a.vW = append(a.vW, make([]float64, len(l.W)))
		a.mB = append(a.mB, make([]float64, len(l.B)))
		a.vB = append(a.vB, make([]float64, len(l.B)))
	}
	return a
}

func (a *adam) step(layers []Layer, gW, gB [][]float64) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	update := func(p, g, m, v []float64) {
		for i := range p {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g[i]
			v[i] = a.beta2*v[i] + (1-a.beta2)*g[i]*g[i]
			p[i] -= a.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + a.eps)
		}
	}
	for l := range layers {
		update(layers[l].W, gW[l], a.mW[l], a.vW[l])
		update(layers[l].B, gB[l], a.mB[l], a.vB[l])
	}
}

// Fit trains the network. The rows are reshuffled every epoch with a rand
// seeded from Config.Seed; cancellation is checked between epochs.
func (n *Network) Fit(ctx context.Context, x [][]float64, y []float64) error {
	const op = "fit network"
	d, err := checkXY(op, x, y)
	if err != nil {
		return err
	}
	cfg := n.Config
	if cfg.Epochs <= 0 || cfg.BatchSize <= 0 || cfg.LearningRate <= 0 {
		return errs.Configurationf(op, "epochs, batch size and learning rate must be positive")
	}
	for _, h := range cfg.Hidden {
		if h <= 0 {
			return errs.Configurationf(op, "hidden layer sizes must be positive, got %v", cfg.Hidden)
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	n.init(d, rng)
	n.History = n.History[:0]
	opt := newAdam(n.Layers, cfg.LearningRate)

	gW := make([][]float64, len(n.Layers))
	gB := make([][]float64, len(n.Layers))
	for l, layer := range n.Layers {
		gW[l] = make([]float64, len(layer.W))
		gB[l] = make([]float64, len(layer.B))
	}

	s := n.newScratch()
	statsX, statsY := strided(x, y, maxStatsRows)
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for start := 0; start < len(order); start += cfg.BatchSize {
			end := min(start+cfg.BatchSize, len(order))
			n.backward(s, x, y, order[start:end], gW, gB)
			opt.step(n.Layers, gW, gB)
		}

		es, err := n.epochStats(epoch, statsX, statsY)
		if err != nil {
			return err
		}
		n.History = append(n.History, es)
	}
	return nil
}

// backward accumulates the mean-squared-error gradient of one batch.
func (n *Network) backward(s *scratch, x [][]float64, y []float64, batch []int, gW, gB [][]float64) {
	for l := range gW {
		clear(gW[l])
		clear(gB[l])
	}
	scale := 2 / float64(len(batch))
	last := len(n.Layers) - 1
	for _, r := range batch {
		s.delta[last][0] = scale * (n.forward(s, x[r]) - y[r])
		for l := last; l >= 0; l-- {
			layer := n.Layers[l]
			in, delta := s.acts[l], s.delta[l]
			for o, dv := range delta {
				if dv == 0 {
					continue
				}
				row := gW[l][o*layer.In : (o+1)*layer.In]
				for i, xi := range in {
					row[i] += dv * xi
				}
				gB[l][o] += dv
			}
			if l == 0 {
				break
			}
			prev := s.delta[l-1]
			clear(prev)
			for o, dv := range delta {
				if dv == 0 {
					continue
				}
				w := layer.W[o*layer.In : (o+1)*layer.In]
				for i := range prev {
					prev[i] += dv * w[i]
				}
			}
			// ReLU derivative on the hidden activation feeding this layer
			for i, a := range in {
				if a <= 0 {
					prev[i] = 0
				}
			}
		}
	}
}

// maxStatsRows caps the rows History is computed on. Larger sets are
// replaced by an evenly strided subsample chosen once per fit.
const maxStatsRows = 50_000

func strided(x [][]float64, y []float64, limit int) ([][]float64, []float64) {
	if len(x) <= limit {
		return x, y
	}
	sx, sy := make([][]float64, limit), make([]float64, limit)
	step := float64(len(x)) / float64(limit)
	for i := range sx {
		r := int(float64(i) * step)
		sx[i], sy[i] = x[r], y[r]
	}
	return sx, sy
}

func (n *Network) epochStats(epoch int, x [][]float64, y []float64) (EpochStats, error) {
	st := EpochStats{Epoch: epoch}
	pred := n.predict(x)
	if !stats.AllFinite(pred) {
		return st, errs.ModelFitf("fit network", "loss diverged at epoch %d", epoch)
	}
	st.TrainLoss, _ = MSE(y, pred)
	if math.IsNaN(st.TrainLoss) || math.IsInf(st.TrainLoss, 0) {
		return st, errs.ModelFitf("fit network", "loss is %v at epoch %d", st.TrainLoss, epoch)
	}
	st.TrainAcc, _ = CustomAccuracy(y, pred, n.Config.AccuracyThreshold)
	if len(n.validX) > 0 {
		vx, vy := strided(n.validX, n.validY, maxStatsRows)
		vp := n.predict(vx)
		st.TestLoss, _ = MSE(vy, vp)
		st.TestAcc, _ = CustomAccuracy(vy, vp, n.Config.AccuracyThreshold)
	}
	return st, nil
}

func (n *Network) predict(x [][]float64) []float64 {
	s := n.newScratch()
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = n.forward(s, row)
	}
	return out
}

// Predict implements Model.
func (n *Network) Predict(x [][]float64) ([]float64, error) {
	if len(n.Layers) == 0 {
		return nil, errs.ModelFitf("predict network", "model is not fitted")
	}
	if err := checkWidth("predict network", x, n.Layers[0].In); err != nil {
		return nil, err
	}
	return n.predict(x), nil
}

package preprocess

import (
	"math"
	"math/rand"

	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
)

// TrainTestSplit partitions the row indices 0..n-1 with a seeded permutation.
// The first ceil(testRatio*n) permuted indices form the test set. The same
// seed and n always give the same partition.
func TrainTestSplit(n int, testRatio float64, seed int64) (train, test []int, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, errs.Configurationf("train test split", "test ratio must be in (0, 1), got %v", testRatio)
	}
	nTest := int(math.Ceil(testRatio * float64(n)))
	if nTest == 0 || nTest >= n {
		return nil, nil, errs.DataIntegrityf("train test split", "cannot split %d rows with test ratio %v", n, testRatio)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// Fold is one train/validation partition of a k-fold split.
type Fold struct {
	Train []int
	Test  []int
}

// KFold splits 0..n-1 into k contiguous folds without shuffling. The first
// n%k folds get one extra row.
func KFold(n, k int) ([]Fold, error) {
	if k < 2 {
		return nil, errs.Configurationf("k-fold", "need at least 2 folds, got %d", k)
	}
	if n < k {
		return nil, errs.DataIntegrityf("k-fold", "cannot split %d rows into %d folds", n, k)
	}
	folds := make([]Fold, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		end := start + size
		fold := Fold{Test: make([]int, 0, size), Train: make([]int, 0, n-size)}
		for i := 0; i < n; i++ {
			if i >= start && i < end {
				fold.Test = append(fold.Test, i)
			} else {
				fold.Train = append(fold.Train, i)
			}
		}
		folds[f] = fold
		start = end
	}
	return folds, nil
}

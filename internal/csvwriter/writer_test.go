package csvwriter

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	w, err := NewWriter(path, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, w.Write([]string{"feature", "r"}))
	require.NoError(t, w.WriteAll([][]string{{"DepDelay", Float(0.93)}, {"has,comma", Float(math.NaN())}}))
	require.NoError(t, w.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "feature,r\nDepDelay,0.93\n\"has,comma\",\n", string(b))
}

func TestWriter_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.csv")
	w, err := NewWriter(path, zap.NewNop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Write([]string{"a", "b"}))
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, b, 20*len("a,b\n"))
}

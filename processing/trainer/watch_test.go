package trainer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fakeProvider) loadCount(spec string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, l := range f.loads {
		if l == spec {
			n++
		}
	}
	return n
}

func TestWeightsWatcherReloadsAppliedWeights(t *testing.T) {
	p := newFakeProvider()
	w, _ := newTestWorker(t, p)

	weights := filepath.Join(t.TempDir(), "best.pt")
	writeFile(t, weights, "epoch 1")
	require.NoError(t, w.SetWeightsPath(weights))
	require.NoError(t, w.LoadWeights())

	ww, err := newWeightsWatcher(w, logrus.New(), 20*time.Millisecond)
	require.NoError(t, err)
	defer ww.Close()

	require.NoError(t, ww.Watch(weights))

	writeFile(t, filepath.Join(filepath.Dir(weights), "last.pt"), "other file")
	writeFile(t, weights, "epoch 2")

	require.Eventually(t, func() bool { return p.loadCount(weights) == 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestWeightsWatcherIgnoresDiscardedWeights(t *testing.T) {
	p := newFakeProvider()
	w, _ := newTestWorker(t, p)

	weights := filepath.Join(t.TempDir(), "best.pt")
	writeFile(t, weights, "epoch 1")
	require.NoError(t, w.SetWeightsPath(weights))

	ww, err := newWeightsWatcher(w, logrus.New(), 10*time.Millisecond)
	require.NoError(t, err)
	defer ww.Close()

	require.NoError(t, ww.Watch(weights))
	writeFile(t, weights, "epoch 2")

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, p.loadCount(weights))
}

package flow

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cinn/internal/backend/cpu"
)

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func checkpointConfig() Config {
	return Config{
		InChannels: 1, CondChannels: 1, Hidden: 4,
		Scales: 2, StepsPerScale: 1, Multiscale: true,
	}
}

func TestCheckpointRoundtripFloat32(t *testing.T) {
	backend := cpu.New()
	net := newTestNetwork(t, checkpointConfig(), backend)
	jitter(net.Parameters(), rand.New(rand.NewSource(1)), 0.3)

	path := filepath.Join(t.TempDir(), "net.cinn")
	require.NoError(t, net.Save(path, false))

	loaded := newTestNetwork(t, checkpointConfig(), backend)
	require.NoError(t, loaded.Load(path))

	orig := net.Parameters()
	for i, p := range loaded.Parameters() {
		assert.Equal(t, orig[i].Tensor().Data(), p.Tensor().Data(), "parameter %s", p.Name())
	}
}

func TestCheckpointRoundtripFloat16(t *testing.T) {
	backend := cpu.New()
	net := newTestNetwork(t, checkpointConfig(), backend)
	jitter(net.Parameters(), rand.New(rand.NewSource(2)), 0.3)

	path := filepath.Join(t.TempDir(), "net.cinn")
	require.NoError(t, net.Save(path, true))

	loaded := newTestNetwork(t, checkpointConfig(), backend)
	require.NoError(t, loaded.Load(path))

	orig := net.Parameters()
	for i, p := range loaded.Parameters() {
		od := orig[i].Tensor().Data()
		ld := p.Tensor().Data()
		for j := range od {
			assert.InDelta(t, od[j], ld[j], 1e-3, "parameter %s[%d]", p.Name(), j)
		}
	}
}

func TestCheckpointHalfIsSmaller(t *testing.T) {
	backend := cpu.New()
	net := newTestNetwork(t, checkpointConfig(), backend)

	dir := t.TempDir()
	full := filepath.Join(dir, "full.cinn")
	half := filepath.Join(dir, "half.cinn")
	require.NoError(t, net.Save(full, false))
	require.NoError(t, net.Save(half, true))

	assert.Less(t, fileSize(t, half), fileSize(t, full))
}

func TestCheckpointShapeMismatchRejected(t *testing.T) {
	backend := cpu.New()
	net := newTestNetwork(t, checkpointConfig(), backend)

	path := filepath.Join(t.TempDir(), "net.cinn")
	require.NoError(t, net.Save(path, false))

	other := checkpointConfig()
	other.Hidden = 8
	mismatched := newTestNetwork(t, other, backend)
	assert.Error(t, mismatched.Load(path))
}

func TestCheckpointMissingFile(t *testing.T) {
	backend := cpu.New()
	net := newTestNetwork(t, checkpointConfig(), backend)
	assert.Error(t, net.Load(filepath.Join(t.TempDir(), "absent.cinn")))
}

func TestCheckpointBadMagic(t *testing.T) {
	backend := cpu.New()
	net := newTestNetwork(t, checkpointConfig(), backend)

	path := filepath.Join(t.TempDir(), "bad.cinn")
	require.NoError(t, writeFile(path, []byte("NOPE and then some")))
	assert.Error(t, net.Load(path))
}

package epochstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "epochstore")
	s, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadEpochEmptyStore(t *testing.T) {
	s := openTestStore(t)

	_, _, ok, err := s.LoadEpoch()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveAndLoadEpochRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := []byte("a serialized full map")
	require.NoError(t, s.SaveEpoch(42, want))

	epoch, bytes, ok, err := s.LoadEpoch()
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 42, epoch)
	assert.Equal(t, want, bytes)
}

func TestSaveEpochOverwritesPrevious(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveEpoch(1, []byte("old")))
	require.NoError(t, s.SaveEpoch(2, []byte("new")))

	epoch, bytes, ok, err := s.LoadEpoch()
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 2, epoch)
	assert.Equal(t, []byte("new"), bytes)
}

package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollingWriter_AppendsAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	rw, err := NewRollingWriter(path, 10)
	require.NoError(t, err)

	_, err = rw.Write([]byte(`{"msg":"one"}` + "\n"))
	require.NoError(t, err)
	_, err = rw.Write([]byte(`{"msg":"two"}` + "\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{`{"msg":"one"}`, `{"msg":"two"}`}, rw.Lines())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"msg\":\"one\"}\n{\"msg\":\"two\"}\n", string(data))
}

func TestRollingWriter_DropsOldestHalfOnOverflow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	rw, err := NewRollingWriter(path, 4)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := rw.Write([]byte(`{"n":` + string(rune('0'+i)) + `}` + "\n"))
		require.NoError(t, err)
	}

	lines := rw.Lines()
	assert.LessOrEqual(t, len(lines), 4)
	assert.Contains(t, lines[len(lines)-1], "4")
}

func TestRollingWriter_ReloadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	rw, err := NewRollingWriter(path, 10)
	require.NoError(t, err)
	_, err = rw.Write([]byte(`{"msg":"persisted"}` + "\n"))
	require.NoError(t, err)

	reopened, err := NewRollingWriter(path, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"msg":"persisted"}`}, reopened.Lines())
}

func TestRollingWriter_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	rw, err := NewRollingWriter(path, 10)
	require.NoError(t, err)
	_, err = rw.Write([]byte(`{"msg":"x"}` + "\n"))
	require.NoError(t, err)

	require.NoError(t, rw.Clear())
	assert.Empty(t, rw.Lines())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, string(data))
}

package sessions

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLogAssignsMonotonicIDs(t *testing.T) {
	l := NewFileLog(filepath.Join(t.TempDir(), "sessions.json"))

	first, err := l.Append(Record{ProductCode: "SKU-1", Quantity: 1, CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID)

	second, err := l.Append(Record{ProductCode: "SKU-2", Quantity: 2, CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.ID)

	all := l.All()
	require.Len(t, all, 2)
	assert.Equal(t, "SKU-1", all[0].ProductCode)
	assert.Equal(t, "SKU-2", all[1].ProductCode)
}

func TestFileLogSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	l := NewFileLog(path)
	_, err := l.Append(Record{ProductCode: "SKU-1"})
	require.NoError(t, err)

	reopened := NewFileLog(path)
	rec, err := reopened.Append(Record{ProductCode: "SKU-2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.ID)
}

func TestFileLogCorruptFileResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	l := NewFileLog(path)
	assert.Empty(t, l.All())

	rec, err := l.Append(Record{ProductCode: "SKU-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
	require.Len(t, l.All(), 1)
}

package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSPut(t *testing.T) {
	root := t.TempDir()
	sink, err := Open(context.Background(), Options{Driver: "fs", Dir: root})
	require.NoError(t, err)
	assert.Equal(t, "fs", sink.Driver())

	require.NoError(t, sink.Put(context.Background(), "todo/2026-01-02/tg1.json", strings.NewReader("[]"), "application/json"))
	data, err := os.ReadFile(filepath.Join(root, "todo", "2026-01-02", "tg1.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	require.NoError(t, sink.Put(context.Background(), "todo/2026-01-02/tg1.json", strings.NewReader(`[{"id":"1"}]`), ""))
	data, err = os.ReadFile(filepath.Join(root, "todo", "2026-01-02", "tg1.json"))
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1"}]`, string(data))

	entries, err := os.ReadDir(filepath.Join(root, "todo", "2026-01-02"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFSRejectsEscapingKeys(t *testing.T) {
	sink, err := NewFS(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "  ", "../x.json", "/etc/x", "a/../../b"} {
		assert.Error(t, sink.Put(context.Background(), key, strings.NewReader("x"), ""), key)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "ftp"})
	assert.Error(t, err)
}

func TestS3RequiresBucket(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "s3"})
	assert.Error(t, err)
}

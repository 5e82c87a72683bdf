package decompress

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/hbreport/pkg/tmpfiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectBySuffix(t *testing.T) {
	kind, err := Detect("ha-log.gz")
	require.NoError(t, err)
	assert.Equal(t, KindGzip, kind)

	kind, err = Detect("ha-log.bz2")
	require.NoError(t, err)
	assert.Equal(t, KindBzip2, kind)

	kind, err = Detect("ha-log.xz")
	require.NoError(t, err)
	assert.Equal(t, KindXz, kind)
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	gw := gzip.NewWriter(f)
	_, err = gw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
}

func TestOpenDecompressesGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ha-log.gz")
	writeGzip(t, path, "line one\nline two\n")

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(data))
}

func TestOpenPlainFilePassesThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ha-log")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "plain text", string(data))
}

func TestMaterializeRegistersAndSeeks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ha-log.gz")
	writeGzip(t, path, "seekable content")

	reg, err := tmpfiles.New()
	require.NoError(t, err)
	defer reg.Cleanup()

	f, err := Materialize(reg, path)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "seekable content", string(data))

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	first := make([]byte, 4)
	_, err = f.Read(first)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, []byte("seek")))
}

func TestSuffix(t *testing.T) {
	assert.Equal(t, ".gz", Suffix(KindGzip))
	assert.Equal(t, ".bz2", Suffix(KindBzip2))
	assert.Equal(t, ".xz", Suffix(KindXz))
	assert.Equal(t, "", Suffix(KindPlain))
}

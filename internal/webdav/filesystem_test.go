package webdav

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystem_Resolve(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	full, err := fs.Resolve(1, "/statistics/dune.json")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(full, filepath.Join("user_1", "statistics", "dune.json")))
}

func TestFilesystem_Resolve_RejectsTraversal(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	for _, p := range []string{
		"../other_user/secret.txt",
		"/statistics/../../user_2/file",
		"../../etc/passwd",
	} {
		_, err := fs.Resolve(1, p)
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q should be rejected", p)
	}
}

func TestFilesystem_Resolve_CleansDots(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	// "a/../b" stays inside the user dir after cleaning
	full, err := fs.Resolve(1, "/a/../b.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(full, filepath.Join("user_1", "b.txt")))
}

func TestFilesystem_WriteReadDelete(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	payload := []byte(`{"title": "Dune"}`)
	require.NoError(t, fs.Write(1, "/statistics/dune.json", payload))

	data, err := fs.Read(1, "/statistics/dune.json")
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	info, err := fs.Stat(1, "/statistics/dune.json")
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), info.Size())

	require.NoError(t, fs.Delete(1, "/statistics/dune.json"))
	_, err = fs.Read(1, "/statistics/dune.json")
	assert.True(t, os.IsNotExist(err))
}

func TestFilesystem_UsersAreIsolated(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Write(1, "/notes.txt", []byte("user one")))

	_, err = fs.Read(2, "/notes.txt")
	assert.True(t, os.IsNotExist(err))
}

func TestFilesystem_List(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Write(1, "/statistics/a.json", []byte("{}")))
	require.NoError(t, fs.Write(1, "/statistics/b.json", []byte("{}")))

	entries, err := fs.List(1, "/statistics")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFilesystem_Mkdir(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.EnsureUserDir(1))

	require.NoError(t, fs.Mkdir(1, "/statistics"))

	info, err := fs.Stat(1, "/statistics")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMultistatus_Marshal(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.Write(1, "/statistics/dune.json", []byte(`{"title":"Dune"}`)))

	info, err := fs.Stat(1, "/statistics/dune.json")
	require.NoError(t, err)

	ms := NewMultistatus()
	ms.AddCollection("/webdav/statistics", time.Now())
	ms.AddFile("/webdav/statistics/dune.json", info, "application/json")

	data, err := ms.Marshal()
	require.NoError(t, err)

	body := string(data)
	assert.True(t, strings.HasPrefix(body, xml.Header))
	assert.Contains(t, body, `xmlns:D="DAV:"`)
	assert.Contains(t, body, "<D:collection>")
	assert.Contains(t, body, "<D:href>/webdav/statistics/</D:href>")
	assert.Contains(t, body, "<D:href>/webdav/statistics/dune.json</D:href>")
	assert.Contains(t, body, "<D:getcontentlength>16</D:getcontentlength>")
	assert.Contains(t, body, "HTTP/1.1 200 OK")
}

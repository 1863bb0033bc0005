package covers

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImageBytes(t *testing.T, w, h int, encode func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(buf *bytes.Buffer, img image.Image) error {
	return jpeg.Encode(buf, img, nil)
}

func encodePNG(buf *bytes.Buffer, img image.Image) error {
	return png.Encode(buf, img)
}

func decodeFile(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, _, err := image.Decode(f)
	require.NoError(t, err)
	return img
}

func TestStore_Save(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	data := testImageBytes(t, 800, 1200, encodeJPEG)
	coverPath, thumbPath, err := store.Save(42, data)

	require.NoError(t, err)
	assert.FileExists(t, coverPath)
	assert.FileExists(t, thumbPath)

	cover := decodeFile(t, coverPath)
	assert.Equal(t, 400, cover.Bounds().Dx())
	assert.Equal(t, 600, cover.Bounds().Dy())

	thumb := decodeFile(t, thumbPath)
	assert.Equal(t, 150, thumb.Bounds().Dx())
	assert.Equal(t, 225, thumb.Bounds().Dy())
}

func TestStore_Save_PNGInput(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	data := testImageBytes(t, 300, 500, encodePNG)
	coverPath, _, err := store.Save(1, data)

	require.NoError(t, err)
	// Small images are re-encoded but not upscaled
	cover := decodeFile(t, coverPath)
	assert.Equal(t, 300, cover.Bounds().Dx())
	assert.Equal(t, 500, cover.Bounds().Dy())
}

func TestStore_Save_InvalidData(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Save(1, []byte("not an image"))

	assert.Error(t, err)
}

func TestStore_Remove(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	data := testImageBytes(t, 100, 150, encodeJPEG)
	coverPath, thumbPath, err := store.Save(7, data)
	require.NoError(t, err)

	require.NoError(t, store.Remove(7))

	assert.NoFileExists(t, coverPath)
	assert.NoFileExists(t, thumbPath)

	// Removing again is harmless
	assert.NoError(t, store.Remove(7))
}

func TestStore_PathsAreStable(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, store.CoverPath(5), store.CoverPath(5))
	assert.NotEqual(t, store.CoverPath(5), store.ThumbnailPath(5))
}

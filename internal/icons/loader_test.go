package icons

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"notisd/internal/cache"
	"notisd/internal/logging"
	"notisd/internal/notify"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: byte(x), G: byte(y), A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
}

func TestFromPathDecodesAndCaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "icon.png")
	writePNG(t, path, 4, 3)

	l := NewLoader(logging.NewNop(), 1<<20)
	bmp, err := l.FromPath(path)
	if err != nil {
		t.Fatalf("FromPath: %v", err)
	}
	if bmp.Width != 4 || bmp.Height != 3 || len(bmp.Pixels) != 4*3*4 {
		t.Fatalf("bitmap = %dx%d, %d bytes", bmp.Width, bmp.Height, len(bmp.Pixels))
	}

	again, err := l.FromPath(path)
	if err != nil {
		t.Fatalf("FromPath (cached): %v", err)
	}
	if again != bmp {
		t.Fatal("expected the cached bitmap pointer")
	}
}

func TestFromPathKeyIncludesModTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "icon.png")
	writePNG(t, path, 2, 2)

	l := NewLoader(logging.NewNop(), 1<<20)
	first, err := l.FromPath(path)
	if err != nil {
		t.Fatalf("FromPath: %v", err)
	}

	writePNG(t, path, 5, 5)
	// Ensure a distinct mtime even on coarse filesystems.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	second, err := l.FromPath(path)
	if err != nil {
		t.Fatalf("FromPath after rewrite: %v", err)
	}
	if second == first || second.Width != 5 {
		t.Fatal("modified file must re-decode")
	}
}

func TestFromPathMissingFile(t *testing.T) {
	l := NewLoader(logging.NewNop(), 1<<20)
	if _, err := l.FromPath(filepath.Join(t.TempDir(), "nope.png")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCorruptFileCachedNegatively(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(path, []byte("not a png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	l := NewLoader(logging.NewNop(), 1<<20)
	_, err := l.FromPath(path)
	if !errors.Is(err, cache.ErrComputeFailed) {
		t.Fatalf("err = %v, want ErrComputeFailed", err)
	}
	// Second call replays the cached failure.
	if _, err := l.FromPath(path); !errors.Is(err, cache.ErrComputeFailed) {
		t.Fatalf("replay err = %v", err)
	}
}

func TestFromImageDataRGB(t *testing.T) {
	img := &notify.Image{
		Width: 2, Height: 1, Channels: 3, RowStride: 6,
		Data: []byte{10, 20, 30, 40, 50, 60},
	}
	l := NewLoader(logging.NewNop(), 1<<20)
	bmp, err := l.FromImageData(img)
	if err != nil {
		t.Fatalf("FromImageData: %v", err)
	}
	want := []byte{10, 20, 30, 0xff, 40, 50, 60, 0xff}
	if !bytes.Equal(bmp.Pixels, want) {
		t.Fatalf("pixels = %v, want %v", bmp.Pixels, want)
	}
}

func TestFromImageDataRespectsStridePadding(t *testing.T) {
	// Two 1-pixel rows with 1 byte of padding per row.
	img := &notify.Image{
		Width: 1, Height: 2, Channels: 3, RowStride: 4,
		Data: []byte{1, 2, 3, 0, 4, 5, 6, 0},
	}
	l := NewLoader(logging.NewNop(), 1<<20)
	bmp, err := l.FromImageData(img)
	if err != nil {
		t.Fatalf("FromImageData: %v", err)
	}
	want := []byte{1, 2, 3, 0xff, 4, 5, 6, 0xff}
	if !bytes.Equal(bmp.Pixels, want) {
		t.Fatalf("pixels = %v, want %v", bmp.Pixels, want)
	}
}

func TestFromImageDataTruncated(t *testing.T) {
	img := &notify.Image{Width: 4, Height: 4, Channels: 4, RowStride: 16, Data: []byte{1, 2, 3}}
	l := NewLoader(logging.NewNop(), 1<<20)
	if _, err := l.FromImageData(img); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestFromImageDataRejectsUndersizedStride(t *testing.T) {
	// A rowstride shorter than one row of pixels must fail cleanly instead
	// of overrunning the row slices.
	img := &notify.Image{Width: 10, Height: 2, Channels: 4, RowStride: 8, Data: make([]byte, 16)}
	l := NewLoader(logging.NewNop(), 1<<20)
	if _, err := l.FromImageData(img); err == nil {
		t.Fatal("expected rowstride error")
	}
}

func TestForNotificationPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "icon.png")
	writePNG(t, path, 3, 3)

	l := NewLoader(logging.NewNop(), 1<<20)

	inline := &notify.Notification{
		Image:     &notify.Image{Width: 1, Height: 1, Channels: 3, RowStride: 3, Data: []byte{1, 2, 3}},
		ImagePath: path,
		Icon:      path,
	}
	bmp, err := l.ForNotification(inline)
	if err != nil {
		t.Fatalf("ForNotification: %v", err)
	}
	if bmp.Width != 1 {
		t.Fatal("inline image data must win over paths")
	}

	named := &notify.Notification{Icon: "dialog-information"}
	bmp, err = l.ForNotification(named)
	if err != nil || bmp != nil {
		t.Fatalf("themed icon name should decode to nil, got %v err=%v", bmp, err)
	}

	pathOnly := &notify.Notification{Icon: path}
	bmp, err = l.ForNotification(pathOnly)
	if err != nil || bmp == nil || bmp.Width != 3 {
		t.Fatalf("icon path should decode, got %v err=%v", bmp, err)
	}
}

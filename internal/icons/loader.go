// Package icons decodes notification icons into bitmaps behind the byte
// cache, so repeated notifications from the same app do not re-decode their
// assets.
package icons

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"strconv"

	"notisd/internal/cache"
	"notisd/internal/logging"
	"notisd/internal/notify"
)

// Bitmap is a decoded icon ready for the popup renderer.
type Bitmap struct {
	Width  int
	Height int
	// Pixels is tightly packed RGBA, 4 bytes per pixel.
	Pixels []byte
}

func (b *Bitmap) size() int64 {
	return int64(len(b.Pixels)) + 16
}

// Loader resolves icon references through the cache.
type Loader struct {
	logger *slog.Logger
	cache  *cache.Cache[*Bitmap]
}

// NewLoader builds a loader with the given resident byte budget.
func NewLoader(logger *slog.Logger, budgetBytes int64) *Loader {
	return &Loader{
		logger: logging.NewComponentLogger(logger, "icons"),
		cache:  cache.New[*Bitmap]("icons", budgetBytes, logger),
	}
}

// SetBudget applies a new byte budget from a config reload.
func (l *Loader) SetBudget(budgetBytes int64) {
	l.cache.SetBudget(budgetBytes)
}

// ForNotification resolves the notification's best icon source: inline
// image data wins over an image path, which wins over the icon field when it
// names a file. Returns nil without error when there is nothing to decode.
func (l *Loader) ForNotification(n *notify.Notification) (*Bitmap, error) {
	switch {
	case n.Image != nil:
		return l.FromImageData(n.Image)
	case n.ImagePath != "":
		return l.FromPath(n.ImagePath)
	case n.Icon != "" && looksLikePath(n.Icon):
		return l.FromPath(n.Icon)
	}
	return nil, nil
}

// FromPath decodes an image file. The cache key includes the file's
// modification time, so an updated file re-decodes while a stable one stays
// cached.
func (l *Loader) FromPath(path string) (*Bitmap, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat icon %q: %w", path, err)
	}
	key := path + "|" + strconv.FormatInt(info.ModTime().UnixNano(), 10)

	return l.cache.GetOrCompute(key, func() (*Bitmap, int64, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, 0, err
		}
		bmp, err := decode(data)
		if err != nil {
			return nil, 0, fmt.Errorf("decode %q: %w", path, err)
		}
		return bmp, bmp.size(), nil
	})
}

// FromImageData converts an inline pixmap hint. Keyed by a fingerprint of
// the payload, so a sender repeating the same inline image hits the cache.
func (l *Loader) FromImageData(img *notify.Image) (*Bitmap, error) {
	key := fingerprint(img)
	return l.cache.GetOrCompute(key, func() (*Bitmap, int64, error) {
		bmp, err := fromRawPixels(img)
		if err != nil {
			return nil, 0, err
		}
		return bmp, bmp.size(), nil
	})
}

// fingerprint hashes the payload's shape plus its head and tail rather than
// the full megabyte; collisions across distinct notification images are not
// a correctness hazard, just a wrong icon.
func fingerprint(img *notify.Image) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%d|%t|", img.Width, img.Height, img.RowStride, img.HasAlpha)
	head := img.Data
	if len(head) > 512 {
		h.Write(head[:512])
		h.Write(head[len(head)-512:])
	} else {
		h.Write(head)
	}
	return "inline|" + strconv.FormatUint(h.Sum64(), 16)
}

func fromRawPixels(img *notify.Image) (*Bitmap, error) {
	channels := img.Channels
	if channels == 0 {
		if img.HasAlpha {
			channels = 4
		} else {
			channels = 3
		}
	}
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
	stride := img.RowStride
	if stride == 0 {
		stride = img.Width * channels
	}
	if stride < img.Width*channels {
		return nil, fmt.Errorf("pixmap rowstride %d too small for %d pixels of %d channels", stride, img.Width, channels)
	}
	if stride*img.Height > len(img.Data) {
		return nil, fmt.Errorf("pixmap data truncated: need %d bytes, have %d", stride*img.Height, len(img.Data))
	}

	out := make([]byte, img.Width*img.Height*4)
	for y := 0; y < img.Height; y++ {
		row := img.Data[y*stride:]
		for x := 0; x < img.Width; x++ {
			src := row[x*channels:]
			dst := out[(y*img.Width+x)*4:]
			dst[0], dst[1], dst[2] = src[0], src[1], src[2]
			if channels == 4 {
				dst[3] = src[3]
			} else {
				dst[3] = 0xff
			}
		}
	}
	return &Bitmap{Width: img.Width, Height: img.Height, Pixels: out}, nil
}

func decode(data []byte) (*Bitmap, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > notify.MaxImageDim || h > notify.MaxImageDim {
		return nil, fmt.Errorf("%w: %dx%d exceeds %dpx", notify.ErrImageTooLarge, w, h, notify.MaxImageDim)
	}

	out := make([]byte, w*h*4)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := src.At(x, y).RGBA()
			out[i] = byte(r >> 8)
			out[i+1] = byte(g >> 8)
			out[i+2] = byte(b >> 8)
			out[i+3] = byte(a >> 8)
			i += 4
		}
	}
	return &Bitmap{Width: w, Height: h, Pixels: out}, nil
}

// looksLikePath distinguishes file references from themed icon names, which
// the renderer resolves itself.
func looksLikePath(icon string) bool {
	return len(icon) > 0 && (icon[0] == '/' || icon[0] == '~' || icon[0] == '.')
}

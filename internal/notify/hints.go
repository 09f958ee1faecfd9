package notify

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Image payload limits. Oversized pixmaps are rejected rather than scaled so
// a hostile sender cannot pin arbitrary memory in the store.
const (
	MaxImageBytes = 1 << 20
	MaxImageDim   = 512
)

var ErrImageTooLarge = errors.New("image payload exceeds limits")

// Image is a raw RGB(A) pixmap delivered via the image-data hint.
type Image struct {
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	RowStride     int    `json:"rowstride"`
	HasAlpha      bool   `json:"has_alpha"`
	BitsPerSample int    `json:"bits_per_sample"`
	Channels      int    `json:"channels"`
	Data          []byte `json:"data"`
}

func applyHints(n *Notification, hints map[string]any) error {
	for key, raw := range hints {
		switch key {
		case "urgency":
			if v, ok := hintInt(raw); ok && v >= 0 && v <= 2 {
				n.Urgency = Urgency(v)
			}
		case "category":
			if s, ok := hintString(raw); ok {
				n.Category = s
			}
		case "transient":
			if b, ok := hintBool(raw); ok {
				n.Transient = b
			}
		case "resident":
			if b, ok := hintBool(raw); ok {
				n.Resident = b
			}
		case "desktop-entry":
			if s, ok := hintString(raw); ok {
				n.DesktopEntry = strings.TrimSuffix(s, ".desktop")
			}
		case "sound-file":
			if s, ok := hintString(raw); ok {
				n.SoundFile = s
			}
		case "suppress-sound":
			if b, ok := hintBool(raw); ok {
				n.SuppressSound = b
			}
		case "dnd-bypass":
			if b, ok := hintBool(raw); ok {
				n.DNDBypass = b
			}
		case "image-path", "image_path":
			if s, ok := hintString(raw); ok {
				n.ImagePath = s
			}
		case "image-data", "image_data", "icon_data":
			img, err := parseImageData(raw)
			if err != nil {
				return err
			}
			if img != nil {
				n.Image = img
			}
		}
	}
	return nil
}

// parseImageData decodes the structured pixmap hint. The pixel data travels
// base64-encoded over the wire.
func parseImageData(raw any) (*Image, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, nil
	}

	img := &Image{}
	if v, ok := hintInt(m["width"]); ok {
		img.Width = v
	}
	if v, ok := hintInt(m["height"]); ok {
		img.Height = v
	}
	if v, ok := hintInt(m["rowstride"]); ok {
		img.RowStride = v
	}
	if b, ok := hintBool(m["has_alpha"]); ok {
		img.HasAlpha = b
	}
	if v, ok := hintInt(m["bits_per_sample"]); ok {
		img.BitsPerSample = v
	}
	if v, ok := hintInt(m["channels"]); ok {
		img.Channels = v
	}

	switch data := m["data"].(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("image-data: %w", err)
		}
		img.Data = decoded
	case []byte:
		img.Data = data
	default:
		return nil, nil
	}

	if img.Width <= 0 || img.Height <= 0 || len(img.Data) == 0 {
		return nil, nil
	}
	if img.Width > MaxImageDim || img.Height > MaxImageDim {
		return nil, fmt.Errorf("%w: %dx%d exceeds %dpx", ErrImageTooLarge, img.Width, img.Height, MaxImageDim)
	}
	if len(img.Data) > MaxImageBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrImageTooLarge, len(img.Data), MaxImageBytes)
	}
	if img.RowStride > 0 && img.RowStride*img.Height > len(img.Data) {
		return nil, fmt.Errorf("image-data: rowstride %d x height %d exceeds %d data bytes", img.RowStride, img.Height, len(img.Data))
	}
	return img, nil
}

func hintInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint8:
		return int(v), true
	case uint32:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func hintBool(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case float64:
		return v != 0, true
	case string:
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
	}
	return false, false
}

func hintString(raw any) (string, bool) {
	s, ok := raw.(string)
	return s, ok
}

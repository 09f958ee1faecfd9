package notify

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestBuildDefaults(t *testing.T) {
	n, err := Build("", 0, "", "hello", "", nil, nil, -1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n.App != "unknown" {
		t.Fatalf("app = %q, want unknown", n.App)
	}
	if n.Urgency != UrgencyNormal {
		t.Fatalf("urgency = %v, want normal", n.Urgency)
	}
	if n.TimeoutMs != -1 {
		t.Fatalf("timeout = %d", n.TimeoutMs)
	}
	if n.Count != 1 {
		t.Fatalf("count = %d, want 1", n.Count)
	}
}

func TestBuildActionPairs(t *testing.T) {
	n, err := Build("app", 0, "", "s", "", []string{"default", "Open", "dismiss", "", "dangling"}, nil, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(n.Actions) != 2 {
		t.Fatalf("actions = %d, want 2 (dangling key dropped)", len(n.Actions))
	}
	if n.Actions[0] != (Action{Key: "default", Label: "Open"}) {
		t.Fatalf("first action = %+v", n.Actions[0])
	}
	if n.Actions[1].Label != "dismiss" {
		t.Fatalf("empty label should fall back to key, got %q", n.Actions[1].Label)
	}
	if _, ok := n.ActionByKey("dismiss"); !ok {
		t.Fatal("ActionByKey miss")
	}
}

func TestBuildHints(t *testing.T) {
	hints := map[string]any{
		"urgency":        float64(2),
		"category":       "email.arrived",
		"transient":      true,
		"resident":       1,
		"desktop-entry":  "org.mozilla.Thunderbird.desktop",
		"sound-file":     "/usr/share/sounds/bell.oga",
		"suppress-sound": "yes",
		"dnd-bypass":     true,
	}
	n, err := Build("mail", 0, "", "s", "b", nil, hints, 5000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n.Urgency != UrgencyCritical {
		t.Fatalf("urgency = %v", n.Urgency)
	}
	if n.Category != "email.arrived" {
		t.Fatalf("category = %q", n.Category)
	}
	if !n.Transient || !n.Resident || !n.SuppressSound || !n.DNDBypass {
		t.Fatalf("bool hints not applied: %+v", n)
	}
	if n.DesktopEntry != "org.mozilla.Thunderbird" {
		t.Fatalf("desktop entry = %q, want .desktop suffix stripped", n.DesktopEntry)
	}
}

func TestBuildIgnoresMalformedHints(t *testing.T) {
	hints := map[string]any{
		"urgency":   "loud",
		"transient": struct{}{},
		"category":  42,
	}
	n, err := Build("app", 0, "", "s", "", nil, hints, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n.Urgency != UrgencyNormal || n.Transient || n.Category != "" {
		t.Fatalf("malformed hints should be ignored: %+v", n)
	}
}

func TestBuildImageData(t *testing.T) {
	pixels := make([]byte, 4*4*3)
	hints := map[string]any{
		"image-data": map[string]any{
			"width":     float64(4),
			"height":    float64(4),
			"rowstride": float64(12),
			"channels":  float64(3),
			"data":      base64.StdEncoding.EncodeToString(pixels),
		},
	}
	n, err := Build("app", 0, "", "s", "", nil, hints, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n.Image == nil {
		t.Fatal("image hint not parsed")
	}
	if n.Image.Width != 4 || len(n.Image.Data) != len(pixels) {
		t.Fatalf("image = %dx%d, %d bytes", n.Image.Width, n.Image.Height, len(n.Image.Data))
	}
}

func TestBuildImageDataRejectsOversize(t *testing.T) {
	hints := map[string]any{
		"image-data": map[string]any{
			"width":  float64(1024),
			"height": float64(4),
			"data":   base64.StdEncoding.EncodeToString([]byte{1}),
		},
	}
	_, err := Build("app", 0, "", "s", "", nil, hints, 0)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("err = %v, want ErrImageTooLarge", err)
	}
}

func TestBuildImageDataRejectsOversizePayload(t *testing.T) {
	hints := map[string]any{
		"image-data": map[string]any{
			"width":  float64(8),
			"height": float64(8),
			"data":   base64.StdEncoding.EncodeToString(make([]byte, MaxImageBytes+1)),
		},
	}
	if _, err := Build("app", 0, "", "s", "", nil, hints, 0); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("err = %v, want ErrImageTooLarge", err)
	}
}

func TestBuildImageDataRejectsShortData(t *testing.T) {
	hints := map[string]any{
		"image-data": map[string]any{
			"width":     float64(8),
			"height":    float64(8),
			"rowstride": float64(24),
			"data":      base64.StdEncoding.EncodeToString(make([]byte, 10)),
		},
	}
	if _, err := Build("app", 0, "", "s", "", nil, hints, 0); err == nil {
		t.Fatal("expected rowstride/data mismatch error")
	}
}

func TestCloneIsDeep(t *testing.T) {
	n := &Notification{
		ID:      7,
		Actions: []Action{{Key: "a", Label: "A"}},
		Image:   &Image{Width: 2, Height: 2, Data: []byte{1, 2, 3}},
	}
	c := n.Clone()
	c.Actions[0].Key = "b"
	c.Image.Data[0] = 9
	if n.Actions[0].Key != "a" || n.Image.Data[0] != 1 {
		t.Fatal("Clone shares memory with original")
	}
}

func TestDedupKeyIncludesUrgency(t *testing.T) {
	a := &Notification{App: "x", Summary: "s", Body: "b", Urgency: UrgencyNormal}
	b := &Notification{App: "x", Summary: "s", Body: "b", Urgency: UrgencyCritical}
	if a.DedupKey() == b.DedupKey() {
		t.Fatal("different urgencies must not dedup together")
	}
}

func TestParseUrgency(t *testing.T) {
	cases := []struct {
		in   string
		want Urgency
		ok   bool
	}{
		{"low", UrgencyLow, true},
		{"Normal", UrgencyNormal, true},
		{"CRITICAL", UrgencyCritical, true},
		{"", UrgencyNormal, true},
		{"loud", UrgencyNormal, false},
	}
	for _, tc := range cases {
		got, ok := ParseUrgency(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseUrgency(%q) = %v,%v", tc.in, got, ok)
		}
	}
}

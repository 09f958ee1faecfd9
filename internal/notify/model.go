package notify

import (
	"fmt"
	"strings"
	"time"
)

// Urgency levels follow the desktop notification convention: byte hint 0, 1
// or 2.
type Urgency uint8

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyCritical:
		return "critical"
	default:
		return "normal"
	}
}

// ParseUrgency maps a config-level urgency name to its level.
func ParseUrgency(s string) (Urgency, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return UrgencyLow, true
	case "normal", "":
		return UrgencyNormal, true
	case "critical":
		return UrgencyCritical, true
	}
	return UrgencyNormal, false
}

// CloseReason is carried on every notification_closed signal.
type CloseReason uint32

const (
	ReasonExpired      CloseReason = 1
	ReasonDismissed    CloseReason = 2
	ReasonClosedByCall CloseReason = 3
	ReasonUndefined    CloseReason = 4
)

func (r CloseReason) String() string {
	switch r {
	case ReasonExpired:
		return "expired"
	case ReasonDismissed:
		return "dismissed"
	case ReasonClosedByCall:
		return "closed-by-call"
	default:
		return "undefined"
	}
}

// Action is one invokable entry offered by the sender. The "default" key is
// the implicit primary action.
type Action struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Notification is the post-parse, post-rules representation held by the state
// store. Fields mutated by rewrite rules are plain values; raw sender input
// is not retained.
type Notification struct {
	ID         uint32 `json:"id"`
	App        string `json:"app"`
	ReplacesID uint32 `json:"replaces_id,omitempty"`
	Icon       string `json:"icon,omitempty"`
	Summary    string `json:"summary"`
	Body       string `json:"body,omitempty"`

	Actions []Action `json:"actions,omitempty"`
	Urgency Urgency  `json:"urgency"`

	Category     string `json:"category,omitempty"`
	DesktopEntry string `json:"desktop_entry,omitempty"`
	Transient    bool   `json:"transient,omitempty"`
	Resident     bool   `json:"resident,omitempty"`

	SoundFile     string `json:"sound_file,omitempty"`
	SuppressSound bool   `json:"suppress_sound,omitempty"`
	MutedByRule   bool   `json:"muted_by_rule,omitempty"`
	DNDBypass     bool   `json:"dnd_bypass,omitempty"`

	ImagePath string `json:"image_path,omitempty"`
	Image     *Image `json:"image,omitempty"`

	// TimeoutMs is the sender-requested expire timeout: -1 for the server
	// default, 0 for never, otherwise milliseconds. Rules may overwrite it.
	TimeoutMs int32 `json:"timeout_ms"`

	CreatedAt time.Time `json:"created_at"`
	// Count is the dedup repeat counter; 1 for a freshly posted notification.
	Count int `json:"count"`
}

// DedupKey groups notifications that represent the same message for the
// repeat counter.
func (n *Notification) DedupKey() string {
	return n.App + "\x00" + n.Summary + "\x00" + n.Body + "\x00" + n.Urgency.String()
}

// Clone returns a deep copy safe to hand to other goroutines.
func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	out := *n
	if n.Actions != nil {
		out.Actions = append([]Action(nil), n.Actions...)
	}
	if n.Image != nil {
		img := *n.Image
		img.Data = append([]byte(nil), n.Image.Data...)
		out.Image = &img
	}
	return &out
}

// ActionByKey looks up an action by its key.
func (n *Notification) ActionByKey(key string) (Action, bool) {
	for _, a := range n.Actions {
		if a.Key == key {
			return a, true
		}
	}
	return Action{}, false
}

// Build assembles a notification from the raw protocol arguments. Hints are
// parsed leniently: unknown keys are ignored and malformed known keys fall
// back to their defaults, except the image payload whose hard limits are
// enforced with an error.
func Build(app string, replaces uint32, icon, summary, body string, actions []string, hints map[string]any, timeoutMs int32) (*Notification, error) {
	n := &Notification{
		App:        strings.TrimSpace(app),
		ReplacesID: replaces,
		Icon:       strings.TrimSpace(icon),
		Summary:    summary,
		Body:       body,
		Urgency:    UrgencyNormal,
		TimeoutMs:  timeoutMs,
		CreatedAt:  time.Now().UTC(),
		Count:      1,
	}
	if n.App == "" {
		n.App = "unknown"
	}

	// Actions arrive as flat key/label pairs; a dangling key is dropped.
	for i := 0; i+1 < len(actions); i += 2 {
		key := strings.TrimSpace(actions[i])
		if key == "" {
			continue
		}
		label := actions[i+1]
		if label == "" {
			label = key
		}
		n.Actions = append(n.Actions, Action{Key: key, Label: label})
	}

	if err := applyHints(n, hints); err != nil {
		return nil, fmt.Errorf("notification from %q: %w", n.App, err)
	}
	return n, nil
}

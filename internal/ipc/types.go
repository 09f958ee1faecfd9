package ipc

import (
	"time"

	"notisd/internal/daemon"
	"notisd/internal/history"
	"notisd/internal/notify"
	"notisd/internal/watchers"
)

// Action is one invokable action on a notification.
type Action struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// NotificationSummary is the wire form of a notification. Image payloads stay
// daemon-side; clients only see whether one is attached.
type NotificationSummary struct {
	ID        uint32    `json:"id"`
	App       string    `json:"app"`
	Icon      string    `json:"icon,omitempty"`
	Summary   string    `json:"summary"`
	Body      string    `json:"body,omitempty"`
	Actions   []Action  `json:"actions,omitempty"`
	Urgency   string    `json:"urgency"`
	Category  string    `json:"category,omitempty"`
	Transient bool      `json:"transient,omitempty"`
	Resident  bool      `json:"resident,omitempty"`
	HasImage  bool      `json:"has_image,omitempty"`
	TimeoutMs int32     `json:"timeout_ms"`
	CreatedAt time.Time `json:"created_at"`
	Count     int       `json:"count"`
}

// HistoryEntry is one stored notification with its lifecycle state.
type HistoryEntry struct {
	Notification NotificationSummary `json:"notification"`
	Closed       bool                `json:"closed"`
	Reason       string              `json:"reason,omitempty"`
	ClosedAt     time.Time           `json:"closed_at"`
}

func fromNotification(n *notify.Notification) NotificationSummary {
	s := NotificationSummary{
		ID:        n.ID,
		App:       n.App,
		Icon:      n.Icon,
		Summary:   n.Summary,
		Body:      n.Body,
		Urgency:   n.Urgency.String(),
		Category:  n.Category,
		Transient: n.Transient,
		Resident:  n.Resident,
		HasImage:  n.Image != nil || n.ImagePath != "",
		TimeoutMs: n.TimeoutMs,
		CreatedAt: n.CreatedAt,
		Count:     n.Count,
	}
	for _, a := range n.Actions {
		s.Actions = append(s.Actions, Action{Key: a.Key, Label: a.Label})
	}
	return s
}

func fromEntry(e history.Entry) HistoryEntry {
	he := HistoryEntry{
		Notification: fromNotification(e.Notification),
		Closed:       e.Closed,
		ClosedAt:     e.ClosedAt,
	}
	if e.Closed {
		he.Reason = e.Reason.String()
	}
	return he
}

// Notifications service payloads.

type NotifyRequest struct {
	App        string         `json:"app"`
	ReplacesID uint32         `json:"replaces_id"`
	Icon       string         `json:"icon"`
	Summary    string         `json:"summary"`
	Body       string         `json:"body"`
	Actions    []string       `json:"actions"`
	Hints      map[string]any `json:"hints"`
	TimeoutMs  int32          `json:"timeout_ms"`
}

type NotifyResponse struct {
	ID uint32 `json:"id"`
}

type CloseRequest struct {
	ID uint32 `json:"id"`
}

type CloseResponse struct{}

type CapabilitiesRequest struct{}

type CapabilitiesResponse struct {
	Capabilities []string `json:"capabilities"`
}

type ServerInfoRequest struct{}

type ServerInfoResponse struct {
	Name        string `json:"name"`
	Vendor      string `json:"vendor"`
	Version     string `json:"version"`
	SpecVersion string `json:"spec_version"`
}

// Control service payloads.

type ActiveRequest struct{}

type ActiveResponse struct {
	Notifications []NotificationSummary `json:"notifications"`
}

type HistoryRequest struct {
	Limit int `json:"limit"`
}

type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

type ClearHistoryRequest struct{}

type ClearHistoryResponse struct {
	Removed int `json:"removed"`
}

type DismissRequest struct {
	ID uint32 `json:"id"`
}

type DismissResponse struct{}

type DismissAllRequest struct{}

type DismissAllResponse struct {
	Dismissed int `json:"dismissed"`
}

type ActionRequest struct {
	ID  uint32 `json:"id"`
	Key string `json:"key"`
}

type ActionResponse struct{}

type DNDSetRequest struct {
	On bool `json:"on"`
}

type DNDToggleRequest struct{}

type DNDStatusRequest struct{}

type DNDResponse struct {
	Active bool   `json:"active"`
	Mode   string `json:"mode"`
}

type PanelSetRequest struct {
	Visible bool `json:"visible"`
}

type PanelToggleRequest struct{}

type PanelResponse struct {
	Visible bool `json:"visible"`
}

type WatchersRequest struct{}

type WatcherResult struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	ExitCode  int       `json:"exit_code"`
	UpdatedAt time.Time `json:"updated_at"`
	Stale     bool      `json:"stale"`
}

type WatchersResponse struct {
	Results []WatcherResult `json:"results"`
}

func fromWatcherResult(r watchers.Result) WatcherResult {
	return WatcherResult{
		Name:      r.Name,
		Value:     r.Value,
		ExitCode:  r.ExitCode,
		UpdatedAt: r.UpdatedAt,
		Stale:     r.Stale,
	}
}

type StatusRequest struct{}

type StatusResponse struct {
	daemon.Status
	UptimeSeconds int64 `json:"uptime_seconds"`
}

type StopRequest struct{}

type StopResponse struct {
	Stopped bool `json:"stopped"`
}

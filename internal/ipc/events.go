package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"notisd/internal/daemon"
	"notisd/internal/events"
	"notisd/internal/logging"
)

// helloFrame is the first line written on every event connection. Its
// sequence tells the consumer where the live stream begins.
type helloFrame struct {
	Type     string `json:"type"`
	Server   string `json:"server"`
	Version  string `json:"version"`
	Sequence uint64 `json:"seq"`
}

// EventServer streams the daemon's event feed as newline-delimited JSON.
// Each connection receives a hello frame, then every event published after
// it connected.
type EventServer struct {
	path     string
	hub      *events.Hub
	logger   *slog.Logger
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEventServer binds the event socket.
func NewEventServer(ctx context.Context, path string, hub *events.Hub, logger *slog.Logger) (*EventServer, error) {
	if hub == nil {
		return nil, errors.New("event server requires hub")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on event socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &EventServer{
		path:     path,
		hub:      hub,
		logger:   logging.NewComponentLogger(logger, "events"),
		listener: listener,
		ctx:      serverCtx,
		cancel:   cancel,
	}, nil
}

// Serve accepts stream connections until the context is canceled.
func (s *EventServer) Serve() {
	s.logger.Debug("event socket listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				logging.WarnWithContext(s.logger, "event accept failed", "event_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check socket permissions"),
					logging.String(logging.FieldImpact, "panel will miss live updates"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.stream(c)
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *EventServer) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	_ = os.RemoveAll(s.path)
}

func (s *EventServer) stream(conn net.Conn) {
	defer conn.Close()

	connID := uuid.NewString()
	logger := s.logger.With(logging.String("conn_id", connID))
	logger.Debug("event consumer connected")

	// Closing the connection when the server shuts down unblocks any
	// in-progress write.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	encoder := json.NewEncoder(conn)
	_, since := s.hub.Tail(0)
	hello := helloFrame{Type: "hello", Server: daemon.ServerName, Version: daemon.Version, Sequence: since}
	if err := encoder.Encode(hello); err != nil {
		return
	}

	for {
		evts, next, err := s.hub.Fetch(s.ctx, since, 64, true)
		if err != nil {
			logger.Debug("event consumer stream ended", logging.Error(err))
			return
		}
		for _, evt := range evts {
			if err := encoder.Encode(evt); err != nil {
				logger.Debug("event consumer disconnected", logging.Error(err))
				return
			}
		}
		since = next
	}
}

// StreamEvents connects to an event socket and invokes fn for every event
// until the context ends, the connection drops, or fn returns an error.
func StreamEvents(ctx context.Context, path string, fn func(events.Event) error) error {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	// First line is the hello frame.
	if !scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		return scanner.Err()
	}
	var hello helloFrame
	if err := json.Unmarshal(scanner.Bytes(), &hello); err != nil {
		return fmt.Errorf("parse hello frame: %w", err)
	}
	if hello.Type != "hello" {
		return fmt.Errorf("unexpected first frame %q", hello.Type)
	}

	for scanner.Scan() {
		var evt events.Event
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return fmt.Errorf("parse event: %w", err)
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return scanner.Err()
}

// Package ipc exposes the daemon over two unix sockets: a JSON-RPC control
// socket carrying the notification protocol and daemon control, and a
// newline-delimited JSON event feed for panel and popup processes.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"notisd/internal/daemon"
	"notisd/internal/logging"
)

// ErrMalformedRequest reports a notify request the daemon could not parse,
// such as an oversized or inconsistent image payload.
var ErrMalformedRequest = errors.New("malformed request")

// Server answers RPC requests on the control socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer binds the control socket and registers both RPC services:
// Notifications (the protocol surface) and Control (daemon management).
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	svcLogger := logging.NewComponentLogger(logger, "ipc")
	if err := rpcServer.RegisterName("Notifications", &notificationService{daemon: d, logger: svcLogger}); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register notifications service: %w", err)
	}
	if err := rpcServer.RegisterName("Control", &controlService{daemon: d, logger: svcLogger}); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register control service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    svcLogger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve accepts RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("control socket listening", logging.String("socket", s.path))
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
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
					logging.String(logging.FieldImpact, "clients may fail to connect"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.Error(err),
			logging.String("socket", s.path),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
			logging.String(logging.FieldImpact, "stale socket may block future starts"))
	}
}

// notificationService is the protocol front door over RPC.
type notificationService struct {
	daemon *daemon.Daemon
	logger *slog.Logger
}

func (s *notificationService) Notify(req NotifyRequest, resp *NotifyResponse) error {
	id, err := s.daemon.Notify(req.App, req.ReplacesID, req.Icon, req.Summary, req.Body,
		req.Actions, req.Hints, req.TimeoutMs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	resp.ID = id
	return nil
}

func (s *notificationService) CloseNotification(req CloseRequest, _ *CloseResponse) error {
	s.daemon.CloseNotification(req.ID)
	return nil
}

func (s *notificationService) GetCapabilities(_ CapabilitiesRequest, resp *CapabilitiesResponse) error {
	resp.Capabilities = s.daemon.Capabilities()
	return nil
}

func (s *notificationService) GetServerInformation(_ ServerInfoRequest, resp *ServerInfoResponse) error {
	resp.Name, resp.Vendor, resp.Version, resp.SpecVersion = s.daemon.ServerInformation()
	return nil
}

// controlService is the management surface used by the CLI and panel.
type controlService struct {
	daemon *daemon.Daemon
	logger *slog.Logger
}

func (s *controlService) Active(_ ActiveRequest, resp *ActiveResponse) error {
	for _, n := range s.daemon.ListActive() {
		resp.Notifications = append(resp.Notifications, fromNotification(n))
	}
	return nil
}

func (s *controlService) History(req HistoryRequest, resp *HistoryResponse) error {
	for _, e := range s.daemon.ListHistory(req.Limit) {
		resp.Entries = append(resp.Entries, fromEntry(e))
	}
	return nil
}

func (s *controlService) ClearHistory(_ ClearHistoryRequest, resp *ClearHistoryResponse) error {
	resp.Removed = s.daemon.ClearHistory()
	s.logger.Info("history cleared",
		logging.String(logging.FieldEventType, "history_cleared"),
		logging.Int("removed", resp.Removed))
	return nil
}

func (s *controlService) Dismiss(req DismissRequest, _ *DismissResponse) error {
	s.daemon.Dismiss(req.ID)
	return nil
}

func (s *controlService) DismissAll(_ DismissAllRequest, resp *DismissAllResponse) error {
	resp.Dismissed = s.daemon.DismissAll()
	return nil
}

func (s *controlService) InvokeAction(req ActionRequest, _ *ActionResponse) error {
	return s.daemon.InvokeAction(req.ID, req.Key)
}

func (s *controlService) SetDND(req DNDSetRequest, resp *DNDResponse) error {
	resp.Active, resp.Mode = s.daemon.SetDND(req.On)
	return nil
}

func (s *controlService) ToggleDND(_ DNDToggleRequest, resp *DNDResponse) error {
	resp.Active, resp.Mode = s.daemon.ToggleDND()
	return nil
}

func (s *controlService) DNDStatus(_ DNDStatusRequest, resp *DNDResponse) error {
	st := s.daemon.Status()
	resp.Active = st.DNDActive
	resp.Mode = st.DNDMode
	return nil
}

func (s *controlService) SetPanel(req PanelSetRequest, resp *PanelResponse) error {
	s.daemon.SetPanelVisible(req.Visible)
	resp.Visible = req.Visible
	return nil
}

func (s *controlService) TogglePanel(_ PanelToggleRequest, resp *PanelResponse) error {
	resp.Visible = s.daemon.TogglePanel()
	return nil
}

func (s *controlService) Watchers(_ WatchersRequest, resp *WatchersResponse) error {
	for _, r := range s.daemon.WatcherSnapshot() {
		resp.Results = append(resp.Results, fromWatcherResult(r))
	}
	return nil
}

func (s *controlService) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.Status()
	resp.UptimeSeconds = int64(s.daemon.Uptime().Seconds())
	return nil
}

func (s *controlService) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("daemon stop requested",
		logging.String(logging.FieldEventType, "daemon_stop_requested"))
	go s.daemon.Stop()
	resp.Stopped = true
	return nil
}

package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon's control socket.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the control socket at the given path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Notify posts a notification and returns its id.
func (c *Client) Notify(req NotifyRequest) (*NotifyResponse, error) {
	var resp NotifyResponse
	if err := c.client.Call("Notifications.Notify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CloseNotification closes a notification by id.
func (c *Client) CloseNotification(id uint32) error {
	var resp CloseResponse
	return c.client.Call("Notifications.CloseNotification", CloseRequest{ID: id}, &resp)
}

// GetCapabilities returns the server's capability list.
func (c *Client) GetCapabilities() (*CapabilitiesResponse, error) {
	var resp CapabilitiesResponse
	if err := c.client.Call("Notifications.GetCapabilities", CapabilitiesRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetServerInformation returns the server identity.
func (c *Client) GetServerInformation() (*ServerInfoResponse, error) {
	var resp ServerInfoResponse
	if err := c.client.Call("Notifications.GetServerInformation", ServerInfoRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Active lists open notifications, newest first.
func (c *Client) Active() (*ActiveResponse, error) {
	var resp ActiveResponse
	if err := c.client.Call("Control.Active", ActiveRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History lists stored entries, newest first.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.client.Call("Control.History", HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearHistory removes closed entries.
func (c *Client) ClearHistory() (*ClearHistoryResponse, error) {
	var resp ClearHistoryResponse
	if err := c.client.Call("Control.ClearHistory", ClearHistoryRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Dismiss closes one notification as user-dismissed.
func (c *Client) Dismiss(id uint32) error {
	var resp DismissResponse
	return c.client.Call("Control.Dismiss", DismissRequest{ID: id}, &resp)
}

// DismissAll closes every open notification.
func (c *Client) DismissAll() (*DismissAllResponse, error) {
	var resp DismissAllResponse
	if err := c.client.Call("Control.DismissAll", DismissAllRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// InvokeAction fires an action on an open notification.
func (c *Client) InvokeAction(id uint32, key string) error {
	var resp ActionResponse
	return c.client.Call("Control.InvokeAction", ActionRequest{ID: id, Key: key}, &resp)
}

// SetDND sets the manual do-not-disturb override.
func (c *Client) SetDND(on bool) (*DNDResponse, error) {
	var resp DNDResponse
	if err := c.client.Call("Control.SetDND", DNDSetRequest{On: on}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ToggleDND flips the manual do-not-disturb override.
func (c *Client) ToggleDND() (*DNDResponse, error) {
	var resp DNDResponse
	if err := c.client.Call("Control.ToggleDND", DNDToggleRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DNDStatus reports the current do-not-disturb state.
func (c *Client) DNDStatus() (*DNDResponse, error) {
	var resp DNDResponse
	if err := c.client.Call("Control.DNDStatus", DNDStatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetPanel reports panel visibility to the daemon.
func (c *Client) SetPanel(visible bool) (*PanelResponse, error) {
	var resp PanelResponse
	if err := c.client.Call("Control.SetPanel", PanelSetRequest{Visible: visible}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TogglePanel flips panel visibility.
func (c *Client) TogglePanel() (*PanelResponse, error) {
	var resp PanelResponse
	if err := c.client.Call("Control.TogglePanel", PanelToggleRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Watchers returns the current watcher results.
func (c *Client) Watchers() (*WatchersResponse, error) {
	var resp WatchersResponse
	if err := c.client.Call("Control.Watchers", WatchersRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Control.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Control.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

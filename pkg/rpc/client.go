package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
)

// RemoteError is an error reported by the server.
type RemoteError struct {
	Method  string
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Method, e.Message)
}

// Is lets callers test remote failures against the not-found sentinels.
func (e *RemoteError) Is(target error) bool {
	if e.Code != http.StatusNotFound {
		return false
	}
	return target == apperrors.ErrEventNotFound || target == apperrors.ErrJobNotFound
}

// Client is a JSON-over-TCP RPC client. Calls are serialised over one
// connection.
type Client struct {
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	mu      sync.Mutex
	nextID  atomic.Int64
	// broken is set after a transport failure; the stream can no longer be
	// trusted to be in sync.
	broken error
}

// Dial connects to an RPC server.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		decoder: json.NewDecoder(conn),
	}, nil
}

// Call invokes method with params and decodes the response data into
// result, which may be nil. The context deadline bounds the whole round
// trip.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken != nil {
		return fmt.Errorf("connection unusable: %w", c.broken)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}
	req := Request{
		Method: method,
		ID:     strconv.FormatInt(c.nextID.Add(1), 10),
		Params: raw,
	}

	// A zero deadline clears any previous one.
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting deadline: %w", err)
	}

	if err := c.encoder.Encode(req); err != nil {
		return c.fail(fmt.Errorf("sending request: %w", err))
	}
	var resp Response
	if err := c.decoder.Decode(&resp); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return c.fail(fmt.Errorf("%s: %w", method, apperrors.ErrTimeout))
		}
		return c.fail(fmt.Errorf("reading response: %w", err))
	}
	if resp.ID != req.ID {
		return c.fail(fmt.Errorf("response id %s does not match request %s", resp.ID, req.ID))
	}
	if resp.Error != "" {
		return &RemoteError{Method: method, Code: resp.Code, Message: resp.Error}
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("unmarshaling into result: %w", err)
		}
	}
	return nil
}

func (c *Client) fail(err error) error {
	c.broken = err
	_ = c.conn.Close()
	return err
}

// Close closes the underlying TCP connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

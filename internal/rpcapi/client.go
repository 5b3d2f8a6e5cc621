package rpcapi

import (
	"errors"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"docgate/internal/gateway"
)

// Client provides RPC access to a running gateway.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the gateway's RPC listener.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
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
		_ = c.conn.Close()
	}
	return nil
}

// Convert runs one conversion. Gateway faults come back as *gateway.Fault.
func (c *Client) Convert(req ConvertRequest) (*ConvertResponse, error) {
	var resp ConvertResponse
	if err := c.call("Convert", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Filters lists the engine's filters for direction ("import" or "export").
func (c *Client) Filters(direction string) (*FiltersResponse, error) {
	var resp FiltersResponse
	if err := c.call("Filters", FiltersRequest{Direction: direction}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the gateway status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History lists recent journal entries.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call("History", HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(method string, args, reply any) error {
	err := c.client.Call(serviceName+"."+method, args, reply)
	var remote rpc.ServerError
	if errors.As(err, &remote) {
		return gateway.ParseFault(string(remote))
	}
	return err
}

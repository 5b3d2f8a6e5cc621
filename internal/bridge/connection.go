package bridge

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	protocolSuffix = "urp;StarOffice.ComponentContext"
	connectPrefix  = "uno:"
)

// Endpoint is the host and port of an engine bridge listener.
type Endpoint struct {
	Host string
	Port int
}

// Address renders the endpoint for net.Dial.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ConnectionString is what a client resolves to reach the engine.
func ConnectionString(host string, port int) string {
	return fmt.Sprintf("%ssocket,host=%s,port=%d;%s", connectPrefix, host, port, protocolSuffix)
}

// AcceptString is passed to the bridge agent so it listens for bridge clients.
func AcceptString(host string, port int) string {
	return fmt.Sprintf("socket,host=%s,port=%d,tcpNoDelay=1;%s", host, port, protocolSuffix)
}

// PipeAcceptString is passed to the office process so only the agent that
// launched it can reach it, over a named pipe.
func PipeAcceptString(name string) string {
	return fmt.Sprintf("pipe,name=%s;%s", name, protocolSuffix)
}

// ParseConnectionString extracts the endpoint from either a connection or
// an accept string.
func ParseConnectionString(raw string) (Endpoint, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), connectPrefix)
	parts := strings.Split(trimmed, ";")
	if len(parts) != 3 || parts[1] != "urp" || parts[2] != "StarOffice.ComponentContext" {
		return Endpoint{}, fmt.Errorf("malformed connection string %q", raw)
	}
	kind, params, _ := strings.Cut(parts[0], ",")
	if kind != "socket" {
		return Endpoint{}, fmt.Errorf("unsupported connection type %q", kind)
	}
	var ep Endpoint
	for _, param := range strings.Split(params, ",") {
		key, value, ok := strings.Cut(param, "=")
		if !ok {
			return Endpoint{}, fmt.Errorf("malformed connection parameter %q", param)
		}
		switch key {
		case "host":
			ep.Host = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil || port <= 0 || port > 65535 {
				return Endpoint{}, fmt.Errorf("invalid port %q", value)
			}
			ep.Port = port
		}
	}
	if ep.Host == "" || ep.Port == 0 {
		return Endpoint{}, fmt.Errorf("connection string %q lacks host or port", raw)
	}
	return ep, nil
}

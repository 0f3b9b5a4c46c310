// Package gateway is the typed client for the database collaborator. It
// wraps the framed request/response contract behind entity-level helpers
// and shields callers from transient connection failures.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"lobby-lab/errors"
	"lobby-lab/protocol"
)

type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpQuery  Operation = "query"
)

type Entity string

const (
	EntityUser      Entity = "User"
	EntityDeveloper Entity = "Developer"
	EntityGame      Entity = "Game"
	EntityGameLog   Entity = "GameLog"
)

type Request struct {
	Operation Operation `json:"operation"`
	Entity    Entity    `json:"entity"`
	Payload   any       `json:"payload"`
}

type Response struct {
	Status  string          `json:"status"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (r Response) OK() bool {
	return r.Status == "ok"
}

type Client struct {
	log     *slog.Logger
	addr    string
	timeout time.Duration
	retries int
	backoff time.Duration
}

func NewClient(log *slog.Logger, addr string, timeout time.Duration, retries int, backoff time.Duration) *Client {
	return &Client{
		log:     log,
		addr:    addr,
		timeout: timeout,
		retries: retries,
		backoff: backoff,
	}
}

// Execute performs one request/response round trip. Transient dial and
// I/O failures are retried with exponential backoff; once the retry
// budget is exhausted the caller sees ErrDatabaseUnavailable. An error
// envelope from the collaborator is NOT a transport failure and comes
// back as a Response.
func (c *Client) Execute(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	delay := c.backoff

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Response{}, fmt.Errorf("%w: %v", errors.ErrDatabaseUnavailable, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		resp, err := c.roundTrip(ctx, req)
		if err != nil {
			lastErr = err
			c.log.Warn("Database round trip failed",
				"entity", req.Entity, "operation", req.Operation,
				"attempt", attempt+1, "error", err)
			continue
		}
		return resp, nil
	}

	return Response{}, fmt.Errorf("%w: %v", errors.ErrDatabaseUnavailable, lastErr)
}

// roundTrip dials per request, mirroring the collaborator's
// one-connection-per-request contract.
func (c *Client) roundTrip(ctx context.Context, req Request) (Response, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := protocol.Write(conn, req); err != nil {
		return Response{}, err
	}

	var resp Response
	if err := protocol.Decode(conn, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

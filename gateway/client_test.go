package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lobby-lab/errors"
	"lobby-lab/protocol"
)

// stubCollaborator answers every request with a fixed response and
// counts the connections it saw.
func stubCollaborator(t *testing.T, resp Response) (string, *atomic.Int32) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	var dials atomic.Int32
	go func() {
		for {
			conn, acceptErr := listener.Accept()
			if acceptErr != nil {
				return
			}
			dials.Add(1)
			go func(c net.Conn) {
				defer c.Close()
				if _, readErr := protocol.Read(c); readErr != nil {
					return
				}
				_ = protocol.Write(c, resp)
			}(conn)
		}
	}()
	return listener.Addr().String(), &dials
}

func TestClient_ExecuteRoundTrip(t *testing.T) {
	req := require.New(t)

	// Given a collaborator answering ok
	data, _ := json.Marshal(map[string]string{"id": "u1"})
	addr, dials := stubCollaborator(t, Response{Status: "ok", Data: data})
	client := NewClient(slog.New(slog.DiscardHandler), addr, time.Second, 2, 10*time.Millisecond)

	// When executing a request
	resp, err := client.Execute(context.Background(), Request{
		Operation: OpCreate,
		Entity:    EntityUser,
		Payload:   map[string]any{"name": "alice", "password": "pw"},
	})

	// Then the envelope comes back over a single dial
	req.NoError(err)
	req.True(resp.OK())
	req.JSONEq(`{"id":"u1"}`, string(resp.Data))
	req.Equal(int32(1), dials.Load())
}

func TestClient_RetriesThenGivesUp(t *testing.T) {
	req := require.New(t)

	// Given an address nobody listens on
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	addr := listener.Addr().String()
	req.NoError(listener.Close())

	client := NewClient(slog.New(slog.DiscardHandler), addr, 200*time.Millisecond, 2, 10*time.Millisecond)

	// When executing a request
	_, err = client.Execute(context.Background(), Request{
		Operation: OpQuery,
		Entity:    EntityUser,
		Payload:   map[string]any{},
	})

	// Then the bounded retries end in DatabaseUnavailable
	req.ErrorIs(err, errors.ErrDatabaseUnavailable)
}

func TestClient_ContextCancelStopsRetrying(t *testing.T) {
	req := require.New(t)

	// Given an unreachable collaborator and a canceled context
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	addr := listener.Addr().String()
	req.NoError(listener.Close())

	client := NewClient(slog.New(slog.DiscardHandler), addr, 200*time.Millisecond, 5, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When executing
	start := time.Now()
	_, err = client.Execute(ctx, Request{Operation: OpQuery, Entity: EntityUser, Payload: map[string]any{}})

	// Then the call gives up without sitting through the backoff
	req.Error(err)
	req.Less(time.Since(start), time.Second)
}

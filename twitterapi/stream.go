package twitterapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StreamEvents receives the callbacks of one streaming connection. All methods
// are invoked from the transport's reader goroutine; implementations must not
// block.
type StreamEvents interface {
	// Connected fires once the stream is established.
	Connected()
	// Payload delivers a tweet, direct message, or other untyped event record.
	Payload(raw json.RawMessage)
	// FriendsSnapshot delivers the friend-id list sent at stream start.
	FriendsSnapshot(ids []uint64)
	// Deletion delivers a status-deletion notice.
	Deletion(statusID uint64)
	// Keepalive fires on blank keepalive lines.
	Keepalive()
	// EndOfStream fires when the server closes the stream cleanly.
	EndOfStream()
	// StreamError fires when the connection dies or cannot be established.
	StreamError(err error)
}

// StreamClient opens the user stream: a long-lived HTTP response whose body is
// newline-delimited JSON. Blank lines are keepalives.
type StreamClient struct {
	URL        string
	HTTPClient *http.Client
}

func (s *StreamClient) http() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	// No global timeout: the stream stays open indefinitely.
	return &http.Client{}
}

type streamConn struct {
	cancel context.CancelFunc
	body   io.Closer
}

func (c *streamConn) Close() error {
	c.cancel()
	return c.body.Close()
}

// Open establishes the stream and starts delivering events to ev until the
// returned closer is closed or the connection dies. A non-2xx response is
// returned as an error carrying the status so callers can spot rate
// violations (420).
func (s *StreamClient) Open(ctx context.Context, ev StreamEvents) (io.Closer, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := s.http().Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	conn := &streamConn{cancel: cancel, body: resp.Body}
	go s.readLoop(ctx, resp.Body, ev)
	return conn, nil
}

func (s *StreamClient) readLoop(ctx context.Context, body io.Reader, ev StreamEvents) {
	ev.Connected()
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			ev.Keepalive()
			continue
		}
		s.dispatch(json.RawMessage(line), ev)
	}
	if ctx.Err() != nil {
		// Closed from our side; the supervisor already knows.
		return
	}
	if err := sc.Err(); err != nil {
		ev.StreamError(err)
		return
	}
	ev.EndOfStream()
}

// dispatch peels off the envelopes the transport itself understands
// (friend snapshots and deletion notices); everything else is handed to the
// consumer as an untyped payload.
func (s *StreamClient) dispatch(raw json.RawMessage, ev StreamEvents) {
	var envelope struct {
		Friends []uint64 `json:"friends"`
		Delete  *struct {
			Status struct {
				ID uint64 `json:"id"`
			} `json:"status"`
		} `json:"delete"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Friends != nil {
			ev.FriendsSnapshot(envelope.Friends)
			return
		}
		if envelope.Delete != nil {
			ev.Deletion(envelope.Delete.Status.ID)
			return
		}
	}
	ev.Payload(raw)
}

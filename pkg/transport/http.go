package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/sirupsen/logrus"
)

const (
	endpointRooms    = "/v1/rooms"
	endpointRoom     = "/v1/rooms/%s"
	endpointMessages = "/v1/rooms/%s/messages?limit=%d"
	endpointTurns    = "/v1/rooms/%s/turns"
)

// HTTPClient implements Client against the strand HTTP API.
type HTTPClient struct {
	client *client.Client
	server string
	token  string
	log    *logrus.Entry
}

// NewHTTPClient creates a client for the given server base URL.
func NewHTTPClient(server, token string, log *logrus.Entry) (*HTTPClient, error) {
	normalized, err := normalizeServerURL(server)
	if err != nil {
		return nil, err
	}

	// The standard dialer is required for streaming bodies; netpoll does not
	// support them.
	c, err := client.NewClient(
		client.WithDialTimeout(10*time.Second),
		client.WithMaxIdleConnDuration(60*time.Second),
		client.WithResponseBodyStream(true),
		client.WithDialer(standard.NewDialer()),
	)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP client: %w", err)
	}

	return &HTTPClient{client: c, server: normalized, token: token, log: log}, nil
}

func normalizeServerURL(server string) (string, error) {
	if !strings.Contains(server, "://") {
		server = "https://" + server
	}
	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q", server)
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}

// CreateRoom starts a new conversation.
func (c *HTTPClient) CreateRoom(ctx context.Context, title string) (*Room, error) {
	var room Room
	body := map[string]string{"title": title}
	if err := c.doJSON(ctx, consts.MethodPost, c.server+endpointRooms, body, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// FetchRoom resolves room metadata.
func (c *HTTPClient) FetchRoom(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	if err := c.doJSON(ctx, consts.MethodGet, c.server+fmt.Sprintf(endpointRoom, roomID), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// ListRooms returns the caller's rooms, most recently active first.
func (c *HTTPClient) ListRooms(ctx context.Context) ([]Room, error) {
	var out struct {
		Rooms []Room `json:"rooms"`
	}
	if err := c.doJSON(ctx, consts.MethodGet, c.server+endpointRooms, nil, &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

// FetchMessages returns the most recent messages for a room, oldest first.
func (c *HTTPClient) FetchMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	u := c.server + fmt.Sprintf(endpointMessages, roomID, limit)
	if err := c.doJSON(ctx, consts.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SubmitTurn submits a turn and waits for the complete result.
func (c *HTTPClient) SubmitTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	var result TurnResult
	u := c.server + fmt.Sprintf(endpointTurns, req.RoomID)
	if err := c.doJSON(ctx, consts.MethodPost, u, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// OpenStream submits a turn and returns the SSE response stream. Events are
// parsed off the body as they arrive; the channel is closed after the
// terminal event.
func (c *HTTPClient) OpenStream(ctx context.Context, turnReq TurnRequest) (*Stream, error) {
	bodyBytes, err := sonic.Marshal(turnReq)
	if err != nil {
		return nil, fmt.Errorf("encoding turn request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()

	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(c.server + fmt.Sprintf(endpointTurns, turnReq.RoomID))
	req.Header.SetContentTypeBytes([]byte("application/json"))
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.SetBody(bodyBytes)

	if err := c.client.Do(streamCtx, req, resp); err != nil {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
		cancel()
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	if resp.StatusCode() != 200 {
		statusErr := &StatusError{Code: resp.StatusCode(), Body: string(resp.Body())}
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
		cancel()
		return nil, statusErr
	}

	events := make(chan StreamEvent, 16)
	go func() {
		defer func() {
			close(events)
			protocol.ReleaseRequest(req)
			protocol.ReleaseResponse(resp)
		}()
		body := resp.BodyStream()
		if body == nil {
			events <- StreamEvent{Kind: StreamError, Err: "empty response body"}
			return
		}
		parseSSE(body, events)
	}()

	return &Stream{Events: events, Cancel: cancel}, nil
}

// parseSSE reads "data:" frames line by line and forwards decoded events.
// A scanner error before the terminal event is surfaced as a stream error;
// the engine keeps whatever partial output it already applied.
func parseSSE(r io.Reader, events chan<- StreamEvent) {
	scanner := bufio.NewScanner(r)
	const maxLine = 1024 * 1024
	scanner.Buffer(make([]byte, maxLine), maxLine)

	terminal := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, found := strings.CutPrefix(line, "data: ")
		if !found {
			continue
		}
		if data == "[DONE]" {
			return
		}

		var ev StreamEvent
		if err := sonic.Unmarshal([]byte(data), &ev); err != nil {
			events <- StreamEvent{Kind: StreamError, Err: fmt.Sprintf("malformed stream frame: %v", err)}
			return
		}
		events <- ev
		if ev.Kind == StreamDone || ev.Kind == StreamError {
			terminal = true
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF && !terminal {
		events <- StreamEvent{Kind: StreamError, Err: fmt.Sprintf("stream read failed: %v", err)}
	}
}

// doJSON performs a request/response call with JSON bodies and typed status
// errors.
func (c *HTTPClient) doJSON(ctx context.Context, method, uri string, in, out any) error {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetMethod(method)
	req.SetRequestURI(uri)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if in != nil {
		body, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(body)
	}

	if err := c.client.Do(ctx, req, resp); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return &StatusError{Code: resp.StatusCode(), Body: string(resp.Body())}
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

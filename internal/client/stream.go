package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/it-helpdesk/internal/events"
)

// ChangeEvent is the SSE event name carrying a row change.
const ChangeEvent = "change"

// SubscribeTickets opens the ticket change stream. The server scopes it to
// the caller's own tickets unless the caller is an admin. handler runs on the
// stream goroutine.
func (c *Client) SubscribeTickets(ctx context.Context, handler events.Handler) (events.Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	resp, err := c.stream.R().
		SetContext(streamCtx).
		SetHeader("Accept", "text/event-stream").
		SetDoNotParseResponse(true).
		Get("/realtime/tickets")
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open ticket stream: %w", err)
	}
	body := resp.RawBody()
	if resp.StatusCode() >= 300 {
		defer body.Close()
		cancel()
		raw, _ := io.ReadAll(io.LimitReader(body, 64<<10))
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil && env.Error != nil {
			env.Error.Status = resp.StatusCode()
			return nil, env.Error
		}
		return nil, &APIError{Status: resp.StatusCode(), Code: "HTTP_ERROR", Message: resp.Status()}
	}

	sub := &streamSubscription{cancel: cancel, body: body, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		err := readEvents(body, func(name, data string) {
			if name != ChangeEvent {
				return
			}
			var change events.Change
			if err := json.Unmarshal([]byte(data), &change); err != nil {
				c.logger.Warn("discarding malformed change event", zap.Error(err))
				return
			}
			handler(streamCtx, change)
		})
		if err != nil && streamCtx.Err() == nil {
			c.logger.Warn("ticket stream ended", zap.Error(err))
		}
	}()
	return sub, nil
}

type streamSubscription struct {
	cancel context.CancelFunc
	body   io.ReadCloser
	once   sync.Once
	done   chan struct{}
}

func (s *streamSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.body.Close()
		<-s.done
	})
	return err
}

// Done is closed when the stream ends for any reason.
func (s *streamSubscription) Done() <-chan struct{} {
	return s.done
}

// readEvents parses a text/event-stream body and calls emit for each event.
// Comment lines are ignored; multi-line data is joined with "\n".
func readEvents(r io.Reader, emit func(name, data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	var name string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				if name == "" {
					name = "message"
				}
				emit(name, strings.Join(data, "\n"))
			}
			name, data = "", nil
		case strings.HasPrefix(line, ":"):
			// keepalive
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/it-helpdesk/internal/events"
	"github.com/spec-kit/it-helpdesk/internal/observability"
	apperrors "github.com/spec-kit/it-helpdesk/pkg/util"
)

const (
	defaultHeartbeat = 15 * time.Second
	streamBuffer     = 32
)

// RealtimeHandler streams ticket changes as server-sent events.
type RealtimeHandler struct {
	feed      events.Feed
	logger    *zap.Logger
	metrics   *observability.Metrics
	heartbeat time.Duration
	// shutdown ends every open stream when closed.
	shutdown <-chan struct{}
}

// NewRealtimeHandler constructs handler. Streams end when shutdown is closed.
func NewRealtimeHandler(feed events.Feed, logger *zap.Logger, metrics *observability.Metrics, shutdown <-chan struct{}) *RealtimeHandler {
	return &RealtimeHandler{feed: feed, logger: logger, metrics: metrics, heartbeat: defaultHeartbeat, shutdown: shutdown}
}

// Tickets GET /realtime/tickets. Admins see every ticket; other callers only
// their own.
func (h *RealtimeHandler) Tickets(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	filter := events.TicketFilter(identity.ID)
	if identity.IsAdmin() {
		filter = events.TicketFilter("")
	}

	// The stream outlives the handler, so it cannot use the request context.
	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan events.Change, streamBuffer)
	sub, err := h.feed.Subscribe(ctx, filter, func(_ context.Context, change events.Change) {
		select {
		case changes <- change:
		default:
			h.metrics.RecordSoftFailure("subscription")
			h.logger.Warn("slow realtime client, change dropped", zap.String("user_id", identity.ID))
		}
	})
	if err != nil {
		cancel()
		return apperrors.NewUpstreamError("realtime feed unavailable", err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	logger := h.logger.With(zap.String("user_id", identity.ID))
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer sub.Close()
		logger.Debug("realtime stream opened")

		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		if err := writeComment(w, "connected"); err != nil {
			return
		}
		for {
			select {
			case change := <-changes:
				if err := writeChange(w, change); err != nil {
					logger.Debug("realtime client gone", zap.Error(err))
					return
				}
			case <-ticker.C:
				if err := writeComment(w, "ping"); err != nil {
					logger.Debug("realtime client gone", zap.Error(err))
					return
				}
			case <-h.shutdown:
				return
			}
		}
	})
	return nil
}

func writeChange(w *bufio.Writer, change events.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %s\nevent: change\ndata: %s\n\n", change.ID, payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeComment(w *bufio.Writer, text string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", text); err != nil {
		return err
	}
	return w.Flush()
}

package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/functions"
	"github.com/spec-kit/it-helpdesk/internal/observability"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.NotificationMessage
	fail map[string]bool
}

func (n *fakeNotifier) SendNotification(_ context.Context, msg domain.NotificationMessage) (functions.NotifyResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[msg.To] {
		return functions.NotifyResponse{Success: false, Error: "Failed to send email notification"}, nil
	}
	n.sent = append(n.sent, msg)
	return functions.NotifyResponse{Success: true}, nil
}

func message(to string) domain.NotificationMessage {
	return domain.NotificationMessage{To: to, Subject: "s", TicketID: "t-1", Type: domain.NotificationAdminNotification}
}

func TestNotificationWorker_DeliversAndReports(t *testing.T) {
	notifier := &fakeNotifier{fail: map[string]bool{"bad@example.com": true}}
	metrics := observability.NewMetrics()
	w := NewNotificationWorker(notifier, zap.NewNop(), metrics, Options{Workers: 2, QueueSize: 8})
	w.Start(context.Background())

	require.NoError(t, w.Enqueue(message("ok@example.com")))
	require.NoError(t, w.Enqueue(message("bad@example.com")))

	select {
	case report := <-w.Reports():
		assert.Equal(t, "bad@example.com", report.To)
		assert.Equal(t, "t-1", report.TicketID)
		var fnErr *functions.Error
		assert.True(t, errors.As(report.Err, &fnErr))
	case <-time.After(2 * time.Second):
		t.Fatal("expected a failure report")
	}

	w.Stop()
	assert.Len(t, notifier.sent, 1)
	assert.Equal(t, int64(1), metrics.Snapshot().SoftFailures["notification"])

	_, open := <-w.Reports()
	assert.False(t, open, "reports channel closes on stop")
}

func TestNotificationWorker_EnqueueAfterStop(t *testing.T) {
	w := NewNotificationWorker(&fakeNotifier{}, zap.NewNop(), nil, Options{})
	w.Start(context.Background())
	w.Stop()
	w.Stop()

	assert.ErrorIs(t, w.Enqueue(message("a@example.com")), ErrStopped)
}

func TestNotificationWorker_QueueFull(t *testing.T) {
	w := NewNotificationWorker(&fakeNotifier{}, zap.NewNop(), nil, Options{QueueSize: 1})

	require.NoError(t, w.Enqueue(message("a@example.com")))
	assert.ErrorIs(t, w.Enqueue(message("b@example.com")), ErrQueueFull)
}

func TestNotificationWorker_StopDrainsQueue(t *testing.T) {
	notifier := &fakeNotifier{}
	w := NewNotificationWorker(notifier, zap.NewNop(), nil, Options{QueueSize: 4})
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Enqueue(message("a@example.com")))
	}
	w.Start(context.Background())
	w.Stop()

	assert.Len(t, notifier.sent, 3)
}

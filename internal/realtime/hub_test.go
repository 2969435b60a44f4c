package realtime

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bhhunter/rental-backend/internal/config"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(buffer int) *Hub {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewHub(&config.RealtimeConfig{BufferSize: buffer, Heartbeat: time.Hour}, logger)
}

// streamRecorder is a ResponseWriter that is safe to read while a stream is writing
type streamRecorder struct {
	mu     sync.Mutex
	header http.Header
	body   bytes.Buffer
	code   int
	closed chan bool
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{header: http.Header{}, closed: make(chan bool, 1)}
}

func (r *streamRecorder) Header() http.Header { return r.header }

func (r *streamRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.Write(b)
}

func (r *streamRecorder) WriteHeader(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code = code
}

func (r *streamRecorder) Flush() {}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func (r *streamRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}

func TestHub_SendToUserReachesEveryConnection(t *testing.T) {
	hub := newTestHub(4)
	tenant := models.Recipient{Role: models.RoleTenant, UserID: 2}
	owner := models.Recipient{Role: models.RoleOwner, UserID: 2}

	first, cancelFirst := hub.Subscribe(tenant)
	second, cancelSecond := hub.Subscribe(tenant)
	other, cancelOther := hub.Subscribe(owner)
	defer cancelOther()

	require.NoError(t, hub.SendToUser(tenant, &models.Notification{ID: 1}))

	assert.Equal(t, int64(1), (<-first).ID)
	assert.Equal(t, int64(1), (<-second).ID)
	assert.Empty(t, other)

	cancelFirst()
	cancelFirst()
	assert.Equal(t, 1, hub.Connections(tenant))
	cancelSecond()
	assert.Zero(t, hub.Connections(tenant))
}

func TestHub_SendToUserNeverBlocks(t *testing.T) {
	hub := newTestHub(1)
	tenant := models.Recipient{Role: models.RoleTenant, UserID: 2}
	ch, cancel := hub.Subscribe(tenant)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 5; i++ {
			_ = hub.SendToUser(tenant, &models.Notification{ID: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendToUser blocked on a full buffer")
	}
	assert.Equal(t, int64(1), (<-ch).ID)
	assert.NoError(t, hub.SendToUser(models.Recipient{Role: models.RoleOwner, UserID: 404}, &models.Notification{ID: 9}))
}

func TestHub_Stream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := newTestHub(4)
	tenant := models.Recipient{Role: models.RoleTenant, UserID: 2}

	rec := newStreamRecorder()
	c, _ := gin.CreateTestContext(rec)
	ctx, cancel := context.WithCancel(context.Background())
	c.Request = httptest.NewRequest(http.MethodGet, "/notifications/stream", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		hub.Stream(c, tenant)
		close(done)
	}()

	require.Eventually(t, func() bool { return hub.Connections(tenant) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.SendToUser(tenant, &models.Notification{ID: 42, Title: "Booking Approved"}))
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(rec.String()), []byte("Booking Approved"))
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after the client went away")
	}

	body := rec.String()
	assert.Contains(t, body, "event:ready")
	assert.Contains(t, body, "id:42")
	assert.Contains(t, body, "event:notification")
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Zero(t, hub.Connections(tenant))
}

func TestHub_CloseEndsOpenStreams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := newTestHub(4)
	owner := models.Recipient{Role: models.RoleOwner, UserID: 1}

	c, _ := gin.CreateTestContext(newStreamRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/notifications/stream", nil)

	done := make(chan struct{})
	go func() {
		hub.Stream(c, owner)
		close(done)
	}()
	require.Eventually(t, func() bool { return hub.Connections(owner) == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop when the hub closed")
	}
	assert.Zero(t, hub.Connections(owner))

	ch, cancel := hub.Subscribe(owner)
	defer cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.NoError(t, hub.SendToUser(owner, &models.Notification{ID: 1}))
	hub.Close()
}

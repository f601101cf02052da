package watcher

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"spot/config"
	"spot/internal/domain/entity"
	"spot/internal/domain/service"
	"spot/internal/infra/persistence/state"
	"spot/internal/infra/prices"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingPresenter records notifications and badge changes.
type countingPresenter struct {
	mu            sync.Mutex
	notifications []service.Notification
	badgeSets     int
	badgeClears   int
}

func (p *countingPresenter) Notify(_ context.Context, n service.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, n)

	return nil
}

func (p *countingPresenter) SetBadge(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.badgeSets++

	return nil
}

func (p *countingPresenter) ClearBadge(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.badgeClears++

	return nil
}

func (p *countingPresenter) notifyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.notifications)
}

// feedServer serves a mutable latest feed for one zone.
type feedServer struct {
	mu        sync.Mutex
	timestamp string
	fail      bool
	server    *httptest.Server
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	f := &feedServer{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fail {
			w.WriteHeader(http.StatusBadGateway)

			return
		}
		w.Write([]byte(`[{"timestamp": "` + f.timestamp + `"}]`))
	}))
	t.Cleanup(f.server.Close)

	return f
}

func (f *feedServer) set(ts string) {
	f.mu.Lock()
	f.timestamp = ts
	f.mu.Unlock()
}

func (f *feedServer) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func newTestWorker(t *testing.T, feedURL string) (*Worker, *state.MemoryStore, *countingPresenter) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	states := state.NewMemoryStore()
	presenter := &countingPresenter{}

	cfg := &config.Config{
		Watcher: &config.WatcherConfig{
			DataOrigin:   feedURL,
			PollPeriod:   time.Hour,
			FetchTimeout: 5 * time.Second,
		},
	}

	w := &Worker{
		cfg:       cfg.Watcher,
		logger:    logger,
		states:    states,
		prices:    prices.NewClient(cfg.Watcher.FetchTimeout),
		presenter: presenter,
		hub:       NewHub(logger),
		inbox:     make(chan envelope, inboxSize),
		stop:      make(chan struct{}),
		phase:     PhaseIdle,
	}

	// Pin the data origin to the test feed.
	ctx := context.Background()
	loaded, err := states.Load(ctx)
	require.NoError(t, err)
	loaded.DataOrigin = feedURL
	loaded.OriginPreset = entity.OriginPresetCustom
	require.NoError(t, states.Save(ctx, loaded))

	return w, states, presenter
}

func watchZone(t *testing.T, w *Worker, zone string) {
	t.Helper()
	w.setZone(context.Background(), entity.SetZone{Zone: &zone})
}

func TestPollOnce_AnnouncesOnlyOnStrictAdvance(t *testing.T) {
	feed := newFeedServer(t)
	w, states, presenter := newTestWorker(t, feed.server.URL)
	ctx := context.Background()

	watchZone(t, w, "SE3")

	sequence := []struct {
		timestamp  string
		wantNotify int
	}{
		{timestamp: "2024-05-03T10:00:00Z", wantNotify: 1},
		{timestamp: "2024-05-03T10:00:00Z", wantNotify: 1},
		{timestamp: "2024-05-03T11:00:00Z", wantNotify: 2},
		{timestamp: "2024-05-03T11:00:00Z", wantNotify: 2},
	}

	for i, step := range sequence {
		feed.set(step.timestamp)
		w.pollNow(ctx)
		assert.Equal(t, step.wantNotify, presenter.notifyCount(), "step %d", i)
	}

	final, err := states.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, final.LastTimestamp)
	assert.Equal(t, "2024-05-03T11:00:00Z", *final.LastTimestamp)
}

func TestPollOnce_IdleWithoutZone(t *testing.T) {
	feed := newFeedServer(t)
	feed.set("2024-05-03T10:00:00Z")
	w, states, presenter := newTestWorker(t, feed.server.URL)
	ctx := context.Background()

	w.pollNow(ctx)

	assert.Zero(t, presenter.notifyCount())
	loaded, err := states.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded.LastTimestamp)
	assert.Equal(t, PhaseIdle, w.Phase())
}

func TestPollOnce_FetchFailureLeavesStateUntouched(t *testing.T) {
	feed := newFeedServer(t)
	feed.set("2024-05-03T10:00:00Z")
	w, states, presenter := newTestWorker(t, feed.server.URL)
	ctx := context.Background()

	watchZone(t, w, "SE3")
	w.pollNow(ctx)
	require.Equal(t, 1, presenter.notifyCount())

	feed.setFail(true)
	w.pollNow(ctx)

	assert.Equal(t, 1, presenter.notifyCount())
	loaded, err := states.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded.LastTimestamp)
	assert.Equal(t, "2024-05-03T10:00:00Z", *loaded.LastTimestamp)

	// The next successful poll resumes announcements.
	feed.setFail(false)
	feed.set("2024-05-03T11:00:00Z")
	w.pollNow(ctx)
	assert.Equal(t, 2, presenter.notifyCount())
}

func TestPollOnce_PhaseTransitions(t *testing.T) {
	feed := newFeedServer(t)
	feed.set("2024-05-03T10:00:00Z")
	w, _, _ := newTestWorker(t, feed.server.URL)
	ctx := context.Background()

	watchZone(t, w, "SE3")

	w.pollNow(ctx)
	assert.Equal(t, PhaseCooldown, w.Phase(), "announced poll ends in cooldown")

	w.pollNow(ctx)
	assert.Equal(t, PhaseWatching, w.Phase(), "no advance returns to watching")

	feed.setFail(true)
	w.pollNow(ctx)
	assert.Equal(t, PhaseWatching, w.Phase(), "failed poll returns to watching")
}

func TestSetZone_SwitchResetsTimestamp(t *testing.T) {
	feed := newFeedServer(t)
	feed.set("2024-05-03T10:00:00Z")
	w, states, _ := newTestWorker(t, feed.server.URL)
	ctx := context.Background()

	watchZone(t, w, "SE1")
	w.pollNow(ctx)

	watchZone(t, w, "SE2")

	loaded, err := states.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded.Zone)
	assert.Equal(t, "SE2", *loaded.Zone)
	assert.Nil(t, loaded.LastTimestamp)
}

func TestSetZone_NullZoneClearsBadge(t *testing.T) {
	feed := newFeedServer(t)
	w, states, presenter := newTestWorker(t, feed.server.URL)
	ctx := context.Background()

	watchZone(t, w, "SE1")
	w.setZone(ctx, entity.SetZone{Zone: nil})

	assert.Equal(t, 1, presenter.badgeClears)
	assert.Equal(t, PhaseIdle, w.Phase())
	loaded, err := states.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded.Zone)
}

func TestSetZone_SuppliedTimestampSuppressesReannounce(t *testing.T) {
	feed := newFeedServer(t)
	feed.set("2024-05-03T10:00:00Z")
	w, _, presenter := newTestWorker(t, feed.server.URL)
	ctx := context.Background()

	zone := "SE3"
	supplied := "2024-05-03T10:00:00Z"
	w.setZone(ctx, entity.SetZone{Zone: &zone, LastTimestamp: &supplied})

	w.pollNow(ctx)
	assert.Zero(t, presenter.notifyCount(), "already-seen timestamp must not re-announce")
}

func TestHandlePush_WatchedZonePersists(t *testing.T) {
	feed := newFeedServer(t)
	w, states, presenter := newTestWorker(t, feed.server.URL)
	ctx := context.Background()

	watchZone(t, w, "SE3")
	w.handlePush(ctx, PushPayload{Zone: "SE3", Timestamp: "2024-05-03T11:00:00Z"})

	assert.Equal(t, 1, presenter.notifyCount())
	loaded, err := states.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded.LastTimestamp)
	assert.Equal(t, "2024-05-03T11:00:00Z", *loaded.LastTimestamp)
}

func TestHandlePush_UnwatchedZoneNotifiesButDoesNotPersist(t *testing.T) {
	feed := newFeedServer(t)
	w, states, presenter := newTestWorker(t, feed.server.URL)
	ctx := context.Background()

	watchZone(t, w, "SE1")
	w.handlePush(ctx, PushPayload{Zone: "DK1", Timestamp: "2024-05-03T11:00:00Z"})

	assert.Equal(t, 1, presenter.notifyCount(), "push for another zone is still shown")
	loaded, err := states.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded.LastTimestamp, "state belongs to the watched zone only")
}

func TestHandlePush_RelaysNewPricesToPages(t *testing.T) {
	feed := newFeedServer(t)
	w, _, _ := newTestWorker(t, feed.server.URL)
	ctx := context.Background()

	page := w.hub.Attach()
	defer w.hub.Detach(page)

	watchZone(t, w, "SE1")
	drainOutbox(page)

	w.handlePush(ctx, PushPayload{Zone: "DK1", Timestamp: "2024-05-03T11:00:00Z"})

	var sawNewPrices bool
	for _, msg := range drainOutbox(page) {
		if announced, ok := msg.(entity.NewPrices); ok {
			sawNewPrices = true
			assert.Equal(t, "DK1", announced.Zone)
		}
	}
	assert.True(t, sawNewPrices, "new-prices is relayed regardless of watch status")
}

func TestHandlePush_RawTextBecomesTitle(t *testing.T) {
	feed := newFeedServer(t)
	w, _, presenter := newTestWorker(t, feed.server.URL)

	w.handlePush(context.Background(), ParsePushPayload([]byte("manual test message")))

	require.Equal(t, 1, presenter.notifyCount())
	assert.Equal(t, "manual test message", presenter.notifications[0].Title)
}

func TestSetDataOrigin_Idempotent(t *testing.T) {
	feed := newFeedServer(t)
	w, states, _ := newTestWorker(t, feed.server.URL)
	ctx := context.Background()

	msg := entity.SetDataOrigin{Origin: "tunnel.example.dev"}
	w.setDataOrigin(ctx, msg)
	first, err := states.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://tunnel.example.dev", first.DataOrigin)
	assert.Equal(t, entity.OriginPresetCustom, first.OriginPreset)

	w.setDataOrigin(ctx, msg)
	second, err := states.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRequestState_RepliesToRequestingPageOnly(t *testing.T) {
	feed := newFeedServer(t)
	w, _, _ := newTestWorker(t, feed.server.URL)
	ctx := context.Background()

	asking := w.hub.Attach()
	other := w.hub.Attach()
	defer w.hub.Detach(asking)
	defer w.hub.Detach(other)

	w.replyState(ctx, asking)

	select {
	case msg := <-asking.Outbox():
		_, ok := msg.(entity.State)
		assert.True(t, ok)
	default:
		t.Fatal("requesting page got no reply")
	}

	select {
	case msg := <-other.Outbox():
		t.Fatalf("unrelated page received %T", msg)
	default:
	}
}

// drainOutbox returns everything currently buffered for the page.
func drainOutbox(page *Page) []entity.Message {
	var msgs []entity.Message
	for {
		select {
		case msg := <-page.Outbox():
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

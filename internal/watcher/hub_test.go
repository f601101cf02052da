package watcher

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"spot/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDetachIsIdempotent(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))

	page := hub.Attach()
	hub.Detach(page)
	hub.Detach(page)

	select {
	case <-page.Done():
	default:
		t.Fatal("detached page should report done")
	}
}

func TestHubBroadcastReachesEveryAttachedPage(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))

	first := hub.Attach()
	second := hub.Attach()
	defer hub.Detach(first)
	defer hub.Detach(second)

	hub.Broadcast(entity.NewPrices{Zone: "SE3", Timestamp: "2024-05-03T11:00:00Z"})

	for _, page := range []*Page{first, second} {
		select {
		case msg := <-page.Outbox():
			announced, ok := msg.(entity.NewPrices)
			require.True(t, ok)
			assert.Equal(t, "SE3", announced.Zone)
		default:
			t.Fatalf("page %s received nothing", page.ID())
		}
	}
}

// A page disconnecting while the worker loop is mid-broadcast must never
// bring the process down; the hub drops the message instead.
func TestHubBroadcastSurvivesConcurrentDetach(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))

	const rounds = 200

	stop := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				hub.Broadcast(entity.StateUpdated{State: entity.NewWatchState()})
			}
		}
	}()

	go func() {
		defer wg.Done()
		defer close(stop)
		for range rounds {
			page := hub.Attach()
			hub.Detach(page)
		}
	}()

	wg.Wait()
}

func TestHubDeliverAfterDetachDropsSilently(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))

	page := hub.Attach()
	hub.Detach(page)

	// Simulates a broadcast snapshot taken before the detach finished.
	hub.Send(page, entity.ClearBadge{})
}

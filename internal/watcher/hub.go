// Package watcher hosts the background sync worker: the single writer of
// WatchState, fed by page messages, platform push deliveries, and a jittered
// fallback poll timer.
package watcher

import (
	"log/slog"
	"sync"

	"spot/internal/domain/entity"

	"github.com/google/uuid"
)

const pageOutboxSize = 16

// Page is one attached page connection. Outgoing messages are buffered; a
// page that stops draining its outbox loses messages instead of stalling the
// worker loop.
type Page struct {
	id     string
	outbox chan entity.Message
	done   chan struct{}
}

func (p *Page) ID() string { return p.id }

// Outbox yields messages relayed to this page. The channel is never closed;
// readers select on Done to learn the page went away.
func (p *Page) Outbox() <-chan entity.Message { return p.outbox }

// Done is closed when the page is detached from the hub.
func (p *Page) Done() <-chan struct{} { return p.done }

// Hub tracks the pages currently attached to the worker and fans messages
// out to them.
type Hub struct {
	logger *slog.Logger

	mu    sync.Mutex
	pages map[string]*Page
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		pages:  make(map[string]*Page),
	}
}

// Attach registers a new page connection and returns its handle.
func (h *Hub) Attach() *Page {
	page := &Page{
		id:     uuid.NewString(),
		outbox: make(chan entity.Message, pageOutboxSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.pages[page.id] = page
	count := len(h.pages)
	h.mu.Unlock()

	h.logger.Info("[Watcher] Page attached",
		slog.String("page", page.id),
		slog.Int("pages", count),
	)

	return page
}

// Detach removes a page and signals its Done channel. Safe to call twice.
// The outbox itself is never closed: a broadcast snapshot taken just before
// detach may still be delivering, and a send on an open channel is harmless
// while a send on a closed one would panic the worker.
func (h *Hub) Detach(page *Page) {
	h.mu.Lock()
	_, attached := h.pages[page.id]
	if attached {
		delete(h.pages, page.id)
	}
	count := len(h.pages)
	h.mu.Unlock()

	if !attached {
		return
	}

	close(page.done)
	h.logger.Info("[Watcher] Page detached",
		slog.String("page", page.id),
		slog.Int("pages", count),
	)
}

// Broadcast relays a message to every attached page.
func (h *Hub) Broadcast(msg entity.Message) {
	h.mu.Lock()
	pages := make([]*Page, 0, len(h.pages))
	for _, page := range h.pages {
		pages = append(pages, page)
	}
	h.mu.Unlock()

	for _, page := range pages {
		h.deliver(page, msg)
	}
}

// Send relays a message to one page, typically a reply to its own request.
func (h *Hub) Send(page *Page, msg entity.Message) {
	h.deliver(page, msg)
}

func (h *Hub) deliver(page *Page, msg entity.Message) {
	select {
	case <-page.done:
	case page.outbox <- msg:
	default:
		h.logger.Warn("[Watcher] Page outbox full, dropping message",
			slog.String("page", page.id),
			slog.String("type", msg.MessageType()),
		)
	}
}

package watcher

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"spot/config"
	"spot/internal/domain/entity"
	"spot/internal/domain/repository"
	"spot/internal/domain/service"
	"spot/internal/infra/prices"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// Phase labels where the worker loop currently is. Purely observational; the
// loop itself is driven by the inbox and the poll timer.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseWatching Phase = "watching"
	PhasePolling  Phase = "polling"
	PhaseCooldown Phase = "cooldown"
)

const inboxSize = 64

// envelope carries one unit of work into the loop: either a protocol message
// (optionally tied to the page that sent it) or a platform push delivery.
type envelope struct {
	msg  entity.Message
	push *PushPayload
	from *Page
}

// WorkerParams holds dependencies for the Worker, injected by Fx.
type WorkerParams struct {
	fx.In
	fx.Lifecycle

	Config    *config.Config
	Logger    *slog.Logger
	States    repository.StateStore
	Prices    *prices.Client
	Presenter service.AlertPresenter
	Hub       *Hub
}

// Worker owns WatchState. Every mutation funnels through a single inbox
// goroutine, so message handling is serialized and the read-modify-write in
// the push path cannot interleave with a concurrent zone change.
type Worker struct {
	cfg       *config.WatcherConfig
	logger    *slog.Logger
	states    repository.StateStore
	prices    *prices.Client
	presenter service.AlertPresenter
	hub       *Hub

	inbox     chan envelope
	stop      chan struct{}
	pollTimer *time.Timer

	phaseMu sync.Mutex
	phase   Phase
}

// NewWorker is the constructor for the Worker.
func NewWorker(params WorkerParams) *Worker {
	w := &Worker{
		cfg:       params.Config.Watcher,
		logger:    params.Logger,
		states:    params.States,
		prices:    params.Prices,
		presenter: params.Presenter,
		hub:       params.Hub,
		inbox:     make(chan envelope, inboxSize),
		stop:      make(chan struct{}),
		phase:     PhaseIdle,
	}

	params.Append(fx.Hook{
		OnStop: func(context.Context) error {
			close(w.stop)

			return nil
		},
	})

	return w
}

// Phase reports the loop's current phase.
func (w *Worker) Phase() Phase {
	w.phaseMu.Lock()
	defer w.phaseMu.Unlock()

	return w.phase
}

func (w *Worker) setPhase(phase Phase) {
	w.phaseMu.Lock()
	w.phase = phase
	w.phaseMu.Unlock()
}

// Deliver queues a protocol message for the loop.
func (w *Worker) Deliver(msg entity.Message) {
	w.enqueue(envelope{msg: msg})
}

// DeliverFrom queues a message on behalf of an attached page so that replies
// can be routed back to it.
func (w *Worker) DeliverFrom(page *Page, msg entity.Message) {
	w.enqueue(envelope{msg: msg, from: page})
}

// DeliverPush queues a platform push delivery.
func (w *Worker) DeliverPush(payload PushPayload) {
	w.enqueue(envelope{push: &payload})
}

func (w *Worker) enqueue(env envelope) {
	select {
	case w.inbox <- env:
	default:
		// Anything dropped here is recovered by the next poll or the next
		// request-state round trip.
		w.logger.Warn("[Watcher] Inbox full, dropping message")
	}
}

// Serve runs the loop until the context is cancelled.
func (w *Worker) Serve(ctx context.Context) error {
	state, err := w.states.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load watch state")
	}

	state = w.seedOrigin(ctx, state)
	if state.Watching() {
		w.setPhase(PhaseWatching)
	}

	w.pollTimer = time.NewTimer(w.cooldown())
	defer w.pollTimer.Stop()

	w.logger.Info("[Watcher] Loop started",
		slog.Any("zone", state.Zone),
		slog.String("dataOrigin", state.DataOrigin),
		slog.Duration("pollPeriod", w.cfg.PollPeriod),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("[Watcher] Loop stopped")

			return ctx.Err()
		case <-w.stop:
			w.logger.Info("[Watcher] Loop stopped")

			return nil
		case env := <-w.inbox:
			w.dispatch(ctx, env)
		case <-w.pollTimer.C:
			w.pollNow(ctx)
			w.pollTimer.Reset(w.cooldown())
		}
	}
}

// seedOrigin applies the configured data origin. Resolution is idempotent,
// so reapplying it on every start converges to the same stored state.
func (w *Worker) seedOrigin(ctx context.Context, state entity.WatchState) entity.WatchState {
	if w.cfg.DataOrigin == "" && w.cfg.OriginPreset == "" {
		return state
	}

	origin, preset := entity.ResolveOrigin(w.cfg.DataOrigin, entity.OriginPreset(w.cfg.OriginPreset), state.DataOrigin)
	if origin == state.DataOrigin && preset == state.OriginPreset {
		return state
	}

	next := state
	next.DataOrigin = origin
	next.OriginPreset = preset
	if err := w.states.Save(ctx, next); err != nil {
		w.logger.Error("[Watcher] Failed to persist configured origin", slog.Any("error", err))

		return state
	}

	return next
}

func (w *Worker) dispatch(ctx context.Context, env envelope) {
	if env.push != nil {
		w.handlePush(ctx, *env.push)

		return
	}

	switch msg := env.msg.(type) {
	case entity.SetZone:
		w.setZone(ctx, msg)
	case entity.TriggerPoll:
		if msg.SkipDelay {
			w.pollNow(ctx)

			return
		}
		// Deferring behind fresh jitter instead of sleeping keeps later
		// messages from queuing behind the wait. A stale timer fire racing
		// this reset just causes one redundant poll, which is idempotent.
		w.pollTimer.Reset(w.jitter())
	case entity.RequestState:
		w.replyState(ctx, env.from)
	case entity.ClearBadge:
		w.clearBadge(ctx)
	case entity.SetDataOrigin:
		w.setDataOrigin(ctx, msg)
	case entity.DevNotify:
		w.devNotify(ctx, msg)
	default:
		w.logger.Warn("[Watcher] Ignoring unhandled message", slog.String("type", env.msg.MessageType()))
	}
}

func (w *Worker) setZone(ctx context.Context, msg entity.SetZone) {
	state, err := w.states.Load(ctx)
	if err != nil {
		w.logger.Error("[Watcher] Failed to load state", slog.Any("error", err))

		return
	}

	var zone *string
	if msg.Zone != nil && *msg.Zone != "" {
		normalized, err := entity.NormalizeZone(*msg.Zone)
		if err != nil {
			w.logger.Warn("[Watcher] Rejecting malformed zone", slog.String("zone", *msg.Zone))

			return
		}
		zone = &normalized
	}

	next := state.WithZone(zone, msg.LastTimestamp)
	if err := w.states.Save(ctx, next); err != nil {
		w.logger.Error("[Watcher] Failed to persist zone change", slog.Any("error", err))

		return
	}

	if zone == nil {
		w.setPhase(PhaseIdle)
		w.clearBadge(ctx)
		w.logger.Info("[Watcher] Watching stopped")
	} else {
		w.setPhase(PhaseWatching)
		w.logger.Info("[Watcher] Watching zone", slog.String("zone", *zone))
	}

	w.hub.Broadcast(entity.StateUpdated{State: next})
}

func (w *Worker) pollNow(ctx context.Context) {
	state, err := w.states.Load(ctx)
	if err != nil {
		w.logger.Error("[Watcher] Failed to load state", slog.Any("error", err))

		return
	}
	if !state.Watching() {
		w.setPhase(PhaseIdle)

		return
	}

	w.setPhase(PhasePolling)

	zone := *state.Zone
	latest, err := w.prices.LatestTimestamp(ctx, w.effectiveOrigin(state), zone)
	if err != nil {
		// A failed poll is no new information; the next trigger retries.
		w.logger.Warn("[Watcher] Poll failed",
			slog.String("zone", zone),
			slog.Any("error", err),
		)
		w.setPhase(PhaseWatching)

		return
	}

	if state.LastTimestamp != nil && latest <= *state.LastTimestamp {
		w.setPhase(PhaseWatching)

		return
	}

	next := state.WithTimestamp(latest)
	if err := w.states.Save(ctx, next); err != nil {
		w.logger.Error("[Watcher] Failed to persist timestamp", slog.Any("error", err))
		w.setPhase(PhaseWatching)

		return
	}

	w.logger.Info("[Watcher] New prices detected",
		slog.String("zone", zone),
		slog.String("timestamp", latest),
	)
	w.announce(ctx, zone, latest)
	w.hub.Broadcast(entity.StateUpdated{State: next})
	w.setPhase(PhaseCooldown)
}

func (w *Worker) handlePush(ctx context.Context, payload PushPayload) {
	// Push delivery is itself the trigger: always raise the notification,
	// even for a zone the worker is not watching.
	if err := w.presenter.Notify(ctx, payload.Notification()); err != nil {
		w.logger.Warn("[Watcher] Failed to raise notification", slog.Any("error", err))
	}
	if err := w.presenter.SetBadge(ctx); err != nil {
		w.logger.Warn("[Watcher] Failed to set badge", slog.Any("error", err))
	}

	if payload.Zone == "" || payload.Timestamp == "" {
		return
	}

	zone, err := entity.NormalizeZone(payload.Zone)
	if err != nil {
		w.logger.Warn("[Watcher] Push carried malformed zone", slog.String("zone", payload.Zone))

		return
	}

	state, err := w.states.Load(ctx)
	if err != nil {
		w.logger.Error("[Watcher] Failed to load state", slog.Any("error", err))

		return
	}

	if state.WatchingZone(zone) {
		next := state.WithTimestamp(payload.Timestamp)
		if err := w.states.Save(ctx, next); err != nil {
			w.logger.Error("[Watcher] Failed to persist pushed timestamp", slog.Any("error", err))
		} else {
			w.hub.Broadcast(entity.StateUpdated{State: next})
		}
	}

	// Pages learn about fresh prices regardless of watch status.
	w.hub.Broadcast(entity.NewPrices{Zone: zone, Timestamp: payload.Timestamp})
}

func (w *Worker) setDataOrigin(ctx context.Context, msg entity.SetDataOrigin) {
	state, err := w.states.Load(ctx)
	if err != nil {
		w.logger.Error("[Watcher] Failed to load state", slog.Any("error", err))

		return
	}

	origin, preset := entity.ResolveOrigin(msg.Origin, msg.Preset, state.DataOrigin)
	if origin == state.DataOrigin && preset == state.OriginPreset {
		// Redundant sends during startup races converge here silently.
		return
	}

	next := state
	next.DataOrigin = origin
	next.OriginPreset = preset
	if err := w.states.Save(ctx, next); err != nil {
		w.logger.Error("[Watcher] Failed to persist data origin", slog.Any("error", err))

		return
	}

	w.logger.Info("[Watcher] Data origin updated",
		slog.String("origin", origin),
		slog.String("preset", string(preset)),
	)
	w.hub.Broadcast(entity.StateUpdated{State: next})
}

func (w *Worker) replyState(ctx context.Context, from *Page) {
	state, err := w.states.Load(ctx)
	if err != nil {
		w.logger.Error("[Watcher] Failed to load state", slog.Any("error", err))

		return
	}

	reply := entity.State{State: state}
	if from != nil {
		w.hub.Send(from, reply)

		return
	}
	w.hub.Broadcast(reply)
}

func (w *Worker) clearBadge(ctx context.Context) {
	if err := w.presenter.ClearBadge(ctx); err != nil {
		w.logger.Warn("[Watcher] Failed to clear badge", slog.Any("error", err))
	}
}

func (w *Worker) devNotify(ctx context.Context, msg entity.DevNotify) {
	notification := service.Notification{Title: msg.Title, Body: msg.Body}
	if notification.Title == "" {
		notification.Title = "Spot"
	}

	if err := w.presenter.Notify(ctx, notification); err != nil {
		w.logger.Warn("[Watcher] Failed to raise test notification", slog.Any("error", err))
	}
}

func (w *Worker) announce(ctx context.Context, zone, timestamp string) {
	notification := service.Notification{
		Title: "New prices available for " + zone,
		Body:  "Day-ahead rates were just published.",
		URL:   "/explorer/?zones=" + zone,
		Tag:   "new-prices",
	}
	if err := w.presenter.Notify(ctx, notification); err != nil {
		w.logger.Warn("[Watcher] Failed to raise notification", slog.Any("error", err))
	}
	if err := w.presenter.SetBadge(ctx); err != nil {
		w.logger.Warn("[Watcher] Failed to set badge", slog.Any("error", err))
	}
	w.hub.Broadcast(entity.NewPrices{Zone: zone, Timestamp: timestamp})
}

// effectiveOrigin maps an empty data origin ("same origin") to the locally
// served fallback.
func (w *Worker) effectiveOrigin(state entity.WatchState) string {
	if state.DataOrigin != "" {
		return state.DataOrigin
	}

	return w.cfg.LocalOrigin
}

func (w *Worker) cooldown() time.Duration {
	return w.cfg.PollPeriod + w.jitter()
}

// jitter spreads installations over the poll window so they do not hit the
// price endpoint on the same wall-clock boundary.
func (w *Worker) jitter() time.Duration {
	if w.cfg.PollJitter <= 0 {
		return 0
	}

	return rand.N(w.cfg.PollJitter)
}

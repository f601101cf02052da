// Package controller runs inside a page: it owns the push-subscription
// handshake against the registry and keeps the page's view of the watch
// state reconciled with the background worker, which is the source of truth.
package controller

import (
	"context"
	"log/slog"
	"sync"

	"spot/internal/domain/entity"
	"spot/internal/infra/prices"
	"spot/internal/infra/registry"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// Failure modes surfaced to the user when enabling alerts. Each rolls the
// toggle back to disabled with a distinguishable reason.
var (
	ErrNoZoneSelected          = errors.New("no zone selected")
	ErrPushUnsupported         = errors.New("push notifications are not supported")
	ErrPermissionDenied        = errors.New("notification permission denied")
	ErrPermissionRequestFailed = errors.New("notification permission request failed")
	ErrWorkerUnavailable       = errors.New("background worker unavailable")
)

// Permission is the platform notification permission state.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// PushAPI is the platform push surface available to a page.
type PushAPI interface {
	// Permission reports the current notification permission.
	Permission(ctx context.Context) (Permission, error)
	// RequestPermission prompts the user when the permission is undecided.
	RequestPermission(ctx context.Context) (Permission, error)
	// Subscription returns the existing push subscription, or nil.
	Subscription(ctx context.Context) (*entity.Subscription, error)
	// Subscribe creates a push subscription, reusing an existing one.
	Subscribe(ctx context.Context) (entity.Subscription, error)
	// Unsubscribe drops the push subscription if one exists.
	Unsubscribe(ctx context.Context) error
}

// WorkerConn is a fire-and-forget channel to the background worker. Replies
// arrive asynchronously on Receive.
type WorkerConn interface {
	// Ready blocks until the worker is reachable.
	Ready(ctx context.Context) error
	Send(ctx context.Context, msg entity.Message) error
	Receive() <-chan entity.Message
}

// Registry is the subset of the registry API a page needs.
type Registry interface {
	Register(ctx context.Context, sub entity.Subscription, zone string) (registry.RegisterResult, error)
	Unregister(ctx context.Context, id string) error
}

// SelectionOrigin tags who initiated a zone selection change.
type SelectionOrigin string

// SelectionOriginAlerts marks changes this controller emitted itself, so it
// can ignore its own echoes.
const SelectionOriginAlerts SelectionOrigin = "alerts"

// SelectionEvent announces a zone selection change to other page modules.
type SelectionEvent struct {
	Zone   string
	Origin SelectionOrigin
}

// ControllerParams holds dependencies for the Controller, injected by Fx.
type ControllerParams struct {
	fx.In

	Logger   *slog.Logger
	Push     PushAPI
	Worker   WorkerConn
	Registry Registry
	Prices   *prices.Client
}

// Controller mirrors a subset of WatchState. The mirror is a cache: it is
// seeded on load and only trusted once reconciled with the worker's copy.
type Controller struct {
	logger   *slog.Logger
	push     PushAPI
	worker   WorkerConn
	registry Registry
	prices   *prices.Client

	mu             sync.Mutex
	enabled        bool
	zone           string
	lastTimestamp  *string
	subscriptionID string
	dataOrigin     string
	originPreset   entity.OriginPreset
	selectionSink  func(SelectionEvent)
}

// NewController is the constructor for the Controller.
func NewController(params ControllerParams) *Controller {
	return &Controller{
		logger:   params.Logger,
		push:     params.Push,
		worker:   params.Worker,
		registry: params.Registry,
		prices:   params.Prices,
	}
}

// OnSelectionChange registers the callback invoked when the worker's zone
// diverges from the locally selected one.
func (c *Controller) OnSelectionChange(sink func(SelectionEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectionSink = sink
}

// Run consumes worker replies until the context is cancelled. It first asks
// the worker for its state so the page starts from the authoritative copy.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.worker.Ready(ctx); err != nil {
		return errors.Wrap(ErrWorkerUnavailable, err.Error())
	}
	if err := c.worker.Send(ctx, entity.RequestState{}); err != nil {
		c.logger.Warn("[Controller] Failed to request worker state", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.worker.Receive():
			if !ok {
				return errors.WithStack(ErrWorkerUnavailable)
			}
			c.handleWorkerMessage(msg)
		}
	}
}

func (c *Controller) handleWorkerMessage(msg entity.Message) {
	switch m := msg.(type) {
	case entity.State:
		c.ReconcileFromWorker(m.State)
	case entity.StateUpdated:
		c.ReconcileFromWorker(m.State)
	case entity.NewPrices:
		c.mu.Lock()
		if c.zone == m.Zone {
			ts := m.Timestamp
			c.lastTimestamp = &ts
		}
		c.mu.Unlock()
	default:
		c.logger.Warn("[Controller] Ignoring unexpected worker message",
			slog.String("type", msg.MessageType()),
		)
	}
}

// EnableAlerts runs the full subscribe handshake for a zone. Any failure
// leaves the controller disabled and reports why.
func (c *Controller) EnableAlerts(ctx context.Context, zone string) error {
	if zone == "" {
		return errors.WithStack(ErrNoZoneSelected)
	}
	normalized, err := entity.NormalizeZone(zone)
	if err != nil {
		return errors.Wrap(ErrNoZoneSelected, zone)
	}

	if err := c.ensurePermission(ctx); err != nil {
		c.rollback()

		return err
	}

	if err := c.worker.Ready(ctx); err != nil {
		c.rollback()

		return errors.Wrap(ErrWorkerUnavailable, err.Error())
	}

	sub, err := c.ensureSubscription(ctx)
	if err != nil {
		c.rollback()

		return err
	}

	result, err := c.registry.Register(ctx, sub, normalized)
	if err != nil {
		c.rollback()

		return errors.Wrap(err, "registry call failed")
	}

	// Best effort: seed the worker with the current latest timestamp so the
	// very first push does not re-announce data the user already saw.
	timestamp := c.fetchLatest(ctx, normalized)

	if err := c.worker.Send(ctx, entity.SetZone{Zone: &normalized, LastTimestamp: timestamp}); err != nil {
		c.logger.Warn("[Controller] Failed to inform worker of zone", slog.Any("error", err))
	}
	if err := c.worker.Send(ctx, entity.ClearBadge{}); err != nil {
		c.logger.Warn("[Controller] Failed to clear badge", slog.Any("error", err))
	}

	c.mu.Lock()
	c.enabled = true
	c.zone = normalized
	c.lastTimestamp = timestamp
	c.subscriptionID = result.ID
	c.mu.Unlock()

	c.logger.Info("[Controller] Alerts enabled",
		slog.String("zone", normalized),
		slog.String("id", result.ID),
	)

	return nil
}

// DisableAlerts tears the subscription down. The local unsubscribe is the
// user-visible contract; registry cleanup is best effort, and the worker is
// always told to stop watching, even when no subscription exists locally.
func (c *Controller) DisableAlerts(ctx context.Context) error {
	c.mu.Lock()
	id := c.subscriptionID
	c.mu.Unlock()

	sub, err := c.push.Subscription(ctx)
	if err != nil {
		c.logger.Warn("[Controller] Failed to look up subscription", slog.Any("error", err))
	}
	if sub != nil {
		// The registry id is recomputable from the endpoint, so a lost
		// cache does not orphan the registry record.
		if id == "" {
			id = sub.ID()
		}
		if err := c.push.Unsubscribe(ctx); err != nil {
			c.logger.Warn("[Controller] Push unsubscribe failed", slog.Any("error", err))
		}
	}

	if id != "" {
		if err := c.registry.Unregister(ctx, id); err != nil {
			c.logger.Warn("[Controller] Registry unregister failed",
				slog.String("id", id),
				slog.Any("error", err),
			)
		}
	}

	if err := c.worker.Send(ctx, entity.SetZone{Zone: nil}); err != nil {
		c.logger.Warn("[Controller] Failed to clear worker zone", slog.Any("error", err))
	}
	if err := c.worker.Send(ctx, entity.ClearBadge{}); err != nil {
		c.logger.Warn("[Controller] Failed to clear badge", slog.Any("error", err))
	}

	c.mu.Lock()
	c.enabled = false
	c.subscriptionID = ""
	c.lastTimestamp = nil
	c.mu.Unlock()

	c.logger.Info("[Controller] Alerts disabled")

	return nil
}

// OnZoneChange retargets the watch. With alerts enabled the existing push
// subscription is re-registered against the new zone; the platform
// subscription itself is independent of which zone it is tagged with.
func (c *Controller) OnZoneChange(ctx context.Context, newZone string) error {
	normalized, err := entity.NormalizeZone(newZone)
	if err != nil {
		return err
	}

	c.mu.Lock()
	enabled := c.enabled
	c.mu.Unlock()

	var timestamp *string
	if enabled {
		sub, err := c.push.Subscription(ctx)
		if err != nil || sub == nil {
			return errors.Wrap(ErrPushUnsupported, "no push subscription to re-register")
		}

		result, err := c.registry.Register(ctx, *sub, normalized)
		if err != nil {
			return errors.Wrap(err, "registry call failed")
		}

		timestamp = c.fetchLatest(ctx, normalized)

		c.mu.Lock()
		c.subscriptionID = result.ID
		c.mu.Unlock()
	}

	if err := c.worker.Send(ctx, entity.SetZone{Zone: &normalized, LastTimestamp: timestamp}); err != nil {
		c.logger.Warn("[Controller] Failed to inform worker of zone", slog.Any("error", err))
	}

	c.mu.Lock()
	c.zone = normalized
	c.lastTimestamp = timestamp
	c.mu.Unlock()

	return nil
}

// ReconcileFromWorker adopts a relayed WatchState. A zone differing from the
// local selection raises a selection event tagged with this controller's
// origin; consumers drop echoes of their own origin, which breaks feedback
// loops between modules.
func (c *Controller) ReconcileFromWorker(state entity.WatchState) {
	c.mu.Lock()

	zone := ""
	if state.Zone != nil {
		zone = *state.Zone
	}

	changed := zone != c.zone
	c.zone = zone
	c.lastTimestamp = state.LastTimestamp
	c.dataOrigin = state.DataOrigin
	c.originPreset = state.OriginPreset
	sink := c.selectionSink
	c.mu.Unlock()

	if changed && sink != nil {
		sink(SelectionEvent{Zone: zone, Origin: SelectionOriginAlerts})
	}
}

// ApplySelection reacts to a selection change from another page module.
// Echoes of this controller's own events are ignored.
func (c *Controller) ApplySelection(ctx context.Context, event SelectionEvent) error {
	if event.Origin == SelectionOriginAlerts {
		return nil
	}

	return c.OnZoneChange(ctx, event.Zone)
}

// Enabled reports whether alerts are currently on.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.enabled
}

// Zone reports the locally selected zone.
func (c *Controller) Zone() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.zone
}

// LastTimestamp reports the newest announced timestamp the page knows of.
func (c *Controller) LastTimestamp() *string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastTimestamp
}

func (c *Controller) ensurePermission(ctx context.Context) error {
	permission, err := c.push.Permission(ctx)
	if err != nil {
		return errors.Wrap(ErrPushUnsupported, err.Error())
	}

	if permission == PermissionDefault {
		permission, err = c.push.RequestPermission(ctx)
		if err != nil {
			return errors.Wrap(ErrPermissionRequestFailed, err.Error())
		}
	}

	if permission != PermissionGranted {
		return errors.WithStack(ErrPermissionDenied)
	}

	return nil
}

func (c *Controller) ensureSubscription(ctx context.Context) (entity.Subscription, error) {
	existing, err := c.push.Subscription(ctx)
	if err != nil {
		return entity.Subscription{}, errors.Wrap(ErrPushUnsupported, err.Error())
	}
	if existing != nil {
		return *existing, nil
	}

	sub, err := c.push.Subscribe(ctx)
	if err != nil {
		return entity.Subscription{}, errors.Wrap(ErrPushUnsupported, err.Error())
	}

	return sub, nil
}

func (c *Controller) fetchLatest(ctx context.Context, zone string) *string {
	c.mu.Lock()
	origin := c.dataOrigin
	c.mu.Unlock()
	if origin == "" {
		origin = entity.ProductionDataOrigin
	}

	latest, err := c.prices.LatestTimestamp(ctx, origin, zone)
	if err != nil {
		c.logger.Warn("[Controller] Failed to fetch latest timestamp",
			slog.String("zone", zone),
			slog.Any("error", err),
		)

		return nil
	}

	return &latest
}

func (c *Controller) rollback() {
	c.mu.Lock()
	c.enabled = false
	c.subscriptionID = ""
	c.mu.Unlock()
}

// Package service defines infrastructure-facing service boundaries.
package service

import (
	"context"

	"spot/internal/domain/entity"

	"github.com/pkg/errors"
)

// ErrSubscriptionGone indicates the push service no longer knows the
// endpoint (404/410); the subscription should be pruned.
var ErrSubscriptionGone = errors.New("subscription gone")

// PushSender delivers an encrypted web push payload to one subscription.
type PushSender interface {
	Send(ctx context.Context, sub entity.Subscription, payload []byte) error
}

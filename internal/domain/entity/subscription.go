// Package entity contains the core business objects of the project.
package entity

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

// ErrInvalidSubscription is returned when push credentials are incomplete.
var ErrInvalidSubscription = errors.New("invalid subscription")

// SubscriptionKeys are the encryption credentials handed out by the push
// service alongside the endpoint.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

// Subscription is a push-delivery endpoint registered with the registry.
// Its identity is content-addressed: the same endpoint always hashes to the
// same id, which makes re-registration idempotent and deletion cheap.
type Subscription struct {
	Endpoint string           `json:"endpoint" validate:"required"`
	Keys     SubscriptionKeys `json:"keys"`
}

// SubscriptionID derives the stable registry id for a push endpoint.
func SubscriptionID(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))

	return hex.EncodeToString(sum[:])
}

// ID returns the content-addressed registry id of the subscription.
func (s Subscription) ID() string {
	return SubscriptionID(s.Endpoint)
}

// Validate checks that the push service supplied a complete credential set.
func (s Subscription) Validate() error {
	if s.Endpoint == "" || s.Keys.P256dh == "" || s.Keys.Auth == "" {
		return ErrInvalidSubscription
	}

	return nil
}

// ZoneCursor is the per-zone latest-announced timestamp consulted by the
// dispatch job. It is only ever advanced by that job; the registry itself
// deliberately enforces no monotonicity (see the admin handler).
type ZoneCursor struct {
	Zone      string `json:"zone"`
	Timestamp string `json:"timestamp"`
}

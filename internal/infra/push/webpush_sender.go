// Package push sends Web Push notifications with VAPID authentication.
package push

import (
	"context"
	"net/http"

	"spot/internal/domain/entity"
	"spot/internal/domain/service"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/pkg/errors"
)

// Sender delivers payloads through the subscriber's push service.
type Sender struct {
	subject    string
	publicKey  string
	privateKey string
	ttl        int
}

var _ service.PushSender = (*Sender)(nil)

// NewSender configures a VAPID-signed web push sender. subject is the
// contact claim (webpush-go prepends mailto: when missing).
func NewSender(subject, publicKey, privateKey string, ttl int) *Sender {
	return &Sender{
		subject:    subject,
		publicKey:  publicKey,
		privateKey: privateKey,
		ttl:        ttl,
	}
}

// Send implements service.PushSender. A 404/410 from the push service means
// the endpoint is dead and maps to service.ErrSubscriptionGone so callers
// can prune it.
func (s *Sender) Send(ctx context.Context, sub entity.Subscription, payload []byte) error {
	target := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, target, &webpush.Options{
		Subscriber:      s.subject,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             s.ttl,
	})
	if err != nil {
		return errors.Wrap(err, "send web push")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return service.ErrSubscriptionGone
	case resp.StatusCode >= 400:
		return errors.Errorf("push service returned status %d", resp.StatusCode)
	}

	return nil
}

// Package delivery defines the contract every serving surface implements.
package delivery

import "context"

// Delivery is a long-running server started by the entrypoint.
type Delivery interface {
	Serve(ctx context.Context) error
}

package health

import "context"

// Pinger checks one backing store's availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

package guard

import "context"

// Control is the coordinator's synchronous control surface, consumed by
// the HTTP API and the logging decorator.
type Control interface {
	Panic()
	SubmitSecret(ctx context.Context, secret string) error
	RetryBiometric() error
	Status() Status
}

var _ Control = (*Coordinator)(nil)

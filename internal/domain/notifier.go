package domain

import "context"

// Notifier delivers operator-facing notices about terminal job states.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

package broker

import (
	"context"

	"quorum/internal/risk"
)

// Broker is the opaque execution venue. Implementations fill or fail; they
// never re-validate risk, that already happened in the safety gate. A failed
// submit surfaces as an error (an unfilled order) and is never retried here:
// retries must go back through the gate.
type Broker interface {
	// SubmitOrder places the proposal and returns a venue order id.
	SubmitOrder(ctx context.Context, p risk.Proposal) (string, error)
}

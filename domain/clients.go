package domain

import "context"

// NotarizationClient submits a lifecycle transition record to the external
// ledger. Implementations own retry: a returned error means the bounded
// retry budget is exhausted and the triggering operation must roll back.
type NotarizationClient interface {
	Submit(ctx context.Context, record *NotarizationRecord) (*NotarizationReceipt, error)
}

// TransferClient asks the external ownership transfer service to move the
// two bookings between owners. Invoked on accept only.
type TransferClient interface {
	Transfer(ctx context.Context, proposal *SwapProposal) (string, error)
}

// NotificationClient is fire-and-forget from the engine's perspective;
// callers log failures and never block a transition on them.
type NotificationClient interface {
	Notify(ctx context.Context, byGuestId, forHostId, description string) error
}

package ledger

import "errors"

// Batch processing errors. Any of these aborts the whole batch with no
// state change; callers resubmit a corrected batch.
var (
	// ErrUnknownOrSpent means a referenced output id does not exist,
	// either because it never did or because it was already consumed.
	ErrUnknownOrSpent = errors.New("unknown or already spent output")

	// ErrUnauthorized means the recovered signer does not own the
	// referenced input output(s).
	ErrUnauthorized = errors.New("signer does not own input")

	// ErrAlreadyClaimed means a deposit id was already claimed into the
	// ledger, or appears twice in one claim.
	ErrAlreadyClaimed = errors.New("deposit already claimed")

	// ErrInsufficientClaimFunds means the claim's input output cannot
	// cover the claim fee.
	ErrInsufficientClaimFunds = errors.New("claim input cannot cover claim fee")

	// ErrInsufficientInput means a transfer's or withdrawal's inputs cannot
	// cover its amount plus resource cost.
	ErrInsufficientInput = errors.New("inputs cannot cover amount and resource cost")

	// ErrSlotCapacity means the batch's slot cost exceeds the slot cap.
	ErrSlotCapacity = errors.New("batch exceeds slot capacity")

	// ErrReentrantCall means a batch was submitted while another batch is
	// in flight (e.g. via a callback during settlement).
	ErrReentrantCall = errors.New("reentrant batch call")
)

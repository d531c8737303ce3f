package escrow

import "errors"

// Adapter error taxonomy. NetworkUnavailable is the only retryable class;
// everything else routes the swap to Failed or Refunding.
var (
	ErrInsufficientFunds  = errors.New("insufficient funds to create escrow")
	ErrAlreadyFinalized   = errors.New("escrow already resolved or refunded")
	ErrTimelockNotExpired = errors.New("timelock has not expired")
	ErrTimelockExpired    = errors.New("timelock expired")
	ErrNetworkUnavailable = errors.New("chain network unavailable")
	ErrRejected           = errors.New("rejected by chain")
	ErrNotFound           = errors.New("escrow not found")
	ErrSecretNotRevealed  = errors.New("secret not yet revealed on chain")
)

// Retryable reports whether an adapter error may be retried with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable)
}

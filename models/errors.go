package models

import "errors"

// Domain error classes. Handlers map these onto HTTP statuses; services
// return them before any mutation happens.
var (
	// ErrAlreadyCompleted: the same habit/task was already completed today.
	ErrAlreadyCompleted = errors.New("already completed today")

	// ErrInsufficientCoins: a debit (wager, freeze purchase) exceeds balance.
	ErrInsufficientCoins = errors.New("insufficient coins")

	// ErrFreezeActive: a streak freeze is already in effect; freezes do not stack.
	ErrFreezeActive = errors.New("streak freeze already active")

	// ErrFreezeCapReached: monthly purchased-freeze cap hit.
	ErrFreezeCapReached = errors.New("monthly freeze cap reached")

	// ErrNoFreezeAvailable: activation requested with an empty freeze inventory.
	ErrNoFreezeAvailable = errors.New("no freeze available")

	// ErrConflict: optimistic-lock version mismatch; caller should re-read and retry.
	ErrConflict = errors.New("progression update conflict")

	// ErrMissingStats: a combat participant has no progression row.
	ErrMissingStats = errors.New("participant stats missing")

	// ErrSelfCombat: a user cannot challenge themselves.
	ErrSelfCombat = errors.New("cannot challenge yourself")

	// ErrCompletionNotFound: undo requested for a completion that does not exist today.
	ErrCompletionNotFound = errors.New("completion not found")
)

package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrDataUnavailable = errors.New("market data unavailable")
	ErrOrderRejected   = errors.New("order rejected")
	ErrOrderUnknown    = errors.New("order state unknown")
	ErrLedgerConflict  = errors.New("ledger write conflict")
	ErrLockHeld        = errors.New("lock already held")
	ErrContextDone     = errors.New("context cancelled")
)

package service

import "errors"

// Rejection kinds returned to callers. All are recoverable except
// ErrIntegrityViolation, which halts further mutation for the process.
var (
	ErrUnknownCredential  = errors.New("unknown credential")
	ErrCredentialUsed     = errors.New("credential already used")
	ErrVoterAlreadyVoted  = errors.New("voter has already voted")
	ErrInvalidCandidate   = errors.New("invalid candidate")
	ErrLeafNotFound       = errors.New("ballot commitment not found in ledger")
	ErrEmptyAuditStack    = errors.New("no actions to undo")
	ErrDemoOnly           = errors.New("undo is only available in demo mode")
	ErrNotUndoable        = errors.New("event kind cannot be undone")
	ErrIntegrityViolation = errors.New("ledger integrity violation")
)

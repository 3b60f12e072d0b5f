package store

import "errors"

// Sentinel errors surfaced by the store layer. Callers at the RPC/hook
// boundary map these to the taxonomy codes; no raw SQL ever reaches a
// user-visible message.
var (
	ErrNotFound             = errors.New("clawmem: not found")
	ErrInvalidInput         = errors.New("clawmem: invalid input")
	ErrVectorIndexMissing   = errors.New("clawmem: vector index missing")
	ErrDocIDCollision       = errors.New("clawmem: short docid prefix collision")
	ErrLengthMismatch       = errors.New("clawmem: length mismatch")
)

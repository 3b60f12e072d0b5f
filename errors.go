package clawmem

import "errors"

// Sentinel errors matching the taxonomy codes in the error-handling
// design: boundary validation failures the caller should surface with
// code + message, as opposed to the non-fatal enrichment paths that
// log and return zero/empty results instead.
var (
	ErrInvalidInput   = errors.New("clawmem: invalid input")
	ErrInputTooLong   = errors.New("clawmem: input too long")
	ErrOutOfBounds    = errors.New("clawmem: out of bounds")
	ErrInvalidNumber  = errors.New("clawmem: invalid number")
	ErrLengthMismatch = errors.New("clawmem: length mismatch")
	ErrPathTooLong    = errors.New("clawmem: path too long")
	ErrPathTraversal  = errors.New("clawmem: path traversal")
	ErrInvalidPath    = errors.New("clawmem: invalid path")

	ErrNotFound           = errors.New("clawmem: not found")
	ErrVectorIndexMissing = errors.New("clawmem: vector index missing")
	ErrRemoteUnavailable  = errors.New("clawmem: remote backend unavailable")
	ErrInternal           = errors.New("clawmem: internal error")
)

// codeByMessage maps each sentinel's message text to its taxonomy
// code. Keyed by text rather than by error identity because the
// store and llm packages declare their own copies of these sentinels
// (to avoid importing the root package), so errors.Is against the
// root sentinels alone would miss them.
var codeByMessage = map[string]string{
	ErrInvalidInput.Error():       "INVALID_INPUT",
	ErrInputTooLong.Error():       "INPUT_TOO_LONG",
	ErrOutOfBounds.Error():        "OUT_OF_BOUNDS",
	ErrInvalidNumber.Error():      "INVALID_NUMBER",
	ErrLengthMismatch.Error():     "LENGTH_MISMATCH",
	ErrPathTooLong.Error():        "PATH_TOO_LONG",
	ErrPathTraversal.Error():      "PATH_TRAVERSAL",
	ErrInvalidPath.Error():        "INVALID_PATH",
	ErrNotFound.Error():           "NOT_FOUND",
	ErrVectorIndexMissing.Error(): "VECTOR_INDEX_MISSING",
	ErrRemoteUnavailable.Error():  "REMOTE_UNAVAILABLE",
	ErrInternal.Error():           "INTERNAL_ERROR",
}

// ErrorCode recovers the taxonomy code for err so callers at a
// boundary (hook logging, a future RPC surface) can report a code
// without string-matching error messages themselves. Unwraps with
// errors.Unwrap until it finds a message in codeByMessage, falling
// back to INTERNAL_ERROR for anything unrecognized.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if code, ok := codeByMessage[e.Error()]; ok {
			return code
		}
	}
	return "INTERNAL_ERROR"
}

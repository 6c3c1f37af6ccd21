package document

import "errors"

// Error kinds surfaced at the boundary operations (Open, PrepareSignature,
// Emit). Lookup failures inside getObject are absences, not errors; callers
// decide whether an absent object is fatal.
var (
	ErrParse           = errors.New("document: failed to parse structure")
	ErrMissingRoot     = errors.New("document: trailer has no usable /Root")
	ErrMissingInfo     = errors.New("document: trailer has no usable /Info")
	ErrInvalidPage     = errors.New("document: requested page does not exist")
	ErrInvalidTree     = errors.New("document: page tree node has an unexpected /Type")
	ErrMixedReference  = errors.New("document: expected a single indirect reference, found a list of references")
	ErrCertLoad        = errors.New("document: failed to load PKCS#12 bundle")
	ErrImage           = errors.New("document: failed to attach appearance image")
	ErrAlreadyPrepared = errors.New("document: a signature is already pending on this document")
	ErrSigner          = errors.New("document: external signer failed")
	ErrIO              = errors.New("document: I/O failure")

	// ErrEncryptedWarning is non-fatal; Open returns it alongside a usable
	// Document rather than failing outright.
	ErrEncryptedWarning = errors.New("document: input declares encryption, behavior on its streams is undefined")
)

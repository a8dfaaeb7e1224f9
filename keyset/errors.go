package keyset

import "errors"

var (
	// ErrKeyLoad is returned when a local key file is missing or cannot be parsed.
	ErrKeyLoad = errors.New("key load failed")
	// ErrKeySetFetch is returned when a remote key-set document cannot be retrieved
	// or is not a well-formed key-set document.
	ErrKeySetFetch = errors.New("key set fetch failed")
	// ErrKeySetParse marks a single key-set entry that was skipped.
	ErrKeySetParse = errors.New("key set entry invalid")
	// ErrDuplicateKeyID is returned by NewSet when two keys share a kid.
	ErrDuplicateKeyID = errors.New("duplicate key id")
	// ErrUnsupportedKey is returned when a key type does not match its algorithm.
	ErrUnsupportedKey = errors.New("unsupported key for algorithm")
)

package jobauth

import "errors"

var (
	// ErrIssuerDisabled is returned by Issue when no signing key is configured.
	ErrIssuerDisabled = errors.New("token issuing disabled: no signing key configured")
	// ErrNoKeySource is returned when neither a local key, a JWKS URL nor a signing key
	// is configured.
	ErrNoKeySource = errors.New("no verification key source configured")
	// ErrBuilderUsed is returned when Build is called twice on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrEngineClosed is returned by Engine operations after Close.
	ErrEngineClosed = errors.New("engine closed")
)

package conversion

import "errors"

var (
	ErrInvalidSource    = errors.New("invalid source url")
	ErrJobNotFound      = errors.New("job not found")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrNotReady         = errors.New("conversion not complete")
	ErrConversionFailed = errors.New("conversion failed")
	ErrTerminalStatus   = errors.New("job already in terminal status")
)

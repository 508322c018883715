package census

import "github.com/rotisserie/eris"

// Error taxonomy shared by the query, estimate, and ingest packages.
// Wrap these with eris and test with eris.Is.
var (
	ErrInvalidArgument = eris.New("invalid argument")
	ErrMissingArgument = eris.New("missing argument")
	ErrNotFound        = eris.New("not found")
	ErrDataUnavailable = eris.New("data unavailable")
)

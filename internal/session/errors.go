package session

import "errors"

// Messages sent to clients in error frames.
const (
	msgSaveFailed       = "message could not be saved"
	msgHistoryFailed    = "history unavailable"
	reasonShuttingDown  = "server shutting down"
	reasonInvalidCred   = "invalid credential"
	reasonBinaryFrame   = "binary frames are not supported"
	reasonReceiveFailed = "receive failed"
)

var ErrNilStream = errors.New("stream cannot be nil")

package types

import "errors"

// Validation errors. Their messages are shown to clients in error frames.
var (
	ErrInvalidUsername  = errors.New("username must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrEmptyMessage     = errors.New("message must contain text or an image")
	ErrInvalidImage     = errors.New("image is not valid base64")
	ErrImageTooLarge    = errors.New("image exceeds the size limit")
	ErrUnsupportedImage = errors.New("image type is not supported")
)

package types

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

const (
	DefaultMaxTextLength = 1000
	DefaultMaxImageBytes = 5 << 20
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Limits bounds user-supplied message content.
type Limits struct {
	MaxTextLength int // in characters
	MaxImageBytes int // decoded size
}

// DefaultLimits returns the production content limits.
func DefaultLimits() Limits {
	return Limits{
		MaxTextLength: DefaultMaxTextLength,
		MaxImageBytes: DefaultMaxImageBytes,
	}
}

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	if len(username) < 1 || len(username) > 50 {
		return false
	}
	return usernameRegex.MatchString(username)
}

// TruncateText cuts text to at most max characters. Invalid UTF-8 is
// replaced first so the cut never splits a rune.
func TruncateText(text string, max int) string {
	text = strings.ToValidUTF8(text, "\uFFFD")
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max])
}

// ValidateContent normalizes the text and image of a message draft. Text is
// truncated, never rejected. The image is accepted as bare base64 or as a
// data URL and must decode to at most MaxImageBytes of image data.
func ValidateContent(text, image string, limits Limits) (string, string, error) {
	text = TruncateText(text, limits.MaxTextLength)
	if image == "" {
		if strings.TrimSpace(text) == "" {
			return "", "", ErrEmptyMessage
		}
		return text, "", nil
	}

	data, err := DecodeImage(image, limits.MaxImageBytes)
	if err != nil {
		return "", "", err
	}
	if mime := mimetype.Detect(data); !strings.HasPrefix(mime.String(), "image/") {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mime.String())
	}
	return text, image, nil
}

// DecodeImage returns the raw bytes of a base64 image payload. Payloads whose
// decoded size must exceed maxBytes are rejected before decoding.
func DecodeImage(image string, maxBytes int) ([]byte, error) {
	payload := image
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.HasSuffix(payload[:comma], ";base64") {
			return nil, ErrInvalidImage
		}
		payload = payload[comma+1:]
	}

	// DecodedLen over-counts by at most two padding bytes.
	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(payload))-2 > maxBytes {
		return nil, ErrImageTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, ErrInvalidImage
		}
	}
	if len(data) == 0 {
		return nil, ErrInvalidImage
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, ErrImageTooLarge
	}
	return data, nil
}

package protocol

import "errors"

var (
	ErrEmptyMessage     = errors.New("protocol: empty message")
	ErrUnknownKind      = errors.New("protocol: unknown message kind")
	ErrMalformedPayload = errors.New("protocol: malformed payload")
	ErrNameTooLong      = errors.New("protocol: object name exceeds 255 bytes")
	ErrEmptyName        = errors.New("protocol: empty object name")
	ErrNilMessage       = errors.New("protocol: nil message")
)

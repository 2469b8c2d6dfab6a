package domain

import "log/slog"

// redacted replaces secret material anywhere a Secret is formatted or logged.
const redacted = "*** redacted ***"

// Secret wraps sensitive bytes (card payloads, DEKs, wrapped keys) so that
// accidental formatting or logging never exposes the material. The raw bytes
// are only reachable through Expose.
type Secret struct {
	inner []byte
}

// NewSecret wraps the given bytes. The wrapper takes ownership of the slice;
// callers must not retain references to it.
func NewSecret(b []byte) Secret {
	return Secret{inner: b}
}

// Expose returns the wrapped bytes.
func (s Secret) Expose() []byte {
	return s.inner
}

// Len returns the number of wrapped bytes without exposing them.
func (s Secret) Len() int {
	return len(s.inner)
}

// Zero clears the wrapped bytes in place.
func (s Secret) Zero() {
	Zero(s.inner)
}

// String implements fmt.Stringer and always redacts.
func (s Secret) String() string {
	return redacted
}

// GoString implements fmt.GoStringer so %#v also redacts.
func (s Secret) GoString() string {
	return redacted
}

// MarshalJSON redacts the secret when a containing struct is serialized.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// LogValue implements slog.LogValuer and always redacts.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// Package parcel models the cadastral parcel reference accepted by the service.
package parcel

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidReference is returned when a reference is empty or not alphanumeric.
var ErrInvalidReference = errors.New("invalid parcel reference")

// Reference is an opaque cadastral identifier. Only ASCII letters and digits are accepted
// because the value is interpolated verbatim into an upstream URL and a filename.
type Reference string

// Parse validates raw and returns it as a Reference. Surrounding whitespace is trimmed.
func Parse(raw string) (Reference, error) {
	ref := Reference(strings.TrimSpace(raw))
	if err := ref.Validate(); err != nil {
		return "", err
	}
	return ref, nil
}

// Validate checks r as-is, without trimming.
func (r Reference) Validate() error {
	if r == "" {
		return fmt.Errorf("%w: empty", ErrInvalidReference)
	}
	for i := 0; i < len(r); i++ {
		if !isAlnum(r[i]) {
			return fmt.Errorf("%w: unexpected character %q at offset %d", ErrInvalidReference, r[i], i)
		}
	}
	return nil
}

// String returns the reference verbatim.
func (r Reference) String() string {
	return string(r)
}

// Filename is the attachment name served to callers.
func (r Reference) Filename() string {
	return "informe_" + string(r) + ".pdf"
}

func isAlnum(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

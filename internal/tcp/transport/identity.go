package transport

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// RandomSocketID returns an identity of two random 16-bit hex groups, e.g. "0A1F-C3D2".
// It never starts with a zero byte, which the transport reserves.
func RandomSocketID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return fmt.Sprintf("%04X-%04X", binary.BigEndian.Uint16(b[0:2]), binary.BigEndian.Uint16(b[2:4]))
}

// ValidateIdentity checks that an identity can be carried as an address frame
func ValidateIdentity(id string) error {
	if len(id) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	if id[0] == 0 {
		return fmt.Errorf("%w: leading zero byte is reserved", ErrInvalidIdentity)
	}
	if len(id) > 255 {
		return fmt.Errorf("%w: %d bytes, max 255", ErrInvalidIdentity, len(id))
	}
	return nil
}

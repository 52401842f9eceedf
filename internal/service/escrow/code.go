package escrow

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// newValidationCode returns a uniformly random 6-digit delivery code.
func newValidationCode() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	n := binary.BigEndian.Uint64(buf[:]) % 900000
	return fmt.Sprintf("%06d", 100000+n)
}

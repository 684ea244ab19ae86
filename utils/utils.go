package utils

import (
	"crypto/md5"
	"strings"

	"github.com/gofrs/uuid"
)

// UuidFromStrings derives a stable UUID from an ordered list of parts. Unlike
// a random v4 id, the same parts always map to the same id, so principals can
// be re-derived from their public keys.
func UuidFromStrings(parts ...string) string {
	if len(parts) == 0 {
		parts = append(parts, uuid.Nil.String())
	}
	return uuidHash([]byte(strings.Join(parts, ":")))
}

func uuidHash(b []byte) string {
	h := md5.New()

	h.Write(b)
	sum := h.Sum(nil)
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.FromBytesOrNil(sum).String()
}

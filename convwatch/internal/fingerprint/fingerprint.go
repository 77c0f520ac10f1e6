// Package fingerprint computes the short, non-cryptographic digest used for
// message identities and content change detection.
package fingerprint

import (
	"fmt"
	"unicode/utf16"
)

const (
	offset32 uint32 = 0x811c9dc5
	prime32  uint32 = 0x01000193
)

// Sum folds the UTF-16 code units of text into a 32-bit FNV-1a accumulator
// and renders it as 8 zero-padded lowercase hex digits. Code units (not
// bytes or runes) are hashed so tokens match the ones a browser computes
// with charCodeAt over the same string.
func Sum(text string) string {
	h := offset32
	for _, r := range text {
		if r1, r2 := utf16.EncodeRune(r); r1 != '\uFFFD' {
			h = (h ^ uint32(r1)) * prime32
			h = (h ^ uint32(r2)) * prime32
			continue
		}
		h = (h ^ uint32(r)) * prime32
	}
	return fmt.Sprintf("%08x", h)
}

package diskcache

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// encodeModifiedUTF8 encodes s using the modified-UTF-8 scheme the journal
// format requires: the NUL code point is written as the two-byte overlong
// sequence 0xC0 0x80 instead of a single 0x00 byte, and any code point
// outside the Basic Multilingual Plane is written as a UTF-16 surrogate pair,
// each surrogate then encoded as an ordinary three-byte UTF-8 sequence. Every
// other code point is encoded exactly as standard UTF-8 would encode it.
//
// This mirrors the Java/Android DataOutputStream.writeUTF convention the
// on-disk journal format is bound to; callers must not swap in the standard
// library's UTF-8 codec without bumping the journal version (see the
// modified-UTF-8 design note).
func encodeModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s)+4)

	for _, r := range s {
		switch {
		case r == 0:
			out = append(out, 0xC0, 0x80)
		case r < utf8.RuneSelf && r != 0:
			out = append(out, byte(r))
		case r <= 0x7FF:
			out = append(out,
				0xC0|byte(r>>6),
				0x80|byte(r&0x3F),
			)
		case r <= 0xFFFF:
			out = appendThreeByteRune(out, rune(r))
		default:
			r1, r2 := utf16.EncodeRune(r)
			out = appendThreeByteRune(out, r1)
			out = appendThreeByteRune(out, r2)
		}
	}

	return out
}

// appendThreeByteRune appends the standard three-byte UTF-8 encoding of a
// BMP code point (including lone/paired surrogate halves, which standard
// utf8.EncodeRune refuses to encode but the modified-UTF-8 format requires
// for supplementary-plane characters).
func appendThreeByteRune(out []byte, r rune) []byte {
	return append(out,
		0xE0|byte(r>>12),
		0x80|byte((r>>6)&0x3F),
		0x80|byte(r&0x3F),
	)
}

// decodeModifiedUTF8 decodes b as written by encodeModifiedUTF8, returning an
// error if b contains a malformed sequence. Unlike standard UTF-8 decoding,
// this accepts the overlong NUL encoding (0xC0 0x80) and surrogate-pair
// three-byte sequences.
func decodeModifiedUTF8(b []byte) (string, error) {
	var runes []rune

	for i := 0; i < len(b); {
		c := b[i]

		switch {
		case c&0x80 == 0:
			runes = append(runes, rune(c))
			i++

		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: truncated 2-byte sequence at offset %d", errMalformedModifiedUTF8, i)
			}

			runes = append(runes, rune(c&0x1F)<<6|rune(b[i+1]&0x3F))
			i += 2

		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: truncated 3-byte sequence at offset %d", errMalformedModifiedUTF8, i)
			}

			r1 := rune(c&0x0F)<<12 | rune(b[i+1]&0x3F)<<6 | rune(b[i+2]&0x3F)
			i += 3

			if utf16.IsSurrogate(r1) && i+2 < len(b) && b[i]&0xF0 == 0xE0 {
				r2 := rune(b[i]&0x0F)<<12 | rune(b[i+1]&0x3F)<<6 | rune(b[i+2]&0x3F)
				if combined := utf16.DecodeRune(r1, r2); combined != utf8.RuneError {
					runes = append(runes, combined)
					i += 3

					continue
				}
			}

			runes = append(runes, r1)

		default:
			return "", fmt.Errorf("%w: invalid lead byte 0x%02x at offset %d", errMalformedModifiedUTF8, c, i)
		}
	}

	return string(runes), nil
}

// Package byteacct pins the canonical byte-accounting rules used to cost
// WRITE and MERGE actions: a deterministic, platform-stable serialization
// of a step's payload plus fixed per-action overhead.
package byteacct

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/rcliao/writepolicybench/internal/episode"
)

// HeaderOverhead is the fixed per-item bookkeeping cost charged on every
// WRITE (spec v0 accounting).
const HeaderOverhead = 32

// MergeOverhead is the fixed per-delta bookkeeping cost charged on every
// MERGE, on top of the serialized delta payload.
const MergeOverhead = 16

// CanonicalEncode renders v using a stable, platform-independent textual
// encoding: map keys sorted, no insignificant whitespace, non-ASCII
// characters escaped as \uXXXX. encoding/json already sorts
// map[string]any keys and omits whitespace for compact output; this adds
// the ASCII-escaping guarantee the spec requires.
func CanonicalEncode(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		// Observations are assumed JSON-compatible by contract; a
		// marshal failure here means the caller violated that contract.
		raw = []byte("null")
	}
	return asciiEscape(raw)
}

// asciiEscape rewrites any multi-byte UTF-8 sequence in a compact JSON
// encoding into \uXXXX escapes (with surrogate pairs for non-BMP
// code points), leaving ASCII bytes (including existing JSON escapes)
// untouched.
func asciiEscape(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); {
		b := raw[i]
		if b < utf8.RuneSelf {
			out = append(out, b)
			i++
			continue
		}
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size == 1 {
			// Invalid byte; pass through as the replacement char escape.
			out = append(out, []byte("\\ufffd")...)
			i++
			continue
		}
		out = appendUnicodeEscape(out, r)
		i += size
	}
	return out
}

func appendUnicodeEscape(out []byte, r rune) []byte {
	const hexDigits = "0123456789abcdef"
	writeU16 := func(out []byte, u uint16) []byte {
		out = append(out, '\\', 'u')
		out = append(out, hexDigits[(u>>12)&0xf], hexDigits[(u>>8)&0xf], hexDigits[(u>>4)&0xf], hexDigits[u&0xf])
		return out
	}
	if r <= 0xFFFF {
		return writeU16(out, uint16(r))
	}
	// Encode as a UTF-16 surrogate pair.
	r -= 0x10000
	hi := uint16(0xD800 + (r >> 10))
	lo := uint16(0xDC00 + (r & 0x3FF))
	out = writeU16(out, hi)
	out = writeU16(out, lo)
	return out
}

// EstimateBytes is the deterministic byte cost of storing a step: the
// canonical encoding of its observation plus metadata, plus the fixed
// per-item header overhead.
func EstimateBytes(s episode.Step) int {
	payload := CanonicalEncode(s.Observation)
	metadata := CanonicalEncode(s.Metadata)
	return len(payload) + len(metadata) + HeaderOverhead
}

// DeltaBytes is the deterministic byte cost of storing a MERGE delta: the
// canonical encoding of the delta mapping plus the fixed merge overhead.
func DeltaBytes(delta map[string]any) int {
	return len(CanonicalEncode(delta)) + MergeOverhead
}

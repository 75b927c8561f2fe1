// Package charset converts label text into the byte encoding expected by CPCL
// printers (GB2312) and into a text-safe transport representation of those bytes.
package charset

import (
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// ErrUnencodable is returned when text contains a rune outside the GB2312 repertoire.
var ErrUnencodable = errors.New("rune not representable in GB2312")

// GB2312 double-byte range (EUC-CN): both bytes in 0xA1..0xFE, lead byte at most 0xF7.
const (
	gbByteMin = 0xA1
	gbByteMax = 0xFE
	gbLeadMax = 0xF7
)

// EncodeGB2312 converts text into GB2312 (EUC-CN) bytes.
// ASCII passes through unchanged; every other rune becomes a two-byte sequence.
// Runes that only exist in the wider GBK/GB18030 repertoires are rejected.
func EncodeGB2312(text string) ([]byte, error) {
	out := make([]byte, 0, len(text))
	enc := simplifiedchinese.GBK.NewEncoder()
	var buf [utf8.UTFMax]byte

	for i, r := range text {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(text[i:]); size <= 1 {
				return nil, fmt.Errorf("invalid UTF-8 at byte %d: %w", i, ErrUnencodable)
			}
		}
		if r < utf8.RuneSelf {
			out = append(out, byte(r))
			continue
		}

		n := utf8.EncodeRune(buf[:], r)
		b, err := enc.Bytes(buf[:n])
		if err != nil || !isGB2312Pair(b) {
			return nil, fmt.Errorf("%q at byte %d: %w", r, i, ErrUnencodable)
		}
		out = append(out, b...)
	}
	return out, nil
}

// DecodeGB2312 converts GB2312 bytes back into UTF-8 text.
func DecodeGB2312(data []byte) (string, error) {
	b, err := simplifiedchinese.GBK.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode GB2312: %w", err)
	}
	return string(b), nil
}

func isGB2312Pair(b []byte) bool {
	if len(b) != 2 {
		return false
	}
	return b[0] >= gbByteMin && b[0] <= gbLeadMax && b[1] >= gbByteMin && b[1] <= gbByteMax
}

// ToTransport renders bytes as standard padded base64 text.
func ToTransport(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// FromTransport parses the text produced by ToTransport.
func FromTransport(text string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("invalid transport text: %w", err)
	}
	return b, nil
}

// EncodeTransport is EncodeGB2312 followed by ToTransport.
func EncodeTransport(text string) (string, error) {
	b, err := EncodeGB2312(text)
	if err != nil {
		return "", err
	}
	return ToTransport(b), nil
}

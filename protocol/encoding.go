package protocol

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Content encodings accepted by read and write.
const (
	EncodingUTF8   = "utf8"
	EncodingBase64 = "base64"
	EncodingHex    = "hex"
	EncodingLatin1 = "latin1"
)

// NormalizeEncoding maps aliases onto the canonical names. Empty means utf8.
func NormalizeEncoding(enc string) (string, error) {
	switch strings.ToLower(enc) {
	case "", "utf8", "utf-8":
		return EncodingUTF8, nil
	case "base64":
		return EncodingBase64, nil
	case "hex":
		return EncodingHex, nil
	case "latin1", "binary":
		return EncodingLatin1, nil
	}
	return "", fmt.Errorf("unsupported encoding %q", enc)
}

// EncodeContent renders raw file bytes for transport.
func EncodeContent(data []byte, enc string) (string, error) {
	enc, err := NormalizeEncoding(enc)
	if err != nil {
		return "", err
	}
	switch enc {
	case EncodingBase64:
		return base64.StdEncoding.EncodeToString(data), nil
	case EncodingHex:
		return hex.EncodeToString(data), nil
	case EncodingLatin1:
		var sb strings.Builder
		sb.Grow(len(data))
		for _, b := range data {
			sb.WriteRune(rune(b))
		}
		return sb.String(), nil
	}
	return string(data), nil
}

// DecodeContent turns transported content back into the bytes to store.
func DecodeContent(content, enc string) ([]byte, error) {
	enc, err := NormalizeEncoding(enc)
	if err != nil {
		return nil, err
	}
	switch enc {
	case EncodingBase64:
		return base64.StdEncoding.DecodeString(content)
	case EncodingHex:
		return hex.DecodeString(content)
	case EncodingLatin1:
		out := make([]byte, 0, utf8.RuneCountInString(content))
		for i, r := range content {
			if r > 0xFF {
				return nil, fmt.Errorf("character %q at offset %d is outside latin1", r, i)
			}
			out = append(out, byte(r))
		}
		return out, nil
	}
	return []byte(content), nil
}

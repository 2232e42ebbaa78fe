// Package textutil provides text encoding and display-width utilities.
package textutil

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// EncodingAuto asks NewUTF8Reader to detect the charset from the input.
const EncodingAuto = "auto"

// sniffSize is how much input charset detection looks at.
const sniffSize = 64 << 10

// IsUTF8 reports whether name selects UTF-8 (or no conversion).
func IsUTF8(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// NewUTF8Reader wraps r so it yields UTF-8. name is an IANA charset name,
// EncodingAuto, or empty for input that is already UTF-8. Detected UTF-8
// input is passed through unchanged.
func NewUTF8Reader(r io.Reader, name string) (io.Reader, error) {
	if IsUTF8(name) {
		return r, nil
	}
	if strings.EqualFold(name, EncodingAuto) {
		br := bufio.NewReaderSize(r, sniffSize)
		sample, err := br.Peek(sniffSize)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return nil, fmt.Errorf("sniff encoding: %w", err)
		}
		enc := DetectEncoding(sample)
		if enc == nil {
			return br, nil
		}
		return transform.NewReader(br, enc.NewDecoder()), nil
	}
	enc := GetEncodingByName(name)
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// DetectEncoding guesses the charset of sample. It returns nil when the
// sample is valid UTF-8. When detection is inconclusive it falls back to
// Windows-1252, the most common legacy encoding in spreadsheet exports.
func DetectEncoding(sample []byte) encoding.Encoding {
	// A sample cut mid-rune is still UTF-8.
	trimmed := sample
	for i := 0; i < utf8.UTFMax && len(trimmed) > 0 && !utf8.Valid(trimmed); i++ {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if utf8.Valid(trimmed) {
		return nil
	}

	minConfidence := 30
	if len(sample) > 50 {
		minConfidence = 50
	}
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(sample)
	if err == nil && result.Confidence >= minConfidence {
		if enc := GetEncodingByName(result.Charset); enc != nil {
			return enc
		}
	}
	return charmap.Windows1252
}

// SanitizeUTF8 replaces invalid UTF-8 bytes with the replacement character.
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

// GetEncodingByName returns an encoding for the given IANA charset name.
func GetEncodingByName(name string) encoding.Encoding {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "windows-1252", "cp1252":
		return charmap.Windows1252
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15
	case "iso-8859-2", "latin2":
		return charmap.ISO8859_2
	case "shift_jis", "shift-jis", "sjis":
		return japanese.ShiftJIS
	case "euc-jp", "eucjp":
		return japanese.EUCJP
	case "iso-2022-jp":
		return japanese.ISO2022JP
	case "euc-kr", "euckr":
		return korean.EUCKR
	case "gb2312", "gbk":
		return simplifiedchinese.GBK
	case "gb18030":
		return simplifiedchinese.GB18030
	case "big5", "big-5":
		return traditionalchinese.Big5
	case "koi8-r":
		return charmap.KOI8R
	case "koi8-u":
		return charmap.KOI8U
	default:
		return nil
	}
}

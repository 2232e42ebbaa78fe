package textutil

import (
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

func encode(t *testing.T, enc encoding.Encoding, s string) []byte {
	t.Helper()
	b, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatalf("encode %q: %v", s, err)
	}
	return b
}

func readAll(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

func TestNewUTF8Reader_Named(t *testing.T) {
	tests := []struct {
		name    string
		enc     encoding.Encoding
		charset string
		text    string
	}{
		{"windows-1252 smart quotes", charmap.Windows1252, "windows-1252", "“Peñafrancia” Builders"},
		{"latin1", charmap.ISO8859_1, "latin1", "Parañaque City"},
		{"shift_jis", japanese.ShiftJIS, "Shift_JIS", "東京建設"},
		{"euc-kr", korean.EUCKR, "EUC-KR", "서울건설"},
		{"gbk", simplifiedchinese.GBK, "gbk", "北京建设"},
		{"big5", traditionalchinese.Big5, "Big5", "台北建設"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := "awardee_name\n" + tt.text + "\n"
			r, err := NewUTF8Reader(strings.NewReader(string(encode(t, tt.enc, input))), tt.charset)
			if err != nil {
				t.Fatalf("NewUTF8Reader: %v", err)
			}
			if got := readAll(t, r); got != input {
				t.Errorf("got %q, want %q", got, input)
			}
		})
	}
}

func TestNewUTF8Reader_PassThrough(t *testing.T) {
	for _, name := range []string{"", "utf-8", "UTF8", EncodingAuto} {
		t.Run(name, func(t *testing.T) {
			const input = "awardee_name\nÑiño Construction 建設\n"
			r, err := NewUTF8Reader(strings.NewReader(input), name)
			if err != nil {
				t.Fatalf("NewUTF8Reader: %v", err)
			}
			if got := readAll(t, r); got != input {
				t.Errorf("got %q, want %q", got, input)
			}
		})
	}
}

func TestNewUTF8Reader_AutoDetectsLegacy(t *testing.T) {
	input := strings.Repeat("Peñafrancia “Road” Builders – Región V\n", 20)
	r, err := NewUTF8Reader(strings.NewReader(string(encode(t, charmap.Windows1252, input))), EncodingAuto)
	if err != nil {
		t.Fatalf("NewUTF8Reader: %v", err)
	}
	got := readAll(t, r)
	if !utf8.ValidString(got) {
		t.Fatalf("decoded text is not UTF-8: %q", got[:60])
	}
	if !strings.Contains(got, "Builders") || strings.ContainsRune(got, utf8.RuneError) {
		t.Errorf("unexpected decoding: %q", got[:60])
	}
}

func TestNewUTF8Reader_Unsupported(t *testing.T) {
	if _, err := NewUTF8Reader(strings.NewReader("x"), "ebcdic-9000"); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
}

func TestDetectEncoding(t *testing.T) {
	if enc := DetectEncoding([]byte("plain ascii")); enc != nil {
		t.Errorf("ASCII should need no decoding, got %v", enc)
	}
	// A sample cut in the middle of a multi-byte rune is still UTF-8.
	cut := []byte("Región")[:4]
	if enc := DetectEncoding(cut); enc != nil {
		t.Errorf("truncated UTF-8 should need no decoding, got %v", enc)
	}
	if enc := DetectEncoding([]byte{'a', 0xff, 'b'}); enc == nil {
		t.Error("invalid UTF-8 should select a decoder")
	}
}

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name, input, want string
	}{
		{"valid", "Hello 世界", "Hello 世界"},
		{"invalid byte", "Hello\xffWorld", "Hello�World"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeUTF8(tt.input); got != tt.want {
				t.Errorf("SanitizeUTF8(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestGetEncodingByName(t *testing.T) {
	tests := []struct {
		name string
		want encoding.Encoding
	}{
		{"windows-1252", charmap.Windows1252},
		{"CP1252", charmap.Windows1252},
		{" Latin-1 ", charmap.ISO8859_1},
		{"Shift_JIS", japanese.ShiftJIS},
		{"GB18030", simplifiedchinese.GB18030},
		{"KOI8-R", charmap.KOI8R},
		{"unknown", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetEncodingByName(tt.name); got != tt.want {
				t.Errorf("GetEncodingByName(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

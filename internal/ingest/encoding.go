package ingest

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// candidateEncodings is the decode attempt order. The first encoding that
// decodes the whole header block without error wins and is never re-guessed
// mid-file.
var candidateEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"utf-8", unicode.UTF8BOM},
	{"cp1252", charmap.Windows1252},
	{"latin-1", charmap.ISO8859_1},
	{"utf-16", unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)},
	{"iso-8859-1", charmap.ISO8859_1},
}

// sniffLen is how many bytes of the file are used to pick the encoding.
// Generously covers 50 header-scan rows of any vendor's layout.
const sniffLen = 256 * 1024

// detectEncoding tries each candidate against the header block and returns
// the first that decodes cleanly.
func detectEncoding(block []byte) (string, encoding.Encoding) {
	for _, cand := range candidateEncodings {
		if cand.name == "utf-8" {
			// The transform decoder replaces invalid bytes instead of
			// failing, so validate explicitly. A rune truncated by the
			// sniff boundary does not count as invalid.
			if utf8.Valid(trimPartialRune(block)) {
				return cand.name, cand.enc
			}
			continue
		}
		dec := cand.enc.NewDecoder()
		if _, _, err := transform.Bytes(dec, block); err == nil {
			return cand.name, cand.enc
		}
	}
	// Unreachable in practice: latin-1 accepts any byte sequence.
	return "latin-1", charmap.ISO8859_1
}

// trimPartialRune drops up to 3 trailing bytes that look like the start of a
// multi-byte sequence cut off by the sniff window.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < 3 && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

// decodeReader wraps r so the chosen encoding is applied to the whole
// stream and null bytes are stripped before CSV parsing.
func decodeReader(r io.Reader, enc encoding.Encoding) io.Reader {
	return &nulStripper{r: transform.NewReader(r, enc.NewDecoder())}
}

// nulStripper removes NUL bytes, which show up in some vendor exports and
// confuse encoding/csv.
type nulStripper struct {
	r io.Reader
}

func (s *nulStripper) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n == 0 {
		return n, err
	}
	if !bytes.ContainsRune(p[:n], 0) {
		return n, err
	}
	kept := 0
	for _, b := range p[:n] {
		if b != 0 {
			p[kept] = b
			kept++
		}
	}
	return kept, err
}

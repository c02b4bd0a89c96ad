package display

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const (
	escapeStart = "\x1b_G"
	escapeEnd   = "\x1b\\"
	chunkSize   = 4096
)

// KittyEncoder writes PNG data using the Kitty graphics protocol.
type KittyEncoder struct {
	out io.Writer
	// Columns scales the image to this many terminal cells wide; zero keeps
	// the native size.
	Columns int
}

func NewKittyEncoder(out io.Writer) *KittyEncoder {
	return &KittyEncoder{out: out}
}

func (e *KittyEncoder) Encode(png []byte) error {
	if len(png) == 0 {
		return nil
	}

	chunks := splitIntoChunks(base64.StdEncoding.EncodeToString(png), chunkSize)
	for i, chunk := range chunks {
		if _, err := fmt.Fprintf(e.out, "%s%s;%s%s", escapeStart, e.controlData(i, len(chunks)), chunk, escapeEnd); err != nil {
			return err
		}
	}
	return nil
}

// controlData builds the key=value header for chunk i of n. Only the first
// chunk carries the transmit-and-display keys.
func (e *KittyEncoder) controlData(i, n int) string {
	var keys []string
	if i == 0 {
		keys = append(keys, "a=T", "f=100", "q=2")
		if e.Columns > 0 {
			keys = append(keys, fmt.Sprintf("c=%d", e.Columns))
		}
	}
	if n > 1 {
		keys = append(keys, fmt.Sprintf("m=%d", boolToInt(i < n-1)))
	}
	return strings.Join(keys, ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func splitIntoChunks(s string, size int) []string {
	var chunks []string
	for len(s) > 0 {
		n := min(size, len(s))
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	return chunks
}

// Package display renders the current thumbnail inline in terminals that
// speak the Kitty graphics protocol.
package display

import (
	"bytes"
	"context"
	"fmt"
	stdimage "image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/samber/lo"
	_ "golang.org/x/image/webp"

	"github.com/manash/clickgenius/internal/image"
	"github.com/manash/clickgenius/pkg/models"
)

type Displayer struct {
	out      io.Writer
	resolver *image.Resolver
	encoder  *KittyEncoder
}

func New(out io.Writer, resolver *image.Resolver) *Displayer {
	return &Displayer{
		out:      out,
		resolver: resolver,
		encoder:  NewKittyEncoder(out),
	}
}

// SetColumns limits the rendered width in terminal cells.
func (d *Displayer) SetColumns(cols int) {
	d.encoder.Columns = cols
}

func (d *Displayer) Show(ctx context.Context, ref models.ImageRef) error {
	if ref.IsZero() {
		return image.ErrNoImageData
	}
	img, err := d.resolver.Resolve(ctx, ref)
	if err != nil {
		return err
	}

	data, err := toPNG(img)
	if err != nil {
		return err
	}
	if err := d.encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	fmt.Fprintln(d.out)
	return nil
}

// toPNG re-encodes non-PNG images; the protocol's f=100 format is PNG only.
func toPNG(img *image.Image) ([]byte, error) {
	if img.MIMEType == "image/png" {
		return img.Data, nil
	}
	decoded, _, err := stdimage.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s for display: %w", img.MIMEType, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return nil, fmt.Errorf("failed to convert to png: %w", err)
	}
	return buf.Bytes(), nil
}

var supportedPrograms = []string{"kitty", "ghostty", "iterm.app", "wezterm"}

func IsTerminalSupported() bool {
	return TerminalSupported(os.Getenv)
}

func TerminalSupported(getenv func(string) string) bool {
	if lo.Contains(supportedPrograms, strings.ToLower(getenv("TERM_PROGRAM"))) {
		return true
	}
	if getenv("KITTY_WINDOW_ID") != "" || getenv("ITERM_SESSION_ID") != "" {
		return true
	}
	term := strings.ToLower(getenv("TERM"))
	return strings.Contains(term, "kitty") || strings.Contains(term, "ghostty")
}

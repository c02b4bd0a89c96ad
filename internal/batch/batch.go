// Package batch applies a script of instructions to one project.
package batch

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/manash/clickgenius/internal/editor"
	"github.com/manash/clickgenius/internal/image"
	"github.com/manash/clickgenius/internal/log"
	"github.com/manash/clickgenius/pkg/models"
)

type Result struct {
	Index       int
	Instruction string
	Reply       string
	Image       models.ImageRef
	// Location is where the version was exported, if it was.
	Location string
	Error    error
	Duration time.Duration
}

type Options struct {
	StopOnError bool
	Delay       time.Duration
	// ExportDir, when set, receives every new version as NNN-<instruction>.
	ExportDir string
}

// Runner submits items one at a time. Each instruction edits the image the
// previous one produced, so items never run concurrently.
type Runner struct {
	editor   *editor.Editor
	exporter *image.Exporter
	out      io.Writer
	err      io.Writer
}

func NewRunner(ed *editor.Editor, exporter *image.Exporter, out, errOut io.Writer) *Runner {
	return &Runner{
		editor:   ed,
		exporter: exporter,
		out:      out,
		err:      errOut,
	}
}

func (r *Runner) Run(ctx context.Context, items []Item, opts *Options) ([]Result, error) {
	results := make([]Result, 0, len(items))
	total := len(items)

	for i, item := range items {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		result := r.runItem(ctx, item, opts, i+1, total)
		results = append(results, result)

		if result.Error != nil && opts.StopOnError {
			return results, fmt.Errorf("stopped at item %d: %w", item.Index, result.Error)
		}

		if opts.Delay > 0 && i < len(items)-1 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(opts.Delay):
			}
		}
	}

	return results, nil
}

func (r *Runner) runItem(ctx context.Context, item Item, opts *Options, current, total int) Result {
	start := time.Now()
	result := Result{
		Index:       item.Index,
		Instruction: item.Instruction,
	}
	logger := log.FromContextOrDiscard(ctx)

	fmt.Fprintf(r.out, "[%d/%d] %q\n", current, total, truncate(item.Instruction, 50))

	if item.Mode != "" {
		if err := r.editor.SetMode(ctx, item.Mode); err != nil {
			return r.fail(result, start, err)
		}
	}

	reply, err := r.editor.Submit(ctx, item.Instruction)
	result.Reply = reply.Text
	if err != nil {
		return r.fail(result, start, fmt.Errorf("generation failed: %w", err))
	}
	result.Image = r.editor.Current()
	fmt.Fprintf(r.out, "       %s\n", reply.Text)

	if opts.ExportDir != "" && !result.Image.IsZero() {
		name := path.Join(opts.ExportDir, generateFilename(item.Index, item.Instruction))
		loc, err := r.exporter.Export(ctx, result.Image, name, map[string]string{
			"project": r.editor.State().ProjectID,
		})
		if err != nil {
			return r.fail(result, start, fmt.Errorf("export failed: %w", err))
		}
		result.Location = loc
		fmt.Fprintf(r.out, "       Exported: %s\n", loc)
	}

	result.Duration = time.Since(start)
	logger.Debug("batch item done", "index", item.Index, "duration_ms", result.Duration.Milliseconds())
	return result
}

func (r *Runner) fail(result Result, start time.Time, err error) Result {
	result.Error = err
	result.Duration = time.Since(start)
	fmt.Fprintf(r.err, "       Error: %v\n", err)
	return result
}

func generateFilename(index int, instruction string) string {
	return fmt.Sprintf("%03d-%s", index, sanitizeInstruction(instruction))
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s-]`)

func sanitizeInstruction(instruction string) string {
	sanitized := unsafeChars.ReplaceAllString(instruction, "")
	sanitized = strings.ToLower(sanitized)
	sanitized = strings.Join(strings.Fields(sanitized), "-")
	sanitized = strings.TrimLeft(sanitized, "-")

	if len(sanitized) > 50 {
		sanitized = sanitized[:50]
	}
	sanitized = strings.TrimSuffix(sanitized, "-")

	if sanitized == "" {
		sanitized = "edit"
	}
	return sanitized
}

// truncate shortens s to maxLen runes, ending in "...".
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

func PrintSummary(w io.Writer, results []Result) {
	var failures []Result
	for _, r := range results {
		if r.Error != nil {
			failures = append(failures, r)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Applied: %d/%d instructions\n", len(results)-len(failures), len(results))
	if len(failures) > 0 {
		fmt.Fprintf(w, "  Failed: %d (see errors below)\n", len(failures))
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, f := range failures {
			fmt.Fprintf(w, "  [%d] %q: %v\n", f.Index, truncate(f.Instruction, 40), f.Error)
		}
	}
}

package batch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/manash/clickgenius/internal/editor"
	"github.com/manash/clickgenius/internal/image"
	"github.com/manash/clickgenius/internal/project"
	"github.com/manash/clickgenius/pkg/models"
)

func TestParseText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{
			name:  "basic instructions",
			input: "remove background\nboost colors\nadd arrow",
			want:  3,
		},
		{
			name:  "with empty lines",
			input: "remove background\n\nboost colors\n\n",
			want:  2,
		},
		{
			name:  "with comments",
			input: "# first pass\nremove background\n# then\nboost colors",
			want:  2,
		},
		{
			name:    "empty file",
			input:   "",
			wantErr: true,
		},
		{
			name:    "only comments",
			input:   "# comment\n# another",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseText(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseText() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && len(items) != tt.want {
				t.Errorf("ParseText() got %d items, want %d", len(items), tt.want)
			}
		})
	}
}

func TestParseText_Indexes(t *testing.T) {
	items, err := ParseText(strings.NewReader("# skip\n  one  \ntwo"))
	if err != nil {
		t.Fatalf("ParseText() error = %v", err)
	}
	if items[0].Index != 1 || items[0].Instruction != "one" || items[1].Index != 2 {
		t.Errorf("ParseText() = %+v", items)
	}
	if items[0].Mode != "" {
		t.Errorf("text items should keep the project mode, got %q", items[0].Mode)
	}
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     int
		wantMode models.Mode
		wantErr  bool
	}{
		{
			name:  "instructions only",
			input: `[{"instruction": "blur background"}, {"instruction": "add vignette"}]`,
			want:  2,
		},
		{
			name:     "with mode",
			input:    `[{"instruction": "make it clickable", "mode": "CTR"}]`,
			want:     1,
			wantMode: models.ModeCTR,
		},
		{
			name:    "invalid mode",
			input:   `[{"instruction": "x", "mode": "turbo"}]`,
			wantErr: true,
		},
		{
			name:    "empty instruction",
			input:   `[{"instruction": "  "}]`,
			wantErr: true,
		},
		{
			name:    "empty array",
			input:   `[]`,
			wantErr: true,
		},
		{
			name:    "malformed",
			input:   `{"instruction": "x"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseJSON(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(items) != tt.want {
				t.Errorf("ParseJSON() got %d items, want %d", len(items), tt.want)
			}
			if items[0].Mode != tt.wantMode {
				t.Errorf("ParseJSON() mode = %q, want %q", items[0].Mode, tt.wantMode)
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "script.txt")
	js := filepath.Join(dir, "script.json")
	yml := filepath.Join(dir, "script.yaml")
	os.WriteFile(txt, []byte("one\ntwo\n"), 0644)
	os.WriteFile(js, []byte(`[{"instruction":"one"}]`), 0644)
	os.WriteFile(yml, []byte("- one"), 0644)

	if items, err := ParseFile(txt); err != nil || len(items) != 2 {
		t.Errorf("ParseFile(txt) = %d items, %v", len(items), err)
	}
	if items, err := ParseFile(js); err != nil || len(items) != 1 {
		t.Errorf("ParseFile(json) = %d items, %v", len(items), err)
	}
	if _, err := ParseFile(yml); err == nil {
		t.Error("ParseFile(yaml) error = nil, want unsupported format")
	}
	if _, err := ParseFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("ParseFile(missing) error = nil")
	}
}

func TestSanitizeInstruction(t *testing.T) {
	tests := map[string]string{
		"Remove the background!":       "remove-the-background",
		"  --glow   edge  ":            "glow-edge",
		"???":                          "edit",
		strings.Repeat("pop ", 20):     "pop-pop-pop-pop-pop-pop-pop-pop-pop-pop-pop-pop-po",
		"Add \"WOW\" text / top-right": "add-wow-text-top-right",
	}
	for in, want := range tests {
		if got := sanitizeInstruction(in); got != want {
			t.Errorf("sanitizeInstruction(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"make the title pop", 10, "make th..."},
		{"日本語のタイトルを大きく", 8, "日本語のタ..."},
		{"añade un brillo dorado", 8, "añade..."},
	}
	for _, tt := range tests {
		got := truncate(tt.input, tt.maxLen)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.input, tt.maxLen)
		}
	}
}

func TestGenerateFilename(t *testing.T) {
	if got := generateFilename(7, "Boost colors"); got != "007-boost-colors" {
		t.Errorf("generateFilename() = %q", got)
	}
}

type mockGenerator struct {
	mu           sync.Mutex
	requests     []*models.GenerationRequest
	generateFunc func(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error)
}

func (m *mockGenerator) Generate(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	n := len(m.requests)
	m.mu.Unlock()
	if m.generateFunc != nil {
		return m.generateFunc(ctx, req)
	}
	return &models.GenerationResponse{
		Image: image.DataURI([]byte{byte('0' + n)}, "image/png"),
		Text:  "Done " + req.Instruction,
	}, nil
}

func newTestRunner(gen *mockGenerator) (*Runner, *editor.Editor, *bytes.Buffer, *bytes.Buffer) {
	ed := editor.New(project.New("batch"), gen, nil)
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	exporter := image.NewExporter(image.NewResolver(), &image.FileUploader{})
	return NewRunner(ed, exporter, out, errOut), ed, out, errOut
}

func items(instructions ...string) []Item {
	out := make([]Item, len(instructions))
	for i, in := range instructions {
		out[i] = Item{Index: i + 1, Instruction: in}
	}
	return out
}

func TestRunner_Run(t *testing.T) {
	gen := &mockGenerator{}
	runner, ed, out, _ := newTestRunner(gen)

	results, err := runner.Run(context.Background(), items("remove background", "boost colors"), &Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Run() results = %d, want 2", len(results))
	}
	if results[1].Reply != "Done boost colors" || results[1].Image != ed.Current() {
		t.Errorf("result = %+v", results[1])
	}
	if ed.State().History.Len() != 2 {
		t.Errorf("History.Len() = %d, want 2", ed.State().History.Len())
	}

	// the second edit works on the first edit's output
	if gen.requests[1].Current != results[0].Image {
		t.Errorf("second request current = %q, want %q", gen.requests[1].Current, results[0].Image)
	}
	if !strings.Contains(out.String(), "[2/2]") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunner_Modes(t *testing.T) {
	gen := &mockGenerator{}
	runner, ed, _, _ := newTestRunner(gen)

	list := []Item{
		{Index: 1, Instruction: "a", Mode: models.ModeCTR},
		{Index: 2, Instruction: "b"},
		{Index: 3, Instruction: "c", Mode: models.ModeInpainting},
	}
	if _, err := runner.Run(context.Background(), list, &Options{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []models.Mode{models.ModeCTR, models.ModeCTR, models.ModeInpainting}
	for i, req := range gen.requests {
		if req.Mode != want[i] {
			t.Errorf("request %d mode = %s, want %s", i, req.Mode, want[i])
		}
	}
	if ed.State().Mode != models.ModeInpainting {
		t.Errorf("final mode = %s", ed.State().Mode)
	}
}

func TestRunner_Errors(t *testing.T) {
	failing := func(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error) {
		if req.Instruction == "bad" {
			return nil, errors.New("boom")
		}
		return &models.GenerationResponse{Image: "data:image/png;base64,TkVX", Text: "ok"}, nil
	}

	t.Run("continue", func(t *testing.T) {
		runner, _, out, errOut := newTestRunner(&mockGenerator{generateFunc: failing})
		results, err := runner.Run(context.Background(), items("good", "bad", "good"), &Options{})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(results) != 3 || results[1].Error == nil || results[2].Error != nil {
			t.Errorf("results = %+v", results)
		}
		if !strings.Contains(errOut.String(), "boom") {
			t.Errorf("errOut = %q", errOut.String())
		}

		PrintSummary(out, results)
		if !strings.Contains(out.String(), "Applied: 2/3") || !strings.Contains(out.String(), `[2] "bad"`) {
			t.Errorf("summary = %q", out.String())
		}
	})

	t.Run("stop on error", func(t *testing.T) {
		gen := &mockGenerator{generateFunc: failing}
		runner, _, _, _ := newTestRunner(gen)
		results, err := runner.Run(context.Background(), items("good", "bad", "good"), &Options{StopOnError: true})
		if err == nil || !strings.Contains(err.Error(), "stopped at item 2") {
			t.Errorf("Run() error = %v", err)
		}
		if len(results) != 2 || len(gen.requests) != 2 {
			t.Errorf("results = %d, requests = %d", len(results), len(gen.requests))
		}
	})
}

func TestRunner_Delay(t *testing.T) {
	runner, _, _, _ := newTestRunner(&mockGenerator{})

	start := time.Now()
	if _, err := runner.Run(context.Background(), items("a", "b", "c"), &Options{Delay: 20 * time.Millisecond}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Run() took %v, want at least 40ms of delay", elapsed)
	}
}

func TestRunner_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &mockGenerator{}
	gen.generateFunc = func(context.Context, *models.GenerationRequest) (*models.GenerationResponse, error) {
		cancel()
		return &models.GenerationResponse{Image: "data:image/png;base64,TkVX", Text: "ok"}, nil
	}
	runner, _, _, _ := newTestRunner(gen)

	results, err := runner.Run(ctx, items("a", "b"), &Options{Delay: time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
}

func TestRunner_Export(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	runner, _, _, _ := newTestRunner(&mockGenerator{})

	results, err := runner.Run(context.Background(), items("Remove BG", "Pop colors"), &Options{ExportDir: "out"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, name := range []string{"out/001-remove-bg.png", "out/002-pop-colors.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing export %s: %v", name, err)
		}
	}
	if results[0].Location == "" {
		t.Error("Location not recorded")
	}
}

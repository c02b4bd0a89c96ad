// Package repl runs the interactive chat loop around an editor.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/manash/clickgenius/internal/cost"
	"github.com/manash/clickgenius/internal/display"
	"github.com/manash/clickgenius/internal/editor"
	"github.com/manash/clickgenius/internal/image"
	"github.com/manash/clickgenius/internal/project"
	"github.com/manash/clickgenius/internal/provider"
)

type REPL struct {
	in        io.Reader
	out       io.Writer
	err       io.Writer
	editor    *editor.Editor
	store     project.Store
	generator provider.Generator
	exporter  *image.Exporter
	displayer *display.Displayer
	meter     *cost.Meter
	autoShow  bool
	prompt    bool
	commands  map[string]Command
	running   bool
}

type Config struct {
	In        io.Reader
	Out       io.Writer
	Err       io.Writer
	Editor    *editor.Editor
	Store     project.Store
	Generator provider.Generator
	Exporter  *image.Exporter
	Displayer *display.Displayer
	// Meter, when set, backs the cost command.
	Meter *cost.Meter
	// AutoShow renders the canvas after every change.
	AutoShow bool
}

func New(cfg *Config) *REPL {
	r := &REPL{
		in:        cfg.In,
		out:       cfg.Out,
		err:       cfg.Err,
		editor:    cfg.Editor,
		store:     cfg.Store,
		generator: cfg.Generator,
		exporter:  cfg.Exporter,
		displayer: cfg.Displayer,
		meter:     cfg.Meter,
		autoShow:  cfg.AutoShow && cfg.Displayer != nil,
		prompt:    isTerminal(cfg.In),
		commands:  make(map[string]Command),
	}
	r.registerCommands()
	return r
}

// Editor returns the editor for the project currently open.
func (r *REPL) Editor() *editor.Editor {
	return r.editor
}

func (r *REPL) Run(ctx context.Context) error {
	r.running = true
	r.printWelcome()

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for r.running {
		r.printPrompt()
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.err, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	return scanner.Err()
}

// execute runs a command. A line whose first word is not a command is sent
// to the model as an instruction.
func (r *REPL) execute(ctx context.Context, line string) error {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	cmd, ok := r.commands[strings.ToLower(name)]
	if !ok {
		return r.submit(ctx, line)
	}
	if raw, ok := cmd.(RawCommand); ok {
		return raw.ExecuteRaw(ctx, r, rest)
	}

	args := parseCommand(rest)
	if checker, ok := cmd.(ArgChecker); ok && !checker.AcceptsArgs(args) {
		return r.submit(ctx, line)
	}
	return cmd.Execute(ctx, r, args)
}

func (r *REPL) Stop() {
	r.running = false
}

// switchTo replaces the open project.
func (r *REPL) switchTo(p *project.Project) {
	r.editor = editor.New(p, r.generator, r.store)
}

func (r *REPL) printWelcome() {
	st := r.editor.State()
	fmt.Fprintln(r.out, "clickgenius interactive mode")
	fmt.Fprintf(r.out, "Project: %s (%s)\n", st.Name, shortID(st.ProjectID))
	fmt.Fprintln(r.out, "Type an instruction to edit the thumbnail, 'help' for commands, 'quit' to exit.")
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	if !r.prompt {
		return
	}
	st := r.editor.State()
	if st.History.Len() == 0 {
		fmt.Fprintf(r.out, "clickgenius [%s]> ", st.Mode)
		return
	}
	fmt.Fprintf(r.out, "clickgenius [%s] (v%d/%d)> ", st.Mode, st.History.Cursor()+1, st.History.Len())
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

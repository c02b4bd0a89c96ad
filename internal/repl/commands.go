package repl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/manash/clickgenius/internal/editor"
	"github.com/manash/clickgenius/internal/image"
	"github.com/manash/clickgenius/internal/project"
	"github.com/manash/clickgenius/internal/provider"
	"github.com/manash/clickgenius/internal/security"
	"github.com/manash/clickgenius/internal/templates"
	"github.com/manash/clickgenius/pkg/models"
)

var errNoImage = errors.New("no current image - use 'upload' first")

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

// RawCommand receives the rest of the line unsplit, quotes included.
type RawCommand interface {
	ExecuteRaw(ctx context.Context, r *REPL, rest string) error
}

// ArgChecker is implemented by commands that only claim a line when its
// arguments fit their usage. Other lines go to the model as instructions,
// so "show more contrast" is an edit, not the show command.
type ArgChecker interface {
	AcceptsArgs(args []string) bool
}

// noArgs marks commands that take no arguments.
type noArgs struct{}

func (noArgs) AcceptsArgs(args []string) bool { return len(args) == 0 }

// atMostOneArg marks commands with a single optional argument.
type atMostOneArg struct{}

func (atMostOneArg) AcceptsArgs(args []string) bool { return len(args) <= 1 }

func allCommands() []Command {
	return []Command{
		&EditCommand{},
		&UploadCommand{},
		&UndoCommand{},
		&RedoCommand{},
		&ResetCommand{},
		&ActionCommand{},
		&SuggestCommand{},
		&ModeCommand{},
		&ShowCommand{},
		&ExportCommand{},
		&HistoryCommand{},
		&ChatCommand{},
		&ProjectCommand{},
		&CostCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}
}

func (r *REPL) registerCommands() {
	for _, cmd := range allCommands() {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// submit sends an instruction and prints the assistant's reply.
func (r *REPL) submit(ctx context.Context, instruction string) error {
	st := r.editor.State()
	fmt.Fprintf(r.out, "Working on it (%s mode)...\n", st.Mode)

	reply, err := r.editor.Submit(ctx, instruction)
	if reply.Text != "" {
		fmt.Fprintf(r.out, "Assistant: %s\n", reply.Text)
	}
	if err != nil {
		if provider.IsRateLimitError(err) {
			return fmt.Errorf("rate limited, wait a moment and retry: %w", err)
		}
		return err
	}
	r.afterChange(ctx)
	return nil
}

// afterChange renders the canvas when automatic display is on.
func (r *REPL) afterChange(ctx context.Context) {
	if !r.autoShow {
		return
	}
	current := r.editor.Current()
	if current.IsZero() {
		return
	}
	if err := r.displayer.Show(ctx, current); err != nil {
		fmt.Fprintf(r.err, "Warning: failed to display: %v\n", err)
	}
}

func (r *REPL) printVersion() {
	st := r.editor.State()
	if st.History.Len() == 0 {
		fmt.Fprintln(r.out, "Canvas is empty")
		return
	}
	fmt.Fprintf(r.out, "Showing version %d of %d\n", st.History.Cursor()+1, st.History.Len())
}

// EditCommand sends an instruction to the model
type EditCommand struct{}

func (c *EditCommand) Name() string        { return "edit" }
func (c *EditCommand) Aliases() []string   { return []string{"e", "say"} }
func (c *EditCommand) Description() string { return "Ask the art director to change the thumbnail" }
func (c *EditCommand) Usage() string       { return "edit <instruction>" }

func (c *EditCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	return c.ExecuteRaw(ctx, r, strings.Join(args, " "))
}

func (c *EditCommand) ExecuteRaw(ctx context.Context, r *REPL, rest string) error {
	if rest == "" {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	return r.submit(ctx, rest)
}

// UploadCommand loads a local image onto the canvas
type UploadCommand struct{}

func (c *UploadCommand) Name() string        { return "upload" }
func (c *UploadCommand) Aliases() []string   { return []string{"u"} }
func (c *UploadCommand) Description() string { return "Load a local image as the newest version" }
func (c *UploadCommand) Usage() string       { return "upload <path>" }

func (c *UploadCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	reply, err := r.editor.Upload(ctx, strings.Join(args, " "))
	if errors.Is(err, image.ErrNotImage) {
		return nil
	}
	if reply.Text != "" {
		fmt.Fprintf(r.out, "Assistant: %s\n", reply.Text)
	}
	if err != nil {
		return err
	}
	r.afterChange(ctx)
	return nil
}

// UndoCommand steps back one version
type UndoCommand struct{ noArgs }

func (c *UndoCommand) Name() string        { return "undo" }
func (c *UndoCommand) Aliases() []string   { return []string{"z"} }
func (c *UndoCommand) Description() string { return "Go back to the previous version" }
func (c *UndoCommand) Usage() string       { return "undo" }

func (c *UndoCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	if _, err := r.editor.Undo(ctx); err != nil {
		return err
	}
	r.printVersion()
	r.afterChange(ctx)
	return nil
}

// RedoCommand steps forward one version
type RedoCommand struct{ noArgs }

func (c *RedoCommand) Name() string        { return "redo" }
func (c *RedoCommand) Aliases() []string   { return []string{"y"} }
func (c *RedoCommand) Description() string { return "Go forward to the next version" }
func (c *RedoCommand) Usage() string       { return "redo" }

func (c *RedoCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	if _, err := r.editor.Redo(ctx); err != nil {
		return err
	}
	r.printVersion()
	r.afterChange(ctx)
	return nil
}

// ResetCommand clears the canvas
type ResetCommand struct{ noArgs }

func (c *ResetCommand) Name() string        { return "reset" }
func (c *ResetCommand) Aliases() []string   { return nil }
func (c *ResetCommand) Description() string { return "Clear every version (the chat log is kept)" }
func (c *ResetCommand) Usage() string       { return "reset" }

func (c *ResetCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	if err := r.editor.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "Canvas cleared")
	return nil
}

// ActionCommand applies a quick action to the current image
type ActionCommand struct{}

func (c *ActionCommand) Name() string        { return "action" }
func (c *ActionCommand) Aliases() []string   { return nil }
func (c *ActionCommand) Description() string { return "Apply or list quick actions" }
func (c *ActionCommand) Usage() string       { return "action [name|number]" }

func (c *ActionCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		printCatalog(r, templates.QuickActions)
		return nil
	}

	tmpl, ok := templates.Find(templates.QuickActions, strings.Join(args, " "))
	if !ok {
		return fmt.Errorf("unknown action: %s (available: %s)",
			strings.Join(args, " "), strings.Join(templates.Names(templates.QuickActions), ", "))
	}
	if tmpl.RequiresImage() && r.editor.Current().IsZero() {
		return errNoImage
	}
	return r.submit(ctx, tmpl.Instruction)
}

// SuggestCommand sends one of the canned chat suggestions
type SuggestCommand struct{}

func (c *SuggestCommand) Name() string        { return "suggest" }
func (c *SuggestCommand) Aliases() []string   { return nil }
func (c *SuggestCommand) Description() string { return "Send or list suggested instructions" }
func (c *SuggestCommand) Usage() string       { return "suggest [name|number]" }

func (c *SuggestCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		printCatalog(r, templates.Suggestions)
		return nil
	}

	tmpl, ok := templates.Find(templates.Suggestions, strings.Join(args, " "))
	if !ok {
		return fmt.Errorf("unknown suggestion: %s", strings.Join(args, " "))
	}
	return r.submit(ctx, tmpl.Instruction)
}

func printCatalog(r *REPL, catalog []templates.Template) {
	for i, t := range catalog {
		fmt.Fprintf(r.out, "  %d. %-16s %s\n", i+1, t.Name, t.Instruction)
	}
}

// ModeCommand gets or sets the generation mode
type ModeCommand struct{ atMostOneArg }

func (c *ModeCommand) Name() string        { return "mode" }
func (c *ModeCommand) Aliases() []string   { return nil }
func (c *ModeCommand) Description() string { return "Get or set the generation mode" }
func (c *ModeCommand) Usage() string       { return "mode [fast|ctr|inpainting]" }

func (c *ModeCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(r.out, "Current mode: %s\n", r.editor.State().Mode)
		fmt.Fprintf(r.out, "Available modes: %v\n", models.ValidModes())
		return nil
	}

	mode, err := models.ParseMode(args[0])
	if err != nil {
		return err
	}
	if err := r.editor.SetMode(ctx, mode); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Mode set to: %s\n", mode)
	return nil
}

// ShowCommand renders the current image
type ShowCommand struct{ noArgs }

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Aliases() []string   { return []string{"display"} }
func (c *ShowCommand) Description() string { return "Display the current image" }
func (c *ShowCommand) Usage() string       { return "show" }

func (c *ShowCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	current := r.editor.Current()
	if current.IsZero() {
		return errNoImage
	}
	if r.displayer == nil {
		return errors.New("display is not available")
	}
	return r.displayer.Show(ctx, current)
}

// ExportCommand writes the current image, or every version with --all
type ExportCommand struct{}

func (c *ExportCommand) Name() string        { return "export" }
func (c *ExportCommand) Aliases() []string   { return []string{"save"} }
func (c *ExportCommand) Description() string { return "Export the current image (or all versions)" }
func (c *ExportCommand) Usage() string       { return "export [--all] [filename]" }

// AcceptsArgs allows flags and at most one file name.
func (c *ExportCommand) AcceptsArgs(args []string) bool {
	names := 0
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			names++
		}
	}
	return names <= 1
}

func (c *ExportCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if r.exporter == nil {
		return errors.New("export is not available")
	}

	all := false
	var name string
	for _, arg := range args {
		if arg == "--all" || arg == "-a" {
			all = true
			continue
		}
		name = arg
	}

	st := r.editor.State()
	metadata := map[string]string{"project": st.ProjectID}

	if all {
		if name == "" && st.Name != project.DefaultName {
			name = security.SanitizeFilename(st.Name)
		}
		locs, err := r.exporter.ExportAll(ctx, st.History.Entries(), name, metadata)
		if err != nil {
			return err
		}
		for _, loc := range locs {
			fmt.Fprintf(r.out, "Exported: %s\n", loc)
		}
		return nil
	}

	current := st.Current()
	if current.IsZero() {
		return errNoImage
	}
	loc, err := r.exporter.Export(ctx, current, name, metadata)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Exported: %s\n", loc)
	return nil
}

// HistoryCommand lists the versions on the canvas
type HistoryCommand struct{ noArgs }

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Aliases() []string   { return []string{"h", "hist"} }
func (c *HistoryCommand) Description() string { return "List image versions" }
func (c *HistoryCommand) Usage() string       { return "history" }

func (c *HistoryCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	st := r.editor.State()
	entries := st.History.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(r.out, "No history yet")
		return nil
	}

	for i, ref := range entries {
		marker := "  "
		if i == st.History.Cursor() {
			marker = "> "
		}
		fmt.Fprintf(r.out, "%s[%d] %s\n", marker, i+1, describeRef(ref))
	}
	return nil
}

func describeRef(ref models.ImageRef) string {
	if !ref.IsDataURI() {
		return truncate(ref.String(), 60)
	}
	img, err := image.ParseDataURI(ref)
	if err != nil {
		return "invalid image data"
	}
	return fmt.Sprintf("%s, %d KB", img.MIMEType, (len(img.Data)+1023)/1024)
}

// ChatCommand prints the conversation
type ChatCommand struct{ atMostOneArg }

func (c *ChatCommand) Name() string        { return "chat" }
func (c *ChatCommand) Aliases() []string   { return nil }
func (c *ChatCommand) Description() string { return "Show the conversation" }
func (c *ChatCommand) Usage() string       { return "chat [n]" }

func (c *ChatCommand) Execute(_ context.Context, r *REPL, args []string) error {
	messages := r.editor.State().Messages
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("usage: %s", c.Usage())
		}
		if n < len(messages) {
			messages = messages[len(messages)-n:]
		}
	}

	if len(messages) == 0 {
		fmt.Fprintln(r.out, "No messages yet")
		return nil
	}
	for _, m := range messages {
		fmt.Fprintf(r.out, "[%s] %s: %s\n", project.FormatTimestamp(m.Timestamp), speaker(m.Role), m.Text)
	}
	return nil
}

func speaker(role models.Role) string {
	if role == models.RoleUser {
		return "You"
	}
	return "Assistant"
}

// ProjectCommand manages saved projects
type ProjectCommand struct{}

func (c *ProjectCommand) Name() string        { return "project" }
func (c *ProjectCommand) Aliases() []string   { return []string{"p"} }
func (c *ProjectCommand) Description() string { return "Manage projects" }
func (c *ProjectCommand) Usage() string       { return "project <list|new|load|rename|delete> [args]" }

func (c *ProjectCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		st := r.editor.State()
		fmt.Fprintf(r.out, "Current project: %s (%s)\n", st.Name, shortID(st.ProjectID))
		return nil
	}
	if r.store == nil {
		return errors.New("project storage is not available")
	}

	subCmd := strings.ToLower(args[0])
	subArgs := args[1:]

	switch subCmd {
	case "list", "ls":
		return c.list(ctx, r)
	case "new":
		return c.new(ctx, r, strings.Join(subArgs, " "))
	case "load", "open":
		if len(subArgs) == 0 {
			return fmt.Errorf("usage: project load <id>")
		}
		return c.load(ctx, r, subArgs[0])
	case "rename":
		if len(subArgs) == 0 {
			return fmt.Errorf("usage: project rename <name>")
		}
		return c.rename(ctx, r, strings.Join(subArgs, " "))
	case "delete", "rm":
		if len(subArgs) == 0 {
			return fmt.Errorf("usage: project delete <id>")
		}
		return c.delete(ctx, r, subArgs[0])
	default:
		return fmt.Errorf("unknown project command: %s", subCmd)
	}
}

func (c *ProjectCommand) list(ctx context.Context, r *REPL) error {
	summaries, err := r.store.List(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(r.out, "No projects found")
		return nil
	}
	PrintSummaries(r.out, summaries, r.editor.State().ProjectID)
	return nil
}

func (c *ProjectCommand) new(ctx context.Context, r *REPL, name string) error {
	if r.editor.State().Generating {
		return editor.ErrBusy
	}
	p := project.New(name)
	if err := r.store.Save(ctx, p); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	r.switchTo(p)
	fmt.Fprintf(r.out, "Created new project: %s (%s)\n", p.Name, shortID(p.ID))
	return nil
}

func (c *ProjectCommand) load(ctx context.Context, r *REPL, id string) error {
	if r.editor.State().Generating {
		return editor.ErrBusy
	}
	p, err := project.Find(ctx, r.store, id)
	if err != nil {
		return err
	}
	r.switchTo(p)
	fmt.Fprintf(r.out, "Loaded project: %s (%s)\n", p.Name, shortID(p.ID))
	r.printVersion()
	r.afterChange(ctx)
	return nil
}

func (c *ProjectCommand) rename(ctx context.Context, r *REPL, name string) error {
	if err := r.editor.Rename(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Project renamed to: %s\n", name)
	return nil
}

func (c *ProjectCommand) delete(ctx context.Context, r *REPL, id string) error {
	p, err := project.Find(ctx, r.store, id)
	if err != nil {
		return err
	}
	if p.ID == r.editor.State().ProjectID {
		return errors.New("cannot delete the open project")
	}
	if err := r.store.Delete(ctx, p.ID); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Deleted project: %s (%s)\n", p.Name, shortID(p.ID))
	return nil
}

// CostCommand shows the estimated spend of this session
type CostCommand struct{ noArgs }

func (c *CostCommand) Name() string        { return "cost" }
func (c *CostCommand) Aliases() []string   { return []string{"$"} }
func (c *CostCommand) Description() string { return "Show estimated spend for this session" }
func (c *CostCommand) Usage() string       { return "cost" }

func (c *CostCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	if r.meter == nil {
		return errors.New("cost tracking is not available")
	}
	s := r.meter.Summary()
	if s.Generations == 0 {
		fmt.Fprintln(r.out, "No generations yet this session.")
		return nil
	}
	fmt.Fprintf(r.out, "Session cost: $%.4f (%d generation(s), %d input / %d output tokens)\n",
		s.Total, s.Generations, s.PromptTokens, s.OutputTokens)
	if s.Unpriced > 0 {
		fmt.Fprintf(r.out, "  %d generation(s) used a model without pricing and are not included\n", s.Unpriced)
	}
	return nil
}

// HelpCommand shows available commands
type HelpCommand struct{ atMostOneArg }

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out)

	for _, cmd := range allCommands() {
		aliases := ""
		if len(cmd.Aliases()) > 0 {
			aliases = fmt.Sprintf(" (%s)", strings.Join(cmd.Aliases(), ", "))
		}
		fmt.Fprintf(r.out, "  %-24s%s\n", cmd.Name()+aliases, cmd.Description())
		fmt.Fprintf(r.out, "  %-24sUsage: %s\n", "", cmd.Usage())
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Anything else you type is sent as an edit instruction.")
	return nil
}

// QuitCommand exits the REPL
type QuitCommand struct{ noArgs }

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Goodbye!")
	r.Stop()
	return nil
}

// truncate shortens s to maxLen runes, ending in "...".
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

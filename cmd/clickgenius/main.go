package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/samber/do"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/manash/clickgenius/internal/batch"
	"github.com/manash/clickgenius/internal/config"
	"github.com/manash/clickgenius/internal/cost"
	"github.com/manash/clickgenius/internal/display"
	"github.com/manash/clickgenius/internal/editor"
	"github.com/manash/clickgenius/internal/image"
	"github.com/manash/clickgenius/internal/inject"
	"github.com/manash/clickgenius/internal/keys"
	"github.com/manash/clickgenius/internal/log"
	"github.com/manash/clickgenius/internal/project"
	"github.com/manash/clickgenius/internal/provider"
	"github.com/manash/clickgenius/internal/provider/gemini"
	"github.com/manash/clickgenius/internal/repl"
	"github.com/manash/clickgenius/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagAPIKey      string
	flagModel       string
	flagConfig      string
	flagInput       string
	flagOutput      string
	flagMode        string
	flagInteractive bool
	flagShow        bool
	flagProject     string
	flagStopOnError bool
	flagDelay       time.Duration
	flagExportDir   string
)

type App struct {
	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	GetEnv func(string) string
	// Configure runs after the default services are registered and may
	// override any of them.
	Configure func(i *do.Injector)
}

func DefaultApp() *App {
	return &App{
		In:     os.Stdin,
		Out:    os.Stdout,
		Err:    os.Stderr,
		GetEnv: os.Getenv,
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clickgenius [instruction]",
		Short: "Edit video thumbnails by chatting with an AI art director",
		Long: `clickgenius edits YouTube-style thumbnails through Gemini image models.

Describe a change and the model returns a new version of the image. Every
version is kept, so you can step back and forth, and projects are saved
between runs.

Examples:
  clickgenius -i frame.png "make the title huge and yellow"
  clickgenius -i frame.png -o cover.png --mode ctr "make it more clickable"
  clickgenius -I
  clickgenius run script.txt --project 3f2a`,
		Args:          cobra.MaximumNArgs(1),
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagInteractive {
				return runREPL(cmd, app)
			}
			if len(args) == 0 {
				return errors.New("instruction required (or use -I for interactive mode)")
			}
			return runEdit(cmd, args[0], app)
		},
	}
	cmd.SetIn(app.In)
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Err)

	cmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "Gemini API key (defaults to GEMINI_API_KEY)")
	cmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "image model (defaults to CLICKGENIUS_MODEL)")
	cmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "YAML config file")

	cmd.Flags().StringVarP(&flagInput, "input", "i", "", "image to start from")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output filename (default thumbnail.png)")
	cmd.Flags().StringVar(&flagMode, "mode", "", "generation mode (fast, ctr, inpainting)")
	cmd.Flags().BoolVarP(&flagInteractive, "interactive", "I", false, "start interactive mode")
	cmd.Flags().BoolVar(&flagShow, "show", false, "display the result in the terminal")

	cmd.AddCommand(newREPLCmd(app), newProjectsCmd(app), newRunCmd(app), newKeysCmd(app))
	return cmd
}

func newREPLCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start interactive mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runREPL(cmd, app)
		},
	}
	cmd.Flags().StringVarP(&flagProject, "project", "p", "", "project ID or prefix to open")
	cmd.Flags().BoolVar(&flagShow, "show", false, "display every new version in the terminal")
	return cmd
}

func newProjectsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage saved projects",
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved projects",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProjectsList(cmd, app)
		},
	}
	del := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a project",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectsDelete(cmd, args[0], app)
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Apply a script of instructions (.txt or .json) to a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args[0], app)
		},
	}
	cmd.Flags().StringVarP(&flagProject, "project", "p", "", "project ID or prefix (default: new project)")
	cmd.Flags().StringVarP(&flagInput, "input", "i", "", "image to start from")
	cmd.Flags().BoolVar(&flagStopOnError, "stop-on-error", false, "stop at the first failed instruction")
	cmd.Flags().DurationVar(&flagDelay, "delay", 0, "pause between instructions")
	cmd.Flags().StringVar(&flagExportDir, "export-dir", "", "export every new version into this directory")
	return cmd
}

// services holds what a command needs from the container.
type services struct {
	injector *do.Injector
	cfg      *config.Config
}

func (app *App) setup(ctx context.Context) (context.Context, *services, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flagModel != "" {
		cfg.Gemini.Model = flagModel
	}

	logger := log.New(app.Err, cfg.LogLevel(), log.Format(cfg.Log.Format))
	ctx = log.NewContext(ctx, logger)

	keyStore, err := keys.NewStore()
	if err != nil {
		logger.Debug("key store unavailable", "error", err)
		keyStore = nil
	}
	var source keys.Source
	cfg.Gemini.APIKey, source = keys.Resolve(flagAPIKey, cfg.Gemini.APIKey, keyStore)
	logger.Debug("resolved api key", "source", source)

	injector := inject.Setup(ctx, cfg, app.Out)
	if app.Configure != nil {
		app.Configure(injector)
	}
	return ctx, &services{injector: injector, cfg: cfg}, nil
}

func (s *services) shutdown(ctx context.Context) {
	if err := s.injector.Shutdown(); err != nil {
		log.FromContextOrDiscard(ctx).Warn("shutdown failed", "error", err)
	}
}

// openEditor loads the project named by idOrPrefix, or starts a new one.
func (s *services) openEditor(ctx context.Context, idOrPrefix string) (*editor.Editor, error) {
	store, err := do.Invoke[project.Store](s.injector)
	if err != nil {
		return nil, fmt.Errorf("failed to open project store: %w", err)
	}
	gen, err := do.Invoke[provider.Generator](s.injector)
	if err != nil {
		return nil, err
	}

	var p *project.Project
	if idOrPrefix != "" {
		if p, err = project.Find(ctx, store, idOrPrefix); err != nil {
			return nil, err
		}
	} else {
		p = project.New("")
		if err := store.Save(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to create project: %w", err)
		}
	}
	return editor.New(p, gen, store), nil
}

// meterOrNil returns the cost meter when the generator in use is metered.
func meterOrNil(i *do.Injector) *cost.Meter {
	gen, err := do.Invoke[provider.Generator](i)
	if err != nil {
		return nil
	}
	meter, _ := gen.(*cost.Meter)
	return meter
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runEdit(_ *cobra.Command, instruction string, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	ctx, svc, err := app.setup(ctx)
	if err != nil {
		return err
	}
	defer svc.shutdown(ctx)

	ed, err := svc.openEditor(ctx, "")
	if err != nil {
		return err
	}
	if flagMode != "" {
		mode, err := models.ParseMode(flagMode)
		if err != nil {
			return err
		}
		if err := ed.SetMode(ctx, mode); err != nil {
			return err
		}
	}
	if flagInput != "" {
		if _, err := ed.Upload(ctx, flagInput); err != nil {
			return fmt.Errorf("failed to load %s: %w", flagInput, err)
		}
	}

	mode := ed.State().Mode
	fmt.Fprintf(app.Out, "Editing with %s (%s mode)...\n", gemini.ResolveModel(svc.cfg.Provider(), mode), mode)
	reply, err := ed.Submit(ctx, instruction)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	fmt.Fprintf(app.Out, "Assistant: %s\n", reply.Text)

	current := ed.Current()
	if current.IsZero() {
		return errors.New("the model did not return an image")
	}

	exporter, err := do.Invoke[*image.Exporter](svc.injector)
	if err != nil {
		return err
	}
	loc, err := exporter.Export(ctx, current, flagOutput, map[string]string{"project": ed.State().ProjectID})
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Saved: %s\n", loc)
	if meter := meterOrNil(svc.injector); meter != nil {
		if est, ok := meter.Last(); ok && est.Known {
			fmt.Fprintf(app.Out, "Estimated cost: $%.4f\n", est.Total)
		}
	}

	if flagShow {
		displayer := do.MustInvoke[*display.Displayer](svc.injector)
		if err := displayer.Show(ctx, current); err != nil {
			fmt.Fprintf(app.Err, "Warning: failed to display: %v\n", err)
		}
	}
	return nil
}

func runREPL(_ *cobra.Command, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	ctx, svc, err := app.setup(ctx)
	if err != nil {
		return err
	}
	defer svc.shutdown(ctx)

	ed, err := svc.openEditor(ctx, flagProject)
	if err != nil {
		return err
	}

	r := repl.New(&repl.Config{
		In:        app.In,
		Out:       app.Out,
		Err:       app.Err,
		Editor:    ed,
		Store:     do.MustInvoke[project.Store](svc.injector),
		Generator: do.MustInvoke[provider.Generator](svc.injector),
		Exporter:  do.MustInvoke[*image.Exporter](svc.injector),
		Displayer: do.MustInvoke[*display.Displayer](svc.injector),
		Meter:     meterOrNil(svc.injector),
		AutoShow:  flagShow || display.TerminalSupported(app.GetEnv),
	})
	return r.Run(ctx)
}

func runProjectsList(_ *cobra.Command, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	ctx, svc, err := app.setup(ctx)
	if err != nil {
		return err
	}
	defer svc.shutdown(ctx)

	store, err := do.Invoke[project.Store](svc.injector)
	if err != nil {
		return fmt.Errorf("failed to open project store: %w", err)
	}
	summaries, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(app.Out, "No projects found")
		return nil
	}
	repl.PrintSummaries(app.Out, summaries, "")
	return nil
}

func runProjectsDelete(_ *cobra.Command, idOrPrefix string, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	ctx, svc, err := app.setup(ctx)
	if err != nil {
		return err
	}
	defer svc.shutdown(ctx)

	store, err := do.Invoke[project.Store](svc.injector)
	if err != nil {
		return fmt.Errorf("failed to open project store: %w", err)
	}
	p, err := project.Find(ctx, store, idOrPrefix)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, p.ID); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Deleted project: %s (%s)\n", p.Name, p.Summary().ShortID())
	return nil
}

func runBatch(_ *cobra.Command, path string, app *App) error {
	ctx, cancel := signalContext()
	defer cancel()

	items, err := batch.ParseFile(path)
	if err != nil {
		return err
	}

	ctx, svc, err := app.setup(ctx)
	if err != nil {
		return err
	}
	defer svc.shutdown(ctx)

	ed, err := svc.openEditor(ctx, flagProject)
	if err != nil {
		return err
	}
	if flagInput != "" {
		if _, err := ed.Upload(ctx, flagInput); err != nil {
			return fmt.Errorf("failed to load %s: %w", flagInput, err)
		}
	}

	st := ed.State()
	fmt.Fprintf(app.Out, "Applying %d instruction(s) to %s (%s)\n\n", len(items), st.Name, st.ProjectID)

	runner := batch.NewRunner(ed, do.MustInvoke[*image.Exporter](svc.injector), app.Out, app.Err)
	results, runErr := runner.Run(ctx, items, &batch.Options{
		StopOnError: flagStopOnError,
		Delay:       flagDelay,
		ExportDir:   flagExportDir,
	})
	batch.PrintSummary(app.Out, results)
	if runErr != nil {
		return runErr
	}

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d instructions failed", failed, len(results))
	}
	return nil
}

func newKeysCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the stored Gemini API key",
	}

	set := &cobra.Command{
		Use:   "set [key]",
		Short: "Store the Gemini API key (prompts when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := keys.NewStore()
			if err != nil {
				return err
			}
			var key string
			if len(args) == 1 {
				key = args[0]
			} else if key, err = app.readSecret("Gemini API key: "); err != nil {
				return err
			}
			if err := store.Set(keys.ServiceGemini, key); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Saved key to %s\n", store.Path())
			return nil
		},
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Show which key would be used",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			store, _ := keys.NewStore()
			key, source := keys.Resolve(flagAPIKey, cfg.Gemini.APIKey, store)
			if key == "" {
				fmt.Fprintln(app.Out, "No API key configured: run 'clickgenius keys set' or set GEMINI_API_KEY")
				return nil
			}
			fmt.Fprintf(app.Out, "%s (from %s)\n", keys.Mask(key), source)
			return nil
		},
	}
	del := &cobra.Command{
		Use:     "delete",
		Aliases: []string{"rm"},
		Short:   "Remove the stored key",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := keys.NewStore()
			if err != nil {
				return err
			}
			if err := store.Delete(keys.ServiceGemini); err != nil {
				return err
			}
			fmt.Fprintln(app.Out, "Stored key removed")
			return nil
		},
	}

	cmd.AddCommand(set, show, del)
	return cmd
}

// readSecret reads one line from In, without echo when In is a terminal.
func (app *App) readSecret(prompt string) (string, error) {
	if f, ok := app.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(app.Err, prompt)
		data, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(app.Err)
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	line, err := bufio.NewReader(app.In).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

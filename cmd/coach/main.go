package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/alkime/callcoach/internal/analysis"
	"github.com/alkime/callcoach/internal/app"
	"github.com/alkime/callcoach/internal/config"
	"github.com/alkime/callcoach/internal/keyring"
	"github.com/alkime/callcoach/internal/logger"
)

// CLI defines the coach command structure.
type CLI struct {
	Globals

	// Default command (runs when no subcommand given)
	Record RecordCmd `cmd:"" default:"withargs" help:"Record a sales call and coach it in the terminal UI"`

	Upload     UploadCmd     `cmd:"" help:"Upload an audio file and coach it"`
	Show       ShowCmd       `cmd:"" help:"Open a past call in the terminal UI"`
	Transcribe TranscribeCmd `cmd:"" help:"Transcribe a stored audio file"`
	Analyze    AnalyzeCmd    `cmd:"" help:"Analyze a stored transcript"`
	History    HistoryCmd    `cmd:"" help:"List past calls"`
	Export     ExportCmd     `cmd:"" help:"Copy a stored audio file to disk"`
	Devices    DevicesCmd    `cmd:"" help:"List available audio capture devices"`
	Config     ConfigCmd     `cmd:"" help:"Manage configuration"`
}

// Globals are flags shared by every command.
type Globals struct {
	Debug   bool   `help:"Enable debug logging"`
	LogFile string `name:"log-file" type:"path" help:"Write logs to this file instead of stderr"`
	Token   string `env:"COACH_ACCESS_TOKEN" help:"Access token for the Supabase backend"`
}

// setupLogging routes logs to the log file, or to stderr unless the TUI
// is about to take over the terminal.
func (g *Globals) setupLogging(tui bool) (func(), error) {
	var w io.Writer = os.Stderr
	closeFn := func() {}

	switch {
	case g.LogFile != "":
		//nolint:gosec // log file path comes from the user
		f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	case tui:
		w = io.Discard
	}

	logger.SetupCLILogger(w, g.Debug)

	return closeFn, nil
}

// session is an opened application plus the user it acts for.
type session struct {
	*app.App
	owner string
}

// open loads configuration, fills API keys from the keychain and signs in.
func (g *Globals) open(ctx context.Context) (*session, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := keyring.FillConfig(cfg); err != nil {
		slog.Debug("keychain lookup failed", "error", err)
	}

	a, err := app.New(cfg, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("%w. Set keys via environment variables or run 'coach config set-key'", err)
	}

	owner, err := a.Auth.Authenticate(ctx, g.Token)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	return &session{App: a, owner: owner}, nil
}

func main() {
	cli := &CLI{} //nolint:exhaustruct // Kong fills in command fields
	ctx := kong.Parse(cli,
		kong.Name("coach"),
		kong.Description("Record, transcribe and score sales calls."),
		kong.UsageOnError(),
		kong.Vars{"presets": strings.Join(analysis.PresetNames(), ", ")},
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
	os.Exit(0)
}

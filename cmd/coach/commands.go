package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/alkime/callcoach/internal/analysis"
	"github.com/alkime/callcoach/internal/audio"
	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/history"
	"github.com/alkime/callcoach/internal/keyring"
	"github.com/alkime/callcoach/internal/pipeline"
	"github.com/alkime/callcoach/internal/tui"
	"github.com/alkime/callcoach/internal/workdir"
	"github.com/alkime/callcoach/internal/workflow"
)

// runTUI runs the terminal UI until the user quits, then waits for any
// auto-chained stage to finish.
func runTUI(ctx context.Context, cancel context.CancelFunc, ctrl *workflow.Controller, rec *pipeline.Recorder) error {
	cfg := tui.Config{
		Context:    ctx,
		Cancel:     cancel,
		Controller: ctrl,
	}
	if rec != nil {
		cfg.Recorder = rec
	}

	if _, err := tea.NewProgram(tui.New(cfg), tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	return nil
}

// RecordCmd is the default command: record a call in the TUI.
type RecordCmd struct {
	Device string `flag:"" optional:"" help:"Capture device name (default: system default)"`
	Manual bool   `flag:"" help:"Do not chain transcription and analysis automatically"`
}

// Run executes the record command.
func (c *RecordCmd) Run(g *Globals) error {
	closeLog, err := g.setupLogging(true)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	devCfg := audio.DefaultDeviceConfig()
	devCfg.DeviceName = c.Device

	rec := s.NewRecorder(audio.NewMicrophone(devCfg))
	defer rec.Discard()

	ctrl := s.NewController(s.owner)
	if c.Manual {
		ctrl.WithAuto(false)
	}
	defer ctrl.Close()

	if err := runTUI(ctx, cancel, ctrl, rec); err != nil {
		return err
	}

	printSummary(os.Stdout, ctrl.State())

	return nil
}

// UploadCmd uploads an audio file.
type UploadCmd struct {
	File  string `arg:"" type:"existingfile" help:"Audio file to upload (mp3, wav, m4a, flac, ogg)"`
	NoTUI bool   `flag:"" name:"no-tui" help:"Print progress instead of opening the terminal UI"`
}

// Run executes the upload command.
func (c *UploadCmd) Run(g *Globals) error {
	closeLog, err := g.setupLogging(!c.NoTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}

	name := filepath.Base(c.File)
	mimeType := pipeline.MimeTypeFor(name)
	if err := pipeline.ValidateUpload(name, mimeType, int64(len(data)), domain.SourceUpload); err != nil {
		return err
	}

	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	ctrl := s.NewController(s.owner)
	defer ctrl.Close()

	if c.NoTUI {
		events, stop := ctrl.SubscribeWithTimeout(64, time.Second)
		defer stop()
		go printProgress(os.Stderr, events)
	}

	asset, err := ctrl.Upload(ctx, pipeline.File{Name: name, MimeType: mimeType, Data: data})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}
	slog.Info("uploaded", "asset_id", asset.ID, "bytes", asset.ByteSize)

	if !c.NoTUI {
		return runTUI(ctx, cancel, ctrl, nil)
	}

	ctrl.Wait()
	printSummary(os.Stdout, ctrl.State())

	if msg := ctrl.State().Error; msg != "" {
		return errors.New(msg)
	}
	return nil
}

// ShowCmd opens a past call.
type ShowCmd struct {
	AssetID string `arg:"" help:"Audio file id from 'coach history'"`
}

// Run executes the show command.
func (c *ShowCmd) Run(g *Globals) error {
	closeLog, err := g.setupLogging(true)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	ctrl := s.NewController(s.owner)
	defer ctrl.Close()

	if _, err := s.History.Open(ctx, s.owner, c.AssetID, ctrl); err != nil {
		return err
	}

	return runTUI(ctx, cancel, ctrl, nil)
}

// TranscribeCmd transcribes a stored audio file.
type TranscribeCmd struct {
	AssetID string `arg:"" help:"Audio file id"`
}

// Run executes the transcribe command.
func (c *TranscribeCmd) Run(g *Globals) error {
	closeLog, err := g.setupLogging(false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := s.Transcriber.Transcribe(ctx, s.owner, c.AssetID, progressPrinter(os.Stderr))
	if err != nil {
		return err
	}

	fmt.Printf("Transcript %s\n\n%s\n", t.ID, t.Text)

	return nil
}

// AnalyzeCmd analyzes a stored transcript.
type AnalyzeCmd struct {
	TranscriptID string `arg:"" help:"Transcript id"`
	Kind         string `flag:"" default:"sales_coaching" help:"Analysis kind: sales_coaching or one of ${presets}"`
	Prompt       string `flag:"" optional:"" help:"Instructions for a custom analysis"`
}

// Run executes the analyze command.
func (c *AnalyzeCmd) Run(g *Globals) error {
	closeLog, err := g.setupLogging(false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	strategy, err := strategyFor(s.Rubric, c.Kind, c.Prompt)
	if err != nil {
		return err
	}

	result, err := s.Analyzer.Analyze(ctx, s.owner, c.TranscriptID, strategy, progressPrinter(os.Stderr))
	if err != nil {
		return err
	}

	printAnalysis(os.Stdout, result)

	return nil
}

// strategyFor picks the rubric for sales coaching and a free-form preset
// for anything else.
func strategyFor(rubric analysis.Strategy, kind, prompt string) (analysis.Strategy, error) {
	if kind == "" || kind == analysis.KindSalesCoaching {
		return rubric, nil
	}
	preset, err := analysis.Preset(kind, prompt)
	if err != nil {
		return nil, err
	}
	return preset, nil
}

// HistoryCmd lists past calls.
type HistoryCmd struct {
	Query  string `flag:"" short:"q" optional:"" help:"Match filename or transcript text"`
	Status string `flag:"" optional:"" enum:",uploaded,transcribed,complete" default:"" help:"uploaded, transcribed or complete"`
	Source string `flag:"" optional:"" enum:",upload,recording" default:"" help:"upload or recording"`
}

// Run executes the history command.
func (c *HistoryCmd) Run(g *Globals) error {
	closeLog, err := g.setupLogging(false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := context.Background()

	status, err := history.ParseStatus(c.Status)
	if err != nil {
		return err
	}

	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.History.List(ctx, s.owner, history.Filter{
		Query:  c.Query,
		Status: status,
		Source: domain.Source(c.Source),
	})
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No calls found.")
		return nil
	}

	fmt.Println(historyTable(entries))

	return nil
}

func historyTable(entries []history.Entry) string {
	t := table.New().Headers("ID", "FILE", "SOURCE", "STATUS", "CREATED")
	for _, e := range entries {
		t.Row(e.Asset.ID, e.Asset.Filename, string(e.Asset.Source), string(e.Status),
			e.Asset.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return t.Render()
}

// ExportCmd copies stored audio to a local file.
type ExportCmd struct {
	AssetID string `arg:"" help:"Audio file id"`
	Out     string `flag:"" short:"o" type:"path" optional:"" help:"Output path (default: exports/ under the data directory)"`
}

// Run executes the export command.
func (c *ExportCmd) Run(g *Globals) error {
	closeLog, err := g.setupLogging(false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := context.Background()

	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	asset, err := s.Backend.GetAsset(ctx, c.AssetID)
	if err != nil {
		return err
	}
	if asset.OwnerID != s.owner {
		return domain.NotFoundError("Audio file not found")
	}

	data, err := s.Backend.Get(ctx, asset.StoragePath)
	if err != nil {
		return fmt.Errorf("failed to download audio: %w", err)
	}

	out := c.Out
	if out == "" {
		layout := workdir.Layout{Dir: s.Config.LocalDataDir}
		if layout.Dir == "" {
			if layout, err = workdir.DefaultLayout(); err != nil {
				return err
			}
		}
		if err := layout.Prep(); err != nil {
			return err
		}
		out = layout.ExportPath(asset.Filename)
	}

	//nolint:gosec // exported audio is meant to be opened by other programs
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	fmt.Printf("Saved %s (%d bytes)\n", out, len(data))

	return nil
}

// DevicesCmd lists available audio devices.
type DevicesCmd struct{}

// Run executes the devices command.
func (dcmd *DevicesCmd) Run(g *Globals) error {
	closeLog, err := g.setupLogging(false)
	if err != nil {
		return err
	}
	defer closeLog()

	slog.Info("Enumerating audio devices...")

	devices, err := audio.NewMicrophone(audio.DefaultDeviceConfig()).EnumerateDevices(context.Background())
	if err != nil {
		return fmt.Errorf("failed to enumerate audio devices: %w", err)
	}

	for _, dev := range devices {
		slog.Info("Audio Device",
			"name", dev.Name,
			"isDefault", dev.IsDefault,
			"formatCount", dev.FormatCount,
			"formats", dev.Formats,
		)
	}

	return nil
}

// ConfigCmd groups configuration-related subcommands.
type ConfigCmd struct {
	SetKey   SetKeyCmd   `cmd:"" help:"Store an API key in system keychain"`
	ListKeys ListKeysCmd `cmd:"" name:"list-keys" help:"Show which API keys are configured"`
}

// SetKeyCmd stores an API key in the system keychain.
type SetKeyCmd struct {
	Service string `arg:"" enum:"deepgram,gemini,openai,anthropic" help:"Service name"`
	Secret  string `arg:"" help:"API key value"`
}

// Run executes the set-key command.
func (c *SetKeyCmd) Run() error {
	if strings.TrimSpace(c.Secret) == "" {
		return errors.New("API key cannot be empty")
	}

	apiKey, err := keyring.APIKeyFromServiceName(c.Service)
	if err != nil {
		return fmt.Errorf("invalid service: %w", err)
	}

	if err := keyring.Set(apiKey, c.Secret); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}

	fmt.Printf("%s API key stored in keychain\n", c.Service)

	return nil
}

// ListKeysCmd shows which API keys are configured.
type ListKeysCmd struct{}

// Run executes the list-keys command.
//
//nolint:unparam // error return required by Kong interface
func (c *ListKeysCmd) Run() error {
	fmt.Print(keyStatus(keyring.IsSet))
	return nil
}

func keyStatus(isSet func(keyring.APIKey) bool) string {
	var sb strings.Builder

	allSet := true
	for _, apiKey := range keyring.AllAPIKeys() {
		if isSet(apiKey) {
			fmt.Fprintf(&sb, "%s: configured\n", apiKey.DisplayName())
		} else {
			fmt.Fprintf(&sb, "%s: not set\n", apiKey.DisplayName())
			allSet = false
		}
	}

	if !allSet {
		sb.WriteString("\nRun 'coach config set-key <service> <key>' to configure.\n")
	}

	return sb.String()
}

func progressPrinter(w io.Writer) pipeline.Reporter {
	return func(p pipeline.Progress) {
		if !p.Terminal {
			fmt.Fprintf(w, "%s %d%%\n", p.Stage, p.Percent)
		}
	}
}

func printProgress(w io.Writer, events <-chan workflow.Event) {
	report := progressPrinter(w)
	for ev := range events {
		if ev.Progress != nil {
			report(*ev.Progress)
		}
	}
}

func printSummary(w io.Writer, state workflow.State) {
	if state.Asset == nil {
		return
	}

	fmt.Fprintf(w, "Audio file: %s (%s)\n", state.Asset.Filename, state.Asset.ID)
	if state.Transcript != nil {
		fmt.Fprintf(w, "Transcript: %s\n", state.Transcript.ID)
	}
	if state.Result != nil {
		printAnalysis(w, state.Result)
	}
	if state.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", state.Error)
	}
}

func printAnalysis(w io.Writer, result *domain.AnalysisResult) {
	fmt.Fprintf(w, "Analysis: %s (%s)\n", result.ID, result.AnalysisKind)

	card, err := analysis.ParseScorecard(result.RawResponseText)
	if result.AnalysisKind != analysis.KindSalesCoaching || err != nil {
		fmt.Fprintf(w, "\n%s\n", result.RawResponseText)
		return
	}

	fmt.Fprintf(w, "Overall score: %.1f/10 (%s)\n", card.OverallScore, analysis.Band(card.OverallScore))
	for _, c := range card.Criteria.Ordered() {
		fmt.Fprintf(w, "  %-40s %.1f\n", c.Label, c.Score)
	}
}

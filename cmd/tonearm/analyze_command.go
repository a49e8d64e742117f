package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"tonearm/internal/analysis"
	"tonearm/internal/api"
	"tonearm/internal/client"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var (
		outputDir string
		modelsDir string
		gpu       bool
		disabled  []string
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <audio-file>",
		Short: "Analyze an audio file and stream progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			audioPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve audio path: %w", err)
			}
			if _, err := os.Stat(audioPath); err != nil {
				return fmt.Errorf("audio file: %w", err)
			}

			features, err := featureOverlay(disabled)
			if err != nil {
				return err
			}

			target := strings.TrimSpace(outputDir)
			if target == "" {
				stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
				target = filepath.Join(cfg.Paths.OutputDir, stem)
			}
			target, err = filepath.Abs(target)
			if err != nil {
				return fmt.Errorf("resolve output dir: %w", err)
			}

			req := api.AnalyzeRequest{
				AudioPath: audioPath,
				OutputDir: target,
				Features:  features,
				ModelsDir: strings.TrimSpace(modelsDir),
				GPU:       gpu,
			}

			var result *analysis.AudioAnalysis
			render := newProgressRenderer(cmd.ErrOrStderr(), jsonOut)
			events := client.AnalyzeEvents{
				OnProgress: render.update,
				OnResult:   func(record *analysis.AudioAnalysis) { result = record },
			}

			err = ctx.apiClient().Analyze(cmd.Context(), req, events)
			render.done()
			if err != nil {
				return err
			}
			if result == nil {
				return fmt.Errorf("event stream ended without a result")
			}

			if jsonOut {
				return writeJSON(cmd, result)
			}
			printAnalysisSummary(cmd.OutOrStdout(), result, target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for stems and the result record (default <output root>/<track>)")
	cmd.Flags().StringVar(&modelsDir, "models-dir", "", "Override the daemon's models directory for this run")
	cmd.Flags().BoolVar(&gpu, "gpu", false, "Request GPU execution for model stages")
	cmd.Flags().StringSliceVar(&disabled, "disable", nil, "Stage to skip, repeatable (stems, beats, structure, mood, harmony, low_level, pitch, lyrics, drums, vocal_presence)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result record as JSON")
	return cmd
}

// featureOverlay builds the partial feature selection for the request and
// rejects unknown stage names before anything reaches the daemon.
func featureOverlay(disabled []string) (map[string]bool, error) {
	if len(disabled) == 0 {
		return nil, nil
	}
	overlay := make(map[string]bool, len(disabled))
	for _, stage := range disabled {
		overlay[strings.TrimSpace(stage)] = false
	}
	if _, err := analysis.FeaturesFromMap(overlay); err != nil {
		return nil, err
	}
	return overlay, nil
}

// progressRenderer shows live run progress on a terminal as a progress bar
// and degrades to one line per phase elsewhere. JSON mode stays quiet so
// stdout carries nothing but the result document.
type progressRenderer struct {
	out    io.Writer
	bar    *progressbar.ProgressBar
	silent bool
	last   string
}

func newProgressRenderer(out io.Writer, silent bool) *progressRenderer {
	r := &progressRenderer{out: out, silent: silent}
	if silent || !shouldColorize(out) {
		return r
	}
	r.bar = progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Starting"),
		progressbar.OptionSetWidth(28),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return r
}

func (r *progressRenderer) update(progress api.ProgressEvent) {
	if r.silent {
		return
	}
	label := progress.Phase
	if progress.Detail != "" {
		label = fmt.Sprintf("%s: %s", progress.Phase, progress.Detail)
	}
	if r.bar != nil {
		r.bar.Describe(label)
		_ = r.bar.Set(int(progress.Progress * 100))
		return
	}
	if label != r.last {
		fmt.Fprintf(r.out, "[%3.0f%%] %s\n", progress.Progress*100, label)
		r.last = label
	}
}

func (r *progressRenderer) done() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

func printAnalysisSummary(out io.Writer, result *analysis.AudioAnalysis, outputDir string) {
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Analysis Summary", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, stage := range analysis.StageNames() {
		if !result.Features.Enabled(stage) {
			continue
		}
		label := stageDisplayName(stage)
		if detail, failed := result.Failures[stage]; failed {
			fmt.Fprintln(out, renderStatusLine(label, statusError, detail, colorize))
			continue
		}
		if result.HasPayload(stage) {
			fmt.Fprintln(out, renderStatusLine(label, statusOK, stageHighlight(result, stage), colorize))
			continue
		}
		fmt.Fprintln(out, renderStatusLine(label, statusWarn, "skipped", colorize))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Result written to %s\n", filepath.Join(outputDir, "analysis.json"))
}

// stageHighlight picks one headline figure per completed stage for the
// summary listing. Stages without an obvious single number stay blank.
func stageHighlight(result *analysis.AudioAnalysis, stage string) string {
	switch stage {
	case analysis.StageBeats:
		if result.Beats != nil && result.Beats.Tempo > 0 {
			return fmt.Sprintf("%.1f BPM", result.Beats.Tempo)
		}
	case analysis.StageStructure:
		if result.Structure != nil {
			return fmt.Sprintf("%d sections", len(result.Structure.Sections))
		}
	case analysis.StageLyrics:
		if result.Lyrics != nil && result.Lyrics.Language != "" {
			return fmt.Sprintf("language %s", result.Lyrics.Language)
		}
	case analysis.StageMood:
		if result.Mood != nil {
			if genre := topGenre(result.Mood.Genres); genre != "" {
				return genre
			}
			return fmt.Sprintf("valence %.2f", result.Mood.Valence)
		}
	case analysis.StageHarmony:
		if result.Harmony != nil && result.Harmony.Key != "" {
			return fmt.Sprintf("key %s", result.Harmony.Key)
		}
	case analysis.StagePitch:
		if result.Pitch != nil {
			return fmt.Sprintf("%d notes", len(result.Pitch.Notes))
		}
	case analysis.StageVocalPresence:
		if result.VocalPresence != nil {
			return fmt.Sprintf("%d vocal segments", len(result.VocalPresence.Segments))
		}
	}
	return ""
}

// topGenre returns the highest-confidence genre label, breaking score ties by
// name so the output is stable.
func topGenre(genres map[string]float64) string {
	best := ""
	bestScore := 0.0
	names := make([]string, 0, len(genres))
	for name := range genres {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if score := genres[name]; score > bestScore {
			best = name
			bestScore = score
		}
	}
	return best
}

package stages

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"tonearm/internal/analysis"
	"tonearm/internal/config"
	"tonearm/internal/logging"
	"tonearm/internal/pipeline"
	"tonearm/internal/services"
	"tonearm/internal/services/analyzer"
	"tonearm/internal/services/demucs"
)

// Registry builds the production stage catalogue from configuration, binding
// the producer stage to Demucs and every other stage to the analyzer toolkit.
func Registry(cfg *config.Config) (*pipeline.Registry, error) {
	separator := demucs.NewCLI(
		demucs.WithBinary(cfg.DemucsBinary()),
		demucs.WithModel(cfg.Tools.DemucsModel),
	)
	toolkit := analyzer.NewCLI(analyzer.WithBinary(cfg.AnalyzerBinary()))
	return NewRegistry(separator, toolkit, cfg.SeparationTimeout())
}

// NewRegistry wires the catalogue against explicit clients so tests can
// substitute fakes for the external tools.
func NewRegistry(separator demucs.Separator, toolkit analyzer.Client, separationTimeout time.Duration) (*pipeline.Registry, error) {
	return pipeline.NewRegistry(
		pipeline.Descriptor{
			ID:       analysis.StageStems,
			Phase:    "Source separation (Demucs)...",
			Detail:   "Separating audio into stems",
			Producer: true,
			Timeout:  separationTimeout,
			Run:      Stems(separator),
		},
		pipeline.Descriptor{
			ID:     analysis.StageBeats,
			Phase:  "Beat detection (madmom)...",
			Detail: "Detecting beats and tempo",
			Run:    Analyzer[analysis.BeatAnalysis](toolkit, analysis.StageBeats),
		},
		pipeline.Descriptor{
			ID:     analysis.StageStructure,
			Phase:  "Structure analysis (allin1)...",
			Detail: "Detecting song sections",
			Run:    Analyzer[analysis.StructureAnalysis](toolkit, analysis.StageStructure),
		},
		pipeline.Descriptor{
			ID:     analysis.StageMood,
			Phase:  "Mood analysis...",
			Detail: "Classifying mood and energy",
			Run:    Analyzer[analysis.MoodAnalysis](toolkit, analysis.StageMood),
		},
		pipeline.Descriptor{
			ID:     analysis.StageHarmony,
			Phase:  "Harmony analysis...",
			Detail: "Detecting key and chords",
			Run:    Analyzer[analysis.HarmonyAnalysis](toolkit, analysis.StageHarmony),
		},
		pipeline.Descriptor{
			ID:     analysis.StageLowLevel,
			Phase:  "Feature extraction...",
			Detail: "Extracting audio features",
			Run:    Analyzer[analysis.LowLevelFeatures](toolkit, analysis.StageLowLevel),
		},
		pipeline.Descriptor{
			ID:     analysis.StagePitch,
			Phase:  "Pitch detection (Basic Pitch)...",
			Detail: "Detecting notes",
			Run:    Analyzer[analysis.PitchAnalysis](toolkit, analysis.StagePitch),
		},
		pipeline.Descriptor{
			ID:             analysis.StageLyrics,
			Phase:          "Lyrics transcription (Whisper)...",
			Detail:         "Transcribing vocals",
			FallbackDetail: "Transcribing audio",
			Upstream:       analysis.StageStems,
			Artifact:       "vocals",
			Fallback:       pipeline.FallbackOriginal,
			Run:            Analyzer[analysis.LyricsAnalysis](toolkit, analysis.StageLyrics),
		},
		pipeline.Descriptor{
			ID:       analysis.StageDrums,
			Phase:    "Drum onset detection...",
			Detail:   "Detecting drum hits",
			Upstream: analysis.StageStems,
			Artifact: "drums",
			Fallback: pipeline.FallbackSkip,
			Run:      Analyzer[analysis.DrumAnalysis](toolkit, analysis.StageDrums),
		},
		pipeline.Descriptor{
			ID:       analysis.StageVocalPresence,
			Phase:    "Vocal presence detection...",
			Detail:   "Detecting vocal regions",
			Upstream: analysis.StageStems,
			Artifact: "vocals",
			Fallback: pipeline.FallbackSkip,
			Run:      Analyzer[analysis.VocalPresence](toolkit, analysis.StageVocalPresence),
		},
	)
}

// Stems returns the producer binding. Separation progress is sampled into
// debug logs; missing stems are warnings, not failures, because downstream
// stages have their own fallback policies.
func Stems(separator demucs.Separator) pipeline.StageFunc {
	return func(ctx context.Context, rc *pipeline.RunContext, input string) (any, error) {
		sampler := logging.NewProgressSampler(10)
		logger := stageLogger(rc)
		sep, err := separator.Separate(ctx, input, rc.Request.OutputDir, rc.Request.UseGPU, func(update demucs.ProgressUpdate) {
			if sampler.ShouldLog(update.Percent, "separating", "") {
				logger.Debug("separation progress", logging.Float64(logging.FieldProgressPercent, update.Percent))
			}
		})
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, analysis.StageStems, "separate", "stem separation failed", err)
		}

		result := &analysis.StemAnalysis{
			Vocals: sep.Vocals,
			Drums:  sep.Drums,
			Bass:   sep.Bass,
			Other:  sep.Other,
		}
		for _, missing := range missingStems(result) {
			logger.Warn("expected stem not found", logging.String("stem", missing))
		}
		return result, nil
	}
}

// toolCommands maps stage identifiers to tonearm-analyzer subcommands where
// the two vocabularies differ.
var toolCommands = map[string]string{
	analysis.StageLowLevel:      "lowlevel",
	analysis.StageVocalPresence: "vocals",
}

func toolCommand(stage string) string {
	if cmd, ok := toolCommands[stage]; ok {
		return cmd
	}
	return stage
}

// Analyzer returns a binding that runs one toolkit stage against the
// resolved input and decodes its JSON document into the stage's payload.
func Analyzer[T any](toolkit analyzer.Client, stage string) pipeline.StageFunc {
	return func(ctx context.Context, rc *pipeline.RunContext, input string) (any, error) {
		raw, err := toolkit.Run(ctx, toolCommand(stage), input, analyzer.RunOptions{
			ModelsDir: rc.Request.ModelsDir,
			UseGPU:    rc.Request.UseGPU,
		})
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, stage, "analyze", "analyzer stage failed", err)
		}
		payload := new(T)
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, services.Wrap(services.ErrExternalTool, stage, "decode", "analyzer output did not match the stage contract", err)
		}
		return payload, nil
	}
}

func stageLogger(rc *pipeline.RunContext) *slog.Logger {
	if rc.Logger != nil {
		return rc.Logger
	}
	return logging.NewNop()
}

func missingStems(s *analysis.StemAnalysis) []string {
	var missing []string
	if s.Vocals == "" {
		missing = append(missing, "vocals")
	}
	if s.Drums == "" {
		missing = append(missing, "drums")
	}
	if s.Bass == "" {
		missing = append(missing, "bass")
	}
	if s.Other == "" {
		missing = append(missing, "other")
	}
	return missing
}

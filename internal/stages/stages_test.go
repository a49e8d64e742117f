package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"tonearm/internal/analysis"
	"tonearm/internal/pipeline"
	"tonearm/internal/services"
	"tonearm/internal/services/analyzer"
	"tonearm/internal/services/demucs"
	"tonearm/internal/testsupport"
)

type fakeSeparator struct {
	sep      demucs.Separation
	err      error
	gotInput string
	gotDir   string
	gotGPU   bool
}

func (f *fakeSeparator) Separate(ctx context.Context, audioPath, outputDir string, useGPU bool, progress func(demucs.ProgressUpdate)) (demucs.Separation, error) {
	f.gotInput = audioPath
	f.gotDir = outputDir
	f.gotGPU = useGPU
	if progress != nil {
		progress(demucs.ProgressUpdate{Percent: 50})
	}
	return f.sep, f.err
}

type fakeToolkit struct {
	payloads map[string]string
	err      error
	gotStage string
	gotOpts  analyzer.RunOptions
}

func (f *fakeToolkit) Run(ctx context.Context, stage, inputPath string, opts analyzer.RunOptions) (json.RawMessage, error) {
	f.gotStage = stage
	f.gotOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	payload, ok := f.payloads[stage]
	if !ok {
		return nil, fmt.Errorf("no canned payload for %s", stage)
	}
	return json.RawMessage(payload), nil
}

func runContext() *pipeline.RunContext {
	return &pipeline.RunContext{
		Request: pipeline.Request{
			RunID:     "run-1",
			AudioPath: "/music/track.wav",
			OutputDir: "/out",
			ModelsDir: "/models",
			UseGPU:    true,
		},
	}
}

func TestRegistryPlansCanonicalOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	registry, err := Registry(cfg)
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}

	plan := registry.Plan(analysis.DefaultFeatures())
	want := []string{
		analysis.StageStems,
		analysis.StageBeats,
		analysis.StageStructure,
		analysis.StageMood,
		analysis.StageHarmony,
		analysis.StageLowLevel,
		analysis.StagePitch,
		analysis.StageLyrics,
		analysis.StageDrums,
		analysis.StageVocalPresence,
	}
	if len(plan) != len(want) {
		t.Fatalf("unexpected plan: %v", plan)
	}
	for i := range want {
		if plan[i] != want[i] {
			t.Fatalf("plan %d: got %s want %s (plan %v)", i, plan[i], want[i], plan)
		}
	}

	desc, ok := registry.Describe(analysis.StageStems)
	if !ok {
		t.Fatal("stems descriptor missing")
	}
	if desc.Timeout != cfg.SeparationTimeout() {
		t.Fatalf("expected separation timeout %s, got %s", cfg.SeparationTimeout(), desc.Timeout)
	}
}

func TestStemsBindingConvertsSeparation(t *testing.T) {
	separator := &fakeSeparator{sep: demucs.Separation{
		Vocals: "/out/htdemucs/track/vocals.wav",
		Drums:  "/out/htdemucs/track/drums.wav",
	}}

	payload, err := Stems(separator)(context.Background(), runContext(), "/music/track.wav")
	if err != nil {
		t.Fatalf("Stems: %v", err)
	}

	stems, ok := payload.(*analysis.StemAnalysis)
	if !ok {
		t.Fatalf("unexpected payload type %T", payload)
	}
	if stems.Vocals != separator.sep.Vocals || stems.Drums != separator.sep.Drums {
		t.Fatalf("unexpected stems: %+v", stems)
	}
	if stems.Bass != "" || stems.Other != "" {
		t.Fatalf("missing stems must stay empty, got %+v", stems)
	}
	if separator.gotDir != "/out" {
		t.Fatalf("expected separation into the run output dir, got %q", separator.gotDir)
	}
	if !separator.gotGPU {
		t.Fatal("expected GPU flag to pass through")
	}
}

func TestStemsBindingWrapsFailure(t *testing.T) {
	separator := &fakeSeparator{err: errors.New("boom")}

	_, err := Stems(separator)(context.Background(), runContext(), "/music/track.wav")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
}

func TestAnalyzerBindingDecodesPayload(t *testing.T) {
	toolkit := &fakeToolkit{payloads: map[string]string{
		analysis.StageBeats: `{"beats":[0.5,1.0],"tempo":128,"time_signature":4}`,
	}}

	payload, err := Analyzer[analysis.BeatAnalysis](toolkit, analysis.StageBeats)(context.Background(), runContext(), "/music/track.wav")
	if err != nil {
		t.Fatalf("Analyzer: %v", err)
	}

	beats, ok := payload.(*analysis.BeatAnalysis)
	if !ok {
		t.Fatalf("unexpected payload type %T", payload)
	}
	if beats.Tempo != 128 || len(beats.Beats) != 2 || beats.TimeSignature != 4 {
		t.Fatalf("unexpected beats payload: %+v", beats)
	}
	if toolkit.gotOpts.ModelsDir != "/models" || !toolkit.gotOpts.UseGPU {
		t.Fatalf("expected run options to pass through, got %+v", toolkit.gotOpts)
	}
}

func TestAnalyzerBindingWrapsToolFailure(t *testing.T) {
	toolkit := &fakeToolkit{err: errors.New("exit status 1")}

	_, err := Analyzer[analysis.MoodAnalysis](toolkit, analysis.StageMood)(context.Background(), runContext(), "/music/track.wav")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
}

func TestAnalyzerBindingMapsToolSubcommands(t *testing.T) {
	toolkit := &fakeToolkit{payloads: map[string]string{
		"lowlevel": `{}`,
		"vocals":   `{}`,
	}}

	if _, err := Analyzer[analysis.LowLevelFeatures](toolkit, analysis.StageLowLevel)(context.Background(), runContext(), "/music/track.wav"); err != nil {
		t.Fatalf("low_level: %v", err)
	}
	if toolkit.gotStage != "lowlevel" {
		t.Fatalf("expected lowlevel subcommand, got %q", toolkit.gotStage)
	}

	if _, err := Analyzer[analysis.VocalPresence](toolkit, analysis.StageVocalPresence)(context.Background(), runContext(), "/music/track.wav"); err != nil {
		t.Fatalf("vocal_presence: %v", err)
	}
	if toolkit.gotStage != "vocals" {
		t.Fatalf("expected vocals subcommand, got %q", toolkit.gotStage)
	}
}

func TestAnalyzerBindingRejectsMismatchedDocument(t *testing.T) {
	toolkit := &fakeToolkit{payloads: map[string]string{
		analysis.StageBeats: `{"tempo":"fast"}`,
	}}

	if _, err := Analyzer[analysis.BeatAnalysis](toolkit, analysis.StageBeats)(context.Background(), runContext(), "/music/track.wav"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRegistryThroughPipelineRun(t *testing.T) {
	separator := &fakeSeparator{sep: demucs.Separation{
		Vocals: "/out/htdemucs/track/vocals.wav",
		Drums:  "/out/htdemucs/track/drums.wav",
		Bass:   "/out/htdemucs/track/bass.wav",
		Other:  "/out/htdemucs/track/other.wav",
	}}
	toolkit := &fakeToolkit{payloads: map[string]string{
		analysis.StageBeats:  `{"tempo":120}`,
		analysis.StageLyrics: `{"full_text":"hello","language":"en"}`,
	}}

	registry, err := NewRegistry(separator, toolkit, time.Minute)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	p, err := pipeline.New(registry, nil, 4)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	events, err := p.Run(context.Background(), pipeline.Request{
		RunID:     "run-9",
		AudioPath: "/music/track.wav",
		OutputDir: "/out",
		Features:  analysis.Features{Stems: true, Beats: true, Lyrics: true},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var result *analysis.AudioAnalysis
	for ev := range events {
		if ev.Kind == pipeline.EventResult {
			result = ev.Result
		}
	}
	if result == nil {
		t.Fatal("expected result event")
	}
	if result.Stems == nil || result.Beats == nil || result.Lyrics == nil {
		t.Fatalf("expected all three stages to succeed, got %+v", result)
	}
	if result.Lyrics.FullText != "hello" {
		t.Fatalf("unexpected lyrics: %+v", result.Lyrics)
	}
}

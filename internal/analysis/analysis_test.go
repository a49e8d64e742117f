package analysis_test

import (
	"encoding/json"
	"strings"
	"testing"

	"tonearm/internal/analysis"
)

func TestFeaturesFromMapDefaultsAndOverrides(t *testing.T) {
	features, err := analysis.FeaturesFromMap(map[string]bool{"stems": false, "drums": false})
	if err != nil {
		t.Fatalf("FeaturesFromMap returned error: %v", err)
	}
	if features.Stems || features.Drums {
		t.Fatalf("expected stems and drums disabled, got %+v", features)
	}
	if !features.Beats || !features.Lyrics || !features.VocalPresence {
		t.Fatalf("expected untouched features to stay enabled, got %+v", features)
	}
}

func TestFeaturesFromMapRejectsUnknownKey(t *testing.T) {
	if _, err := analysis.FeaturesFromMap(map[string]bool{"tempo": true}); err == nil {
		t.Fatal("expected error for unknown feature key")
	} else if !strings.Contains(err.Error(), "tempo") {
		t.Fatalf("expected offending key in error, got %v", err)
	}
}

func TestFeaturesEnabled(t *testing.T) {
	features := analysis.DefaultFeatures()
	features.Harmony = false

	if features.Enabled("harmony") {
		t.Fatal("expected harmony disabled")
	}
	if !features.Enabled("low_level") {
		t.Fatal("expected low_level enabled")
	}
	if features.Enabled("bogus") {
		t.Fatal("expected unknown stage to report disabled")
	}
}

func TestAttachStoresPayloadInSlot(t *testing.T) {
	record := &analysis.AudioAnalysis{Features: analysis.DefaultFeatures()}

	beats := &analysis.BeatAnalysis{Tempo: 120, TimeSignature: 4}
	if err := record.Attach("beats", beats); err != nil {
		t.Fatalf("Attach beats: %v", err)
	}
	if record.Beats == nil || record.Beats.Tempo != 120 {
		t.Fatalf("expected beats slot populated, got %+v", record.Beats)
	}

	stems := &analysis.StemAnalysis{Vocals: "/tmp/vocals.wav"}
	if err := record.Attach("stems", stems); err != nil {
		t.Fatalf("Attach stems: %v", err)
	}
	if record.Stems == nil || record.Stems.Vocals != "/tmp/vocals.wav" {
		t.Fatalf("expected stems slot populated, got %+v", record.Stems)
	}
}

func TestAttachRejectsMismatchedPayload(t *testing.T) {
	record := &analysis.AudioAnalysis{}
	if err := record.Attach("beats", &analysis.StemAnalysis{}); err == nil {
		t.Fatal("expected error for mismatched payload type")
	}
	if err := record.Attach("nope", &analysis.BeatAnalysis{}); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestRecordFailure(t *testing.T) {
	record := &analysis.AudioAnalysis{}
	record.RecordFailure("stems", "external tool error: stems: separate: exit 1")

	if got := record.Failures["stems"]; !strings.Contains(got, "exit 1") {
		t.Fatalf("expected failure description recorded, got %q", got)
	}
}

func TestMarshalKeepsNullSlotsAndOmitsEmptyFailures(t *testing.T) {
	record := &analysis.AudioAnalysis{Features: analysis.DefaultFeatures()}
	record.Beats = &analysis.BeatAnalysis{Tempo: 98.5}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `"structure":null`) {
		t.Fatalf("expected null slot for structure, got %s", text)
	}
	if !strings.Contains(text, `"tempo":98.5`) {
		t.Fatalf("expected beats payload, got %s", text)
	}
	if strings.Contains(text, "failures") {
		t.Fatalf("expected failures omitted when empty, got %s", text)
	}
}

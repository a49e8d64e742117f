// Package analysis defines the typed result record produced by an analysis
// run. Every stage payload is optional so analysis can run incrementally
// (beats only, or stems plus lyrics) and so failed stages leave their slot
// empty instead of poisoning the whole record.
package analysis

import "fmt"

// AudioAnalysis is the complete result record for one run. Slots for stages
// that never ran or failed are nil and serialize as explicit nulls.
type AudioAnalysis struct {
	// Features echoes the selection the run was planned from.
	Features Features `json:"features"`

	Beats         *BeatAnalysis      `json:"beats"`
	Structure     *StructureAnalysis `json:"structure"`
	Stems         *StemAnalysis      `json:"stems"`
	Lyrics        *LyricsAnalysis    `json:"lyrics"`
	Mood          *MoodAnalysis      `json:"mood"`
	Harmony       *HarmonyAnalysis   `json:"harmony"`
	LowLevel      *LowLevelFeatures  `json:"low_level"`
	Pitch         *PitchAnalysis     `json:"pitch"`
	Drums         *DrumAnalysis      `json:"drums"`
	VocalPresence *VocalPresence     `json:"vocal_presence"`

	// Failures maps stage names to error descriptions for stages that were
	// attempted and failed. Stages skipped for a missing dependency are not
	// listed here.
	Failures map[string]string `json:"failures,omitempty"`
}

// Attach stores a stage payload into its slot. The payload type must match
// the stage; anything else is a programming error surfaced to the caller.
func (a *AudioAnalysis) Attach(stage string, payload any) error {
	switch stage {
	case StageStems:
		return attach(&a.Stems, stage, payload)
	case StageBeats:
		return attach(&a.Beats, stage, payload)
	case StageStructure:
		return attach(&a.Structure, stage, payload)
	case StageLyrics:
		return attach(&a.Lyrics, stage, payload)
	case StageMood:
		return attach(&a.Mood, stage, payload)
	case StageHarmony:
		return attach(&a.Harmony, stage, payload)
	case StageLowLevel:
		return attach(&a.LowLevel, stage, payload)
	case StagePitch:
		return attach(&a.Pitch, stage, payload)
	case StageDrums:
		return attach(&a.Drums, stage, payload)
	case StageVocalPresence:
		return attach(&a.VocalPresence, stage, payload)
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

func attach[T any](slot **T, stage string, payload any) error {
	value, ok := payload.(*T)
	if !ok {
		return fmt.Errorf("stage %s: payload type %T does not match slot %T", stage, payload, *slot)
	}
	*slot = value
	return nil
}

// RecordFailure notes an attempted stage that failed.
func (a *AudioAnalysis) RecordFailure(stage, description string) {
	if a.Failures == nil {
		a.Failures = make(map[string]string)
	}
	a.Failures[stage] = description
}

// HasPayload reports whether the named stage produced a result.
func (a *AudioAnalysis) HasPayload(stage string) bool {
	switch stage {
	case StageStems:
		return a.Stems != nil
	case StageBeats:
		return a.Beats != nil
	case StageStructure:
		return a.Structure != nil
	case StageLyrics:
		return a.Lyrics != nil
	case StageMood:
		return a.Mood != nil
	case StageHarmony:
		return a.Harmony != nil
	case StageLowLevel:
		return a.LowLevel != nil
	case StagePitch:
		return a.Pitch != nil
	case StageDrums:
		return a.Drums != nil
	case StageVocalPresence:
		return a.VocalPresence != nil
	default:
		return false
	}
}

// BeatAnalysis carries beat and tempo estimates.
type BeatAnalysis struct {
	// Beat times in seconds.
	Beats []float64 `json:"beats"`
	// Downbeat times in seconds (first beat of each measure).
	Downbeats []float64 `json:"downbeats"`
	// Estimated tempo in BPM.
	Tempo float64 `json:"tempo"`
	// Time signature numerator (e.g. 4 for 4/4).
	TimeSignature int `json:"time_signature"`
	// Per-beat confidence values (0.0 to 1.0).
	BeatConfidences []float64 `json:"beat_confidences"`
	// Overall tempo confidence (0.0 to 1.0).
	TempoConfidence float64 `json:"tempo_confidence"`
}

// StructureAnalysis partitions the track into labeled sections.
type StructureAnalysis struct {
	Sections []SongSection `json:"sections"`
}

// SongSection is one labeled span of the track.
type SongSection struct {
	// Section label: "intro", "verse", "chorus", "bridge", "outro", etc.
	Label string `json:"label"`
	// Start time in seconds.
	Start float64 `json:"start"`
	// End time in seconds.
	End float64 `json:"end"`
	// Confidence (0.0 to 1.0).
	Confidence float64 `json:"confidence"`
}

// StemAnalysis holds paths to the separated stem files. A missing stem is an
// empty string, not an error.
type StemAnalysis struct {
	Vocals string `json:"vocals"`
	Drums  string `json:"drums"`
	Bass   string `json:"bass"`
	Other  string `json:"other"`
}

// LyricsAnalysis carries the transcription with word-level timing.
type LyricsAnalysis struct {
	Words []LyricWord `json:"words"`
	// Full transcription text.
	FullText string `json:"full_text"`
	// Detected language code (e.g. "en").
	Language string `json:"language"`
}

// LyricWord is one transcribed word with timing.
type LyricWord struct {
	Word string `json:"word"`
	// Start time in seconds.
	Start float64 `json:"start"`
	// End time in seconds.
	End float64 `json:"end"`
	// Confidence (0.0 to 1.0).
	Confidence float64 `json:"confidence"`
}

// MoodAnalysis carries high-level perceptual descriptors.
type MoodAnalysis struct {
	// Valence: negative (sad) to positive (happy), 0.0 to 1.0.
	Valence float64 `json:"valence"`
	// Arousal: calm to energetic, 0.0 to 1.0.
	Arousal float64 `json:"arousal"`
	// Danceability, 0.0 to 1.0.
	Danceability float64 `json:"danceability"`
	// Predicted genres with confidence scores.
	Genres map[string]float64 `json:"genres"`
}

// HarmonyAnalysis carries the detected key and chord progression.
type HarmonyAnalysis struct {
	// Detected key (e.g. "C major", "A minor").
	Key string `json:"key"`
	// Key detection confidence (0.0 to 1.0).
	KeyConfidence float64      `json:"key_confidence"`
	Chords        []ChordEvent `json:"chords"`
}

// ChordEvent is one chord span in the progression.
type ChordEvent struct {
	// Chord label (e.g. "Cmaj", "Am7", "N" for no chord).
	Label string `json:"label"`
	// Start time in seconds.
	Start float64 `json:"start"`
	// End time in seconds.
	End float64 `json:"end"`
}

// LowLevelFeatures carries frame-level signal curves.
type LowLevelFeatures struct {
	// RMS energy curve, one value per time step.
	RMS []float64 `json:"rms"`
	// Spectral centroid curve in Hz, one per time step.
	SpectralCentroid []float64 `json:"spectral_centroid"`
	// Onset strength curve, one per time step.
	OnsetStrength []float64 `json:"onset_strength"`
	// Time step between samples in seconds.
	TimeStep float64 `json:"time_step"`
	// Chromagram: 12 rows (C, C#, ..., B) x N time steps, flattened row-major.
	Chromagram []float64 `json:"chromagram"`
	// Number of time steps (columns in the chromagram).
	ChromagramLength int `json:"chromagram_length"`
}

// PitchAnalysis carries detected note events.
type PitchAnalysis struct {
	Notes []NoteEvent `json:"notes"`
}

// NoteEvent is one detected note.
type NoteEvent struct {
	// MIDI note number (0 to 127).
	MidiNote int `json:"midi_note"`
	// Start time in seconds.
	Start float64 `json:"start"`
	// End time in seconds.
	End float64 `json:"end"`
	// Velocity / amplitude (0.0 to 1.0).
	Velocity float64 `json:"velocity"`
}

// DrumAnalysis carries percussive onset times and strengths.
type DrumAnalysis struct {
	// Onset times in seconds.
	Onsets []float64 `json:"onsets"`
	// Onset strengths (0.0 to 1.0), parallel to Onsets.
	Strengths []float64 `json:"strengths"`
}

// VocalPresence marks spans where vocals are audible.
type VocalPresence struct {
	Segments []VocalSegment `json:"segments"`
}

// VocalSegment is one span with vocals present.
type VocalSegment struct {
	// Start time in seconds.
	Start float64 `json:"start"`
	// End time in seconds.
	End float64 `json:"end"`
}

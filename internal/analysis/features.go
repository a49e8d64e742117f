package analysis

import "fmt"

// Stage identifiers, in registry priority order.
const (
	StageStems         = "stems"
	StageBeats         = "beats"
	StageStructure     = "structure"
	StageMood          = "mood"
	StageHarmony       = "harmony"
	StageLowLevel      = "low_level"
	StagePitch         = "pitch"
	StageLyrics        = "lyrics"
	StageDrums         = "drums"
	StageVocalPresence = "vocal_presence"
)

// StageNames lists every stage identifier in registry priority order.
func StageNames() []string {
	return []string{
		StageStems,
		StageBeats,
		StageStructure,
		StageMood,
		StageHarmony,
		StageLowLevel,
		StagePitch,
		StageLyrics,
		StageDrums,
		StageVocalPresence,
	}
}

// Features holds the per-stage enable flags for a run. The zero value
// disables everything; use DefaultFeatures for the all-enabled selection.
type Features struct {
	Beats         bool `json:"beats"`
	Structure     bool `json:"structure"`
	Stems         bool `json:"stems"`
	Lyrics        bool `json:"lyrics"`
	Mood          bool `json:"mood"`
	Harmony       bool `json:"harmony"`
	LowLevel      bool `json:"low_level"`
	Pitch         bool `json:"pitch"`
	Drums         bool `json:"drums"`
	VocalPresence bool `json:"vocal_presence"`
}

// DefaultFeatures enables every stage.
func DefaultFeatures() Features {
	return Features{
		Beats:         true,
		Structure:     true,
		Stems:         true,
		Lyrics:        true,
		Mood:          true,
		Harmony:       true,
		LowLevel:      true,
		Pitch:         true,
		Drums:         true,
		VocalPresence: true,
	}
}

// FeaturesFromMap applies a partial selection on top of the defaults. Absent
// keys stay enabled; an unknown key is an error so callers never silently run
// a selection they did not mean.
func FeaturesFromMap(selection map[string]bool) (Features, error) {
	features := DefaultFeatures()
	for name, enabled := range selection {
		if err := features.set(name, enabled); err != nil {
			return Features{}, err
		}
	}
	return features, nil
}

// Map returns the selection keyed by stage name, mirroring the wire format.
func (f Features) Map() map[string]bool {
	return map[string]bool{
		StageBeats:         f.Beats,
		StageStructure:     f.Structure,
		StageStems:         f.Stems,
		StageLyrics:        f.Lyrics,
		StageMood:          f.Mood,
		StageHarmony:       f.Harmony,
		StageLowLevel:      f.LowLevel,
		StagePitch:         f.Pitch,
		StageDrums:         f.Drums,
		StageVocalPresence: f.VocalPresence,
	}
}

// Enabled reports whether the named stage is selected.
func (f Features) Enabled(stage string) bool {
	switch stage {
	case StageBeats:
		return f.Beats
	case StageStructure:
		return f.Structure
	case StageStems:
		return f.Stems
	case StageLyrics:
		return f.Lyrics
	case StageMood:
		return f.Mood
	case StageHarmony:
		return f.Harmony
	case StageLowLevel:
		return f.LowLevel
	case StagePitch:
		return f.Pitch
	case StageDrums:
		return f.Drums
	case StageVocalPresence:
		return f.VocalPresence
	default:
		return false
	}
}

func (f *Features) set(stage string, enabled bool) error {
	switch stage {
	case StageBeats:
		f.Beats = enabled
	case StageStructure:
		f.Structure = enabled
	case StageStems:
		f.Stems = enabled
	case StageLyrics:
		f.Lyrics = enabled
	case StageMood:
		f.Mood = enabled
	case StageHarmony:
		f.Harmony = enabled
	case StageLowLevel:
		f.LowLevel = enabled
	case StagePitch:
		f.Pitch = enabled
	case StageDrums:
		f.Drums = enabled
	case StageVocalPresence:
		f.VocalPresence = enabled
	default:
		return fmt.Errorf("unknown feature %q", stage)
	}
	return nil
}

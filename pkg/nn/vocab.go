package nn

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Vocabulary is the injectable PPE class configuration.
// Two incompatible vocabularies exist upstream (a 6-class site-safety set
// and a 5-class clean-room set), so the class set, the upstream label
// mapping, and the required subset are all configuration, never constants.
type Vocabulary struct {
	Name     string            `json:"name"`
	Classes  []string          `json:"classes"`  // Canonical PPE classes (excludes "person")
	LabelMap map[string]string `json:"labelMap"` // lowercase upstream class_name -> canonical class
	Required []string          `json:"required"` // Subset of Classes used for alert derivation
}

// SiteSafetyVocabulary is the 6-class hat/mask/boots/hearing/glasses/gloves
// set. This is the default.
func SiteSafetyVocabulary() *Vocabulary {
	return &Vocabulary{
		Name:    "sitesafety",
		Classes: []string{"hat", "mask", "boots", "hearing", "glasses", "gloves"},
		LabelMap: map[string]string{
			"hat":      "hat",
			"helmet":   "hat",
			"hardhat":  "hat",
			"mask":     "mask",
			"facemask": "mask",
			"boots":    "boots",
			"hearing":  "hearing",
			"earmuffs": "hearing",
			"glasses":  "glasses",
			"goggles":  "glasses",
			"gloves":   "gloves",
		},
		Required: []string{"mask", "glasses", "hearing"},
	}
}

// CleanRoomVocabulary is the 5-class mask/gloves/goggles/coverall/face_shield set.
func CleanRoomVocabulary() *Vocabulary {
	return &Vocabulary{
		Name:    "cleanroom",
		Classes: []string{"mask", "gloves", "goggles", "coverall", "face_shield"},
		LabelMap: map[string]string{
			"mask":        "mask",
			"gloves":      "gloves",
			"goggles":     "goggles",
			"coverall":    "coverall",
			"coveralls":   "coverall",
			"face_shield": "face_shield",
			"faceshield":  "face_shield",
		},
		Required: []string{"mask", "goggles", "coverall"},
	}
}

// LoadVocabulary reads a vocabulary from a JSON file.
func LoadVocabulary(filename string) (*Vocabulary, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	v := &Vocabulary{}
	if err := json.Unmarshal(b, v); err != nil {
		return nil, err
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid vocabulary in %v: %w", filename, err)
	}
	return v, nil
}

func (v *Vocabulary) Validate() error {
	if len(v.Classes) == 0 {
		return fmt.Errorf("Vocabulary has no classes")
	}
	have := map[string]bool{}
	for _, c := range v.Classes {
		have[c] = true
	}
	for label, c := range v.LabelMap {
		if label != strings.ToLower(label) {
			return fmt.Errorf("LabelMap key '%v' must be lowercase", label)
		}
		if !have[c] {
			return fmt.Errorf("LabelMap entry '%v' maps to unknown class '%v'", label, c)
		}
	}
	for _, c := range v.Required {
		if !have[c] {
			return fmt.Errorf("Required class '%v' is not in the class list", c)
		}
	}
	return nil
}

// Canonical maps an upstream class_name to its canonical class.
// Unknown labels return ok=false, and the caller is expected to drop them
// silently. Upstream adds labels over time, and we tolerate ones we don't
// know about.
func (v *Vocabulary) Canonical(label string) (string, bool) {
	c, ok := v.LabelMap[strings.ToLower(strings.TrimSpace(label))]
	return c, ok
}

// RequiredSet returns the required classes as a set.
func (v *Vocabulary) RequiredSet() map[string]bool {
	set := make(map[string]bool, len(v.Required))
	for _, c := range v.Required {
		set[c] = true
	}
	return set
}

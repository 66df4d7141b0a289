package nn

import (
	"time"
)

// Package nn holds the canonical detection model that the detection client,
// reconciler and aggregation store all share.

// Detections below this confidence are discarded. The comparison is
// inclusive, so a detection at exactly the threshold is retained.
const DefaultMinConfidence = 0.5

// If a new person box overlaps an existing person box by more than this
// fraction of the new box's area, the new box is considered a duplicate.
const DefaultOverlapThreshold = 0.7

// ClassPerson is the one non-PPE class in every vocabulary.
const ClassPerson = "person"

// Detection is one classified object instance found in one sampled frame.
type Detection struct {
	ID              int64     `json:"id"`
	Class           string    `json:"class"`
	Confidence      float32   `json:"confidence"`
	Box             Rect      `json:"box"`
	Frame           int       `json:"frame"`
	SourceClassName string    `json:"sourceClassName,omitempty"` // Original label from the detector, kept for diagnostics
	Time            time.Time `json:"time"`
}

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low" // Declared in the taxonomy, but no rule currently produces it
)

// Alert is a derived fact: a specific detected person is missing one or
// more required PPE classes in one frame.
type Alert struct {
	PersonID       int64     `json:"personID"` // Back-reference to the person Detection. Never a copy of the record.
	MissingClasses []string  `json:"missingClasses"`
	Severity       Severity  `json:"severity"`
	Frame          int       `json:"frame"`
	Time           time.Time `json:"time"`
}

// SeverityForMissing returns the alert severity for the given number of
// missing PPE classes. Zero missing classes means no alert, and we return
// an empty severity.
func SeverityForMissing(nMissing int) Severity {
	switch {
	case nMissing >= 2:
		return SeverityHigh
	case nMissing == 1:
		return SeverityMedium
	}
	return ""
}

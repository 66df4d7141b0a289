package reconcile

import (
	"sort"
	"time"

	flatbush "github.com/bmharper/flatbush-go"
	"github.com/cyclopcam/logs"
	"github.com/ppecam/ppecam/pkg/idgen"
	"github.com/ppecam/ppecam/pkg/nn"
	"github.com/ppecam/ppecam/server/detect"
)

// Reconciler merges one frame's raw person and PPE detections into the
// canonical detection/alert model.
//
// The PPE service does not associate items with specific persons, so PPE
// presence is a per-frame class set: "the frame has at least one mask",
// not "this person wears a mask".

// FrameResult is the reconciler's output for one frame, ready to be merged
// into the aggregation store.
type FrameResult struct {
	Frame      int            `json:"frame"`
	Detections []nn.Detection `json:"detections"`
	Alerts     []nn.Alert     `json:"alerts"`
}

type Reconciler struct {
	log              logs.Log
	vocab            *nn.Vocabulary
	minConfidence    float32
	overlapThreshold float32
	ids              idgen.Int64
}

func NewReconciler(logger logs.Log, vocab *nn.Vocabulary) *Reconciler {
	return &Reconciler{
		log:              logger,
		vocab:            vocab,
		minConfidence:    nn.DefaultMinConfidence,
		overlapThreshold: nn.DefaultOverlapThreshold,
	}
}

// SetMinConfidence overrides the default confidence floor.
func (r *Reconciler) SetMinConfidence(t float32) {
	r.minConfidence = t
}

// Reconcile turns one frame's raw service output into canonical detections
// and alerts. existingPersons is the store's accumulated person list; new
// person boxes are deduplicated against it (and against persons accepted
// earlier in this same frame), using intersection area over the new box's
// own area. Nil inputs mean zero detections.
func (r *Reconciler) Reconcile(persons, ppe []detect.Raw, frame int, existingPersons []nn.Detection) *FrameResult {
	now := time.Now()
	res := &FrameResult{
		Frame:      frame,
		Detections: []nn.Detection{},
		Alerts:     []nn.Alert{},
	}

	// 1. Confidence-filter raw persons and map to canonical detections.
	// The filter is inclusive at the threshold.
	framePersons := []nn.Detection{}
	for _, p := range persons {
		if p.Score < r.minConfidence {
			continue
		}
		framePersons = append(framePersons, nn.Detection{
			ID:         r.ids.Next(),
			Class:      nn.ClassPerson,
			Confidence: p.Score,
			Box:        p.Box,
			Frame:      frame,
			Time:       now,
		})
	}

	// 2. Map PPE labels through the vocabulary. Unmapped labels are dropped
	// silently: upstream grows labels over time, and we only care about the
	// ones our vocabulary knows.
	observed := map[string]bool{}
	ppeDetections := []nn.Detection{}
	for _, p := range ppe {
		if p.Score < r.minConfidence {
			continue
		}
		class, ok := r.vocab.Canonical(p.Label)
		if !ok {
			continue
		}
		observed[class] = true
		ppeDetections = append(ppeDetections, nn.Detection{
			ID:              r.ids.Next(),
			Class:           class,
			Confidence:      p.Score,
			Box:             p.Box,
			Frame:           frame,
			SourceClassName: p.Label,
			Time:            now,
		})
	}

	// 3+4. Missing = required − observed, per frame.
	missing := []string{}
	for _, class := range r.vocab.Required {
		if !observed[class] {
			missing = append(missing, class)
		}
	}
	sort.Strings(missing)

	// 5. One alert per person that survived the confidence filter.
	// Alerts are derived before dedup: a person we later drop as a
	// duplicate box still represents a sighting in this frame.
	if len(missing) != 0 {
		for _, person := range framePersons {
			res.Alerts = append(res.Alerts, nn.Alert{
				PersonID:       person.ID,
				MissingClasses: missing,
				Severity:       nn.SeverityForMissing(len(missing)),
				Frame:          frame,
				Time:           now,
			})
		}
	}

	// 6. Deduplicate person boxes against everything accumulated so far.
	// The overlap ratio is normalized by the new box's area, and the
	// existing box always wins. PPE detections are never deduplicated.
	accepted := r.dedupPersons(framePersons, existingPersons)

	res.Detections = append(res.Detections, accepted...)
	res.Detections = append(res.Detections, ppeDetections...)
	return res
}

func (r *Reconciler) dedupPersons(candidates, existing []nn.Detection) []nn.Detection {
	// Spatial index over the accumulated persons, so that a long session
	// doesn't degrade into a full pairwise scan per frame.
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(existing))
	for _, e := range existing {
		fb.Add(int32(e.Box.X), int32(e.Box.Y), int32(e.Box.X2()), int32(e.Box.Y2()))
	}
	fb.Finish()

	accepted := []nn.Detection{}
	for _, cand := range candidates {
		dup := false
		for _, j := range fb.Search(int32(cand.Box.X), int32(cand.Box.Y), int32(cand.Box.X2()), int32(cand.Box.Y2())) {
			if cand.Box.OverlapOfArea(existing[j].Box) > r.overlapThreshold {
				dup = true
				break
			}
		}
		// Also compare against persons accepted earlier in this frame
		for _, a := range accepted {
			if dup {
				break
			}
			if cand.Box.OverlapOfArea(a.Box) > r.overlapThreshold {
				dup = true
			}
		}
		if !dup {
			accepted = append(accepted, cand)
		}
	}
	return accepted
}

package reconcile

import (
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/ppecam/ppecam/pkg/nn"
	"github.com/ppecam/ppecam/server/detect"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(t *testing.T) *Reconciler {
	return NewReconciler(logs.NewTestingLog(t), nn.SiteSafetyVocabulary())
}

func personsOf(res *FrameResult) []nn.Detection {
	out := []nn.Detection{}
	for _, d := range res.Detections {
		if d.Class == nn.ClassPerson {
			out = append(out, d)
		}
	}
	return out
}

func TestConfidenceFilter(t *testing.T) {
	r := newTestReconciler(t)
	persons := []detect.Raw{
		{Score: 0.49, Box: nn.Rect{X: 0, Y: 0, Width: 10, Height: 10}},
		{Score: 0.5, Box: nn.Rect{X: 100, Y: 0, Width: 10, Height: 10}},
		{Score: 0.9, Box: nn.Rect{X: 200, Y: 0, Width: 10, Height: 10}},
	}
	res := r.Reconcile(persons, nil, 0, nil)
	got := personsOf(res)
	require.Len(t, got, 2)
	// The filter is inclusive at the boundary: 0.5 survives
	require.Equal(t, float32(0.5), got[0].Confidence)
	require.Equal(t, float32(0.9), got[1].Confidence)
}

func TestAlertDerivation(t *testing.T) {
	r := newTestReconciler(t)
	persons := []detect.Raw{{Score: 0.9, Box: nn.Rect{X: 10, Y: 10, Width: 50, Height: 90}}}
	ppe := []detect.Raw{{Label: "mask", Score: 0.8, Box: nn.Rect{X: 15, Y: 15, Width: 10, Height: 10}}}

	res := r.Reconcile(persons, ppe, 3, nil)

	// required = {mask, glasses, hearing}, mask observed
	require.Len(t, res.Alerts, 1)
	alert := res.Alerts[0]
	require.Equal(t, []string{"glasses", "hearing"}, alert.MissingClasses)
	require.Equal(t, nn.SeverityHigh, alert.Severity)
	require.Equal(t, 3, alert.Frame)
	require.Equal(t, personsOf(res)[0].ID, alert.PersonID)
}

func TestAlertSeverityTiers(t *testing.T) {
	r := newTestReconciler(t)
	person := []detect.Raw{{Score: 0.9, Box: nn.Rect{X: 0, Y: 0, Width: 40, Height: 80}}}

	// Two of three required observed: exactly one missing -> medium
	ppe := []detect.Raw{
		{Label: "mask", Score: 0.8, Box: nn.Rect{X: 0, Y: 0, Width: 5, Height: 5}},
		{Label: "goggles", Score: 0.8, Box: nn.Rect{X: 0, Y: 10, Width: 5, Height: 5}},
	}
	res := r.Reconcile(person, ppe, 0, nil)
	require.Len(t, res.Alerts, 1)
	require.Equal(t, []string{"hearing"}, res.Alerts[0].MissingClasses)
	require.Equal(t, nn.SeverityMedium, res.Alerts[0].Severity)

	// All required observed: no alert at all
	ppe = append(ppe, detect.Raw{Label: "earmuffs", Score: 0.8, Box: nn.Rect{X: 0, Y: 20, Width: 5, Height: 5}})
	res = r.Reconcile(person, ppe, 1, nil)
	require.Len(t, res.Alerts, 0)
}

func TestNoPersonsNoAlerts(t *testing.T) {
	r := newTestReconciler(t)
	// PPE missing, but nobody visible -> nothing to alert on
	res := r.Reconcile(nil, nil, 0, nil)
	require.Len(t, res.Detections, 0)
	require.Len(t, res.Alerts, 0)
}

func TestUnmappedLabelsDropped(t *testing.T) {
	r := newTestReconciler(t)
	ppe := []detect.Raw{
		{Label: "jetpack", Score: 0.99, Box: nn.Rect{X: 0, Y: 0, Width: 5, Height: 5}},
		{Label: "HELMET", Score: 0.8, Box: nn.Rect{X: 10, Y: 0, Width: 5, Height: 5}},
	}
	res := r.Reconcile(nil, ppe, 0, nil)
	require.Len(t, res.Detections, 1)
	require.Equal(t, "hat", res.Detections[0].Class)
	require.Equal(t, "HELMET", res.Detections[0].SourceClassName)
}

func TestPersonDedupAcrossFrames(t *testing.T) {
	r := newTestReconciler(t)

	// Frame 0: one person
	res0 := r.Reconcile([]detect.Raw{{Score: 0.9, Box: nn.Rect{X: 10, Y: 10, Width: 50, Height: 90}}}, nil, 0, nil)
	require.Len(t, personsOf(res0), 1)
	accumulated := personsOf(res0)

	// Frame 1: nearly identical box -> duplicate, dropped; existing retained
	res1 := r.Reconcile([]detect.Raw{{Score: 0.95, Box: nn.Rect{X: 12, Y: 11, Width: 49, Height: 88}}}, nil, 1, accumulated)
	require.Len(t, personsOf(res1), 0)

	// A person elsewhere in the frame is not a duplicate
	res2 := r.Reconcile([]detect.Raw{{Score: 0.9, Box: nn.Rect{X: 400, Y: 10, Width: 50, Height: 90}}}, nil, 2, accumulated)
	require.Len(t, personsOf(res2), 1)
}

func TestPersonDedupIsAsymmetric(t *testing.T) {
	r := newTestReconciler(t)
	// The candidate is small and entirely inside the accumulated box, so
	// overlap/area(candidate) = 1 -> dropped
	existing := []nn.Detection{{ID: 1, Class: nn.ClassPerson, Box: nn.Rect{X: 0, Y: 0, Width: 100, Height: 100}}}
	small := []detect.Raw{{Score: 0.9, Box: nn.Rect{X: 10, Y: 10, Width: 20, Height: 20}}}
	res := r.Reconcile(small, nil, 1, existing)
	require.Len(t, personsOf(res), 0)

	// The reverse: a large candidate over a small accumulated box overlaps
	// only a fraction of its own area -> retained
	existingSmall := []nn.Detection{{ID: 2, Class: nn.ClassPerson, Box: nn.Rect{X: 10, Y: 10, Width: 20, Height: 20}}}
	big := []detect.Raw{{Score: 0.9, Box: nn.Rect{X: 0, Y: 0, Width: 100, Height: 100}}}
	res = r.Reconcile(big, nil, 1, existingSmall)
	require.Len(t, personsOf(res), 1)
}

func TestPersonDedupWithinFrame(t *testing.T) {
	r := newTestReconciler(t)
	persons := []detect.Raw{
		{Score: 0.9, Box: nn.Rect{X: 10, Y: 10, Width: 50, Height: 90}},
		{Score: 0.8, Box: nn.Rect{X: 11, Y: 10, Width: 50, Height: 90}},
	}
	res := r.Reconcile(persons, nil, 0, nil)
	require.Len(t, personsOf(res), 1)
	// Alerts are derived before dedup, so both sightings alert
	require.Len(t, res.Alerts, 2)
}

func TestPPENeverDeduplicated(t *testing.T) {
	r := newTestReconciler(t)
	ppe := []detect.Raw{
		{Label: "mask", Score: 0.8, Box: nn.Rect{X: 0, Y: 0, Width: 10, Height: 10}},
		{Label: "mask", Score: 0.8, Box: nn.Rect{X: 0, Y: 0, Width: 10, Height: 10}},
	}
	res := r.Reconcile(nil, ppe, 0, nil)
	require.Len(t, res.Detections, 2)
}

func TestEmptyPayloadsAreHarmless(t *testing.T) {
	r := newTestReconciler(t)
	// Absent predictions decode to nil slices; the reconciler must treat
	// them as zero detections, never panic
	empty := &detect.PersonResponse{}
	emptyPPE := &detect.PPEResponse{}
	res := r.Reconcile(empty.Raw(), emptyPPE.Raw(), 0, nil)
	require.Len(t, res.Detections, 0)
	require.Len(t, res.Alerts, 0)
}

func TestCleanRoomRequiredSet(t *testing.T) {
	r := NewReconciler(logs.NewTestingLog(t), nn.CleanRoomVocabulary())
	person := []detect.Raw{{Score: 0.9, Box: nn.Rect{X: 0, Y: 0, Width: 40, Height: 80}}}
	ppe := []detect.Raw{{Label: "coveralls", Score: 0.7, Box: nn.Rect{X: 0, Y: 0, Width: 30, Height: 60}}}
	res := r.Reconcile(person, ppe, 0, nil)
	require.Len(t, res.Alerts, 1)
	require.Equal(t, []string{"goggles", "mask"}, res.Alerts[0].MissingClasses)
	require.Equal(t, nn.SeverityHigh, res.Alerts[0].Severity)
}

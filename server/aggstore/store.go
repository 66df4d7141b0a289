package aggstore

import (
	"sync"

	"github.com/cyclopcam/logs"
	"github.com/ppecam/ppecam/pkg/gen"
	"github.com/ppecam/ppecam/pkg/nn"
	"github.com/ppecam/ppecam/server/reconcile"
)

// Store accumulates every detection and alert observed during one session.
// It is append-only between resets, preserves insertion order, and all
// derived statistics are pure reads over current state.
//
// Live mode can have overlapping detect cycles in flight, so every entry
// point takes the lock.
type Store struct {
	log logs.Log

	lock           sync.Mutex
	detections     []nn.Detection
	alerts         []nn.Alert
	countByClass   map[string]int
	severityCounts map[nn.Severity]int

	watchersLock sync.RWMutex
	watchers     []chan *reconcile.FrameResult
}

// SeverityCounts is the alert tally per severity tier. Low is carried in
// the taxonomy even though no current rule produces it.
type SeverityCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Stats is the aggregate view served to dashboards.
type Stats struct {
	Persons               int                `json:"persons"`
	Detections            int                `json:"detections"`
	Alerts                int                `json:"alerts"`
	ComplianceByClass     map[string]float64 `json:"complianceByClass"`
	OverallComplianceRate float64            `json:"overallComplianceRate"`
	AlertSeverityCounts   SeverityCounts     `json:"alertSeverityCounts"`
}

func NewStore(logger logs.Log) *Store {
	return &Store{
		log:            logger,
		countByClass:   map[string]int{},
		severityCounts: map[nn.Severity]int{},
	}
}

// Append merges one frame's reconciled output into the cumulative state.
func (s *Store) Append(res *reconcile.FrameResult) {
	s.lock.Lock()
	for _, d := range res.Detections {
		s.detections = append(s.detections, d)
		s.countByClass[d.Class]++
	}
	for _, a := range res.Alerts {
		s.alerts = append(s.alerts, a)
		s.severityCounts[a.Severity]++
	}
	s.lock.Unlock()

	s.sendToWatchers(res)
}

// Reset clears all accumulated state. Called when a new video or session starts.
func (s *Store) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.detections = nil
	s.alerts = nil
	s.countByClass = map[string]int{}
	s.severityCounts = map[nn.Severity]int{}
}

func (s *Store) CountByClass(class string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.countByClass[class]
}

// ComplianceRate is the percentage of observed persons covered by the given
// PPE class, capped at 100. Zero persons means 0, never a division by zero.
func (s *Store) ComplianceRate(class string) float64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.complianceRateLocked(class)
}

func (s *Store) complianceRateLocked(class string) float64 {
	persons := s.countByClass[nn.ClassPerson]
	if persons == 0 {
		return 0
	}
	rate := float64(s.countByClass[class]) / float64(persons) * 100
	return gen.Min(rate, 100)
}

// OverallComplianceRate is (persons − alerts) / persons as a percentage,
// clamped to [0,100]. Zero persons means 0.
func (s *Store) OverallComplianceRate() float64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.overallComplianceRateLocked()
}

func (s *Store) overallComplianceRateLocked() float64 {
	persons := s.countByClass[nn.ClassPerson]
	if persons == 0 {
		return 0
	}
	rate := float64(persons-len(s.alerts)) / float64(persons) * 100
	return gen.Clamp(rate, 0, 100)
}

func (s *Store) AlertSeverityCounts() SeverityCounts {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.alertSeverityCountsLocked()
}

func (s *Store) alertSeverityCountsLocked() SeverityCounts {
	return SeverityCounts{
		High:   s.severityCounts[nn.SeverityHigh],
		Medium: s.severityCounts[nn.SeverityMedium],
		Low:    s.severityCounts[nn.SeverityLow],
	}
}

// Persons returns a snapshot of all accumulated person detections, in
// insertion order. The reconciler uses this for cross-frame dedup.
func (s *Store) Persons() []nn.Detection {
	s.lock.Lock()
	defer s.lock.Unlock()
	persons := []nn.Detection{}
	for _, d := range s.detections {
		if d.Class == nn.ClassPerson {
			persons = append(persons, d)
		}
	}
	return persons
}

// Detections returns a snapshot of all accumulated detections.
func (s *Store) Detections() []nn.Detection {
	s.lock.Lock()
	defer s.lock.Unlock()
	return gen.CopySlice(s.detections)
}

// Alerts returns a snapshot of all accumulated alerts.
func (s *Store) Alerts() []nn.Alert {
	s.lock.Lock()
	defer s.lock.Unlock()
	return gen.CopySlice(s.alerts)
}

// Labels exports the full run as per-frame records, suitable for download
// or offline review. Detections and alerts are grouped by frame index, in
// insertion order.
func (s *Store) Labels(classes []string) *nn.VideoLabels {
	s.lock.Lock()
	defer s.lock.Unlock()
	labels := &nn.VideoLabels{Classes: gen.CopySlice(classes)}
	byFrame := map[int]*nn.FrameLabels{}
	frameOf := func(frame int) *nn.FrameLabels {
		f := byFrame[frame]
		if f == nil {
			f = &nn.FrameLabels{Frame: frame}
			byFrame[frame] = f
			labels.Frames = append(labels.Frames, f)
		}
		return f
	}
	for _, d := range s.detections {
		f := frameOf(d.Frame)
		f.Detections = append(f.Detections, d)
	}
	for _, a := range s.alerts {
		f := frameOf(a.Frame)
		f.Alerts = append(f.Alerts, a)
	}
	return labels
}

// Stats computes the aggregate view in one pass under the lock, so the
// numbers are mutually consistent even while cycles are appending.
func (s *Store) Stats(ppeClasses []string) Stats {
	s.lock.Lock()
	defer s.lock.Unlock()
	st := Stats{
		Persons:               s.countByClass[nn.ClassPerson],
		Detections:            len(s.detections),
		Alerts:                len(s.alerts),
		ComplianceByClass:     map[string]float64{},
		OverallComplianceRate: s.overallComplianceRateLocked(),
		AlertSeverityCounts:   s.alertSeverityCountsLocked(),
	}
	for _, class := range ppeClasses {
		st.ComplianceByClass[class] = s.complianceRateLocked(class)
	}
	return st
}

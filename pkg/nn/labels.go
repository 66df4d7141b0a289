package nn

// VideoLabels contains the canonical records for every sampled frame of
// one analysis run.
type VideoLabels struct {
	Classes []string       `json:"classes"`
	Frames  []*FrameLabels `json:"frames"`
}

type FrameLabels struct {
	Frame      int         `json:"frame,omitempty"`
	Detections []Detection `json:"detections"`
	Alerts     []Alert     `json:"alerts"`
}

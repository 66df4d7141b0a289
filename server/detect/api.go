package detect

import (
	"github.com/ppecam/ppecam/pkg/nn"
)

// Wire types for the two detection services. Both services are invoked with
// the same dataframe_records body, but their response shapes differ, and
// either may return partial or empty payloads. Absent fields always degrade
// to zero detections, never an error.

type Request struct {
	DataframeRecords []Record `json:"dataframe_records"`
}

type Record struct {
	ImageB64 string `json:"image_b64"` // base64, no data-URI prefix
}

type PersonResponse struct {
	Predictions []PersonPrediction `json:"predictions"`
}

type PersonPrediction struct {
	Persons []RawPerson `json:"persons"`
}

// RawPerson carries its box either as a 4-element [x1,y1,x2,y2] array, or
// as separate x,y,w,h fields. Pointers distinguish "absent" from zero.
type RawPerson struct {
	Score float32   `json:"score"`
	Box   []float32 `json:"box,omitempty"`
	X     *float32  `json:"x,omitempty"`
	Y     *float32  `json:"y,omitempty"`
	W     *float32  `json:"w,omitempty"`
	H     *float32  `json:"h,omitempty"`
}

type PPEResponse struct {
	Predictions []PPEPrediction `json:"predictions"`
}

type PPEPrediction struct {
	PPEDetections []RawPPE `json:"ppe_detections"`
}

// RawPPE carries its box in model input coordinates when the service
// provides them, otherwise in the plain box field. Both are [x1,y1,x2,y2].
type RawPPE struct {
	ClassName           string    `json:"class_name"`
	Score               float32   `json:"score"`
	BoxModelInputCoords []float32 `json:"box_model_input_coords,omitempty"`
	Box                 []float32 `json:"box,omitempty"`
}

// Raw is one scored box from either service, after coordinate normalization.
// Label is empty for person detections.
type Raw struct {
	Label string
	Score float32
	Box   nn.Rect
}

func cornersToRect(box []float32) (nn.Rect, bool) {
	if len(box) != 4 {
		return nn.Rect{}, false
	}
	return nn.MakeRect(int(box[0]+0.5), int(box[1]+0.5), int(box[2]+0.5), int(box[3]+0.5)), true
}

// Raw flattens the person response into normalized detections.
// A nil receiver or missing arrays yield an empty list.
func (r *PersonResponse) Raw() []Raw {
	if r == nil {
		return nil
	}
	out := []Raw{}
	for _, pred := range r.Predictions {
		for _, p := range pred.Persons {
			if box, ok := cornersToRect(p.Box); ok {
				out = append(out, Raw{Score: p.Score, Box: box})
			} else if p.X != nil && p.Y != nil && p.W != nil && p.H != nil {
				out = append(out, Raw{Score: p.Score, Box: nn.Rect{
					X:      int(*p.X + 0.5),
					Y:      int(*p.Y + 0.5),
					Width:  int(*p.W + 0.5),
					Height: int(*p.H + 0.5),
				}})
			}
			// A person with no usable box is dropped
		}
	}
	return out
}

// Raw flattens the PPE response into normalized detections.
func (r *PPEResponse) Raw() []Raw {
	if r == nil {
		return nil
	}
	out := []Raw{}
	for _, pred := range r.Predictions {
		for _, p := range pred.PPEDetections {
			box, ok := cornersToRect(p.BoxModelInputCoords)
			if !ok {
				box, ok = cornersToRect(p.Box)
			}
			if ok {
				out = append(out, Raw{Label: p.ClassName, Score: p.Score, Box: box})
			}
		}
	}
	return out
}

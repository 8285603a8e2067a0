package models

// DetectionResult is one object found on an analysed image. Box holds
// normalized coordinates in [y1, x1, y2, x2] order.
type DetectionResult struct {
	Label      string    `json:"label"`
	ClassID    int       `json:"class_id"`
	Confidence float32   `json:"confidence"`
	Box        []float32 `json:"box"`
}

type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Pixels converts the normalized box to pixel coordinates of a w x h image.
func (d DetectionResult) Pixels(w, h int) (Box, bool) {
	if len(d.Box) != 4 {
		return Box{}, false
	}

	return Box{
		Y1: int(d.Box[0] * float32(h)),
		X1: int(d.Box[1] * float32(w)),
		Y2: int(d.Box[2] * float32(h)),
		X2: int(d.Box[3] * float32(w)),
	}, true
}

package types

import "encoding/json"

// Box represents a normalized bounding box in YOLO form: center and size in [0,1] range
type Box struct {
	Cx float64 `json:"cx"`
	Cy float64 `json:"cy"`
	W  float64 `json:"w"`
	H  float64 `json:"h"`
}

// Box2D is a corner-pair box in pixel coordinates
type Box2D struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Dimensions are the fixed pixel size of every image in a dataset
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RawImageRecord is one undecoded image record as read from a label file.
// Only the schema validator interprets its contents.
type RawImageRecord json.RawMessage

// ImageAttributes holds the scene level attributes of an image
type ImageAttributes struct {
	Scene     *string
	TimeOfDay *string
	Weather   *string
}

// ObjectLabel is a validated object annotation
type ObjectLabel struct {
	ID         int64
	Category   string
	Box2D      *Box2D
	Attributes map[string]any
}

// ImageAnnotation is a validated image record. Every Box2D it holds satisfies
// X2 > X1 and Y2 > Y1.
type ImageAnnotation struct {
	Name       string
	Attributes *ImageAttributes
	Labels     []ObjectLabel
}

// Retained reports whether a label belongs in detection outputs.
// Both exporters share this predicate so their counts agree.
func Retained(label ObjectLabel, categories *CategorySet) bool {
	return label.Box2D != nil && categories.Contains(label.Category)
}

// Split names
const (
	SplitTrain = "train"
	SplitVal   = "val"
)

// Splits lists the dataset partitions in processing order
var Splits = []string{SplitTrain, SplitVal}

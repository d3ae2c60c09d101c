package types

// FlatColumns is the column order of the tabular outputs
var FlatColumns = []string{
	"image_name", "split", "label_id", "category",
	"x1", "y1", "x2", "y2",
	"width", "height",
	"scene", "timeofday", "weather",
	"traffic_light_color", "occluded", "truncated",
}

// FlatAnnotationRow is one retained object annotation widened with the
// attributes of its image. Absent text attributes are empty strings.
type FlatAnnotationRow struct {
	ImageName         string  `parquet:"image_name" json:"image_name"`
	Split             string  `parquet:"split" json:"split"`
	LabelID           int64   `parquet:"label_id" json:"label_id"`
	Category          string  `parquet:"category" json:"category"`
	X1                float64 `parquet:"x1" json:"x1"`
	Y1                float64 `parquet:"y1" json:"y1"`
	X2                float64 `parquet:"x2" json:"x2"`
	Y2                float64 `parquet:"y2" json:"y2"`
	Width             int64   `parquet:"width" json:"width"`
	Height            int64   `parquet:"height" json:"height"`
	Scene             string  `parquet:"scene" json:"scene"`
	TimeOfDay         string  `parquet:"timeofday" json:"timeofday"`
	Weather           string  `parquet:"weather" json:"weather"`
	TrafficLightColor string  `parquet:"traffic_light_color" json:"traffic_light_color"`
	Occluded          *bool   `parquet:"occluded,optional" json:"occluded"`
	Truncated         *bool   `parquet:"truncated,optional" json:"truncated"`
}

// Package tabular flattens validated image records into one row per retained
// object annotation and persists the rows twice: as CSV and as Parquet. The two
// files always hold the same rows; the consistency checker relies on that.
package tabular

import (
	"go.uber.org/zap"

	"github.com/menta2k/bddconv/pkg/schema"
	"github.com/menta2k/bddconv/pkg/source"
	"github.com/menta2k/bddconv/pkg/types"
)

// BDD100K object attribute keys
const (
	attrTrafficLightColor = "trafficLightColor"
	attrOccluded          = "occluded"
	attrTruncated         = "truncated"
)

// Rows returns the rows for every retained label of one image
func Rows(ann types.ImageAnnotation, categories *types.CategorySet, split string, dims types.Dimensions) []types.FlatAnnotationRow {
	var scene, tod, weather string
	if a := ann.Attributes; a != nil {
		scene, tod, weather = deref(a.Scene), deref(a.TimeOfDay), deref(a.Weather)
	}

	var rows []types.FlatAnnotationRow
	for _, label := range ann.Labels {
		if !types.Retained(label, categories) {
			continue
		}
		b := label.Box2D
		rows = append(rows, types.FlatAnnotationRow{
			ImageName:         ann.Name,
			Split:             split,
			LabelID:           label.ID,
			Category:          label.Category,
			X1:                b.X1,
			Y1:                b.Y1,
			X2:                b.X2,
			Y2:                b.Y2,
			Width:             int64(dims.Width),
			Height:            int64(dims.Height),
			Scene:             scene,
			TimeOfDay:         tod,
			Weather:           weather,
			TrafficLightColor: stringAttr(label.Attributes, attrTrafficLightColor),
			Occluded:          boolAttr(label.Attributes, attrOccluded),
			Truncated:         boolAttr(label.Attributes, attrTruncated),
		})
	}
	return rows
}

// ExportSplit flattens a set of validated records
func ExportSplit(anns []types.ImageAnnotation, categories *types.CategorySet, split string, dims types.Dimensions) []types.FlatAnnotationRow {
	var rows []types.FlatAnnotationRow
	for _, ann := range anns {
		rows = append(rows, Rows(ann, categories, split, dims)...)
	}
	return rows
}

// Exporter runs the tabular export for one split
type Exporter struct {
	Categories *types.CategorySet
	Dims       types.Dimensions
	Policy     schema.Policy
	Logger     *zap.SugaredLogger
}

// Result describes a finished export
type Result struct {
	Split       string
	Stats       schema.WalkStats
	Rows        int
	Images      int
	CSVPath     string
	ParquetPath string
}

// Run reads src, flattens every valid record, and writes the CSV and Parquet
// files. Nothing is written unless the whole split was read successfully.
func (e *Exporter) Run(src *source.Source, split, csvPath, parquetPath string) (Result, error) {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.With("stage", "tabular", "split", split)
	logger.Infow("parsing split", "labels", src.Path())

	res := Result{Split: split, CSVPath: csvPath, ParquetPath: parquetPath}
	var rows []types.FlatAnnotationRow
	images := map[string]struct{}{}

	stats, err := schema.Walk(src.Records(), e.Policy, logger, func(ann types.ImageAnnotation) error {
		r := Rows(ann, e.Categories, split, e.Dims)
		if len(r) > 0 {
			images[ann.Name] = struct{}{}
		}
		rows = append(rows, r...)
		return nil
	})
	res.Stats = stats
	if err != nil {
		return res, err
	}

	if err := WriteCSV(csvPath, rows); err != nil {
		return res, err
	}
	if err := WriteParquet(parquetPath, rows); err != nil {
		return res, err
	}

	res.Rows = len(rows)
	res.Images = len(images)
	logger.Infow("wrote tabular split",
		"records", stats.Records, "skipped", stats.Skipped,
		"annotations", res.Rows, "images", res.Images,
		"csv", csvPath, "parquet", parquetPath)
	return res, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func stringAttr(attrs map[string]any, key string) string {
	if s, ok := attrs[key].(string); ok {
		return s
	}
	return ""
}

func boolAttr(attrs map[string]any, key string) *bool {
	if b, ok := attrs[key].(bool); ok {
		return &b
	}
	return nil
}

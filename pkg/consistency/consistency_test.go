package consistency

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/bddconv/pkg/coco"
	"github.com/menta2k/bddconv/pkg/source"
	"github.com/menta2k/bddconv/pkg/tabular"
	"github.com/menta2k/bddconv/pkg/types"
)

var (
	testCategories = types.MustCategorySet(types.DetectionClasses)
	testDims       = types.Dimensions{Width: 1280, Height: 720}
)

const labeledRecords = `[
	{"name": "a.jpg", "labels": [
		{"id": 1, "category": "car", "box2d": {"x1": 10, "y1": 10, "x2": 50, "y2": 30}},
		{"id": 2, "category": "person", "box2d": {"x1": 1, "y1": 1, "x2": 5, "y2": 9}},
		{"id": 3, "category": "lane"}
	]},
	{"name": "b.jpg", "labels": [
		{"id": 4, "category": "car", "box2d": {"x1": 0, "y1": 0, "x2": 5, "y2": 5}}
	]}
]`

func export(t *testing.T, records string) Paths {
	t.Helper()
	dir := t.TempDir()
	labels := filepath.Join(dir, "labels.json")
	require.NoError(t, os.WriteFile(labels, []byte(records), 0o644))
	src := source.New(labels)
	p := Paths{
		Coco:    filepath.Join(dir, "coco.json"),
		CSV:     filepath.Join(dir, "val.csv"),
		Parquet: filepath.Join(dir, "val.parquet"),
	}
	_, err := (&tabular.Exporter{Categories: testCategories, Dims: testDims}).Run(src, types.SplitVal, p.CSV, p.Parquet)
	require.NoError(t, err)
	_, err = (&coco.Exporter{Categories: testCategories, Dims: testDims}).Run(src, types.SplitVal, p.Coco)
	require.NoError(t, err)
	return p
}

func TestCheckConsistent(t *testing.T) {
	r, err := Check(types.SplitVal, export(t, labeledRecords))
	require.NoError(t, err)
	assert.True(t, r.OK(), "%v", r.Err())
	assert.NoError(t, r.Err())
	assert.Equal(t, Counts{2, 2, 2}, r.Images)
	assert.Equal(t, Counts{3, 3, 3}, r.Annotations)
	assert.Equal(t, 2, r.LabeledImages)
	assert.Equal(t, []CategoryCount{
		{Category: "car", Counts: Counts{2, 2, 2}},
		{Category: "person", Counts: Counts{1, 1, 1}},
	}, r.Categories)

	var buf bytes.Buffer
	r.Render(&buf)
	assert.Contains(t, buf.String(), "data is consistent across all formats")
	assert.NotContains(t, buf.String(), "Mismatch")
}

func TestCheckCountsImagesWithoutAnnotations(t *testing.T) {
	// COCO keeps an entry for every image, the tables only see labeled ones
	r, err := Check(types.SplitVal, export(t, `[
		{"name": "a.jpg", "labels": [{"id": 1, "category": "car", "box2d": {"x1": 1, "y1": 1, "x2": 2, "y2": 2}}]},
		{"name": "empty.jpg"}
	]`))
	require.NoError(t, err)
	assert.False(t, r.OK())
	require.Len(t, r.Mismatches, 1)
	assert.Equal(t, "images", r.Mismatches[0].Check)
	assert.Equal(t, Counts{2, 1, 1}, r.Mismatches[0].Counts)
	assert.Equal(t, 1, r.LabeledImages)
}

func TestCheckDetectsTamperedTable(t *testing.T) {
	p := export(t, labeledRecords)
	rows, err := tabular.ReadCSV(p.CSV)
	require.NoError(t, err)
	require.NoError(t, tabular.WriteCSV(p.CSV, rows[:2]))

	r, err := Check(types.SplitVal, p)
	require.NoError(t, err)
	assert.False(t, r.OK())

	checks := map[string]*MismatchError{}
	for _, m := range r.Mismatches {
		checks[m.Check+m.Category] = m
	}
	require.Contains(t, checks, "images")
	require.Contains(t, checks, "annotations")
	require.Contains(t, checks, "categorycar")
	assert.Equal(t, Counts{2, 1, 2}, checks["categorycar"].Counts)
	assert.EqualError(t, checks["categorycar"], `category "car" mismatch: coco=2 csv=1 parquet=2`)

	var buf bytes.Buffer
	r.Render(&buf)
	assert.Contains(t, buf.String(), "Mismatch")
	assert.Contains(t, buf.String(), "check failed: 3 mismatches")
}

func TestCheckMissingFile(t *testing.T) {
	p := export(t, labeledRecords)
	require.NoError(t, os.Remove(p.Parquet))

	r, err := Check(types.SplitVal, p)
	require.NoError(t, err)
	assert.False(t, r.OK())
	assert.Equal(t, []string{p.Parquet}, r.Missing)
	assert.ErrorContains(t, r.Err(), "missing file")

	var buf bytes.Buffer
	r.Render(&buf)
	assert.Contains(t, buf.String(), "missing: "+p.Parquet)
}

func TestCheckUnreadableFile(t *testing.T) {
	p := export(t, labeledRecords)
	require.NoError(t, os.WriteFile(p.Coco, []byte("{"), 0o644))
	_, err := Check(types.SplitVal, p)
	assert.Error(t, err)
}

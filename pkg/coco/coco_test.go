package coco

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/bddconv/pkg/schema"
	"github.com/menta2k/bddconv/pkg/source"
	"github.com/menta2k/bddconv/pkg/types"
)

var (
	testCategories = types.MustCategorySet(types.DetectionClasses)
	testDims       = types.Dimensions{Width: 1280, Height: 720}
)

func validated(t *testing.T, records ...string) []types.ImageAnnotation {
	t.Helper()
	var out []types.ImageAnnotation
	for _, r := range records {
		res := schema.Validate(types.RawImageRecord(r))
		require.True(t, res.OK(), "%v", res.Err())
		out = append(out, res.Annotation())
	}
	return out
}

func TestBuildScenario(t *testing.T) {
	anns := validated(t, `{"name": "a.jpg", "labels": [{"id": 1, "category": "car", "box2d": {"x1": 10, "y1": 10, "x2": 50, "y2": 30}}]}`)
	doc := Build(anns, testCategories, types.SplitTrain, testDims)

	require.Len(t, doc.Images, 1)
	assert.Equal(t, types.CocoImage{ID: 1, FileName: "a.jpg", Width: 1280, Height: 720}, doc.Images[0])
	require.Len(t, doc.Annotations, 1)
	ann := doc.Annotations[0]
	assert.Equal(t, 1, ann.ID)
	assert.Equal(t, 1, ann.ImageID)
	assert.Equal(t, 3, ann.CategoryID)
	assert.Equal(t, [4]float64{10, 10, 40, 20}, ann.BBox)
	assert.Equal(t, 800.0, ann.Area)
	assert.Equal(t, 0, ann.IsCrowd)
	assert.Equal(t, "BDD100K train", doc.Info.Description)
}

func TestBuildIDsAndSkips(t *testing.T) {
	anns := validated(t,
		`{"name": "a.jpg", "labels": [
			{"id": 1, "category": "person", "box2d": {"x1": 1, "y1": 1, "x2": 3, "y2": 4}},
			{"id": 2, "category": "lane"},
			{"id": 3, "category": "car"},
			{"id": 4, "category": "bus", "box2d": {"x1": 1, "y1": 1, "x2": 3, "y2": 4}}
		]}`,
		`{"name": "empty.jpg", "labels": [{"id": 5, "category": "drivable area"}]}`,
		`{"name": "c.jpg", "labels": [{"id": 6, "category": "train", "box2d": {"x1": 0, "y1": 0, "x2": 10, "y2": 10}}]}`,
	)
	doc := Build(anns, testCategories, types.SplitVal, testDims)

	require.Len(t, doc.Images, 3)
	for i, img := range doc.Images {
		assert.Equal(t, i+1, img.ID)
	}
	require.Len(t, doc.Annotations, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{doc.Annotations[0].ID, doc.Annotations[1].ID, doc.Annotations[2].ID})
	assert.Equal(t, []int{1, 1, 3}, []int{doc.Annotations[0].ImageID, doc.Annotations[1].ImageID, doc.Annotations[2].ImageID})
	assert.Equal(t, []int{1, 4, 10}, []int{doc.Annotations[0].CategoryID, doc.Annotations[1].CategoryID, doc.Annotations[2].CategoryID})
}

func TestCategoryIDsFollowAllowList(t *testing.T) {
	// "train" shows up first in the data but keeps id 10
	anns := validated(t, `{"name": "a.jpg", "labels": [
		{"id": 1, "category": "train", "box2d": {"x1": 0, "y1": 0, "x2": 1, "y2": 1}},
		{"id": 2, "category": "person", "box2d": {"x1": 0, "y1": 0, "x2": 1, "y2": 1}}
	]}`)
	first := Build(anns, testCategories, types.SplitTrain, testDims)
	second := Build(anns, testCategories, types.SplitTrain, testDims)
	empty := Build(nil, testCategories, types.SplitVal, testDims)

	assert.Empty(t, cmp.Diff(first, second))
	assert.Empty(t, cmp.Diff(first.Categories, empty.Categories))
	assert.Equal(t, types.CocoCategory{ID: 10, Name: "train"}, first.Categories[9])
	assert.Equal(t, 10, first.Annotations[0].CategoryID)
	assert.Equal(t, 1, first.Annotations[1].CategoryID)
}

func TestExporterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	labels := filepath.Join(dir, "labels.json")
	require.NoError(t, os.WriteFile(labels, []byte(`{"images": [
		{"name": "a.jpg", "labels": [{"id": 1, "category": "car", "box2d": {"x1": 10, "y1": 10, "x2": 50, "y2": 30}}]},
		{"name": "b.jpg"}
	]}`), 0o644))
	out := filepath.Join(dir, "coco", "bdd100k_val_coco.json")

	e := &Exporter{Categories: testCategories, Dims: testDims}
	res, err := e.Run(source.New(labels), types.SplitVal, out)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Images)
	assert.Equal(t, 1, res.Annotations)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n \"categories\": [")

	doc, err := Load(out)
	require.NoError(t, err)
	want := Build(validated(t,
		`{"name": "a.jpg", "labels": [{"id": 1, "category": "car", "box2d": {"x1": 10, "y1": 10, "x2": 50, "y2": 30}}]}`,
		`{"name": "b.jpg"}`,
	), testCategories, types.SplitVal, testDims)
	assert.Empty(t, cmp.Diff(want, *doc))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	p := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(p, []byte("{"), 0o644))
	_, err = Load(p)
	assert.Error(t, err)
}

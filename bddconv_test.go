package bddconv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/bddconv/internal/config"
	"github.com/menta2k/bddconv/pkg/pipeline"
)

const records = `[
	{"name": "a.jpg", "attributes": {"weather": "clear", "scene": "city street", "timeofday": "daytime"},
	 "labels": [
		{"id": 1, "category": "car", "box2d": {"x1": 10, "y1": 10, "x2": 50, "y2": 30}},
		{"id": 2, "category": "traffic light", "attributes": {"trafficLightColor": "green"}, "box2d": {"x1": 5, "y1": 5, "x2": 9, "y2": 15}},
		{"id": 3, "category": "lane", "poly2d": []}
	]}
]`

func newConverter(t *testing.T) *Converter {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.Root = t.TempDir()
	for _, p := range []string{cfg.Paths.TrainLabels, cfg.Paths.ValLabels} {
		full := filepath.Join(cfg.Paths.Root, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(records), 0o644))
	}
	conv, err := New(cfg, nil)
	require.NoError(t, err)
	return conv
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Dataset.Classes = nil
	_, err := New(cfg, nil)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestConvertEndToEnd(t *testing.T) {
	conv := newConverter(t)
	ctx := context.Background()

	out, err := conv.Export(ctx)
	require.NoError(t, err)
	require.Equal(t, pipeline.BothSucceeded, out.Status, out.Summary())

	reports, err := conv.Check()
	require.NoError(t, err)
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.True(t, r.OK(), "%v", r.Err())
		assert.Equal(t, 2, r.Annotations.Coco)
	}

	res, err := conv.Labels()
	require.NoError(t, err)
	assert.Equal(t, 1, res.TrainFiles)
	assert.FileExists(t, conv.Config().DatasetYAML())
}

func TestSingleStages(t *testing.T) {
	conv := newConverter(t)

	tab, err := conv.Tabular("val")
	require.NoError(t, err)
	require.Len(t, tab, 1)
	assert.Equal(t, 2, tab[0].Rows)

	cc, err := conv.Coco("val")
	require.NoError(t, err)
	require.Len(t, cc, 1)
	assert.Equal(t, 1, cc[0].Images)

	_, err = conv.Coco("test")
	assert.Error(t, err)
}

func TestProbeWithoutImages(t *testing.T) {
	conv := newConverter(t)
	_, err := conv.Coco("train")
	require.NoError(t, err)

	stats, err := conv.Probe("train", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Missing)
}

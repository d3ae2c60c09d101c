package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/bddconv/pkg/schema"
	"github.com/menta2k/bddconv/pkg/types"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, types.Dimensions{Width: 1280, Height: 720}, cfg.Dims())

	cats, err := cfg.Categories()
	require.NoError(t, err)
	assert.Equal(t, types.DetectionClasses, cats.Names())

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, schema.PolicyAbort, policy)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Dataset.Classes = []string{"car", "bus"}
	cfg.Export.ValidationPolicy = "skip"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	// loading must not write through to the package defaults
	assert.Equal(t, "person", types.DetectionClasses[0])
}

func TestLoadFromFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"dataset": {"width": 640}}`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Dataset.Width)
	assert.Equal(t, 720, cfg.Dataset.Height)
	assert.Equal(t, Default().Paths, cfg.Paths)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no classes", func(c *Config) { c.Dataset.Classes = nil }, "dataset.classes"},
		{"duplicate class", func(c *Config) { c.Dataset.Classes = []string{"car", "car"} }, "dataset.classes"},
		{"zero width", func(c *Config) { c.Dataset.Width = 0 }, "must be positive"},
		{"bad policy", func(c *Config) { c.Export.ValidationPolicy = "retry" }, "export.validation_policy"},
		{"bad split", func(c *Config) { c.Export.Splits = []string{"test"} }, "unknown split"},
		{"negative sample", func(c *Config) { c.Labels.ProbeSample = -1 }, "probe_sample"},
		{"quality", func(c *Config) { c.Overlay.Quality = 101 }, "overlay.quality"},
		{"format", func(c *Config) { c.Overlay.Format = "gif" }, "overlay.format"},
		{"empty path", func(c *Config) { c.Paths.CocoData = "" }, "paths.coco_data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestSplitPaths(t *testing.T) {
	cfg := Default()
	cfg.Paths.Root = "/data/bdd"
	cfg.Paths.ValImages = "/mnt/images/val"

	sp, err := cfg.Split(types.SplitVal)
	require.NoError(t, err)
	assert.Equal(t, SplitPaths{
		Split:      "val",
		Labels:     "/data/bdd/data/raw_bdd_jsons/bdd100k_labels_images_val.json",
		Images:     "/mnt/images/val",
		YoloLabels: "/data/bdd/data/yolo_data/labels/val",
		CSV:        "/data/bdd/data/parsed_data/val_data.csv",
		Parquet:    "/data/bdd/data/parsed_data/val_data.parquet",
		Coco:       "/data/bdd/data/coco_data/bdd100k_val_coco.json",
	}, sp)
	assert.Equal(t, "/data/bdd/data/yolo_data/dataset.yaml", cfg.DatasetYAML())
	assert.Equal(t, "/data/bdd/data/lists/unlabeled_train.txt", cfg.UnlabeledList())

	_, err = cfg.Split("test")
	assert.Error(t, err)

	cfg.Paths.UnlabeledList = ""
	assert.Empty(t, cfg.UnlabeledList())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BDD_ROOT", "/srv")
	t.Setenv("BDD_WIDTH", "1920")
	t.Setenv("BDD_HEIGHT", "not a number")
	t.Setenv("BDD_CLASSES", "car, bus ,,truck")
	t.Setenv("BDD_VALIDATION_POLICY", "skip")
	t.Setenv("BDD_VERIFY_IMAGE_DIMS", "true")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "/srv", cfg.Paths.Root)
	assert.Equal(t, 1920, cfg.Dataset.Width)
	assert.Equal(t, 720, cfg.Dataset.Height)
	assert.Equal(t, []string{"car", "bus", "truck"}, cfg.Dataset.Classes)
	assert.Equal(t, "skip", cfg.Export.ValidationPolicy)
	assert.True(t, cfg.Labels.VerifyImageDims)
}

func TestLoadEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("BDD_COCO_DATA=/tmp/coco\n"), 0o644))
	t.Setenv("BDD_COCO_DATA", "")
	require.NoError(t, os.Unsetenv("BDD_COCO_DATA"))

	require.NoError(t, LoadEnv(envFile))
	assert.Equal(t, "/tmp/coco", os.Getenv("BDD_COCO_DATA"))

	cfgPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, Default().SaveToFile(cfgPath))
	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/coco", cfg.Paths.CocoData)

	assert.Error(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}

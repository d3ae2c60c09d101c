package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/menta2k/bddconv/internal/utils"
	"github.com/menta2k/bddconv/pkg/schema"
	"github.com/menta2k/bddconv/pkg/types"
)

// Config holds the application configuration
type Config struct {
	Dataset DatasetConfig `json:"dataset"`
	Paths   PathsConfig   `json:"paths"`
	Export  ExportConfig  `json:"export"`
	Labels  LabelsConfig  `json:"labels"`
	Overlay OverlayConfig `json:"overlay"`
}

// DatasetConfig describes the detection classes and the fixed image size
type DatasetConfig struct {
	Classes []string `json:"classes"`
	Width   int      `json:"width"`
	Height  int      `json:"height"`
}

// PathsConfig holds input and output locations. Relative paths are resolved
// against Root.
type PathsConfig struct {
	Root            string `json:"root"`
	TrainLabels     string `json:"train_labels"`
	ValLabels       string `json:"val_labels"`
	TrainImages     string `json:"train_images"`
	ValImages       string `json:"val_images"`
	TrainYoloLabels string `json:"train_yolo_labels"`
	ValYoloLabels   string `json:"val_yolo_labels"`
	ParsedData      string `json:"parsed_data"`
	CocoData        string `json:"coco_data"`
	DatasetYAML     string `json:"dataset_yaml"`
	UnlabeledList   string `json:"unlabeled_list"`
}

// ExportConfig holds exporter settings
type ExportConfig struct {
	ValidationPolicy string   `json:"validation_policy"`
	Splits           []string `json:"splits"`
}

// LabelsConfig holds settings of the YOLO label stage
type LabelsConfig struct {
	VerifyImageDims bool `json:"verify_image_dims"`
	ProbeSample     int  `json:"probe_sample"`
}

// OverlayConfig holds settings for rendered overlays
type OverlayConfig struct {
	Format   string `json:"format"`
	Quality  int    `json:"quality"`
	Lossless bool   `json:"lossless"`
	Stroke   int    `json:"stroke"`
}

// SplitPaths are the resolved locations used for one split
type SplitPaths struct {
	Split      string
	Labels     string
	Images     string
	YoloLabels string
	CSV        string
	Parquet    string
	Coco       string
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Classes: slices.Clone(types.DetectionClasses),
			Width:   1280,
			Height:  720,
		},
		Paths: PathsConfig{
			Root:            ".",
			TrainLabels:     "data/raw_bdd_jsons/bdd100k_labels_images_train.json",
			ValLabels:       "data/raw_bdd_jsons/bdd100k_labels_images_val.json",
			TrainImages:     "data/yolo_data/images/train",
			ValImages:       "data/yolo_data/images/val",
			TrainYoloLabels: "data/yolo_data/labels/train",
			ValYoloLabels:   "data/yolo_data/labels/val",
			ParsedData:      "data/parsed_data",
			CocoData:        "data/coco_data",
			DatasetYAML:     "data/yolo_data/dataset.yaml",
			UnlabeledList:   "data/lists/unlabeled_train.txt",
		},
		Export: ExportConfig{
			ValidationPolicy: schema.PolicyAbort.String(),
			Splits:           slices.Clone(types.Splits),
		},
		Labels: LabelsConfig{
			VerifyImageDims: false,
			ProbeSample:     100,
		},
		Overlay: OverlayConfig{
			Format:   "jpg",
			Quality:  92,
			Lossless: false,
			Stroke:   2,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Keys absent from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	return config, nil
}

// Load reads the config file if there is one, applies BDD_* environment
// overrides and validates the result. An empty filename falls back to
// GetConfigPath and then to the defaults.
func Load(filename string) (*Config, error) {
	var (
		config *Config
		err    error
	)
	switch {
	case filename != "":
		config, err = LoadFromFile(filename)
	case utils.FileExists(GetConfigPath()):
		config, err = LoadFromFile(GetConfigPath())
	default:
		config = Default()
	}
	if err != nil {
		return nil, err
	}
	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadEnv loads .env files into the process environment without overriding
// variables that are already set. With no arguments ./.env is loaded when it
// exists.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if !utils.FileExists(".env") {
			return nil
		}
		files = []string{".env"}
	}
	return errors.Wrap(godotenv.Load(files...), "failed to load env file")
}

// ApplyEnv overrides paths and dataset settings from BDD_* variables
func (c *Config) ApplyEnv() {
	p := &c.Paths
	p.Root = getEnv("BDD_ROOT", p.Root)
	p.TrainLabels = getEnv("BDD_TRAIN_LABELS", p.TrainLabels)
	p.ValLabels = getEnv("BDD_VAL_LABELS", p.ValLabels)
	p.TrainImages = getEnv("BDD_TRAIN_IMAGES", p.TrainImages)
	p.ValImages = getEnv("BDD_VAL_IMAGES", p.ValImages)
	p.TrainYoloLabels = getEnv("BDD_TRAIN_YOLO_LABELS", p.TrainYoloLabels)
	p.ValYoloLabels = getEnv("BDD_VAL_YOLO_LABELS", p.ValYoloLabels)
	p.ParsedData = getEnv("BDD_PARSED_DATA", p.ParsedData)
	p.CocoData = getEnv("BDD_COCO_DATA", p.CocoData)
	p.DatasetYAML = getEnv("BDD_DATASET_YAML", p.DatasetYAML)
	p.UnlabeledList = getEnv("BDD_UNLABELED_LIST", p.UnlabeledList)

	c.Dataset.Width = getEnvAsInt("BDD_WIDTH", c.Dataset.Width)
	c.Dataset.Height = getEnvAsInt("BDD_HEIGHT", c.Dataset.Height)
	if classes := getEnv("BDD_CLASSES", ""); classes != "" {
		c.Dataset.Classes = splitList(classes)
	}
	c.Export.ValidationPolicy = getEnv("BDD_VALIDATION_POLICY", c.Export.ValidationPolicy)
	c.Labels.VerifyImageDims = getEnvAsBool("BDD_VERIFY_IMAGE_DIMS", c.Labels.VerifyImageDims)
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := types.NewCategorySet(c.Dataset.Classes); err != nil {
		return errors.Wrap(err, "dataset.classes")
	}

	if c.Dataset.Width < 1 || c.Dataset.Height < 1 {
		return errors.New("dataset.width and dataset.height must be positive")
	}

	if _, err := schema.ParsePolicy(c.Export.ValidationPolicy); err != nil {
		return errors.Wrap(err, "export.validation_policy")
	}

	for _, s := range c.Export.Splits {
		if s != types.SplitTrain && s != types.SplitVal {
			return errors.Errorf("export.splits: unknown split %q", s)
		}
	}

	if c.Labels.ProbeSample < 0 {
		return errors.New("labels.probe_sample cannot be negative")
	}

	if c.Overlay.Quality < 1 || c.Overlay.Quality > 100 {
		return errors.New("overlay.quality must be between 1 and 100")
	}

	switch strings.ToLower(c.Overlay.Format) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return errors.Errorf("overlay.format %q must be one of jpg, png, webp", c.Overlay.Format)
	}

	required := map[string]string{
		"paths.train_labels": c.Paths.TrainLabels,
		"paths.val_labels":   c.Paths.ValLabels,
		"paths.parsed_data":  c.Paths.ParsedData,
		"paths.coco_data":    c.Paths.CocoData,
		"paths.dataset_yaml": c.Paths.DatasetYAML,
	}
	for key, v := range required {
		if v == "" {
			return errors.Errorf("%s cannot be empty", key)
		}
	}

	return nil
}

// Categories returns the configured detection classes
func (c *Config) Categories() (*types.CategorySet, error) {
	return types.NewCategorySet(c.Dataset.Classes)
}

// Dims returns the configured image size
func (c *Config) Dims() types.Dimensions {
	return types.Dimensions{Width: c.Dataset.Width, Height: c.Dataset.Height}
}

// Policy returns the configured validation policy
func (c *Config) Policy() (schema.Policy, error) {
	return schema.ParsePolicy(c.Export.ValidationPolicy)
}

// Split derives every file location used for one split
func (c *Config) Split(name string) (SplitPaths, error) {
	sp := SplitPaths{
		Split:   name,
		CSV:     c.resolve(filepath.Join(c.Paths.ParsedData, name+"_data.csv")),
		Parquet: c.resolve(filepath.Join(c.Paths.ParsedData, name+"_data.parquet")),
		Coco:    c.resolve(filepath.Join(c.Paths.CocoData, "bdd100k_"+name+"_coco.json")),
	}
	switch name {
	case types.SplitTrain:
		sp.Labels = c.resolve(c.Paths.TrainLabels)
		sp.Images = c.resolve(c.Paths.TrainImages)
		sp.YoloLabels = c.resolve(c.Paths.TrainYoloLabels)
	case types.SplitVal:
		sp.Labels = c.resolve(c.Paths.ValLabels)
		sp.Images = c.resolve(c.Paths.ValImages)
		sp.YoloLabels = c.resolve(c.Paths.ValYoloLabels)
	default:
		return SplitPaths{}, errors.Errorf("unknown split %q", name)
	}
	return sp, nil
}

// DatasetYAML returns the resolved descriptor path
func (c *Config) DatasetYAML() string {
	return c.resolve(c.Paths.DatasetYAML)
}

// UnlabeledList returns the resolved unlabeled image list path, or "" when
// none is configured
func (c *Config) UnlabeledList() string {
	if c.Paths.UnlabeledList == "" {
		return ""
	}
	return c.resolve(c.Paths.UnlabeledList)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Paths.Root == "" {
		return p
	}
	return filepath.Join(c.Paths.Root, p)
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "bddconv", "config.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

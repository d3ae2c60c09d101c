// Package bddconv converts BDD100K detection labels into training ready
// formats.
//
// The native per-image JSON is validated once and exported twice, side by
// side: into a flat table (CSV and Parquet, one row per object) and into a
// COCO detection document. The COCO documents then become per-image YOLO
// label files plus the dataset descriptor used by the trainer. A separate
// check confirms that image, annotation and per-category counts agree across
// the COCO, CSV and Parquet outputs.
//
// Basic usage:
//
//	cfg, err := bddconv.LoadConfig("config.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//	conv, err := bddconv.New(cfg, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	outcome, err := conv.Export(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Print(outcome.Summary())
//	if _, err := conv.Labels(); err != nil {
//		log.Fatal(err)
//	}
//
// The packages under pkg/ can also be used on their own:
//
//  1. source, schema: streaming record reader and validator
//  2. tabular, coco: the two exporters
//  3. yolo: COCO to YOLO label writer and dataset descriptor
//  4. consistency: cross-format count check
//  5. geometry: every box conversion in one place
package bddconv

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/menta2k/bddconv/internal/config"
	"github.com/menta2k/bddconv/pkg/analyzer"
	"github.com/menta2k/bddconv/pkg/coco"
	"github.com/menta2k/bddconv/pkg/consistency"
	"github.com/menta2k/bddconv/pkg/overlay"
	"github.com/menta2k/bddconv/pkg/pipeline"
	"github.com/menta2k/bddconv/pkg/schema"
	"github.com/menta2k/bddconv/pkg/source"
	"github.com/menta2k/bddconv/pkg/tabular"
	"github.com/menta2k/bddconv/pkg/types"
)

// Version of the converter
const Version = "1.0.0"

// Converter runs the conversion stages for one configuration
type Converter struct {
	cfg        *config.Config
	categories *types.CategorySet
	policy     schema.Policy
	logger     *zap.SugaredLogger
}

// LoadConfig loads and validates a configuration; see config.Load
func LoadConfig(filename string) (*config.Config, error) {
	return config.Load(filename)
}

// New creates a Converter. The config is validated again here so callers
// that build one by hand get the same checks.
func New(cfg *config.Config, logger *zap.SugaredLogger) (*Converter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	categories, err := cfg.Categories()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Converter{cfg: cfg, categories: categories, policy: policy, logger: logger}, nil
}

// Config returns the configuration in use
func (c *Converter) Config() *config.Config {
	return c.cfg
}

// Categories returns the configured detection classes
func (c *Converter) Categories() *types.CategorySet {
	return c.categories
}

func (c *Converter) options() pipeline.Options {
	return pipeline.Options{Categories: c.categories, Dims: c.cfg.Dims(), Policy: c.policy, Logger: c.logger}
}

func (c *Converter) splits(names []string) ([]config.SplitPaths, error) {
	if len(names) == 0 {
		names = c.cfg.Export.Splits
	}
	out := make([]config.SplitPaths, 0, len(names))
	for _, n := range names {
		sp, err := c.cfg.Split(n)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, nil
}

// Export runs the tabular and COCO exporters concurrently over the given
// splits, or the configured ones when none are given
func (c *Converter) Export(ctx context.Context, splits ...string) (pipeline.Outcome, error) {
	sps, err := c.splits(splits)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	return pipeline.Export(ctx, c.options(), sps), nil
}

// Tabular runs only the tabular exporter
func (c *Converter) Tabular(splits ...string) ([]tabular.Result, error) {
	sps, err := c.splits(splits)
	if err != nil {
		return nil, err
	}
	e := &tabular.Exporter{Categories: c.categories, Dims: c.cfg.Dims(), Policy: c.policy, Logger: c.logger}
	var results []tabular.Result
	for _, sp := range sps {
		res, err := e.Run(source.New(sp.Labels), sp.Split, sp.CSV, sp.Parquet)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Coco runs only the COCO exporter
func (c *Converter) Coco(splits ...string) ([]coco.Result, error) {
	sps, err := c.splits(splits)
	if err != nil {
		return nil, err
	}
	e := &coco.Exporter{Categories: c.categories, Dims: c.cfg.Dims(), Policy: c.policy, Logger: c.logger}
	var results []coco.Result
	for _, sp := range sps {
		res, err := e.Run(source.New(sp.Labels), sp.Split, sp.Coco)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Labels writes the YOLO label directories and the dataset descriptor
func (c *Converter) Labels() (pipeline.LabelResult, error) {
	train, err := c.cfg.Split(types.SplitTrain)
	if err != nil {
		return pipeline.LabelResult{}, err
	}
	val, err := c.cfg.Split(types.SplitVal)
	if err != nil {
		return pipeline.LabelResult{}, err
	}
	return pipeline.WriteYoloLabels(pipeline.LabelOptions{
		Categories:  c.categories,
		Dims:        c.cfg.Dims(),
		Train:       train,
		Val:         val,
		Descriptor:  c.cfg.DatasetYAML(),
		Unlabeled:   c.cfg.UnlabeledList(),
		VerifyDims:  c.cfg.Labels.VerifyImageDims,
		ProbeSample: c.cfg.Labels.ProbeSample,
		Logger:      c.logger,
	})
}

// Check compares the COCO, CSV and Parquet outputs of each split
func (c *Converter) Check(splits ...string) ([]*consistency.Report, error) {
	sps, err := c.splits(splits)
	if err != nil {
		return nil, err
	}
	var reports []*consistency.Report
	for _, sp := range sps {
		r, err := consistency.Check(sp.Split, consistency.Paths{Coco: sp.Coco, CSV: sp.CSV, Parquet: sp.Parquet})
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Probe checks the real pixel size of a split's images against the
// configured dimensions. sample limits the number of images; 0 checks all.
func (c *Converter) Probe(split string, sample int) (analyzer.ProbeStats, error) {
	sp, err := c.cfg.Split(split)
	if err != nil {
		return analyzer.ProbeStats{}, err
	}
	doc, err := coco.Load(sp.Coco)
	if err != nil {
		return analyzer.ProbeStats{}, err
	}
	a := analyzer.NewWithConfig(analyzer.Config{
		SupportedFormats: []string{"jpeg", "png", "webp"},
		SampleSize:       sample,
	}, c.logger)
	return a.VerifyDimensions(sp.Images, doc, c.cfg.Dims())
}

// Overlay renders ground truth and prediction label files over an image
func (c *Converter) Overlay(imagePath, gtPath, predPath, outPath string) error {
	r := overlay.NewRenderer(c.categories, overlay.Options{
		Dims:     c.cfg.Dims(),
		Format:   c.cfg.Overlay.Format,
		Quality:  c.cfg.Overlay.Quality,
		Lossless: c.cfg.Overlay.Lossless,
		Stroke:   c.cfg.Overlay.Stroke,
	}, c.logger)
	return r.RenderFile(imagePath, gtPath, predPath, outPath)
}

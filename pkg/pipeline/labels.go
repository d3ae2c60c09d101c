package pipeline

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/menta2k/bddconv/internal/config"
	"github.com/menta2k/bddconv/internal/utils"
	"github.com/menta2k/bddconv/pkg/analyzer"
	"github.com/menta2k/bddconv/pkg/coco"
	"github.com/menta2k/bddconv/pkg/types"
	"github.com/menta2k/bddconv/pkg/yolo"
)

// LabelOptions configure the YOLO label stage
type LabelOptions struct {
	Categories *types.CategorySet
	Dims       types.Dimensions
	Train      config.SplitPaths
	Val        config.SplitPaths
	Descriptor string
	// Unlabeled is a list of train images known to contain no objects
	Unlabeled   string
	VerifyDims  bool
	ProbeSample int
	Logger      *zap.SugaredLogger
}

// LabelResult summarizes the label stage
type LabelResult struct {
	TrainFiles int
	ValFiles   int
	Unlabeled  int
	Descriptor string
	Probes     map[string]analyzer.ProbeStats
}

// WriteYoloLabels converts the train and val COCO documents into label
// directories, covers the unlabeled list with empty files and writes the
// dataset descriptor. Category disagreement between the documents, or with
// the configured classes, stops the stage before anything is written.
func WriteYoloLabels(opts LabelOptions) (LabelResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.With("stage", "labels")
	res := LabelResult{Probes: map[string]analyzer.ProbeStats{}}

	docs := map[string]*types.CocoDocument{}
	indexes := map[string]*yolo.Index{}
	for _, sp := range []config.SplitPaths{opts.Train, opts.Val} {
		doc, err := coco.Load(sp.Coco)
		if err != nil {
			return res, err
		}
		idx, err := yolo.Load(doc, opts.Categories)
		if err != nil {
			return res, errors.Wrap(err, sp.Split)
		}
		docs[sp.Split], indexes[sp.Split] = doc, idx
	}
	if err := yolo.CheckSameCategories(indexes[opts.Train.Split], indexes[opts.Val.Split]); err != nil {
		return res, err
	}

	if opts.VerifyDims {
		probe := analyzer.NewWithConfig(analyzer.Config{
			SupportedFormats: []string{"jpeg", "png", "webp"},
			SampleSize:       opts.ProbeSample,
		}, logger)
		for _, sp := range []config.SplitPaths{opts.Train, opts.Val} {
			stats, err := probe.VerifyDimensions(sp.Images, docs[sp.Split], opts.Dims)
			res.Probes[sp.Split] = stats
			if err != nil {
				return res, err
			}
			logger.Infow("image dimensions verified", "split", sp.Split, "checked", stats.Checked, "missing", stats.Missing)
		}
	}

	var err error
	if res.TrainFiles, err = yolo.WriteLabels(indexes[opts.Train.Split], opts.Train.YoloLabels); err != nil {
		return res, err
	}
	logger.Infow("wrote labels", "split", opts.Train.Split, "files", res.TrainFiles, "dir", opts.Train.YoloLabels)
	if res.ValFiles, err = yolo.WriteLabels(indexes[opts.Val.Split], opts.Val.YoloLabels); err != nil {
		return res, err
	}
	logger.Infow("wrote labels", "split", opts.Val.Split, "files", res.ValFiles, "dir", opts.Val.YoloLabels)

	switch {
	case opts.Unlabeled == "":
	case !utils.FileExists(opts.Unlabeled):
		logger.Warnw("unlabeled image list not found, skipping", "path", opts.Unlabeled)
	default:
		names, err := yolo.ReadNameList(opts.Unlabeled)
		if err != nil {
			return res, err
		}
		if res.Unlabeled, err = yolo.WriteEmptyLabels(names, opts.Train.YoloLabels); err != nil {
			return res, err
		}
		logger.Infow("created empty labels for unlabeled images", "files", res.Unlabeled)
	}

	d, err := yolo.NewDescriptor(opts.Train.Images, opts.Val.Images, indexes[opts.Train.Split].Names)
	if err != nil {
		return res, err
	}
	if err := yolo.WriteDescriptor(opts.Descriptor, d); err != nil {
		return res, err
	}
	res.Descriptor = opts.Descriptor
	logger.Infow("wrote dataset descriptor", "path", opts.Descriptor, "classes", len(d.Names))
	return res, nil
}

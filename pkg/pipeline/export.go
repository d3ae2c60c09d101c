package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/menta2k/bddconv/internal/config"
	"github.com/menta2k/bddconv/pkg/coco"
	"github.com/menta2k/bddconv/pkg/schema"
	"github.com/menta2k/bddconv/pkg/source"
	"github.com/menta2k/bddconv/pkg/tabular"
	"github.com/menta2k/bddconv/pkg/types"
)

// Options are shared by the export stages
type Options struct {
	Categories *types.CategorySet
	Dims       types.Dimensions
	Policy     schema.Policy
	Logger     *zap.SugaredLogger
}

func (o Options) logger() *zap.SugaredLogger {
	if o.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return o.Logger
}

// TabularStage writes CSV and Parquet files for each split in turn. Each
// split re-reads its own source.
func TabularStage(opts Options, splits []config.SplitPaths) Stage {
	return Stage{
		Name:  "tabular",
		Rerun: rerun("bddconv tabular", splits),
		Run: func(ctx context.Context) error {
			e := &tabular.Exporter{Categories: opts.Categories, Dims: opts.Dims, Policy: opts.Policy, Logger: opts.logger()}
			for _, sp := range splits {
				if err := ctx.Err(); err != nil {
					return err
				}
				if _, err := e.Run(source.New(sp.Labels), sp.Split, sp.CSV, sp.Parquet); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// CocoStage writes the COCO document for each split in turn
func CocoStage(opts Options, splits []config.SplitPaths) Stage {
	return Stage{
		Name:  "coco",
		Rerun: rerun("bddconv coco", splits),
		Run: func(ctx context.Context) error {
			e := &coco.Exporter{Categories: opts.Categories, Dims: opts.Dims, Policy: opts.Policy, Logger: opts.logger()}
			for _, sp := range splits {
				if err := ctx.Err(); err != nil {
					return err
				}
				if _, err := e.Run(source.New(sp.Labels), sp.Split, sp.Coco); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// Export runs the tabular and COCO exporters side by side
func Export(ctx context.Context, opts Options, splits []config.SplitPaths) Outcome {
	return Run(ctx, opts.logger(), TabularStage(opts, splits), CocoStage(opts, splits))
}

// rerun appends the split flags a stage ran with to its command
func rerun(command string, splits []config.SplitPaths) string {
	var b strings.Builder
	b.WriteString(command)
	for _, sp := range splits {
		b.WriteString(" --split ")
		b.WriteString(sp.Split)
	}
	return b.String()
}

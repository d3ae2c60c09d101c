// Package main is the bddconv command line tool.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/menta2k/bddconv"
	"github.com/menta2k/bddconv/internal/config"
	"github.com/menta2k/bddconv/internal/logging"
	"github.com/menta2k/bddconv/internal/utils"
	"github.com/menta2k/bddconv/pkg/pipeline"
	"github.com/menta2k/bddconv/pkg/types"
)

const (
	// Flags.
	flagConfig  = "config"
	flagEnvFile = "env-file"
	flagDebug   = "debug"
	flagSplit   = "split"
	flagSample  = "sample"
	flagImage   = "image"
	flagGT      = "gt"
	flagPred    = "pred"
	flagOut     = "out"
	flagForce   = "force"
)

// Exit codes
const (
	exitFailure = 1
	exitPartial = 2
)

type runner struct {
	logger *zap.SugaredLogger
	conv   *bddconv.Converter
}

func (r *runner) before(c *cli.Context) error {
	if err := config.LoadEnv(c.StringSlice(flagEnvFile)...); err != nil {
		return err
	}
	logger, err := logging.NewLogger("bddconv", c.Bool(flagDebug))
	if err != nil {
		return errors.Wrap(err, "failed to create logger")
	}
	r.logger = logger
	return nil
}

// converter loads the configuration on first use so commands that do not
// need it still work with a broken config file
func (r *runner) converter(c *cli.Context) (*bddconv.Converter, error) {
	if r.conv != nil {
		return r.conv, nil
	}
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return nil, err
	}
	conv, err := bddconv.New(cfg, r.logger)
	if err != nil {
		return nil, err
	}
	r.conv = conv
	return conv, nil
}

func splitFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:  flagSplit,
		Usage: "split to process (train or val), repeatable; defaults to the configured splits",
	}
}

func newApp() *cli.App {
	r := &runner{logger: zap.NewNop().Sugar()}

	return &cli.App{
		Name:    "bddconv",
		Usage:   "convert BDD100K labels into tabular, COCO and YOLO formats",
		Version: bddconv.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.StringSliceFlag{
				Name:  flagEnvFile,
				Usage: "load environment variables from `FILE` (default .env when present)",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: r.before,
		// exit codes are handled in main so the app can be run from tests
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			{
				Name:   "export",
				Usage:  "run the tabular and COCO exporters concurrently",
				Flags:  []cli.Flag{splitFlag()},
				Action: r.export,
			},
			{
				Name:   "tabular",
				Usage:  "write the CSV and Parquet tables only",
				Flags:  []cli.Flag{splitFlag()},
				Action: r.tabular,
			},
			{
				Name:   "coco",
				Usage:  "write the COCO documents only",
				Flags:  []cli.Flag{splitFlag()},
				Action: r.coco,
			},
			{
				Name:   "labels",
				Usage:  "write YOLO label files, unlabeled image coverage and the dataset descriptor",
				Action: r.labels,
			},
			{
				Name:   "check",
				Usage:  "verify that COCO, CSV and Parquet outputs agree",
				Flags:  []cli.Flag{splitFlag()},
				Action: r.check,
			},
			{
				Name:  "probe",
				Usage: "compare real image sizes with the configured dataset dimensions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagSplit, Value: types.SplitTrain, Usage: "split to probe"},
					&cli.IntFlag{Name: flagSample, Value: -1, Usage: "number of images to probe, 0 for all (default from config)"},
				},
				Action: r.probe,
			},
			{
				Name:  "overlay",
				Usage: "draw ground truth and predicted boxes over an image",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagImage, Required: true, Usage: "image `FILE`"},
					&cli.StringFlag{Name: flagGT, Usage: "ground truth YOLO label `FILE`"},
					&cli.StringFlag{Name: flagPred, Usage: "predicted YOLO label `FILE` with optional confidence column"},
					&cli.StringFlag{Name: flagOut, Required: true, Usage: "output `FILE`; the extension (jpg, png or webp) picks the format, overlay.format otherwise"},
				},
				Action: r.overlay,
			},
			{
				Name:  "config",
				Usage: "manage the configuration file",
				Subcommands: []*cli.Command{
					{
						Name:      "init",
						Usage:     "write the default configuration",
						ArgsUsage: "[FILE]",
						Flags:     []cli.Flag{&cli.BoolFlag{Name: flagForce, Usage: "overwrite an existing file"}},
						Action:    r.configInit,
					},
					{
						Name:   "show",
						Usage:  "print the effective configuration",
						Action: r.configShow,
					},
				},
			},
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "bddconv %s\n", bddconv.Version)
					return nil
				},
			},
		},
	}
}

func (r *runner) export(c *cli.Context) error {
	conv, err := r.converter(c)
	if err != nil {
		return err
	}
	outcome, err := conv.Export(c.Context, c.StringSlice(flagSplit)...)
	if err != nil {
		return err
	}
	fmt.Fprint(c.App.Writer, outcome.Summary())
	switch outcome.Status {
	case pipeline.PartialFailure:
		return cli.Exit("export partially failed", exitPartial)
	case pipeline.BothFailed:
		return cli.Exit("export failed", exitFailure)
	}
	return nil
}

func (r *runner) tabular(c *cli.Context) error {
	conv, err := r.converter(c)
	if err != nil {
		return err
	}
	results, err := conv.Tabular(c.StringSlice(flagSplit)...)
	for _, res := range results {
		fmt.Fprintf(c.App.Writer, "%s: %d annotations from %d images -> %s, %s\n",
			res.Split, res.Rows, res.Images, res.CSVPath, res.ParquetPath)
	}
	return err
}

func (r *runner) coco(c *cli.Context) error {
	conv, err := r.converter(c)
	if err != nil {
		return err
	}
	results, err := conv.Coco(c.StringSlice(flagSplit)...)
	for _, res := range results {
		fmt.Fprintf(c.App.Writer, "%s: %d images, %d annotations -> %s\n",
			res.Split, res.Images, res.Annotations, res.Path)
	}
	return err
}

func (r *runner) labels(c *cli.Context) error {
	conv, err := r.converter(c)
	if err != nil {
		return err
	}
	res, err := conv.Labels()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "train: %d label files, val: %d label files, unlabeled: %d\ndescriptor: %s\n",
		res.TrainFiles, res.ValFiles, res.Unlabeled, res.Descriptor)
	return nil
}

func (r *runner) check(c *cli.Context) error {
	conv, err := r.converter(c)
	if err != nil {
		return err
	}
	reports, err := conv.Check(c.StringSlice(flagSplit)...)
	if err != nil {
		return err
	}
	ok := true
	for _, rep := range reports {
		rep.Render(c.App.Writer)
		fmt.Fprintln(c.App.Writer)
		ok = ok && rep.OK()
	}
	if !ok {
		return cli.Exit("consistency check failed", exitFailure)
	}
	return nil
}

func (r *runner) probe(c *cli.Context) error {
	conv, err := r.converter(c)
	if err != nil {
		return err
	}
	sample := c.Int(flagSample)
	if sample < 0 {
		sample = conv.Config().Labels.ProbeSample
	}
	stats, err := conv.Probe(c.String(flagSplit), sample)
	if err != nil {
		return err
	}
	dims := conv.Config().Dims()
	fmt.Fprintf(c.App.Writer, "%s: %d images match %dx%d, %d missing on disk\n",
		c.String(flagSplit), stats.Checked, dims.Width, dims.Height, stats.Missing)
	return nil
}

func (r *runner) overlay(c *cli.Context) error {
	conv, err := r.converter(c)
	if err != nil {
		return err
	}
	if err := conv.Overlay(c.String(flagImage), c.String(flagGT), c.String(flagPred), c.String(flagOut)); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", c.String(flagOut))
	return nil
}

func (r *runner) configInit(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = config.GetConfigPath()
	}
	if utils.FileExists(path) && !c.Bool(flagForce) {
		return errors.Errorf("%s already exists, use --force to overwrite", path)
	}
	if err := config.Default().SaveToFile(path); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return nil
}

func (r *runner) configShow(c *cli.Context) error {
	conv, err := r.converter(c)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(conv.Config(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(data))
	return nil
}

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, exit.Error())
			os.Exit(exit.ExitCode())
		}
		log.Fatal(err)
	}
}

// Package overlay draws ground truth and predicted boxes over a dataset image
// for visual inspection. Predictions are read from YOLO label files; running
// the detector is left to external tooling.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/bddconv/internal/utils"
	"github.com/menta2k/bddconv/pkg/analyzer"
	"github.com/menta2k/bddconv/pkg/geometry"
	"github.com/menta2k/bddconv/pkg/types"
	"github.com/menta2k/bddconv/pkg/yolo"
)

var (
	groundTruthColor = color.NRGBA{255, 0, 0, 255}
	predictionColor  = color.NRGBA{0, 255, 0, 255}
)

// Options control how overlays are rendered and saved
type Options struct {
	Dims     types.Dimensions
	Format   string
	Quality  int
	Lossless bool
	// Stroke is the line width in pixels; 0 picks one from the image size
	Stroke int
}

// Renderer draws label files on top of images
type Renderer struct {
	names    []string
	opts     Options
	analyzer *analyzer.ImageAnalyzer
	logger   *zap.SugaredLogger
}

// NewRenderer creates a renderer that captions boxes with category names
func NewRenderer(categories *types.CategorySet, opts Options, logger *zap.SugaredLogger) *Renderer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Renderer{names: categories.Names(), opts: opts, analyzer: analyzer.New(), logger: logger}
}

// Render returns a copy of img resized to the dataset dimensions with the
// ground truth boxes in red and predictions in green
func (r *Renderer) Render(img image.Image, gt, pred []yolo.Label) *image.NRGBA {
	var canvas *image.NRGBA
	info := r.analyzer.GetImageInfo(img)
	if r.opts.Dims.Width > 0 && r.opts.Dims.Height > 0 && (info.Width != r.opts.Dims.Width || info.Height != r.opts.Dims.Height) {
		canvas = imaging.Resize(img, r.opts.Dims.Width, r.opts.Dims.Height, imaging.Lanczos)
	} else {
		canvas = imaging.Clone(img)
	}
	w, h := canvas.Bounds().Dx(), canvas.Bounds().Dy()

	stroke := r.opts.Stroke
	if stroke <= 0 {
		stroke = int(math.Max(2, 0.003*float64(min(w, h))))
	}

	for _, l := range gt {
		r.drawLabel(canvas, l, groundTruthColor, stroke)
	}
	for _, l := range pred {
		r.drawLabel(canvas, l, predictionColor, stroke)
	}
	return canvas
}

// RenderFile renders one image with its ground truth and optional prediction
// label files and saves the result. A missing label file draws nothing.
func (r *Renderer) RenderFile(imagePath, gtPath, predPath, outPath string) error {
	img, err := r.analyzer.LoadImage(imagePath)
	if err != nil {
		return errors.Wrapf(err, "load %s", imagePath)
	}
	gt, err := r.readLabels(gtPath)
	if err != nil {
		return err
	}
	pred, err := r.readLabels(predPath)
	if err != nil {
		return err
	}

	canvas := r.Render(img, gt, pred)
	if err := utils.EnsureDir(filepath.Dir(outPath)); err != nil {
		return errors.Wrap(err, "create output directory")
	}
	format := OutputFormat(outPath, r.opts.Format)
	if err := SaveImage(canvas, outPath, format, r.opts.Quality, r.opts.Lossless); err != nil {
		return errors.Wrapf(err, "save %s", outPath)
	}
	src := r.analyzer.GetImageInfo(img)
	r.logger.Infow("wrote overlay", "image", imagePath, "source_width", src.Width, "source_height", src.Height,
		"ground_truth", len(gt), "predictions", len(pred), "path", outPath, "format", format)
	return nil
}

func (r *Renderer) readLabels(path string) ([]yolo.Label, error) {
	if path == "" {
		return nil, nil
	}
	labels, err := yolo.ReadLabelFile(path)
	if errors.Is(err, os.ErrNotExist) {
		r.logger.Warnw("label file not found, drawing no boxes", "path", path)
		return nil, nil
	}
	return labels, err
}

func (r *Renderer) drawLabel(img *image.NRGBA, l yolo.Label, c color.NRGBA, stroke int) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	x1, y1, x2, y2 := geometry.YoloNormToCorners(l.Box.Cx, l.Box.Cy, l.Box.W, l.Box.H, w, h)
	x0, y0, x1i, y1i := toPixels(x1, y1, x2, y2, w, h)
	drawRect(img, x0, y0, x1i, y1i, c, stroke)

	caption := r.className(l.Class)
	if l.HasConfidence {
		caption = fmt.Sprintf("%s %.2f", caption, l.Confidence)
	}
	drawCaption(img, x0, y0, caption, c)
}

func (r *Renderer) className(class int) string {
	if class >= 0 && class < len(r.names) {
		return r.names[class]
	}
	return fmt.Sprintf("class %d", class)
}

// OutputFormat picks the encoding for outPath. An image extension on the
// path wins over the configured fallback.
func OutputFormat(outPath, fallback string) string {
	if utils.IsImageFile(outPath) {
		return utils.GetFileExtension(outPath)
	}
	return strings.ToLower(fallback)
}

// SaveImage saves an image to a file with the specified format and quality.
// The format is used as given, whatever the extension of path.
func SaveImage(img image.Image, path, format string, quality int, lossless bool) (err error) {
	if quality <= 0 {
		quality = 90
	}
	var encode func(f *os.File) error
	switch strings.ToLower(format) {
	case "webp":
		encode = func(f *os.File) error {
			return webp.Encode(f, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
		}
	case "png":
		encode = func(f *os.File) error { return imaging.Encode(f, img, imaging.PNG) }
	case "jpg", "jpeg", "":
		encode = func(f *os.File) error { return imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(quality)) }
	default:
		return errors.Errorf("unsupported output format: %s", format)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return encode(f)
}

func toPixels(x1, y1, x2, y2 float64, w, h int) (int, int, int, int) {
	fw, fh := float64(w), float64(h)
	x0 := int(geometry.Clamp(x1, 0, fw) + 0.5)
	y0 := int(geometry.Clamp(y1, 0, fh) + 0.5)
	xe := int(geometry.Clamp(x2, 0, fw) + 0.5)
	ye := int(geometry.Clamp(y2, 0, fh) + 0.5)
	if xe <= x0 {
		xe = x0 + 1
	}
	if ye <= y0 {
		ye = y0 + 1
	}
	return x0, y0, xe, ye
}

func drawRect(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA, stroke int) {
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

// drawCaption writes text just above the box, or inside it when the box
// touches the top edge
func drawCaption(img *image.NRGBA, x, y int, text string, c color.NRGBA) {
	face := basicfont.Face7x13
	baseline := y - 3
	if baseline-face.Ascent < 0 {
		baseline = y + face.Ascent + 2
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x+2, baseline),
	}
	d.DrawString(text)
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	x0 = max(x0, 0)
	x1 = min(x1, img.Bounds().Dx())
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	y0 = max(y0, 0)
	y1 = min(y1, img.Bounds().Dy())
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}

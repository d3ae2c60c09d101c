package analyzer

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"
	"go.uber.org/zap"

	"github.com/menta2k/bddconv/pkg/types"
)

// ImageAnalyzer loads dataset images and checks their pixel size
type ImageAnalyzer struct {
	config Config
	logger *zap.SugaredLogger
}

// Config holds configuration for the image analyzer
type Config struct {
	SupportedFormats []string
	// SampleSize limits VerifyDimensions to the first N images; 0 checks all
	SampleSize int
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{
		config: Config{
			SupportedFormats: []string{"jpeg", "png", "webp"},
			SampleSize:       0,
		},
		logger: zap.NewNop().Sugar(),
	}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config, logger *zap.SugaredLogger) *ImageAnalyzer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ImageAnalyzer{config: config, logger: logger}
}

// DimensionMismatchError reports an image whose real size differs from the
// dimensions the dataset assumes for every image
type DimensionMismatchError struct {
	Path     string
	Expected types.Dimensions
	Got      types.Dimensions
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("image %s is %dx%d, dataset assumes %dx%d",
		e.Path, e.Got.Width, e.Got.Height, e.Expected.Width, e.Expected.Height)
}

// LoadImage loads an image from file
func (a *ImageAnalyzer) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open image file")
	}
	defer file.Close()
	return a.LoadImageFromReader(file)
}

// LoadImageFromReader loads an image from an io.Reader
func (a *ImageAnalyzer) LoadImageFromReader(reader io.ReadSeeker) (image.Image, error) {
	img, format, err := image.Decode(reader)
	if err != nil {
		if _, serr := reader.Seek(0, io.SeekStart); serr != nil {
			return nil, errors.Wrap(err, "failed to decode image")
		}
		wimg, werr := webp.Decode(reader)
		if werr != nil {
			return nil, errors.Wrap(err, "failed to decode image")
		}
		img, format = wimg, "webp"
	}

	if !a.isFormatSupported(format) {
		return nil, errors.Errorf("unsupported image format: %s", format)
	}
	return img, nil
}

// ProbeDimensions reads the pixel size from the image header without decoding
// the pixel data
func (a *ImageAnalyzer) ProbeDimensions(path string) (types.Dimensions, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Dimensions{}, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		if _, serr := f.Seek(0, io.SeekStart); serr != nil {
			return types.Dimensions{}, errors.Wrapf(err, "probe %s", path)
		}
		wcfg, werr := webp.DecodeConfig(f)
		if werr != nil {
			return types.Dimensions{}, errors.Wrapf(err, "probe %s", path)
		}
		cfg, format = wcfg, "webp"
	}
	if !a.isFormatSupported(format) {
		return types.Dimensions{}, errors.Errorf("unsupported image format: %s", format)
	}
	return types.Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

// ProbeStats summarizes a verification pass
type ProbeStats struct {
	Checked int
	Missing int
}

// VerifyDimensions probes the images of a COCO document found under
// imagesDir and fails on the first one whose size differs from dims.
// Images missing from disk are counted and skipped.
func (a *ImageAnalyzer) VerifyDimensions(imagesDir string, doc *types.CocoDocument, dims types.Dimensions) (ProbeStats, error) {
	var stats ProbeStats
	for _, img := range doc.Images {
		if a.config.SampleSize > 0 && stats.Checked >= a.config.SampleSize {
			break
		}
		path := filepath.Join(imagesDir, img.FileName)
		got, err := a.ProbeDimensions(path)
		if errors.Is(err, os.ErrNotExist) {
			stats.Missing++
			continue
		}
		if err != nil {
			return stats, err
		}
		stats.Checked++
		if got != dims {
			return stats, &DimensionMismatchError{Path: path, Expected: dims, Got: got}
		}
	}
	a.logger.Debugw("verified image dimensions", "dir", imagesDir, "checked", stats.Checked, "missing", stats.Missing)
	return stats, nil
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	return ImageInfo{
		Width:       width,
		Height:      height,
		AspectRatio: float64(width) / float64(height),
		Area:        width * height,
	}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

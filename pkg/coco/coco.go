// Package coco builds COCO detection documents from BDD100K records and reads
// them back.
package coco

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/menta2k/bddconv/internal/utils"
	"github.com/menta2k/bddconv/pkg/geometry"
	"github.com/menta2k/bddconv/pkg/schema"
	"github.com/menta2k/bddconv/pkg/source"
	"github.com/menta2k/bddconv/pkg/types"
)

// Builder accumulates one split. Image ids and annotation ids are assigned
// from counters starting at 1, in the order records and labels are added.
type Builder struct {
	categories *types.CategorySet
	dims       types.Dimensions
	doc        types.CocoDocument
	nextAnnID  int
}

// NewBuilder starts an empty document whose categories follow the order of the
// category set rather than the order they show up in the data.
func NewBuilder(categories *types.CategorySet, split string, dims types.Dimensions) *Builder {
	doc := types.CocoDocument{
		Info:        types.CocoInfo{Description: fmt.Sprintf("BDD100K %s", split)},
		Licenses:    []types.CocoLicense{{ID: 1, Name: "BDD100K"}},
		Categories:  make([]types.CocoCategory, 0, categories.Len()),
		Images:      []types.CocoImage{},
		Annotations: []types.CocoAnnotation{},
	}
	for i, name := range categories.Names() {
		doc.Categories = append(doc.Categories, types.CocoCategory{ID: i + 1, Name: name})
	}
	return &Builder{categories: categories, dims: dims, doc: doc, nextAnnID: 1}
}

// Add appends an image and its retained annotations. Every image gets an
// entry, even when none of its labels are retained.
func (b *Builder) Add(ann types.ImageAnnotation) {
	img := types.CocoImage{
		ID:       len(b.doc.Images) + 1,
		FileName: ann.Name,
		Width:    b.dims.Width,
		Height:   b.dims.Height,
	}
	b.doc.Images = append(b.doc.Images, img)

	for _, label := range ann.Labels {
		if !types.Retained(label, b.categories) {
			continue
		}
		catID, _ := b.categories.CocoID(label.Category)
		box := label.Box2D
		x, y, w, h := geometry.CornersToCocoXYWH(box.X1, box.Y1, box.X2, box.Y2)
		b.doc.Annotations = append(b.doc.Annotations, types.CocoAnnotation{
			ID:         b.nextAnnID,
			ImageID:    img.ID,
			CategoryID: catID,
			BBox:       [4]float64{x, y, w, h},
			Area:       geometry.Area(w, h),
			IsCrowd:    0,
		})
		b.nextAnnID++
	}
}

// Document returns the document built so far
func (b *Builder) Document() types.CocoDocument {
	return b.doc
}

// Build converts a set of validated records into a COCO document
func Build(anns []types.ImageAnnotation, categories *types.CategorySet, split string, dims types.Dimensions) types.CocoDocument {
	b := NewBuilder(categories, split, dims)
	for _, ann := range anns {
		b.Add(ann)
	}
	return b.Document()
}

// Exporter runs the COCO export for one split
type Exporter struct {
	Categories *types.CategorySet
	Dims       types.Dimensions
	Policy     schema.Policy
	Logger     *zap.SugaredLogger
}

// Result describes a finished export
type Result struct {
	Split       string
	Stats       schema.WalkStats
	Images      int
	Annotations int
	Path        string
}

// Run reads src and writes the COCO document for it. Nothing is written unless
// the whole split was read successfully.
func (e *Exporter) Run(src *source.Source, split, outPath string) (Result, error) {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.With("stage", "coco", "split", split)
	logger.Infow("converting split", "labels", src.Path())

	res := Result{Split: split, Path: outPath}
	b := NewBuilder(e.Categories, split, e.Dims)
	stats, err := schema.Walk(src.Records(), e.Policy, logger, func(ann types.ImageAnnotation) error {
		b.Add(ann)
		return nil
	})
	res.Stats = stats
	if err != nil {
		return res, err
	}

	doc := b.Document()
	if err := Save(outPath, &doc); err != nil {
		return res, err
	}
	res.Images = len(doc.Images)
	res.Annotations = len(doc.Annotations)
	logger.Infow("wrote coco split",
		"records", stats.Records, "skipped", stats.Skipped,
		"images", res.Images, "annotations", res.Annotations, "path", outPath)
	return res, nil
}

// Save writes a pretty printed document
func Save(path string, doc *types.CocoDocument) error {
	err := utils.WriteAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", " ")
		enc.SetEscapeHTML(false)
		return enc.Encode(doc)
	})
	return errors.Wrapf(err, "write coco %s", path)
}

// Load reads a COCO document
func Load(path string) (*types.CocoDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open coco")
	}
	defer f.Close()

	var doc types.CocoDocument
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, errors.Wrapf(err, "decode coco %s", path)
	}
	return &doc, nil
}

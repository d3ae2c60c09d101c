// Package yolo turns COCO documents into per-image YOLO label files and writes
// the dataset descriptor consumed by the detector trainer.
package yolo

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/menta2k/bddconv/internal/utils"
	"github.com/menta2k/bddconv/pkg/geometry"
	"github.com/menta2k/bddconv/pkg/types"
)

// CategoryDivergenceError reports two category orderings that should be equal.
// Continuing would silently misalign class indexes, so it is always fatal.
type CategoryDivergenceError struct {
	Context  string
	Expected []string
	Got      []string
}

func (e *CategoryDivergenceError) Error() string {
	return fmt.Sprintf("category lists differ (%s): expected [%s], got [%s]",
		e.Context, strings.Join(e.Expected, ", "), strings.Join(e.Got, ", "))
}

// Annotation is a COCO box tagged with its 0-based class index
type Annotation struct {
	Class int
	BBox  [4]float64
}

// Image is one COCO image with the annotations that become YOLO targets
type Image struct {
	ID          int
	FileName    string
	Width       int
	Height      int
	Annotations []Annotation
}

// Index groups the annotations of a COCO document by image
type Index struct {
	Names      []string
	Categories *types.CategorySet
	Images     []Image
}

// Load indexes a document. Crowd annotations and annotations of unknown
// images are dropped. The document's categories, ordered by id, must match
// the configured category set. Images need a positive width and height to be
// normalized against.
func Load(doc *types.CocoDocument, categories *types.CategorySet) (*Index, error) {
	cats := slices.Clone(doc.Categories)
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].ID < cats[j].ID })

	names := make([]string, len(cats))
	classOf := make(map[int]int, len(cats))
	for i, c := range cats {
		names[i] = c.Name
		classOf[c.ID] = i
	}
	docSet, err := types.NewCategorySet(names)
	if err != nil {
		return nil, errors.Wrap(err, "coco categories")
	}
	if !docSet.Equal(categories) {
		return nil, &CategoryDivergenceError{Context: "coco document vs configured classes", Expected: categories.Names(), Got: names}
	}

	idx := &Index{Names: names, Categories: docSet, Images: make([]Image, 0, len(doc.Images))}
	pos := make(map[int]int, len(doc.Images))
	for _, im := range doc.Images {
		if _, dup := pos[im.ID]; dup {
			return nil, errors.Errorf("duplicate image id %d (%s)", im.ID, im.FileName)
		}
		if im.Width <= 0 || im.Height <= 0 {
			return nil, errors.Errorf("image %d (%s) has invalid size %dx%d", im.ID, im.FileName, im.Width, im.Height)
		}
		pos[im.ID] = len(idx.Images)
		idx.Images = append(idx.Images, Image{ID: im.ID, FileName: im.FileName, Width: im.Width, Height: im.Height})
	}

	for _, ann := range doc.Annotations {
		if ann.IsCrowd == 1 {
			continue
		}
		p, ok := pos[ann.ImageID]
		if !ok {
			continue
		}
		class, ok := classOf[ann.CategoryID]
		if !ok {
			return nil, errors.Errorf("annotation %d has unknown category id %d", ann.ID, ann.CategoryID)
		}
		idx.Images[p].Annotations = append(idx.Images[p].Annotations, Annotation{Class: class, BBox: ann.BBox})
	}
	return idx, nil
}

// CheckSameCategories fails when the train and val documents disagree on
// category order
func CheckSameCategories(train, val *Index) error {
	if !train.Categories.Equal(val.Categories) {
		return &CategoryDivergenceError{Context: "train vs val", Expected: train.Names, Got: val.Names}
	}
	return nil
}

// Lines renders the label lines of one image. Degenerate boxes are left out.
func Lines(img Image) []string {
	lines := make([]string, 0, len(img.Annotations))
	for _, a := range img.Annotations {
		if geometry.Degenerate(a.BBox[2], a.BBox[3]) {
			continue
		}
		b := geometry.BoxFromCoco(a.BBox, img.Width, img.Height)
		lines = append(lines, fmt.Sprintf("%d %.6f %.6f %.6f %.6f", a.Class, b.Cx, b.Cy, b.W, b.H))
	}
	return lines
}

// WriteLabels writes <stem>.txt for every image of the index, including empty
// files for images without targets, and returns the number of files written.
// The first failed write aborts the pass; the directory must then be rebuilt.
func WriteLabels(idx *Index, dir string) (int, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return 0, errors.Wrapf(err, "create label directory %s", dir)
	}
	n := 0
	for _, img := range idx.Images {
		out := filepath.Join(dir, utils.LabelFilename(img.FileName))
		content := strings.Join(Lines(img), "\n")
		if err := os.WriteFile(out, []byte(content), 0644); err != nil {
			return n, errors.Wrapf(err, "write label file for %s", img.FileName)
		}
		n++
	}
	return n, nil
}

// WriteEmptyLabels force-creates an empty label file for each image name, so
// the trainer treats those images as verified negatives instead of unlabeled.
func WriteEmptyLabels(imageNames []string, dir string) (int, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return 0, errors.Wrapf(err, "create label directory %s", dir)
	}
	n := 0
	for _, name := range imageNames {
		out := filepath.Join(dir, utils.LabelFilename(name))
		if err := os.WriteFile(out, nil, 0644); err != nil {
			return n, errors.Wrapf(err, "write empty label file for %s", name)
		}
		n++
	}
	return n, nil
}

// ReadNameList reads a list of image names, one per line
func ReadNameList(path string) ([]string, error) {
	names, err := utils.ReadLines(path)
	return names, errors.Wrapf(err, "read image list %s", path)
}

// Package consistency verifies that the COCO, CSV and Parquet outputs of a
// split agree on image, annotation and per-category counts.
package consistency

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/menta2k/bddconv/pkg/coco"
	"github.com/menta2k/bddconv/pkg/tabular"
	"github.com/menta2k/bddconv/pkg/types"
)

// Paths are the three files produced for one split
type Paths struct {
	Coco    string
	CSV     string
	Parquet string
}

// Counts holds one tally per representation
type Counts struct {
	Coco    int
	CSV     int
	Parquet int
}

// Match reports whether all three counts are equal
func (c Counts) Match() bool {
	return c.Coco == c.CSV && c.CSV == c.Parquet
}

// MismatchError describes one failed comparison
type MismatchError struct {
	Check    string
	Category string
	Counts
}

func (e *MismatchError) Error() string {
	what := e.Check
	if e.Category != "" {
		what = fmt.Sprintf("%s %q", e.Check, e.Category)
	}
	return fmt.Sprintf("%s mismatch: coco=%d csv=%d parquet=%d", what, e.Coco, e.CSV, e.Parquet)
}

// CategoryCount is the per-category tally across representations
type CategoryCount struct {
	Category string
	Counts
}

// Report is the outcome of a check. Missing files and mismatches are
// recorded here rather than returned as errors.
type Report struct {
	Split       string
	Paths       Paths
	Missing     []string
	Images      Counts
	Annotations Counts
	// LabeledImages counts COCO images referenced by at least one annotation
	LabeledImages int
	Categories    []CategoryCount
	Mismatches    []*MismatchError
}

// OK reports whether every file was present and every count matched
func (r *Report) OK() bool {
	return len(r.Missing) == 0 && len(r.Mismatches) == 0
}

// Err combines the failures of the report into one error, or returns nil
func (r *Report) Err() error {
	var err error
	for _, m := range r.Missing {
		err = multierr.Append(err, errors.Errorf("%s: missing file %s", r.Split, m))
	}
	for _, m := range r.Mismatches {
		err = multierr.Append(err, errors.Wrap(m, r.Split))
	}
	return err
}

// Check loads the three files of a split and compares them. The returned
// error is only set when a present file cannot be read.
func Check(split string, paths Paths) (*Report, error) {
	r := &Report{Split: split, Paths: paths}
	for _, p := range []string{paths.Coco, paths.CSV, paths.Parquet} {
		if _, err := os.Stat(p); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, errors.Wrapf(err, "stat %s", p)
			}
			r.Missing = append(r.Missing, p)
		}
	}
	if len(r.Missing) > 0 {
		return r, nil
	}

	doc, err := coco.Load(paths.Coco)
	if err != nil {
		return nil, err
	}
	csvRows, err := tabular.ReadCSV(paths.CSV)
	if err != nil {
		return nil, err
	}
	pqRows, err := tabular.ReadParquet(paths.Parquet)
	if err != nil {
		return nil, err
	}

	csvImages, csvCats := tally(csvRows)
	pqImages, pqCats := tally(pqRows)
	cocoCats, labeled := tallyCoco(doc)

	r.LabeledImages = labeled
	r.Images = Counts{Coco: len(doc.Images), CSV: csvImages, Parquet: pqImages}
	r.Annotations = Counts{Coco: len(doc.Annotations), CSV: len(csvRows), Parquet: len(pqRows)}
	if !r.Images.Match() {
		r.Mismatches = append(r.Mismatches, &MismatchError{Check: "images", Counts: r.Images})
	}
	if !r.Annotations.Match() {
		r.Mismatches = append(r.Mismatches, &MismatchError{Check: "annotations", Counts: r.Annotations})
	}

	union := map[string]struct{}{}
	for _, m := range []map[string]int{cocoCats, csvCats, pqCats} {
		for name := range m {
			union[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(union))
	for name := range union {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := CategoryCount{Category: name, Counts: Counts{Coco: cocoCats[name], CSV: csvCats[name], Parquet: pqCats[name]}}
		r.Categories = append(r.Categories, c)
		if !c.Match() {
			r.Mismatches = append(r.Mismatches, &MismatchError{Check: "category", Category: name, Counts: c.Counts})
		}
	}
	return r, nil
}

func tally(rows []types.FlatAnnotationRow) (images int, categories map[string]int) {
	seen := map[string]struct{}{}
	categories = map[string]int{}
	for _, row := range rows {
		seen[row.ImageName] = struct{}{}
		categories[row.Category]++
	}
	return len(seen), categories
}

func tallyCoco(doc *types.CocoDocument) (categories map[string]int, labeled int) {
	names := doc.CategoryNames()
	categories = map[string]int{}
	images := map[int]struct{}{}
	for _, ann := range doc.Annotations {
		name, ok := names[ann.CategoryID]
		if !ok {
			name = fmt.Sprintf("<unknown category id %d>", ann.CategoryID)
		}
		categories[name]++
		images[ann.ImageID] = struct{}{}
	}
	return categories, len(images)
}

// Render writes a human readable report
func (r *Report) Render(w io.Writer) {
	fmt.Fprintf(w, "%s split\n", r.Split)
	if len(r.Missing) > 0 {
		for _, m := range r.Missing {
			fmt.Fprintf(w, "  missing: %s\n", m)
		}
		fmt.Fprintln(w, "  check failed: outputs are incomplete")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Check", "COCO", "CSV", "Parquet", "Status"})
	t.AppendRow(table.Row{"images", r.Images.Coco, r.Images.CSV, r.Images.Parquet, status(r.Images)})
	t.AppendRow(table.Row{"annotations", r.Annotations.Coco, r.Annotations.CSV, r.Annotations.Parquet, status(r.Annotations)})
	t.AppendSeparator()
	for _, c := range r.Categories {
		t.AppendRow(table.Row{c.Category, c.Coco, c.CSV, c.Parquet, status(c.Counts)})
	}
	t.Render()

	fmt.Fprintf(w, "images: %d (%d with annotations), annotations: %d, classes: %d\n",
		r.Images.Coco, r.LabeledImages, r.Annotations.Coco, len(r.Categories))
	if r.OK() {
		fmt.Fprintln(w, "data is consistent across all formats")
	} else {
		fmt.Fprintf(w, "check failed: %d mismatches\n", len(r.Mismatches))
	}
}

func status(c Counts) string {
	if c.Match() {
		return "Match"
	}
	return "Mismatch"
}

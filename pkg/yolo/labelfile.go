package yolo

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/menta2k/bddconv/pkg/types"
)

// Label is one line of a YOLO label file. Prediction files carry a sixth
// column with the detector confidence.
type Label struct {
	Class         int
	Box           types.Box
	Confidence    float64
	HasConfidence bool
}

// ReadLabelFile parses a label file
func ReadLabelFile(path string) ([]Label, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	labels, err := ParseLabels(f)
	return labels, errors.Wrapf(err, "parse %s", path)
}

// ParseLabels parses YOLO label lines
func ParseLabels(r io.Reader) ([]Label, error) {
	var out []Label
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 5 && len(fields) != 6 {
			return nil, errors.Errorf("line %d: expected 5 or 6 fields, got %d", n, len(fields))
		}
		class, err := strconv.Atoi(fields[0])
		if err != nil {
			// some writers emit the class as a float
			f, ferr := strconv.ParseFloat(fields[0], 64)
			if ferr != nil {
				return nil, errors.Wrapf(err, "line %d: class", n)
			}
			class = int(f)
		}
		var v [5]float64
		for i, s := range fields[1:] {
			if v[i], err = strconv.ParseFloat(s, 64); err != nil {
				return nil, errors.Wrapf(err, "line %d: column %d", n, i+2)
			}
		}
		l := Label{Class: class, Box: types.Box{Cx: v[0], Cy: v[1], W: v[2], H: v[3]}}
		if len(fields) == 6 {
			l.Confidence, l.HasConfidence = v[4], true
		}
		out = append(out, l)
	}
	return out, sc.Err()
}

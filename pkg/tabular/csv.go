package tabular

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/menta2k/bddconv/internal/utils"
	"github.com/menta2k/bddconv/pkg/types"
)

// WriteCSV writes a header row followed by one record per row
func WriteCSV(path string, rows []types.FlatAnnotationRow) error {
	err := utils.WriteAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(types.FlatColumns); err != nil {
			return err
		}
		rec := make([]string, len(types.FlatColumns))
		for _, r := range rows {
			rec[0] = r.ImageName
			rec[1] = r.Split
			rec[2] = strconv.FormatInt(r.LabelID, 10)
			rec[3] = r.Category
			rec[4] = formatFloat(r.X1)
			rec[5] = formatFloat(r.Y1)
			rec[6] = formatFloat(r.X2)
			rec[7] = formatFloat(r.Y2)
			rec[8] = strconv.FormatInt(r.Width, 10)
			rec[9] = strconv.FormatInt(r.Height, 10)
			rec[10] = r.Scene
			rec[11] = r.TimeOfDay
			rec[12] = r.Weather
			rec[13] = r.TrafficLightColor
			rec[14] = formatBool(r.Occluded)
			rec[15] = formatBool(r.Truncated)
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	return errors.Wrapf(err, "write csv %s", path)
}

// ReadCSV loads a file written by WriteCSV. Columns are located by header
// name, so extra or reordered columns are tolerated.
func ReadCSV(path string) ([]types.FlatAnnotationRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open csv")
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "read csv header %s", path)
	}
	col := map[string]int{}
	for i, h := range header {
		col[h] = i
	}
	for _, required := range []string{"image_name", "category"} {
		if _, ok := col[required]; !ok {
			return nil, errors.Errorf("csv %s has no %q column", path, required)
		}
	}

	var rows []types.FlatAnnotationRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read csv %s", path)
		}
		p := rowParser{rec: rec, col: col}
		row := types.FlatAnnotationRow{
			ImageName:         p.str("image_name"),
			Split:             p.str("split"),
			LabelID:           p.integer("label_id"),
			Category:          p.str("category"),
			X1:                p.number("x1"),
			Y1:                p.number("y1"),
			X2:                p.number("x2"),
			Y2:                p.number("y2"),
			Width:             p.integer("width"),
			Height:            p.integer("height"),
			Scene:             p.str("scene"),
			TimeOfDay:         p.str("timeofday"),
			Weather:           p.str("weather"),
			TrafficLightColor: p.str("traffic_light_color"),
			Occluded:          p.boolean("occluded"),
			Truncated:         p.boolean("truncated"),
		}
		if p.err != nil {
			return nil, errors.Wrapf(p.err, "csv %s line %d", path, line)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type rowParser struct {
	rec []string
	col map[string]int
	err error
}

func (p *rowParser) str(name string) string {
	i, ok := p.col[name]
	if !ok || i >= len(p.rec) {
		return ""
	}
	return p.rec[i]
}

func (p *rowParser) integer(name string) int64 {
	s := p.str(name)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil && p.err == nil {
		p.err = errors.Wrapf(err, "column %s", name)
	}
	return v
}

func (p *rowParser) number(name string) float64 {
	s := p.str(name)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && p.err == nil {
		p.err = errors.Wrapf(err, "column %s", name)
	}
	return v
}

func (p *rowParser) boolean(name string) *bool {
	s := p.str(name)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		if p.err == nil {
			p.err = errors.Wrapf(err, "column %s", name)
		}
		return nil
	}
	return &v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBool(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

package tabular

import (
	"io"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"

	"github.com/menta2k/bddconv/internal/utils"
	"github.com/menta2k/bddconv/pkg/types"
)

// WriteParquet writes rows as a snappy compressed Parquet file
func WriteParquet(path string, rows []types.FlatAnnotationRow) error {
	err := utils.WriteAtomic(path, func(w io.Writer) error {
		pw := parquet.NewGenericWriter[types.FlatAnnotationRow](w, parquet.Compression(&parquet.Snappy))
		if _, err := pw.Write(rows); err != nil {
			_ = pw.Close()
			return err
		}
		return pw.Close()
	})
	return errors.Wrapf(err, "write parquet %s", path)
}

// ReadParquet loads every row of a file written by WriteParquet
func ReadParquet(path string) ([]types.FlatAnnotationRow, error) {
	rows, err := parquet.ReadFile[types.FlatAnnotationRow](path)
	if err != nil {
		return nil, errors.Wrapf(err, "read parquet %s", path)
	}
	return rows, nil
}

package exportsvc

import (
	"encoding/csv"
	"io"

	"github.com/pkg/errors"
)

func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, row := range r.Rows {
		if err := cw.Write(record(row)); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}

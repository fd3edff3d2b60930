package fit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadXY reads two numeric columns from CSV. A first row that does not
// parse as numbers is treated as a header.
func ReadXY(r io.Reader) (x, y []float64, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		if len(rec) < 2 {
			return nil, nil, fmt.Errorf("line %d: want 2 columns, got %d", line, len(rec))
		}
		xv, errX := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		yv, errY := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if errX != nil || errY != nil {
			if line == 1 {
				continue
			}
			return nil, nil, fmt.Errorf("line %d: not a number pair: %v", line, rec)
		}
		x = append(x, xv)
		y = append(y, yv)
	}
	return x, y, nil
}

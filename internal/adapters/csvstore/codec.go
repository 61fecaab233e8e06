package csvstore

import (
	"fmt"
	"strconv"
	"strings"

	"stockSync/internal/domain"
)

// Codec converts records to and from CSV rows. The first column is always the ISO date.
type Codec[R domain.Record] interface {
	// Header returns the header row for a file holding records.
	Header(records []R) []string
	// Encode renders one record as a row. Rows shorter than the header are padded.
	Encode(r R) []string
	// Decoder returns a row decoder bound to the header found in an existing file.
	Decoder(header []string) (func(row []string) (R, error), error)
}

// BarCodec stores domain.Bar rows as date,open,high,low,close,adj_close,volume.
type BarCodec struct{}

func (BarCodec) Header([]domain.Bar) []string {
	return []string{"date", "open", "high", "low", "close", "adj_close", "volume"}
}

func (BarCodec) Encode(b domain.Bar) []string {
	return []string{
		b.Date.Format(domain.DateLayout),
		formatFloat(b.Open),
		formatFloat(b.High),
		formatFloat(b.Low),
		formatFloat(b.Close),
		formatFloat(b.AdjClose),
		formatFloat(b.Volume),
	}
}

// Decoder locates columns by name, so files written by other tools with a different column
// order (e.g. "Date,High,Low,Open,Close,Volume,Adj Close") load as well.
func (BarCodec) Decoder(header []string) (func(row []string) (domain.Bar, error), error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[normalizeColumn(h)] = i
	}
	col := func(name string) (int, error) {
		i, ok := idx[name]
		if !ok {
			return 0, fmt.Errorf("missing column '%s' in header %v", name, header)
		}
		return i, nil
	}

	var cols [6]int
	for i, name := range []string{"date", "open", "high", "low", "close", "volume"} {
		c, err := col(name)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}
	adj, hasAdj := idx["adjclose"]

	return func(row []string) (domain.Bar, error) {
		var b domain.Bar
		var err error
		if b.Date, err = domain.ParseDay(strings.TrimSpace(row[cols[0]])); err != nil {
			return b, fmt.Errorf("parsing date '%s': %w", row[cols[0]], err)
		}
		fields := []*float64{&b.Open, &b.High, &b.Low, &b.Close, &b.Volume}
		for i, dst := range fields {
			raw := row[cols[i+1]]
			if *dst, err = parseFloat(raw); err != nil {
				return b, fmt.Errorf("parsing %s '%s': %w", header[cols[i+1]], raw, err)
			}
		}
		b.AdjClose = b.Close
		if hasAdj && strings.TrimSpace(row[adj]) != "" {
			if b.AdjClose, err = parseFloat(row[adj]); err != nil {
				return b, fmt.Errorf("parsing adj close '%s': %w", row[adj], err)
			}
		}
		return b, nil
	}, nil
}

// HeadlineCodec stores one archive day per row: date,headline_1..headline_N.
// N is Max, or the longest stored day when an archive was crawled with a larger Max;
// stored headlines are never dropped.
type HeadlineCodec struct {
	Max int
}

func (c HeadlineCodec) Header(days []domain.HeadlineDay) []string {
	width := c.Max
	for _, d := range days {
		width = max(width, len(d.Headlines))
	}
	h := make([]string, 0, width+1)
	h = append(h, "date")
	for i := 1; i <= width; i++ {
		h = append(h, fmt.Sprintf("headline_%d", i))
	}
	return h
}

func (c HeadlineCodec) Encode(d domain.HeadlineDay) []string {
	row := make([]string, 0, len(d.Headlines)+1)
	row = append(row, d.Date.Format(domain.DateLayout))
	return append(row, d.Headlines...)
}

func (c HeadlineCodec) Decoder(header []string) (func(row []string) (domain.HeadlineDay, error), error) {
	if len(header) == 0 || normalizeColumn(header[0]) != "date" {
		return nil, fmt.Errorf("first column must be 'date', got header %v", header)
	}
	return func(row []string) (domain.HeadlineDay, error) {
		var d domain.HeadlineDay
		var err error
		if d.Date, err = domain.ParseDay(strings.TrimSpace(row[0])); err != nil {
			return d, fmt.Errorf("parsing date '%s': %w", row[0], err)
		}
		for _, h := range row[1:] {
			if h != "" {
				d.Headlines = append(d.Headlines, h)
			}
		}
		return d, nil
	}, nil
}

func normalizeColumn(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "").Replace(s)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

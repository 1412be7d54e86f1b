package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Partition is a labeled feature matrix in the fixed layout shared by the
// feature builder and the trainer: one row per sample, label first.
type Partition struct {
	Labels   []int
	Features [][]float64
}

// Len returns the number of rows.
func (p *Partition) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Labels)
}

// Width returns the number of feature columns, or 0 for an empty partition.
func (p *Partition) Width() int {
	if p == nil || len(p.Features) == 0 {
		return 0
	}
	return len(p.Features[0])
}

// ClassCounts returns the number of rows per label.
func (p *Partition) ClassCounts() map[int]int {
	counts := make(map[int]int)
	if p == nil {
		return counts
	}
	for _, y := range p.Labels {
		counts[y]++
	}
	return counts
}

// Clone returns a deep copy.
func (p *Partition) Clone() *Partition {
	out := &Partition{
		Labels:   append([]int(nil), p.Labels...),
		Features: make([][]float64, len(p.Features)),
	}
	for i, row := range p.Features {
		out.Features[i] = append([]float64(nil), row...)
	}
	return out
}

// Subset returns the rows at idx, sharing row storage with p.
func (p *Partition) Subset(idx []int) *Partition {
	out := &Partition{
		Labels:   make([]int, len(idx)),
		Features: make([][]float64, len(idx)),
	}
	for i, j := range idx {
		out.Labels[i] = p.Labels[j]
		out.Features[i] = p.Features[j]
	}
	return out
}

// FormatValue renders a feature value the way partitions store it: integers
// without a decimal point, other values in shortest round-trip form.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WritePartition encodes p without a header row, label in column 0.
func WritePartition(w io.Writer, p *Partition) error {
	cw := csv.NewWriter(w)
	for i, row := range p.Features {
		record := make([]string, 0, len(row)+1)
		record = append(record, strconv.Itoa(p.Labels[i]))
		for _, v := range row {
			record = append(record, FormatValue(v))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadPartition decodes a header-less, label-first partition. Every row must
// have the same width.
func ReadPartition(r io.Reader) (*Partition, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read partition: %w", err)
	}

	p := &Partition{
		Labels:   make([]int, 0, len(records)),
		Features: make([][]float64, 0, len(records)),
	}
	for i, rec := range records {
		n := i + 1
		if len(rec) < 2 {
			return nil, fmt.Errorf("%w: partition row %d has %d columns", ErrMalformedRow, n, len(rec))
		}
		label, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil || label != math.Trunc(label) {
			return nil, fmt.Errorf("%w: partition row %d: label %q is not an integer", ErrMalformedRow, n, rec[0])
		}
		row := make([]float64, len(rec)-1)
		for j, cell := range rec[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: partition row %d column %d: %v", ErrMalformedRow, n, j+1, err)
			}
			row[j] = v
		}
		p.Labels = append(p.Labels, int(label))
		p.Features = append(p.Features, row)
	}
	return p, nil
}

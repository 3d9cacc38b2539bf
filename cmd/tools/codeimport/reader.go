package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bookwise-api/internal/discount"
)

type readStats struct {
	rows       int
	duplicates int
	invalid    int
}

// readCodes decompresses r and parses one code per row. Codes repeated within
// the export keep their first occurrence.
func readCodes(r io.Reader) ([]discount.Code, readStats, error) {
	var stats readStats
	zr, err := pgzip.NewReader(r)
	if err != nil {
		return nil, stats, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()

	cr := csv.NewReader(zr)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	seen := bloom.NewWithEstimates(100000, 0.0001)
	exact := map[string]struct{}{}
	var out []discount.Code
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "code") {
			continue
		}
		stats.rows++
		c, err := parseRecord(rec)
		if err != nil {
			stats.invalid++
			log.Printf("line %d skipped: %v", line, err)
			continue
		}
		// the filter only answers "maybe"; confirm before dropping a row
		if seen.TestAndAddString(c.Code) {
			if _, dup := exact[c.Code]; dup {
				stats.duplicates++
				continue
			}
		}
		exact[c.Code] = struct{}{}
		out = append(out, c)
	}
	return out, stats, nil
}

func parseRecord(rec []string) (discount.Code, error) {
	if len(rec) < 7 {
		return discount.Code{}, fmt.Errorf("expected at least 7 columns, got %d", len(rec))
	}
	field := func(i int) string { return strings.TrimSpace(rec[i]) }

	c := discount.Code{
		Code:              discount.NormalizeCode(field(0)),
		MinAmountCurrency: strings.ToUpper(field(3)),
		Currencies:        splitList(field(6)),
	}
	if len(rec) > 7 {
		c.Regions = splitList(field(7))
	}
	if len(rec) > 8 {
		c.Description = field(8)
	}
	if c.Code == "" {
		return discount.Code{}, errors.New("code is empty")
	}

	var err error
	if c.Percentage, err = strconv.Atoi(field(1)); err != nil {
		return discount.Code{}, fmt.Errorf("percentage: %w", err)
	}
	if c.MinAmount, err = decimal.NewFromString(valueOr(field(2), "0")); err != nil {
		return discount.Code{}, fmt.Errorf("min_amount: %w", err)
	}
	if c.MaxUses, err = strconv.Atoi(field(4)); err != nil {
		return discount.Code{}, fmt.Errorf("max_uses: %w", err)
	}
	c.UsesLeft = c.MaxUses
	if c.ExpiresAt, err = parseExpiry(field(5)); err != nil {
		return discount.Code{}, fmt.Errorf("expires_at: %w", err)
	}
	return c, nil
}

func parseExpiry(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(24*time.Hour - time.Second), nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ";") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

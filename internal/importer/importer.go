package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cartengine/internal/domain"
)

type VoucherWriter interface {
	Upsert(ctx context.Context, v domain.Voucher) error
}

// CSVImporter reads voucher CSV exports and inserts/updates voucher
// definitions. Re-importing an existing code updates its definition without
// resetting the usage counter.
type CSVImporter struct {
	reader *csv.Reader
	repo   VoucherWriter
}

func NewCSVImporter(r io.Reader, repo VoucherWriter) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{
		reader: csvr,
		repo:   repo,
	}
}

// Run parses CSV rows and upserts vouchers. Rows with an empty code are
// skipped; malformed values abort the run with the row's code in the error.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)

	imported := 0
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}

		v, err := parseRow(record, index)
		if err != nil {
			return imported, err
		}
		if v == nil {
			continue
		}

		if err := i.repo.Upsert(ctx, *v); err != nil {
			return imported, fmt.Errorf("upsert voucher %q: %w", v.Code, err)
		}
		imported++
	}

	return imported, nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[h] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int) (*domain.Voucher, error) {
	code := pick(record, index, "code")
	if code == "" {
		return nil, nil
	}

	value := pick(record, index, "value")
	if value == "" {
		return nil, fmt.Errorf("voucher %q: missing value", code)
	}

	v := &domain.Voucher{
		Code:        code,
		Description: pick(record, index, "description"),
		Value:       value,
		MinSubtotal: decimal.Zero,
	}

	if s := pick(record, index, "starts_at"); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("voucher %q: invalid starts_at %q: %w", code, s, err)
		}
		v.StartsAt = &ts
	}
	if s := pick(record, index, "expires_at"); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("voucher %q: invalid expires_at %q: %w", code, s, err)
		}
		v.ExpiresAt = &ts
	}
	if s := pick(record, index, "usage_limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("voucher %q: invalid usage_limit %q: %w", code, s, err)
		}
		v.UsageLimit = limit
	}
	if s := pick(record, index, "min_subtotal"); s != "" {
		min, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("voucher %q: invalid min_subtotal %q: %w", code, s, err)
		}
		v.MinSubtotal = min
	}

	return v, nil
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

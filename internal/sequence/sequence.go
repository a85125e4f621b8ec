// Package sequence issues gap-tolerant business document numbers from
// per-scope counter rows. Counters advance inside the transaction that
// inserts the document header, so two writers never observe the same value.
package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Document number prefixes.
const (
	PrefixRequest   = "REQ"
	PrefixIssuance  = "ISS"
	PrefixQuotation = "QTN"
	PrefixTransfer  = "TRF"
	PrefixReceiving = "RCV"
	PrefixPO        = "PO"
	PrefixVendor    = "VEN"
	PrefixProduct   = "SKU"
)

// Querier is the slice of pgx.Tx the generator needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Next advances the counter for scope and returns the new value. The row is
// created on first use.
func Next(ctx context.Context, q Querier, scope string) (int64, error) {
	var value int64
	err := q.QueryRow(ctx, `INSERT INTO doc_sequences (scope, value) VALUES ($1, 1)
ON CONFLICT (scope) DO UPDATE SET value = doc_sequences.value + 1
RETURNING value`, scope).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("sequence: next %s: %w", scope, err)
	}
	return value, nil
}

// NextDocNumber returns the next yearly document number, e.g. REQ-2026-0042.
// The counter scope embeds the year so numbering restarts every January.
func NextDocNumber(ctx context.Context, q Querier, prefix string, at time.Time) (string, error) {
	year := at.Year()
	value, err := Next(ctx, q, fmt.Sprintf("%s-%d", prefix, year))
	if err != nil {
		return "", err
	}
	return FormatYearly(prefix, year, value), nil
}

// NextCode returns the next year-less code, e.g. VEN-0042.
func NextCode(ctx context.Context, q Querier, prefix string) (string, error) {
	value, err := Next(ctx, q, prefix)
	if err != nil {
		return "", err
	}
	return FormatCode(prefix, value), nil
}

// FormatYearly renders PREFIX-YYYY-NNNN.
func FormatYearly(prefix string, year int, value int64) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, value)
}

// FormatCode renders PREFIX-NNNN.
func FormatCode(prefix string, value int64) string {
	return fmt.Sprintf("%s-%04d", prefix, value)
}

// SeedValue derives a counter's starting value from pre-existing documents:
// the numeric suffix of the highest number already issued, or the document
// count when that suffix does not parse. Used once per scope when adopting
// data written before counter rows existed.
func SeedValue(latest string, count int64) int64 {
	if latest == "" {
		return count
	}
	parts := strings.Split(latest, "-")
	n, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil || n < 0 {
		return count
	}
	return n
}

// Seed installs value as the counter floor for scope. An existing counter is
// only ever raised, never lowered.
func Seed(ctx context.Context, q Querier, scope string, value int64) error {
	var stored int64
	err := q.QueryRow(ctx, `INSERT INTO doc_sequences (scope, value) VALUES ($1, $2)
ON CONFLICT (scope) DO UPDATE SET value = GREATEST(doc_sequences.value, EXCLUDED.value)
RETURNING value`, scope, value).Scan(&stored)
	if err != nil {
		return fmt.Errorf("sequence: seed %s: %w", scope, err)
	}
	return nil
}

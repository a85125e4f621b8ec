package sequence

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

// memCounters emulates the doc_sequences upsert semantics so the counter
// contract can be checked without a database.
type memCounters struct {
	values map[string]int64
}

func newMemCounters() *memCounters {
	return &memCounters{values: make(map[string]int64)}
}

func (m *memCounters) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	scope := args[0].(string)
	if strings.Contains(sql, "GREATEST") {
		floor := args[1].(int64)
		if cur, ok := m.values[scope]; ok && cur > floor {
			floor = cur
		}
		m.values[scope] = floor
		return counterRow{value: floor}
	}
	m.values[scope]++
	return counterRow{value: m.values[scope]}
}

type counterRow struct {
	value int64
}

func (r counterRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.value
	return nil
}

func TestFormatYearly(t *testing.T) {
	require.Equal(t, "REQ-2026-0001", FormatYearly(PrefixRequest, 2026, 1))
	require.Equal(t, "PO-2026-0042", FormatYearly(PrefixPO, 2026, 42))
	require.Equal(t, "RCV-2026-12345", FormatYearly(PrefixReceiving, 2026, 12345))
}

func TestFormatCode(t *testing.T) {
	require.Equal(t, "VEN-0007", FormatCode(PrefixVendor, 7))
	require.Equal(t, "SKU-0100", FormatCode(PrefixProduct, 100))
}

func TestNextIsStrictlyIncreasingPerScope(t *testing.T) {
	q := newMemCounters()
	ctx := context.Background()

	var prev int64
	for i := 0; i < 5; i++ {
		v, err := Next(ctx, q, "REQ-2026")
		require.NoError(t, err)
		require.Greater(t, v, prev)
		prev = v
	}

	// Scopes count independently.
	v, err := Next(ctx, q, "ISS-2026")
	require.NoError(t, err)
	require.Equal(t, int64(1), v)
}

func TestNextDocNumberFormatsAndAdvances(t *testing.T) {
	q := newMemCounters()
	ctx := context.Background()
	at := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	first, err := NextDocNumber(ctx, q, PrefixRequest, at)
	require.NoError(t, err)
	second, err := NextDocNumber(ctx, q, PrefixRequest, at)
	require.NoError(t, err)
	require.Equal(t, "REQ-2026-0001", first)
	require.Equal(t, "REQ-2026-0002", second)
}

func TestSeedSetsFloorAndNeverLowers(t *testing.T) {
	q := newMemCounters()
	ctx := context.Background()

	require.NoError(t, Seed(ctx, q, PrefixVendor, 41))
	code, err := NextCode(ctx, q, PrefixVendor)
	require.NoError(t, err)
	require.Equal(t, "VEN-0042", code)

	// A lower seed must not wind the counter back.
	require.NoError(t, Seed(ctx, q, PrefixVendor, 7))
	code, err = NextCode(ctx, q, PrefixVendor)
	require.NoError(t, err)
	require.Equal(t, "VEN-0043", code)
}

func TestSeedValue(t *testing.T) {
	cases := []struct {
		name   string
		latest string
		count  int64
		want   int64
	}{
		{"parses numeric suffix", "REQ-2026-0042", 10, 42},
		{"suffix wins over count", "ISS-2026-0099", 3, 99},
		{"no documents yet", "", 0, 0},
		{"malformed suffix falls back to count", "REQ-2026-FINAL", 17, 17},
		{"year-less code", "VEN-0012", 5, 12},
		{"non-numeric tail falls back", "REQ-2026-draft", 6, 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, SeedValue(tc.latest, tc.count))
		})
	}
}

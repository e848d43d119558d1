package listing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		isNew   bool
		prior   *decimal.Decimal
		current *decimal.Decimal
		want    Verdict
	}{
		{"new regardless of prices", true, nil, dec("100"), VerdictNew},
		{"price drop", false, dec("100"), dec("80"), VerdictPriceDrop},
		{"price increase is unchanged", false, dec("80"), dec("100"), VerdictUnchanged},
		{"equal price", false, dec("100"), dec("100"), VerdictUnchanged},
		{"unknown to known", false, nil, dec("100"), VerdictUnchanged},
		{"known to unknown", false, dec("100"), nil, VerdictUnchanged},
		{"both unknown", false, nil, nil, VerdictUnchanged},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.isNew, tc.prior, tc.current))
		})
	}
}

func TestSumTotal(t *testing.T) {
	assert.Nil(t, SumTotal(nil, nil), "total is never fabricated from two unknowns")

	got := SumTotal(dec("100.50"), dec("4.95"))
	require.NotNil(t, got)
	assert.True(t, got.Equal(decimal.RequireFromString("105.45")))

	got = SumTotal(dec("100"), nil)
	require.NotNil(t, got)
	assert.True(t, got.Equal(decimal.RequireFromString("100")))

	got = SumTotal(nil, dec("4.95"))
	require.NotNil(t, got)
	assert.True(t, got.Equal(decimal.RequireFromString("4.95")))
}

func TestHistoryPrice(t *testing.T) {
	rec := Record{Price: dec("100"), Total: dec("110")}
	require.NotNil(t, rec.HistoryPrice())
	assert.True(t, rec.HistoryPrice().Equal(decimal.RequireFromString("110")))

	rec = Record{Price: dec("100")}
	require.NotNil(t, rec.HistoryPrice())
	assert.True(t, rec.HistoryPrice().Equal(decimal.RequireFromString("100")))

	rec = Record{}
	assert.Nil(t, rec.HistoryPrice())
}

func TestFallbackIDStable(t *testing.T) {
	a := FallbackID("https://www.example.com/v/vintage/m12345-zx-spectrum/")
	b := FallbackID("https://WWW.Example.com/v/vintage/m12345-zx-spectrum#photos")
	assert.Equal(t, a, b, "normalised variants of the same URL must share an id")
	assert.Len(t, a, 17)

	other := FallbackID("https://www.example.com/v/vintage/m99999-other")
	assert.NotEqual(t, a, other)
}

func TestMakeKey(t *testing.T) {
	assert.Equal(t, "mp:m12345", MakeKey("mp", "m12345"))
}

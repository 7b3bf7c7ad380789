package journal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildContext_Precedence(t *testing.T) {
	ctx := BuildContext(
		map[string]string{"region": "EAST", "rate": "0.1"},
		map[string]string{"region": "WEST", "amount": "100"},
		map[string]string{"amount": "250"},
	)

	value, ok := ctx.Lookup("region")
	require.True(t, ok)
	assert.Equal(t, "WEST", value)

	value, ok = ctx.Lookup("amount")
	require.True(t, ok)
	assert.Equal(t, "250", value)

	value, ok = ctx.Lookup("rate")
	require.True(t, ok)
	assert.Equal(t, "0.1", value)
}

func TestBuildContext_CaseSensitiveKeys(t *testing.T) {
	ctx := BuildContext(map[string]string{"Region": "EAST", "region": "WEST"}, nil, nil)

	value, ok := ctx.Lookup("Region")
	require.True(t, ok)
	assert.Equal(t, "EAST", value)

	value, ok = ctx.Lookup("region")
	require.True(t, ok)
	assert.Equal(t, "WEST", value)
}

func TestContext_Lookup_EmptyValueExists(t *testing.T) {
	ctx := BuildContext(map[string]string{"memo": ""}, nil, nil)

	value, ok := ctx.Lookup("memo")
	assert.True(t, ok)
	assert.Empty(t, value)

	_, ok = ctx.Lookup("missing")
	assert.False(t, ok)
}

func TestContext_Decimal(t *testing.T) {
	ctx := BuildContext(map[string]string{"amount": "123.45", "memo": "hello"}, nil, nil)

	value, ok := ctx.Decimal("amount")
	require.True(t, ok)
	assert.True(t, value.Equal(decimal.RequireFromString("123.45")))

	_, ok = ctx.Decimal("memo")
	assert.False(t, ok)

	_, ok = ctx.Decimal("missing")
	assert.False(t, ok)
}

func TestContext_KeysStableOrder(t *testing.T) {
	ctx := BuildContext(
		map[string]string{"b": "1", "a": "2"},
		map[string]string{"c": "3", "a": "overridden"},
		nil,
	)

	assert.Equal(t, []string{"a", "b", "c"}, ctx.Keys())
}

func TestContext_SnapshotIsCopy(t *testing.T) {
	ctx := BuildContext(map[string]string{"region": "EAST"}, nil, nil)

	snapshot := ctx.Snapshot()
	snapshot["region"] = "WEST"

	value, _ := ctx.Lookup("region")
	assert.Equal(t, "EAST", value)
}

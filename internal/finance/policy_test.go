package finance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

func strPtr(s string) *string { return &s }

func TestResolvePrefersScopedPolicy(t *testing.T) {
	policies := []models.LateFeePolicy{
		{ID: "global", Active: true},
		{ID: "monthly", FeeType: strPtr("monthly"), Active: true},
		{ID: "exam", FeeType: strPtr("exam"), Active: true},
	}
	resolver := NewPolicyResolver(policies)

	got := resolver.Resolve(strPtr("monthly"))
	require.NotNil(t, got)
	assert.Equal(t, "monthly", got.ID)

	got = resolver.Resolve(strPtr("admission"))
	require.NotNil(t, got)
	assert.Equal(t, "global", got.ID)

	got = resolver.Resolve(nil)
	require.NotNil(t, got)
	assert.Equal(t, "global", got.ID)
}

func TestResolveSkipsInactive(t *testing.T) {
	policies := []models.LateFeePolicy{
		{ID: "global", Active: false},
		{ID: "monthly", FeeType: strPtr("monthly"), Active: false},
	}
	assert.Nil(t, ResolvePolicy(policies, strPtr("monthly")))
	assert.Nil(t, ResolvePolicy(nil, nil))
}

func TestResolveTieBreak(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.AddDate(0, 1, 0)
	policies := []models.LateFeePolicy{
		{ID: "b", FeeType: strPtr("monthly"), Active: true, UpdatedAt: older},
		{ID: "c", FeeType: strPtr("monthly"), Active: true, UpdatedAt: newer},
		{ID: "a", FeeType: strPtr("monthly"), Active: true, UpdatedAt: newer},
	}
	got := ResolvePolicy(policies, strPtr("monthly"))
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)
}

func TestResolveReturnsCopy(t *testing.T) {
	policies := []models.LateFeePolicy{{ID: "global", Name: "standard", Active: true}}
	got := ResolvePolicy(policies, nil)
	got.Name = "mutated"
	assert.Equal(t, "standard", policies[0].Name)
}

func TestResolveBlankFeeTypeIsGlobal(t *testing.T) {
	policies := []models.LateFeePolicy{
		{ID: "blank", FeeType: strPtr("  "), Active: true},
	}
	got := ResolvePolicy(policies, strPtr("monthly"))
	require.NotNil(t, got)
	assert.Equal(t, "blank", got.ID)
}

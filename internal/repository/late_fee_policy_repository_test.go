package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

var policyRowColumns = []string{"id", "name", "fee_type", "grace_period_days", "kind", "rate", "max_amount", "active", "compound", "created_at", "updated_at"}

func TestLateFeePolicyRepositoryListActive(t *testing.T) {
	db, mock, cleanup := newFinanceRepoMock(t)
	defer cleanup()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(policyRowColumns).
		AddRow("pol-1", "Monthly 2%", "monthly", 5, "percentage", "2", "100.00", true, false, now, now).
		AddRow("pol-2", "Global", nil, 0, "fixed", "25", nil, true, false, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM late_fee_policies WHERE active = TRUE")).WillReturnRows(rows)

	policies, err := NewLateFeePolicyRepository(db).ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, policies, 2)

	assert.Equal(t, models.LateFeeKindPercentage, policies[0].Kind)
	require.NotNil(t, policies[0].FeeType)
	assert.Equal(t, "monthly", *policies[0].FeeType)
	require.NotNil(t, policies[0].MaxAmount)
	assert.True(t, decimal.RequireFromString("100").Equal(*policies[0].MaxAmount))

	assert.True(t, policies[1].IsGlobal())
	assert.Nil(t, policies[1].MaxAmount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLateFeePolicyRepositoryListWrapsError(t *testing.T) {
	db, mock, cleanup := newFinanceRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("FROM late_fee_policies ORDER BY name").WillReturnError(errors.New("boom"))
	_, err := NewLateFeePolicyRepository(db).List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list late fee policies")
}

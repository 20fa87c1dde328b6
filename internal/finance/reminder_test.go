package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

func link(guardianID, guardianName, studentID, studentName string) models.GuardianLink {
	return models.GuardianLink{
		Guardian:    models.Guardian{ID: guardianID, FullName: guardianName},
		StudentID:   studentID,
		StudentName: studentName,
	}
}

func TestBuildRemindersGroupsByGuardian(t *testing.T) {
	asOf := day("2024-03-10")
	fees := []models.Fee{
		{ID: "f1", StudentID: "s1", BaseAmount: dec("500"), PaidAmount: dec("0"), DueDate: day("2024-03-01"), Status: models.FeeStatusUnpaid},
		{ID: "f2", StudentID: "s2", BaseAmount: dec("300"), PaidAmount: dec("0"), DueDate: day("2024-03-12"), Status: models.FeeStatusUnpaid},
	}
	links := []models.GuardianLink{
		link("g1", "Siti", "s1", "Adi"),
		link("g1", "Siti", "s2", "Budi"),
	}

	digest := BuildReminders(models.ReminderOptions{AsOf: asOf, WindowDays: 7}, fees, nil, links)
	require.Len(t, digest.Bundles, 1)
	bundle := digest.Bundles[0]
	assert.True(t, dec("800").Equal(bundle.TotalPending))
	require.Len(t, bundle.Students, 2)
	assert.Equal(t, "Adi", bundle.Students[0].StudentName)
	assert.Equal(t, 1, bundle.OverdueCount)
	assert.False(t, bundle.NoPendingItems)
	assert.Empty(t, digest.Unassigned)
	assert.True(t, dec("800").Equal(digest.Total))
}

func TestBuildRemindersWindowAndOverdueOnly(t *testing.T) {
	asOf := day("2024-03-10")
	fees := []models.Fee{
		{ID: "overdue", StudentID: "s1", BaseAmount: dec("100"), DueDate: day("2024-03-09"), Status: models.FeeStatusPartial, PaidAmount: dec("40")},
		{ID: "today", StudentID: "s1", BaseAmount: dec("100"), DueDate: asOf, Status: models.FeeStatusUnpaid},
		{ID: "edge", StudentID: "s1", BaseAmount: dec("100"), DueDate: day("2024-03-17"), Status: models.FeeStatusUnpaid},
		{ID: "far", StudentID: "s1", BaseAmount: dec("100"), DueDate: day("2024-03-18"), Status: models.FeeStatusUnpaid},
		{ID: "paid", StudentID: "s1", BaseAmount: dec("100"), DueDate: day("2024-03-01"), Status: models.FeeStatusPaid, PaidAmount: dec("100")},
	}
	links := []models.GuardianLink{link("g1", "Siti", "s1", "Adi")}

	digest := BuildReminders(models.ReminderOptions{AsOf: asOf, WindowDays: 7}, fees, nil, links)
	require.Len(t, digest.Bundles, 1)
	ids := []string{}
	for _, line := range digest.Bundles[0].Students[0].Fees {
		ids = append(ids, line.FeeID)
	}
	assert.Equal(t, []string{"overdue", "today", "edge"}, ids)
	assert.True(t, dec("260").Equal(digest.Bundles[0].TotalPending))

	digest = BuildReminders(models.ReminderOptions{AsOf: asOf, WindowDays: 7, OverdueOnly: true}, fees, nil, links)
	require.Len(t, digest.Bundles[0].Students[0].Fees, 1)
	assert.Equal(t, "overdue", digest.Bundles[0].Students[0].Fees[0].FeeID)
}

func TestBuildRemindersNoPendingAndUnassigned(t *testing.T) {
	asOf := day("2024-03-10")
	fees := []models.Fee{
		{ID: "waived", StudentID: "s1", BaseAmount: dec("200"), DueDate: day("2024-03-05"), Status: models.FeeStatusUnpaid},
		{ID: "orphan", StudentID: "s9", BaseAmount: dec("50"), DueDate: day("2024-03-05"), Status: models.FeeStatusUnpaid},
	}
	waivers := []models.FeeWaiver{approvedWaiver("w1", "s1", models.WaiverAmountPercentage, "100")}
	links := []models.GuardianLink{link("g1", "Siti", "s1", "Adi")}

	digest := BuildReminders(models.ReminderOptions{AsOf: asOf, WindowDays: 7}, fees, waivers, links)
	require.Len(t, digest.Bundles, 1)
	assert.True(t, digest.Bundles[0].NoPendingItems)
	assert.True(t, digest.Bundles[0].TotalPending.IsZero())
	assert.Equal(t, []string{"orphan"}, digest.Unassigned)
}

func TestBuildRemindersSharedStudent(t *testing.T) {
	asOf := day("2024-03-10")
	fees := []models.Fee{
		{ID: "f1", StudentID: "s1", BaseAmount: dec("500"), DueDate: day("2024-03-01"), Status: models.FeeStatusUnpaid},
	}
	links := []models.GuardianLink{
		link("g2", "Wati", "s1", "Adi"),
		link("g1", "Rudi", "s1", "Adi"),
	}
	digest := BuildReminders(models.ReminderOptions{AsOf: asOf, WindowDays: 7}, fees, nil, links)
	require.Len(t, digest.Bundles, 2)
	assert.Equal(t, "Rudi", digest.Bundles[0].Guardian.FullName)
	assert.True(t, dec("1000").Equal(digest.Total))
}

package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

func approvedWaiver(id, studentID string, amountType models.WaiverAmountType, value string) models.FeeWaiver {
	return models.FeeWaiver{
		ID:         id,
		StudentID:  studentID,
		AmountType: amountType,
		Value:      dec(value),
		ValidFrom:  day("2024-01-01"),
		Status:     models.WaiverStatusApproved,
	}
}

func TestNetAmountWithPercentageWaiver(t *testing.T) {
	fee := models.Fee{ID: "fee-1", StudentID: "stu-1", BaseAmount: dec("1000")}
	waivers := []models.FeeWaiver{approvedWaiver("w1", "stu-1", models.WaiverAmountPercentage, "10")}

	net := NetAmount(fee, waivers, day("2024-03-01"))
	assert.True(t, dec("900").Equal(net), net.String())
}

func TestNetAmountFilters(t *testing.T) {
	fee := models.Fee{ID: "fee-1", StudentID: "stu-1", BaseAmount: dec("1000")}
	asOf := day("2024-03-01")

	pending := approvedWaiver("pending", "stu-1", models.WaiverAmountFixed, "100")
	pending.Status = models.WaiverStatusPending

	expired := approvedWaiver("expired", "stu-1", models.WaiverAmountFixed, "100")
	until := day("2024-02-28")
	expired.ValidUntil = &until

	future := approvedWaiver("future", "stu-1", models.WaiverAmountFixed, "100")
	future.ValidFrom = day("2024-03-02")

	otherFee := approvedWaiver("other-fee", "stu-1", models.WaiverAmountFixed, "100")
	otherFee.FeeID = strPtr("fee-2")

	otherStudent := approvedWaiver("other-student", "stu-2", models.WaiverAmountFixed, "100")

	targeted := approvedWaiver("targeted", "stu-1", models.WaiverAmountFixed, "150")
	targeted.FeeID = strPtr("fee-1")

	lastDay := approvedWaiver("last-day", "stu-1", models.WaiverAmountFixed, "50")
	lastDay.ValidUntil = &asOf

	waivers := []models.FeeWaiver{pending, expired, future, otherFee, otherStudent, targeted, lastDay}
	applied := AppliedWaivers(fee, waivers, asOf)
	assert.Len(t, applied, 2)
	assert.True(t, dec("800").Equal(NetAmount(fee, waivers, asOf)))
}

func TestNetAmountStacksAndFloors(t *testing.T) {
	fee := models.Fee{ID: "fee-1", StudentID: "stu-1", BaseAmount: dec("1000")}
	waivers := []models.FeeWaiver{
		approvedWaiver("w1", "stu-1", models.WaiverAmountPercentage, "60"),
		approvedWaiver("w2", "stu-1", models.WaiverAmountFixed, "500"),
	}
	assert.True(t, NetAmount(fee, waivers, day("2024-03-01")).IsZero())
}

func TestWaiverReductionRounds(t *testing.T) {
	w := models.FeeWaiver{AmountType: models.WaiverAmountPercentage, Value: dec("33.333")}
	assert.True(t, dec("41.15").Equal(WaiverReduction(w, dec("123.45"))))
}

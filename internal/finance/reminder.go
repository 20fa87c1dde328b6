package finance

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-ledger/internal/models"
)

// SelectForReminder reports whether an open fee belongs in a reminder run:
// overdue, or due within the window when OverdueOnly is off.
func SelectForReminder(fee models.Fee, opts models.ReminderOptions) bool {
	if fee.Status == models.FeeStatusPaid {
		return false
	}
	days := DaysBetween(opts.AsOf, fee.DueDate)
	if days < 0 {
		return true
	}
	if opts.OverdueOnly {
		return false
	}
	return days <= opts.WindowDays
}

// BuildReminders groups fees by financially responsible guardian, then by
// student. A fee whose student has no such guardian is listed as unassigned.
// Waivers are matched per fee, so the slice may cover many students.
func BuildReminders(opts models.ReminderOptions, fees []models.Fee, waivers []models.FeeWaiver, links []models.GuardianLink) models.ReminderDigest {
	digest := models.ReminderDigest{
		AsOf:    Date(opts.AsOf),
		Options: opts,
		Total:   decimal.Zero,
	}

	lines := make(map[string][]models.ReminderFeeLine)
	for _, fee := range fees {
		if !SelectForReminder(fee, opts) {
			continue
		}
		ledger := &Ledger{Fee: fee, Waivers: waivers}
		lines[fee.StudentID] = append(lines[fee.StudentID], models.ReminderFeeLine{
			FeeID:        fee.ID,
			Title:        fee.Title,
			FeeType:      fee.FeeTypeName(),
			DueDate:      Date(fee.DueDate),
			NetAmount:    ledger.NetAmount(opts.AsOf),
			PaidAmount:   fee.PaidAmount,
			Remaining:    ledger.Remaining(opts.AsOf),
			LateFeeTotal: fee.LateFeeTotal,
			Overdue:      ledger.IsOverdue(opts.AsOf),
			DaysOverdue:  ledger.DaysOverdue(opts.AsOf),
		})
	}
	for studentID := range lines {
		sort.Slice(lines[studentID], func(i, j int) bool {
			a, b := lines[studentID][i], lines[studentID][j]
			if !a.DueDate.Equal(b.DueDate) {
				return a.DueDate.Before(b.DueDate)
			}
			return a.FeeID < b.FeeID
		})
	}

	bundles := make(map[string]*models.GuardianBundle)
	covered := make(map[string]bool)
	for _, link := range links {
		studentLines, ok := lines[link.StudentID]
		if !ok {
			continue
		}
		covered[link.StudentID] = true

		bundle, ok := bundles[link.Guardian.ID]
		if !ok {
			bundle = &models.GuardianBundle{Guardian: link.Guardian, TotalPending: decimal.Zero}
			bundles[link.Guardian.ID] = bundle
		}
		if hasStudent(bundle, link.StudentID) {
			continue
		}

		student := models.ReminderStudent{
			StudentID:   link.StudentID,
			StudentName: link.StudentName,
			StudentNIS:  link.StudentNIS,
			Fees:        studentLines,
			Subtotal:    decimal.Zero,
		}
		for _, line := range studentLines {
			student.Subtotal = student.Subtotal.Add(line.Remaining)
			if line.Overdue {
				bundle.OverdueCount++
			}
		}
		bundle.Students = append(bundle.Students, student)
		bundle.TotalPending = bundle.TotalPending.Add(student.Subtotal)
	}

	for _, bundle := range bundles {
		sort.Slice(bundle.Students, func(i, j int) bool {
			a, b := bundle.Students[i], bundle.Students[j]
			if a.StudentName != b.StudentName {
				return a.StudentName < b.StudentName
			}
			return a.StudentID < b.StudentID
		})
		bundle.NoPendingItems = !bundle.TotalPending.IsPositive()
		digest.Bundles = append(digest.Bundles, *bundle)
		digest.Total = digest.Total.Add(bundle.TotalPending)
	}
	sort.Slice(digest.Bundles, func(i, j int) bool {
		a, b := digest.Bundles[i].Guardian, digest.Bundles[j].Guardian
		if a.FullName != b.FullName {
			return a.FullName < b.FullName
		}
		return a.ID < b.ID
	})

	for studentID, studentLines := range lines {
		if covered[studentID] {
			continue
		}
		for _, line := range studentLines {
			digest.Unassigned = append(digest.Unassigned, line.FeeID)
		}
	}
	sort.Strings(digest.Unassigned)
	return digest
}

func hasStudent(bundle *models.GuardianBundle, studentID string) bool {
	for _, s := range bundle.Students {
		if s.StudentID == studentID {
			return true
		}
	}
	return false
}

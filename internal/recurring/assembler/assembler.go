// Package assembler turns a recurring profile into an invoice draft.
//
// All amounts are shopspring decimals rounded half away from zero to the
// currency's ISO 4217 minor units. Percentages are applied with an exact
// decimal shift, so no intermediate value is ever approximated.
//
// Tax policy: a profile-level tax rate, when set, applies uniformly to the
// subtotal and overrides every line's VAT rate. Without it each line is taxed
// at its own VAT rate; the per-line amounts are summed unrounded and the sum
// is rounded once.
//
// Quantities and prices are assumed non-negative; that is validated where
// profiles are written.
package assembler

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/recurring/internal/invoice/domain"
	"github.com/smallbiznis/recurring/internal/recurring/domain"
	"golang.org/x/text/currency"
)

// Assemble builds the draft for the occurrence issued on issueDate.
func Assemble(profile *domain.Profile, issueDate time.Time) (invoicedomain.Draft, error) {
	if profile == nil {
		return invoicedomain.Draft{}, &domain.AssemblyError{Reason: "profile is nil"}
	}
	if len(profile.Items) == 0 {
		return invoicedomain.Draft{}, &domain.AssemblyError{ProfileID: profile.ID, Reason: "profile has no line items"}
	}
	scale, err := MinorUnits(profile.Currency)
	if err != nil {
		return invoicedomain.Draft{}, &domain.AssemblyError{ProfileID: profile.ID, Reason: err.Error()}
	}

	templates := make([]domain.LineItemTemplate, len(profile.Items))
	copy(templates, profile.Items)
	sort.SliceStable(templates, func(i, j int) bool { return templates[i].Position < templates[j].Position })

	items := make([]invoicedomain.DraftItem, 0, len(templates))
	subtotal := decimal.Zero
	lineTax := decimal.Zero
	for i, tmpl := range templates {
		lineTotal := tmpl.Quantity.Mul(tmpl.UnitPrice).Round(scale)
		subtotal = subtotal.Add(lineTotal)
		lineTax = lineTax.Add(percentOf(lineTotal, tmpl.VatRate))
		items = append(items, invoicedomain.DraftItem{
			Position:    i + 1,
			Description: tmpl.Description,
			Quantity:    tmpl.Quantity,
			UnitPrice:   tmpl.UnitPrice,
			VatRate:     tmpl.VatRate,
			LineTotal:   lineTotal,
		})
	}

	var tax decimal.Decimal
	if profile.TaxRate != nil {
		tax = percentOf(subtotal, *profile.TaxRate).Round(scale)
	} else {
		tax = lineTax.Round(scale)
	}

	discount := decimal.Zero
	if profile.DiscountPercent != nil {
		discount = percentOf(subtotal, *profile.DiscountPercent).Round(scale)
	}

	issue := dateOnly(issueDate)
	return invoicedomain.Draft{
		AccountID:       profile.AccountID,
		ClientID:        profile.ClientID,
		ProfileID:       profile.ID,
		ProfileName:     profile.Name,
		Currency:        strings.ToUpper(strings.TrimSpace(profile.Currency)),
		IssueDate:       issue,
		DueDate:         issue.AddDate(0, 0, profile.PaymentTermsDays),
		Items:           items,
		Subtotal:        subtotal,
		TaxAmount:       tax,
		DiscountAmount:  discount,
		Total:           subtotal.Add(tax).Sub(discount),
		TaxRate:         copyDecimal(profile.TaxRate),
		DiscountPercent: copyDecimal(profile.DiscountPercent),
		Metadata: map[string]any{
			"profile_name": profile.Name,
			"frequency":    string(profile.Frequency),
		},
	}, nil
}

// MinorUnits returns the number of decimal places of an ISO 4217 currency.
func MinorUnits(code string) (int32, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return 0, err
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale), nil
}

func percentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Shift(-2)
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

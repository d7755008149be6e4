/*
derive.go - Financial Derivation Engine

PURPOSE:
  Turns one worker's aggregate into the monetary fields of a report line.
  The pipeline runs in a fixed order; each stage consumes only earlier
  stages once the operational total exists:

    1. totalOperation = sum(quantity x price) over non-indemnity tasks
    2. anciennete     = totalOperation x seniorityPct / 100
    3. jourFerier     = holiday-pay override, else 0
    4. totalBrut      = totalOperation + anciennete + jourFerier
    5. withholding    = totalBrut x 6.74%  (combined)
                        or 4.48% CNSS + 2.26% AMO (split)
    6. indemnities    = daysWorked x price(lait), daysWorked x price(panier)
    7. deductions     = advance, income tax (detailed payroll only)
    8. netPay         = totalBrut - withholding + indemnities - deductions

PRECISION:
  Values stay as exact decimals through every stage. Rounding to two
  places happens only in Figures.Rounded, for presentation.

INPUT POLICY:
  Missing prices count as 0. Negative quantities, prices, percentages and
  adjustments are accepted and propagate arithmetically.
*/
package engine

import "github.com/shopspring/decimal"

// =============================================================================
// ADJUSTMENTS - User-editable inputs
// =============================================================================

// Adjustments are the only fields a user may edit after a report exists.
// Which of them apply depends on the report kind's Policy.Editable.
type Adjustments struct {
	Advance    decimal.Decimal  `json:"advance"`
	HolidayPay *decimal.Decimal `json:"holiday_pay,omitempty"`
	IncomeTax  decimal.Decimal  `json:"income_tax"`
}

// Fields returns the set of fields carrying a value.
func (a Adjustments) Fields() AdjustmentField {
	f := NoFields
	if !a.Advance.IsZero() {
		f |= FieldAdvance
	}
	if a.HolidayPay != nil {
		f |= FieldHolidayPay
	}
	if !a.IncomeTax.IsZero() {
		f |= FieldIncomeTax
	}
	return f
}

// Overlay returns a with the fields in set taken from o. A field in set
// that o leaves empty is cleared.
func (a Adjustments) Overlay(o Adjustments, set AdjustmentField) Adjustments {
	out := a.Mask(AllFields)
	if set.Has(FieldAdvance) {
		out.Advance = o.Advance
	}
	if set.Has(FieldHolidayPay) {
		out.HolidayPay = nil
		if o.HolidayPay != nil {
			hp := *o.HolidayPay
			out.HolidayPay = &hp
		}
	}
	if set.Has(FieldIncomeTax) {
		out.IncomeTax = o.IncomeTax
	}
	return out
}

// Mask keeps only the allowed fields.
func (a Adjustments) Mask(allowed AdjustmentField) Adjustments {
	var out Adjustments
	if allowed.Has(FieldAdvance) {
		out.Advance = a.Advance
	}
	if allowed.Has(FieldHolidayPay) && a.HolidayPay != nil {
		hp := *a.HolidayPay
		out.HolidayPay = &hp
	}
	if allowed.Has(FieldIncomeTax) {
		out.IncomeTax = a.IncomeTax
	}
	return out
}

// =============================================================================
// BASE - Price-dependent inputs shared by sibling reports
// =============================================================================

// Base holds everything the pipeline needs from quantities and prices.
// Siblings of a cascade share one Base per worker; rollups sum Bases.
type Base struct {
	TotalOperation decimal.Decimal `json:"total_operation"`
	DaysWorked     decimal.Decimal `json:"days_worked"`
	IndemniteLait  decimal.Decimal `json:"indemnite_lait"`
	PrimePanier    decimal.Decimal `json:"prime_panier"`
}

// BaseFor prices one aggregate. Indemnity quantities are ignored; the
// indemnities come from days worked only.
func BaseFor(agg Aggregate, prices PriceTable) Base {
	total := decimal.Zero
	for taskID, qty := range agg.TaskTotals {
		if IsIndemnity(taskID) {
			continue
		}
		total = total.Add(qty.Mul(prices.Price(taskID)))
	}
	return Base{
		TotalOperation: total,
		DaysWorked:     agg.DaysWorked,
		IndemniteLait:  agg.DaysWorked.Mul(prices.Price(LaitTaskID)),
		PrimePanier:    agg.DaysWorked.Mul(prices.Price(PanierTaskID)),
	}
}

func (b Base) Add(o Base) Base {
	return Base{
		TotalOperation: b.TotalOperation.Add(o.TotalOperation),
		DaysWorked:     b.DaysWorked.Add(o.DaysWorked),
		IndemniteLait:  b.IndemniteLait.Add(o.IndemniteLait),
		PrimePanier:    b.PrimePanier.Add(o.PrimePanier),
	}
}

// =============================================================================
// FIGURES - Pipeline output
// =============================================================================

type Figures struct {
	TotalOperation decimal.Decimal `json:"total_operation"`
	Anciennete     decimal.Decimal `json:"anciennete"`
	JourFerier     decimal.Decimal `json:"jour_ferier"`
	TotalBrut      decimal.Decimal `json:"total_brut"`
	Retenu         decimal.Decimal `json:"retenu"`
	RetCNSS        decimal.Decimal `json:"ret_cnss"`
	RetAMO         decimal.Decimal `json:"ret_amo"`
	IndemniteLait  decimal.Decimal `json:"indemnite_lait"`
	PrimePanier    decimal.Decimal `json:"prime_panier"`
	Advance        decimal.Decimal `json:"advance"`
	IncomeTax      decimal.Decimal `json:"income_tax"`
	NetPay         decimal.Decimal `json:"net_pay"`
}

func (f Figures) Add(o Figures) Figures {
	return Figures{
		TotalOperation: f.TotalOperation.Add(o.TotalOperation),
		Anciennete:     f.Anciennete.Add(o.Anciennete),
		JourFerier:     f.JourFerier.Add(o.JourFerier),
		TotalBrut:      f.TotalBrut.Add(o.TotalBrut),
		Retenu:         f.Retenu.Add(o.Retenu),
		RetCNSS:        f.RetCNSS.Add(o.RetCNSS),
		RetAMO:         f.RetAMO.Add(o.RetAMO),
		IndemniteLait:  f.IndemniteLait.Add(o.IndemniteLait),
		PrimePanier:    f.PrimePanier.Add(o.PrimePanier),
		Advance:        f.Advance.Add(o.Advance),
		IncomeTax:      f.IncomeTax.Add(o.IncomeTax),
		NetPay:         f.NetPay.Add(o.NetPay),
	}
}

// Rounded returns the two-decimal presentation view.
func (f Figures) Rounded() Figures {
	r := func(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
	return Figures{
		TotalOperation: r(f.TotalOperation),
		Anciennete:     r(f.Anciennete),
		JourFerier:     r(f.JourFerier),
		TotalBrut:      r(f.TotalBrut),
		Retenu:         r(f.Retenu),
		RetCNSS:        r(f.RetCNSS),
		RetAMO:         r(f.RetAMO),
		IndemniteLait:  r(f.IndemniteLait),
		PrimePanier:    r(f.PrimePanier),
		Advance:        r(f.Advance),
		IncomeTax:      r(f.IncomeTax),
		NetPay:         r(f.NetPay),
	}
}

// =============================================================================
// DERIVE
// =============================================================================

type DeriveInput struct {
	Base         Base
	SeniorityPct decimal.Decimal
	Adjustments  Adjustments
	Policy       Policy
}

// Derive runs the fixed-order pipeline. It is total: any numeric input
// produces a result.
func Derive(in DeriveInput) Figures {
	adj := in.Adjustments.Mask(in.Policy.Applied())

	var f Figures
	f.TotalOperation = in.Base.TotalOperation
	f.Anciennete = f.TotalOperation.Mul(in.SeniorityPct).Shift(-2)
	f.JourFerier = decimal.Zero
	if adj.HolidayPay != nil {
		f.JourFerier = *adj.HolidayPay
	}
	f.TotalBrut = f.TotalOperation.Add(f.Anciennete).Add(f.JourFerier)

	switch in.Policy.Withholding {
	case WithholdingSplit:
		f.RetCNSS = f.TotalBrut.Mul(RateCNSS)
		f.RetAMO = f.TotalBrut.Mul(RateAMO)
		f.Retenu = f.RetCNSS.Add(f.RetAMO)
	default:
		f.Retenu = f.TotalBrut.Mul(RateCombined)
	}

	f.IndemniteLait = in.Base.IndemniteLait
	f.PrimePanier = in.Base.PrimePanier
	f.Advance = adj.Advance
	f.IncomeTax = adj.IncomeTax

	f.NetPay = f.TotalBrut.
		Sub(f.Retenu).
		Add(f.IndemniteLait).
		Add(f.PrimePanier).
		Sub(f.Advance).
		Sub(f.IncomeTax)
	return f
}

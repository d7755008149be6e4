package engine

import "strings"

// =============================================================================
// REPORT KIND - Discriminator of the report tagged union
// =============================================================================

type ReportKind string

const (
	KindBiMonthly       ReportKind = "bimonthly"
	KindPayroll         ReportKind = "payroll"
	KindDetailedPayroll ReportKind = "detailed_payroll"
	KindTransferOrder   ReportKind = "transfer_order"
	KindSeasonSummary   ReportKind = "season_summary"
	KindAnnualSummary   ReportKind = "annual_summary"
)

// CascadeKinds are the siblings derived from one bi-monthly aggregation.
var CascadeKinds = []ReportKind{KindPayroll, KindDetailedPayroll, KindTransferOrder}

func (k ReportKind) Valid() bool {
	_, ok := policies[k]
	return ok
}

// IsRollup reports whether the kind merges other snapshots instead of raw logs.
func (k ReportKind) IsRollup() bool {
	return k == KindSeasonSummary || k == KindAnnualSummary
}

// =============================================================================
// WITHHOLDING
// =============================================================================

type Withholding string

const (
	// WithholdingCombined applies RateCombined to the gross.
	WithholdingCombined Withholding = "combined"
	// WithholdingSplit applies RateCNSS and RateAMO separately.
	WithholdingSplit Withholding = "split"
)

// =============================================================================
// ADJUSTMENT FIELDS
// =============================================================================

// AdjustmentField is a bit set of user-editable fields.
type AdjustmentField uint8

const (
	FieldAdvance AdjustmentField = 1 << iota
	FieldHolidayPay
	FieldIncomeTax

	NoFields  AdjustmentField = 0
	AllFields                 = FieldAdvance | FieldHolidayPay | FieldIncomeTax
)

func (f AdjustmentField) Has(o AdjustmentField) bool { return f&o == o }

func (f AdjustmentField) String() string {
	if f == NoFields {
		return "none"
	}
	var names []string
	if f.Has(FieldAdvance) {
		names = append(names, "advance")
	}
	if f.Has(FieldHolidayPay) {
		names = append(names, "holiday_pay")
	}
	if f.Has(FieldIncomeTax) {
		names = append(names, "income_tax")
	}
	return strings.Join(names, "|")
}

// =============================================================================
// POLICY - Per-kind formula parameters
// =============================================================================

// Policy parameterizes the single derivation pipeline for one report kind.
type Policy struct {
	Kind        ReportKind
	Withholding Withholding

	// Editable are the fields a user may set on this kind.
	Editable AdjustmentField

	// Carried are fields the kind cannot edit but still applies when they
	// come from a related report: the holiday pay of a transfer order's
	// payroll, or of a rollup's sources. Every report of a cascade thus
	// shares one gross.
	Carried AdjustmentField
}

// Applied is the set of fields the derivation honours.
func (p Policy) Applied() AdjustmentField { return p.Editable | p.Carried }

var policies = map[ReportKind]Policy{
	KindBiMonthly:       {Kind: KindBiMonthly, Withholding: WithholdingCombined, Editable: FieldHolidayPay},
	KindPayroll:         {Kind: KindPayroll, Withholding: WithholdingCombined, Editable: FieldAdvance | FieldHolidayPay},
	KindDetailedPayroll: {Kind: KindDetailedPayroll, Withholding: WithholdingSplit, Editable: AllFields},
	KindTransferOrder:   {Kind: KindTransferOrder, Withholding: WithholdingCombined, Editable: FieldAdvance, Carried: FieldHolidayPay},
	KindSeasonSummary:   {Kind: KindSeasonSummary, Withholding: WithholdingCombined, Editable: NoFields, Carried: FieldHolidayPay},
	KindAnnualSummary:   {Kind: KindAnnualSummary, Withholding: WithholdingCombined, Editable: NoFields, Carried: FieldHolidayPay},
}

// PolicyFor returns the policy of kind; ok is false for unknown kinds.
func PolicyFor(kind ReportKind) (Policy, bool) {
	p, ok := policies[kind]
	return p, ok
}

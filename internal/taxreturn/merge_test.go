package taxreturn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func la(label string, amount float64) LabeledAmount {
	return LabeledAmount{Label: label, Amount: amount}
}

func labels(items []LabeledAmount) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Label)
	}
	return out
}

func primaryPartial() Record {
	return Record{
		Year:         2023,
		Name:         "Jordan Smith",
		FilingStatus: "married_filing_jointly",
		Dependents:   []Dependent{{Name: "Avery Smith", Relationship: "child"}},
		Income: Income{
			Items: []LabeledAmount{la("Wages", 120000), la("Interest", 350)},
			Total: 120350,
		},
		Federal: Federal{
			AGI:           118000,
			Deductions:    []LabeledAmount{la("Standard deduction", 27700)},
			TaxableIncome: 90300,
			Tax:           10400,
			Credits:       []LabeledAmount{la("Child tax credit", 2000)},
			Payments:      []LabeledAmount{la("Federal withholding", 12000)},
			RefundOrOwed:  3600,
		},
		States: []State{{
			Name:     "CA",
			AGI:      118000,
			Payments: []LabeledAmount{la("CA withholding", 5000)},
		}},
		Summary: Summary{
			FederalAmount: 3600,
			StateAmounts:  []StateAmount{{State: "CA", Amount: 400}},
			NetPosition:   4000,
		},
	}
}

func TestMerge_EmptyInput(t *testing.T) {
	_, err := Merge(nil)
	require.ErrorIs(t, err, ErrNoPartialsToMerge)

	_, err = Merge([]Record{})
	require.ErrorIs(t, err, ErrNoPartialsToMerge)
}

func TestMerge_SinglePartialIsIdentity(t *testing.T) {
	p := primaryPartial()
	p.Rates = &Rates{Federal: Rate{Marginal: 0.22, Effective: 0.11}}

	got, err := Merge([]Record{p})
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestMergeLabeledAmounts_Idempotent(t *testing.T) {
	list := []LabeledAmount{la("Wages", 100), la("Interest", 5), la("Dividends", 40)}
	got := MergeLabeledAmounts(list, list)
	assert.Equal(t, list, got)
}

func TestMergeLabeledAmounts_DedupesExisting(t *testing.T) {
	list := []LabeledAmount{la("Wages", 100), la("Wages", 200), la("Interest", 5)}

	got := MergeLabeledAmounts(list, list)
	assert.Equal(t, []LabeledAmount{la("Wages", 100), la("Interest", 5)}, got)
}

func TestMerge_BaseWithRepeatedLabelsAndStates(t *testing.T) {
	base := Record{
		Dependents: []Dependent{{Name: "Avery"}, {Name: "Avery", Relationship: "child"}},
		Income:     Income{Items: []LabeledAmount{la("Wages", 100), la("Wages", 200)}},
		States: []State{
			{Name: "CA", Tax: 300, Payments: []LabeledAmount{la("CA withholding", 10), la("CA withholding", 20)}},
			{Name: "CA", AGI: 9000, Tax: 999, Payments: []LabeledAmount{la("CA estimated", 40)}},
		},
		Summary: Summary{StateAmounts: []StateAmount{{State: "CA", Amount: 1}, {State: "CA", Amount: 2}}},
	}
	next := Record{Income: Income{Items: []LabeledAmount{la("Interest", 5)}}}

	got, err := Merge([]Record{base, next})
	require.NoError(t, err)
	assert.Equal(t, []LabeledAmount{la("Wages", 100), la("Interest", 5)}, got.Income.Items)
	assert.Equal(t, []Dependent{{Name: "Avery"}}, got.Dependents)
	assert.Equal(t, []StateAmount{{State: "CA", Amount: 1}}, got.Summary.StateAmounts)
	require.Len(t, got.States, 1)
	ca := got.States[0]
	assert.Equal(t, 300.0, ca.Tax)
	assert.Equal(t, 9000.0, ca.AGI)
	assert.Equal(t, []LabeledAmount{la("CA withholding", 10), la("CA estimated", 40)}, ca.Payments)
}

func TestNormalize(t *testing.T) {
	p := primaryPartial()
	assert.Equal(t, p, Normalize(p), "already unique")

	dup := primaryPartial()
	dup.Federal.Credits = append(dup.Federal.Credits, la("Child tax credit", 1))
	dup.States = append(dup.States, State{Name: "CA", Tax: 77})

	got := Normalize(dup)
	assert.Equal(t, []LabeledAmount{la("Child tax credit", 2000)}, got.Federal.Credits)
	require.Len(t, got.States, 1)
	assert.Equal(t, 77.0, got.States[0].Tax, "missing amount filled from the repeat")
	assert.Len(t, dup.States, 2, "input untouched")
}

func TestMergeLabeledAmounts_FirstSeenWins(t *testing.T) {
	existing := []LabeledAmount{la("Wages", 100)}
	incoming := []LabeledAmount{la("Wages", 999), la("Interest", 5), la("Interest", 6)}

	got := MergeLabeledAmounts(existing, incoming)
	assert.Equal(t, []LabeledAmount{la("Wages", 100), la("Interest", 5)}, got)
}

func TestMergeLabeledAmounts_DoesNotMutateExisting(t *testing.T) {
	existing := make([]LabeledAmount, 1, 8)
	existing[0] = la("Wages", 100)

	_ = MergeLabeledAmounts(existing, []LabeledAmount{la("Interest", 5)})
	assert.Len(t, existing, 1)
	assert.Equal(t, LabeledAmount{}, existing[:2][1], "backing array must not be written")
}

func TestMerge_DisjointIncomeLabelsUnionInOrder(t *testing.T) {
	a := Record{Income: Income{Items: []LabeledAmount{la("Wages", 1), la("Interest", 2)}}}
	b := Record{Income: Income{Items: []LabeledAmount{la("Dividends", 3), la("Capital gains", 4)}}}

	got, err := Merge([]Record{a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{"Wages", "Interest", "Dividends", "Capital gains"}, labels(got.Income.Items))
}

func TestMerge_IncomeTotalTakesMax(t *testing.T) {
	tests := []struct {
		name   string
		first  float64
		second float64
		want   float64
	}{
		{"second larger", 1000, 5000, 5000},
		{"first larger", 5000, 1000, 5000},
		{"equal", 2500, 2500, 2500},
		{"first missing", 0, 700, 700},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := Record{Income: Income{Total: tc.first}}
			b := Record{Income: Income{Total: tc.second}}
			got, err := Merge([]Record{a, b})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Income.Total)
		})
	}
}

func TestMerge_NewStateAppended(t *testing.T) {
	a := primaryPartial()
	b := Record{States: []State{{Name: "NY", Tax: 800}}}

	got, err := Merge([]Record{a, b})
	require.NoError(t, err)
	require.Len(t, got.States, len(a.States)+1)
	assert.Equal(t, "CA", got.States[0].Name)
	assert.Equal(t, "NY", got.States[1].Name)
	assert.Equal(t, 800.0, got.States[1].Tax)
}

func TestMerge_ExistingStateMergedLabelWise(t *testing.T) {
	a := primaryPartial()
	b := Record{States: []State{{
		Name:          "CA",
		AGI:           1,
		TaxableIncome: 95000,
		Deductions:    []LabeledAmount{la("CA standard deduction", 10726)},
		Payments:      []LabeledAmount{la("CA withholding", 1), la("CA estimated payments", 600)},
	}}}

	got, err := Merge([]Record{a, b})
	require.NoError(t, err)
	require.Len(t, got.States, 1)

	ca := got.State("CA")
	require.NotNil(t, ca)
	assert.Equal(t, 118000.0, ca.AGI, "first non-empty scalar wins")
	assert.Equal(t, 95000.0, ca.TaxableIncome, "empty scalar filled from later chunk")
	assert.Equal(t, []LabeledAmount{la("CA withholding", 5000), la("CA estimated payments", 600)}, ca.Payments)
	assert.Equal(t, []string{"CA standard deduction"}, labels(ca.Deductions))
}

func TestMerge_DependentsDedupedByName(t *testing.T) {
	a := primaryPartial()
	b := Record{Dependents: []Dependent{
		{Name: "Avery Smith", Relationship: "daughter"},
		{Name: "Riley Smith", Relationship: "son"},
	}}

	got, err := Merge([]Record{a, b})
	require.NoError(t, err)
	assert.Equal(t, []Dependent{
		{Name: "Avery Smith", Relationship: "child"},
		{Name: "Riley Smith", Relationship: "son"},
	}, got.Dependents)
}

func TestMerge_RatesFirstAvailableWins(t *testing.T) {
	first := &Rates{Federal: Rate{Marginal: 0.22, Effective: 0.1}}
	second := &Rates{Federal: Rate{Marginal: 0.32, Effective: 0.2}, State: &Rate{Marginal: 0.093}}

	got, err := Merge([]Record{{}, {Rates: first}, {Rates: second}})
	require.NoError(t, err)
	require.NotNil(t, got.Rates)
	assert.Equal(t, *first, *got.Rates)
	assert.NotSame(t, first, got.Rates)
}

func TestMerge_FederalListsAndScalars(t *testing.T) {
	a := primaryPartial()
	b := Record{
		Year:         2022,
		Name:         "Someone Else",
		FilingStatus: "single",
		Federal: Federal{
			AGI:             1,
			Deductions:      []LabeledAmount{la("Standard deduction", 1), la("QBI deduction", 800)},
			AdditionalTaxes: []LabeledAmount{la("Self-employment tax", 1400)},
			Credits:         []LabeledAmount{la("Education credit", 500)},
			Payments:        []LabeledAmount{la("Estimated payments", 2000)},
		},
		Summary: Summary{StateAmounts: []StateAmount{{State: "CA", Amount: 1}, {State: "NY", Amount: -50}}},
	}

	got, err := Merge([]Record{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2023, got.Year)
	assert.Equal(t, "Jordan Smith", got.Name)
	assert.Equal(t, "married_filing_jointly", got.FilingStatus)
	assert.Equal(t, 118000.0, got.Federal.AGI)
	assert.Equal(t, []LabeledAmount{la("Standard deduction", 27700), la("QBI deduction", 800)}, got.Federal.Deductions)
	assert.Equal(t, []string{"Self-employment tax"}, labels(got.Federal.AdditionalTaxes))
	assert.Equal(t, []string{"Child tax credit", "Education credit"}, labels(got.Federal.Credits))
	assert.Equal(t, []string{"Federal withholding", "Estimated payments"}, labels(got.Federal.Payments))
	assert.Equal(t, []StateAmount{{State: "CA", Amount: 400}, {State: "NY", Amount: -50}}, got.Summary.StateAmounts)
}

func TestMerge_OrderSensitive(t *testing.T) {
	a := Record{Income: Income{Items: []LabeledAmount{la("Wages", 100)}}}
	b := Record{Income: Income{Items: []LabeledAmount{la("Wages", 200)}}}

	ab, err := Merge([]Record{a, b})
	require.NoError(t, err)
	ba, err := Merge([]Record{b, a})
	require.NoError(t, err)

	assert.Equal(t, 100.0, ab.Income.Items[0].Amount)
	assert.Equal(t, 200.0, ba.Income.Items[0].Amount)
}

func TestMerge_DoesNotMutatePartials(t *testing.T) {
	a := primaryPartial()
	b := Record{
		Income: Income{Items: []LabeledAmount{la("Dividends", 10)}},
		States: []State{{Name: "CA", Deductions: []LabeledAmount{la("CA itemized", 9)}}},
	}
	before := primaryPartial()

	_, err := Merge([]Record{a, b})
	require.NoError(t, err)
	assert.Equal(t, before, a)
}

func TestMerge_ThreeWayFold(t *testing.T) {
	parts := []Record{
		{Income: Income{Items: []LabeledAmount{la("Wages", 1)}, Total: 10}},
		{Income: Income{Items: []LabeledAmount{la("Interest", 2)}, Total: 30}},
		{Income: Income{Items: []LabeledAmount{la("Wages", 9), la("Dividends", 3)}, Total: 20}},
	}

	got, err := Merge(parts)
	require.NoError(t, err)
	assert.Equal(t, []LabeledAmount{la("Wages", 1), la("Interest", 2), la("Dividends", 3)}, got.Income.Items)
	assert.Equal(t, 30.0, got.Income.Total)
}

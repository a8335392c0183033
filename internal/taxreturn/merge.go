package taxreturn

import "errors"

// ErrNoPartialsToMerge is returned by Merge when given nothing to merge.
var ErrNoPartialsToMerge = errors.New("no partial extractions to merge")

// Merge folds chunk-level partial records into one canonical record.
//
// The fold is left to right and order-sensitive: the first partial is the
// base, and for every list the first-seen label wins. Earlier chunks cover
// the primary form pages and are treated as authoritative. A single partial
// is returned unchanged.
func Merge(partials []Record) (Record, error) {
	switch len(partials) {
	case 0:
		return Record{}, ErrNoPartialsToMerge
	case 1:
		return partials[0], nil
	}

	acc := Normalize(partials[0])
	for _, p := range partials[1:] {
		acc = foldPartial(acc, p)
	}
	return acc, nil
}

// Normalize returns a copy of r in which every list carries at most one
// entry per label, dependent name or state. Repeats fold into their first
// occurrence the same way a later partial would.
func Normalize(r Record) Record {
	out := r.Clone()
	f := &out.Federal
	out.Dependents = mergeDependents(nil, r.Dependents)
	out.Income.Items = MergeLabeledAmounts(nil, r.Income.Items)
	f.Deductions = MergeLabeledAmounts(nil, r.Federal.Deductions)
	f.AdditionalTaxes = MergeLabeledAmounts(nil, r.Federal.AdditionalTaxes)
	f.Credits = MergeLabeledAmounts(nil, r.Federal.Credits)
	f.Payments = MergeLabeledAmounts(nil, r.Federal.Payments)
	out.States = nil
	mergeStates(&out, r.States)
	out.Summary.StateAmounts = mergeStateAmounts(nil, r.Summary.StateAmounts)
	return out
}

// foldPartial merges one incoming partial into the accumulator.
func foldPartial(acc, in Record) Record {
	acc.Year = firstInt(acc.Year, in.Year)
	acc.Name = firstString(acc.Name, in.Name)
	acc.FilingStatus = firstString(acc.FilingStatus, in.FilingStatus)
	acc.Dependents = mergeDependents(acc.Dependents, in.Dependents)

	acc.Income.Items = MergeLabeledAmounts(acc.Income.Items, in.Income.Items)
	if in.Income.Total > acc.Income.Total {
		acc.Income.Total = in.Income.Total
	}

	f := &acc.Federal
	f.AGI = firstAmount(f.AGI, in.Federal.AGI)
	f.TaxableIncome = firstAmount(f.TaxableIncome, in.Federal.TaxableIncome)
	f.Tax = firstAmount(f.Tax, in.Federal.Tax)
	f.RefundOrOwed = firstAmount(f.RefundOrOwed, in.Federal.RefundOrOwed)
	f.Deductions = MergeLabeledAmounts(f.Deductions, in.Federal.Deductions)
	f.AdditionalTaxes = MergeLabeledAmounts(f.AdditionalTaxes, in.Federal.AdditionalTaxes)
	f.Credits = MergeLabeledAmounts(f.Credits, in.Federal.Credits)
	f.Payments = MergeLabeledAmounts(f.Payments, in.Federal.Payments)

	mergeStates(&acc, in.States)

	acc.Summary.FederalAmount = firstAmount(acc.Summary.FederalAmount, in.Summary.FederalAmount)
	acc.Summary.NetPosition = firstAmount(acc.Summary.NetPosition, in.Summary.NetPosition)
	acc.Summary.StateAmounts = mergeStateAmounts(acc.Summary.StateAmounts, in.Summary.StateAmounts)

	if acc.Rates == nil && in.Rates != nil {
		rates := in.Rates.clone()
		acc.Rates = &rates
	}
	return acc
}

// MergeLabeledAmounts returns the labels of existing followed by those of
// incoming, keeping only the first occurrence of each label. Amounts already
// present in existing are never overwritten.
func MergeLabeledAmounts(existing, incoming []LabeledAmount) []LabeledAmount {
	return firstByKey(existing, incoming, func(la LabeledAmount) string { return la.Label })
}

// mergeStates folds incoming state returns into acc, keyed by name. A name
// repeated in incoming folds into its first occurrence.
func mergeStates(acc *Record, incoming []State) {
	for _, in := range incoming {
		st := acc.State(in.Name)
		if st == nil {
			acc.States = append(acc.States, State{Name: in.Name})
			st = &acc.States[len(acc.States)-1]
		}
		st.AGI = firstAmount(st.AGI, in.AGI)
		st.TaxableIncome = firstAmount(st.TaxableIncome, in.TaxableIncome)
		st.Tax = firstAmount(st.Tax, in.Tax)
		st.RefundOrOwed = firstAmount(st.RefundOrOwed, in.RefundOrOwed)
		st.Deductions = MergeLabeledAmounts(st.Deductions, in.Deductions)
		st.Adjustments = MergeLabeledAmounts(st.Adjustments, in.Adjustments)
		st.Payments = MergeLabeledAmounts(st.Payments, in.Payments)
	}
}

func mergeDependents(existing, incoming []Dependent) []Dependent {
	return firstByKey(existing, incoming, func(d Dependent) string { return d.Name })
}

func mergeStateAmounts(existing, incoming []StateAmount) []StateAmount {
	return firstByKey(existing, incoming, func(sa StateAmount) string { return sa.State })
}

// firstByKey concatenates existing and incoming into a new slice, dropping
// every item whose key was already seen.
func firstByKey[T any](existing, incoming []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	var out []T
	for _, list := range [][]T{existing, incoming} {
		for _, item := range list {
			k := key(item)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

func firstString(cur, next string) string {
	if cur != "" {
		return cur
	}
	return next
}

func firstInt(cur, next int) int {
	if cur != 0 {
		return cur
	}
	return next
}

// firstAmount treats zero as "not reported by this chunk".
func firstAmount(cur, next float64) float64 {
	if cur != 0 {
		return cur
	}
	return next
}

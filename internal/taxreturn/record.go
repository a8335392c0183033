package taxreturn

// Record is the canonical structured view of one tax return. A Record
// produced for a single chunk of a document is a partial extraction; Merge
// folds partials into the canonical record.
type Record struct {
	Year         int         `json:"year"`
	Name         string      `json:"name"`
	FilingStatus string      `json:"filing_status"`
	Dependents   []Dependent `json:"dependents"`
	Income       Income      `json:"income"`
	Federal      Federal     `json:"federal"`
	States       []State     `json:"states"`
	Summary      Summary     `json:"summary"`
	Rates        *Rates      `json:"rates,omitempty"`
}

// LabeledAmount is one line item. Labels are unique within a list.
type LabeledAmount struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

type Dependent struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
}

type Income struct {
	Items []LabeledAmount `json:"items"`
	Total float64         `json:"total"`
}

type Federal struct {
	AGI             float64         `json:"agi"`
	Deductions      []LabeledAmount `json:"deductions"`
	TaxableIncome   float64         `json:"taxable_income"`
	Tax             float64         `json:"tax"`
	AdditionalTaxes []LabeledAmount `json:"additional_taxes"`
	Credits         []LabeledAmount `json:"credits"`
	Payments        []LabeledAmount `json:"payments"`
	RefundOrOwed    float64         `json:"refund_or_owed"`
}

// State is one state return, keyed by Name.
type State struct {
	Name          string          `json:"name"`
	AGI           float64         `json:"agi"`
	Deductions    []LabeledAmount `json:"deductions"`
	TaxableIncome float64         `json:"taxable_income"`
	Tax           float64         `json:"tax"`
	Adjustments   []LabeledAmount `json:"adjustments"`
	Payments      []LabeledAmount `json:"payments"`
	RefundOrOwed  float64         `json:"refund_or_owed"`
}

type StateAmount struct {
	State  string  `json:"state"`
	Amount float64 `json:"amount"`
}

// Summary holds net positions. Positive amounts are refunds, negative are
// balances owed.
type Summary struct {
	FederalAmount float64       `json:"federal_amount"`
	StateAmounts  []StateAmount `json:"state_amounts"`
	NetPosition   float64       `json:"net_position"`
}

type Rate struct {
	Marginal  float64 `json:"marginal"`
	Effective float64 `json:"effective"`
}

type Rates struct {
	Federal  Rate  `json:"federal"`
	State    *Rate `json:"state,omitempty"`
	Combined *Rate `json:"combined,omitempty"`
}

// State returns the state return with the given name, or nil.
func (r *Record) State(name string) *State {
	for i := range r.States {
		if r.States[i].Name == name {
			return &r.States[i]
		}
	}
	return nil
}

// Clone returns a deep copy so that a merge never aliases a partial's slices.
func (r Record) Clone() Record {
	out := r
	out.Dependents = cloneSlice(r.Dependents)
	out.Income.Items = cloneSlice(r.Income.Items)
	out.Federal.Deductions = cloneSlice(r.Federal.Deductions)
	out.Federal.AdditionalTaxes = cloneSlice(r.Federal.AdditionalTaxes)
	out.Federal.Credits = cloneSlice(r.Federal.Credits)
	out.Federal.Payments = cloneSlice(r.Federal.Payments)
	out.Summary.StateAmounts = cloneSlice(r.Summary.StateAmounts)
	if r.States != nil {
		out.States = make([]State, len(r.States))
		for i, s := range r.States {
			out.States[i] = s.clone()
		}
	}
	if r.Rates != nil {
		rates := r.Rates.clone()
		out.Rates = &rates
	}
	return out
}

func (s State) clone() State {
	out := s
	out.Deductions = cloneSlice(s.Deductions)
	out.Adjustments = cloneSlice(s.Adjustments)
	out.Payments = cloneSlice(s.Payments)
	return out
}

func (r Rates) clone() Rates {
	out := r
	if r.State != nil {
		st := *r.State
		out.State = &st
	}
	if r.Combined != nil {
		c := *r.Combined
		out.Combined = &c
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

package table

// Requirements declares the columns an analysis needs before it can run
type Requirements struct {
	Temporal   bool     // a temporal column must exist
	Columns    []string // columns of any type
	Numeric    []string // columns that must be numeric
	AnyNumeric []string // at least one of these must exist and be numeric
}

// Satisfies reports whether t can serve the requirements
func (t *Table) Satisfies(r Requirements) bool {
	if r.Temporal {
		if _, ok := t.TimeColumn(); !ok {
			return false
		}
	}
	if !t.Has(r.Columns...) {
		return false
	}
	for _, name := range r.Numeric {
		if !t.isNumeric(name) {
			return false
		}
	}
	if len(r.AnyNumeric) > 0 {
		for _, name := range r.AnyNumeric {
			if t.isNumeric(name) {
				return true
			}
		}
		return false
	}
	return true
}

func (t *Table) isNumeric(name string) bool {
	col, ok := t.Column(name)
	return ok && col.Type() == TypeNumeric
}

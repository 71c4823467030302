package observation

import (
	"fieldtrial/domain/core"
	"fieldtrial/domain/phenotype"
)

// PhenotypeRef is how an observation holds its measured variable. The variant is chosen
// once, at construction, and decides what Release does to the variable:
//   - OwnedPhenotype: the observation owns the variable and clears it on release
//   - BorrowedPhenotype: someone else owns the variable; release leaves it alone
//   - SharedPhenotype: the variable lives in a phenotype.Cache; release drops the handle
type PhenotypeRef interface {
	Variable() *phenotype.MeasuredVariable
	release()
}

// OwnedPhenotype is an owning reference
type OwnedPhenotype struct{ v *phenotype.MeasuredVariable }

// Own transfers ownership of v to the observation
func Own(v *phenotype.MeasuredVariable) OwnedPhenotype { return OwnedPhenotype{v: v} }

func (r OwnedPhenotype) Variable() *phenotype.MeasuredVariable { return r.v }
func (r OwnedPhenotype) release() {
	if r.v != nil {
		r.v.Clear()
	}
}

// BorrowedPhenotype is a non-owning reference
type BorrowedPhenotype struct{ v *phenotype.MeasuredVariable }

// Borrow references v without taking ownership
func Borrow(v *phenotype.MeasuredVariable) BorrowedPhenotype { return BorrowedPhenotype{v: v} }

func (r BorrowedPhenotype) Variable() *phenotype.MeasuredVariable { return r.v }
func (r BorrowedPhenotype) release()                              {}

// SharedPhenotype is a counted reference into a phenotype.Cache
type SharedPhenotype struct{ h *phenotype.Handle }

// Share wraps a cache handle; the observation becomes responsible for releasing it
func Share(h *phenotype.Handle) SharedPhenotype { return SharedPhenotype{h: h} }

func (r SharedPhenotype) Variable() *phenotype.MeasuredVariable { return r.h.Variable() }
func (r SharedPhenotype) release()                              { r.h.Release() }

func refID(r PhenotypeRef) core.ID {
	if r == nil || r.Variable() == nil {
		return ""
	}
	return r.Variable().ID
}

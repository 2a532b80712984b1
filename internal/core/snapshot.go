package core

import "time"

// Snapshot types mirror the budget state for persistence. They carry the
// enumeration order explicitly so a restored budget lists categories and
// sub-divisions exactly as the original did, duplicate order entries
// included.
type (
	BudgetSnapshot struct {
		TotalIncome int64
		DailyLimit  int64
		DailySpent  int64
		LastReset   time.Time
		StrictMode  bool
		Categories  []CategorySnapshot
	}

	CategorySnapshot struct {
		Name         string
		Allocation   int64
		Spent        int64
		SubDivisions []SubDivisionSnapshot
	}

	SubDivisionSnapshot struct {
		Name              string
		Allocation        int64
		Spent             int64
		PercentOfCategory int64
	}
)

// Snapshot captures the full budget state.
func (b *UserBudget) Snapshot() BudgetSnapshot {
	s := BudgetSnapshot{
		TotalIncome: b.TotalIncome,
		DailyLimit:  b.DailyLimit,
		DailySpent:  b.DailySpent,
		LastReset:   b.LastReset,
		StrictMode:  b.StrictMode,
		Categories:  make([]CategorySnapshot, 0, len(b.catOrder)),
	}

	for _, name := range b.catOrder {
		cat := b.categories[name]
		cs := CategorySnapshot{
			Name:         cat.Name,
			Allocation:   cat.Allocation,
			Spent:        cat.Spent,
			SubDivisions: make([]SubDivisionSnapshot, 0, len(cat.subOrder)),
		}
		for _, sdName := range cat.subOrder {
			sd, ok := cat.subDivisions[sdName]
			if !ok {
				continue
			}
			cs.SubDivisions = append(cs.SubDivisions, SubDivisionSnapshot{
				Name:              sd.Name,
				Allocation:        sd.Allocation,
				Spent:             sd.Spent,
				PercentOfCategory: sd.PercentOfCategory,
			})
		}
		s.Categories = append(s.Categories, cs)
	}

	return s
}

// FromSnapshot rebuilds a budget from persisted state. Duplicate sub-division
// entries collapse onto one map entry while every order-list position is
// kept, matching the in-memory representation they were captured from.
func FromSnapshot(s BudgetSnapshot) *UserBudget {
	b := &UserBudget{
		TotalIncome: s.TotalIncome,
		DailyLimit:  s.DailyLimit,
		DailySpent:  s.DailySpent,
		LastReset:   s.LastReset,
		StrictMode:  s.StrictMode,
		categories:  make(map[string]*Category, len(s.Categories)),
	}

	for _, cs := range s.Categories {
		cat := newCategory(cs.Name, cs.Allocation)
		cat.Spent = cs.Spent
		for _, sds := range cs.SubDivisions {
			cat.subDivisions[sds.Name] = &SubDivision{
				Name:              sds.Name,
				Allocation:        sds.Allocation,
				Spent:             sds.Spent,
				PercentOfCategory: sds.PercentOfCategory,
			}
			cat.subOrder = append(cat.subOrder, sds.Name)
		}
		b.categories[cs.Name] = cat
		b.catOrder = append(b.catOrder, cs.Name)
	}

	return b
}

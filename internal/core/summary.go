package core

// Summary is the immutable allocation snapshot returned by summary queries.
// It deliberately excludes spent amounts.
type Summary struct {
	TotalIncome       int64
	DailyLimit        int64
	NeedsAllocation   int64
	WantsAllocation   int64
	SavingsAllocation int64
}

// Summary returns the budget's fixed allocation figures.
func (b *UserBudget) Summary() Summary {
	return Summary{
		TotalIncome:       b.TotalIncome,
		DailyLimit:        b.DailyLimit,
		NeedsAllocation:   b.categories[CategoryNeeds].Allocation,
		WantsAllocation:   b.categories[CategoryWants].Allocation,
		SavingsAllocation: b.categories[CategorySavings].Allocation,
	}
}

package core

import (
	"strings"
	"time"
)

// Fixed top-level categories. Every budget has exactly these three, in this
// order, and no operation can add or remove one.
const (
	CategoryNeeds   = "Needs"
	CategoryWants   = "Wants"
	CategorySavings = "Savings"
)

// DailyWindow is the length of the spending window after which the daily
// counter is eligible for reset.
const DailyWindow = 24 * time.Hour

// daysPerMonth is the divisor used to derive the daily limit from income.
const daysPerMonth = 30

// Income split ratio: 50% needs, 30% wants, remainder savings.
const (
	needsPercent = 50
	wantsPercent = 30
)

// CategoryNames returns the fixed category names in enumeration order.
func CategoryNames() []string {
	return []string{CategoryNeeds, CategoryWants, CategorySavings}
}

// Policy controls how the engine resolves behaviors the original system left
// loose. The zero value reproduces the legacy behavior exactly.
type Policy struct {
	// RejectReinitialize makes initializing an identity that already has a
	// budget fail instead of silently resetting it.
	RejectReinitialize bool

	// RejectDuplicateNames makes AddSubDivision fail on a name already taken
	// within the category instead of overwriting the entry while appending a
	// duplicate to the enumeration order.
	RejectDuplicateNames bool

	// PerCategoryShareCheck validates each general-pool share against its
	// category's remaining capacity. Legacy behavior checks only the
	// aggregate, so a single category can be driven past its allocation.
	PerCategoryShareCheck bool
}

// SubDivision is a named bucket nested under one category. Allocation and
// PercentOfCategory are fixed at creation; Spent only grows.
type SubDivision struct {
	Name              string
	Allocation        int64
	Spent             int64
	PercentOfCategory int64
}

// Remaining returns the unspent part of the sub-division's allocation.
func (s *SubDivision) Remaining() int64 {
	return s.Allocation - s.Spent
}

// Category is one of the three fixed top-level buckets. Spent counts only
// direct category-level and general-pool withdrawals; sub-division spends are
// tracked on the sub-divisions themselves and never folded in.
type Category struct {
	Name       string
	Allocation int64
	Spent      int64

	subDivisions map[string]*SubDivision
	subOrder     []string
}

func newCategory(name string, allocation int64) *Category {
	return &Category{
		Name:         name,
		Allocation:   allocation,
		subDivisions: make(map[string]*SubDivision),
	}
}

// Remaining returns the category's unspent direct allocation.
func (c *Category) Remaining() int64 {
	return c.Allocation - c.Spent
}

// SubDivision looks up a sub-division by name.
func (c *Category) SubDivision(name string) (*SubDivision, bool) {
	sd, ok := c.subDivisions[name]
	return sd, ok
}

// SubDivisions returns copies of the sub-divisions in insertion order.
// Overwritten duplicates appear once per order-list entry, all reflecting the
// current value.
func (c *Category) SubDivisions() []SubDivision {
	out := make([]SubDivision, 0, len(c.subOrder))
	for _, name := range c.subOrder {
		if sd, ok := c.subDivisions[name]; ok {
			out = append(out, *sd)
		}
	}
	return out
}

// UserBudget is the per-identity budget record: the fixed three-way income
// split, its sub-divisions, and the daily spending window.
type UserBudget struct {
	TotalIncome int64
	DailyLimit  int64
	DailySpent  int64
	LastReset   time.Time
	StrictMode  bool

	categories map[string]*Category
	catOrder   []string
}

// NewUserBudget partitions income into the fixed categories and returns a
// fresh budget with strict mode enabled.
//
// The split is computed as needs=50%, wants=30%, savings=the rest, in that
// order, so the three shares always sum exactly to income with any integer
// rounding remainder absorbed by savings. The daily limit is income/30 with
// the fraction dropped.
func NewUserBudget(income int64, now time.Time) (*UserBudget, error) {
	if income <= 0 {
		return nil, ErrInvalidAmount
	}

	needs := income * needsPercent / 100
	wants := income * wantsPercent / 100
	savings := income - needs - wants

	b := &UserBudget{
		TotalIncome: income,
		DailyLimit:  income / daysPerMonth,
		LastReset:   now,
		StrictMode:  true,
		categories:  make(map[string]*Category, 3),
	}

	for _, c := range []*Category{
		newCategory(CategoryNeeds, needs),
		newCategory(CategoryWants, wants),
		newCategory(CategorySavings, savings),
	} {
		b.categories[c.Name] = c
		b.catOrder = append(b.catOrder, c.Name)
	}

	return b, nil
}

// Category looks up one of the fixed categories by exact name.
func (b *UserBudget) Category(name string) (*Category, bool) {
	c, ok := b.categories[name]
	return c, ok
}

// Categories returns the categories in their fixed order.
func (b *UserBudget) Categories() []*Category {
	out := make([]*Category, 0, len(b.catOrder))
	for _, name := range b.catOrder {
		out = append(out, b.categories[name])
	}
	return out
}

// AddSubDivision creates a named bucket inside a category with a fixed
// allocation. The allocation may not exceed the category's allocation, and
// the share percentage is computed once, at creation.
//
// With the legacy policy a duplicate name overwrites the existing entry but
// still appends another entry to the enumeration order.
func (b *UserBudget) AddSubDivision(category, name string, amount int64, policy Policy) (*SubDivision, error) {
	cat, ok := b.categories[category]
	if !ok || strings.TrimSpace(category) == "" {
		return nil, ErrInvalidCategory
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}
	if amount < 0 {
		return nil, ErrInvalidAmount
	}
	if amount > cat.Allocation {
		return nil, ErrExceedsCategoryBudget
	}
	if cat.Allocation == 0 {
		return nil, ErrZeroAllocation
	}
	if policy.RejectDuplicateNames {
		if _, exists := cat.subDivisions[name]; exists {
			return nil, ErrDuplicateName
		}
	}

	sd := &SubDivision{
		Name:              name,
		Allocation:        amount,
		PercentOfCategory: amount * 100 / cat.Allocation,
	}
	cat.subDivisions[name] = sd
	cat.subOrder = append(cat.subOrder, name)

	return sd, nil
}

// SpendFromSubDivision withdraws from a sub-division's allocation. Both the
// sub-division's and the parent category's spent counters advance.
func (b *UserBudget) SpendFromSubDivision(category, name string, amount int64, now time.Time) error {
	cat, ok := b.categories[category]
	if !ok {
		return ErrInvalidCategory
	}
	sd, ok := cat.subDivisions[name]
	if !ok {
		return ErrSubDivisionNotFound
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > sd.Remaining() {
		return ErrInsufficientFunds
	}

	daily, err := b.checkDailyLimit(amount, now)
	if err != nil {
		return err
	}

	daily.commit(b)
	sd.Spent += amount
	cat.Spent += amount
	return nil
}

// SpendFromCategory withdraws directly from a category's allocation without
// touching any sub-division.
func (b *UserBudget) SpendFromCategory(category string, amount int64, now time.Time) error {
	cat, ok := b.categories[category]
	if !ok {
		return ErrInvalidCategory
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > cat.Remaining() {
		return ErrInsufficientFunds
	}

	daily, err := b.checkDailyLimit(amount, now)
	if err != nil {
		return err
	}

	daily.commit(b)
	cat.Spent += amount
	return nil
}

// GeneralShares is the per-category apportionment of a general-pool spend.
type GeneralShares struct {
	Needs   int64
	Wants   int64
	Savings int64
}

// SpendFromGeneral withdraws an undifferentiated amount from the whole
// budget, apportioned across the three categories by allocation weight. The
// savings share absorbs the rounding remainder so the shares always sum
// exactly to amount.
//
// Only the aggregate remaining capacity is checked unless
// Policy.PerCategoryShareCheck is set, so a single category's spent counter
// can exceed its allocation under the legacy policy.
func (b *UserBudget) SpendFromGeneral(amount int64, now time.Time, policy Policy) (GeneralShares, error) {
	if amount <= 0 {
		return GeneralShares{}, ErrInvalidAmount
	}

	needs := b.categories[CategoryNeeds]
	wants := b.categories[CategoryWants]
	savings := b.categories[CategorySavings]

	totalRemaining := needs.Remaining() + wants.Remaining() + savings.Remaining()
	if amount > totalRemaining {
		return GeneralShares{}, ErrInsufficientFunds
	}

	totalAllocated := needs.Allocation + wants.Allocation + savings.Allocation
	if totalAllocated == 0 {
		return GeneralShares{}, ErrZeroAllocation
	}

	shares := GeneralShares{
		Needs: needs.Allocation * amount / totalAllocated,
		Wants: wants.Allocation * amount / totalAllocated,
	}
	shares.Savings = amount - shares.Needs - shares.Wants

	if policy.PerCategoryShareCheck {
		if shares.Needs > needs.Remaining() ||
			shares.Wants > wants.Remaining() ||
			shares.Savings > savings.Remaining() {
			return GeneralShares{}, ErrInsufficientFunds
		}
	}

	daily, err := b.checkDailyLimit(amount, now)
	if err != nil {
		return GeneralShares{}, err
	}

	daily.commit(b)
	needs.Spent += shares.Needs
	wants.Spent += shares.Wants
	savings.Spent += shares.Savings
	return shares, nil
}

// SetStrictMode toggles daily-limit enforcement. Unconditional.
func (b *UserBudget) SetStrictMode(enabled bool) {
	b.StrictMode = enabled
}

// checkDailyLimit runs the shared daily-cap policy and returns the window
// state to commit on success. Keeping the rollover pending until the whole
// operation has passed every check makes failures side-effect free.
//
// Strict mode rolls the window over at most once when more than DailyWindow
// has elapsed since the last reset, then enforces the cap. Non-strict mode
// skips both the rollover and the cap but still accumulates the counter, for
// parity with the original system.
func (b *UserBudget) checkDailyLimit(amount int64, now time.Time) (pendingDaily, error) {
	if !b.StrictMode {
		return pendingDaily{spent: b.DailySpent + amount, reset: b.LastReset}, nil
	}

	spent := b.DailySpent
	reset := b.LastReset
	if now.After(reset.Add(DailyWindow)) {
		spent = 0
		reset = now
	}

	if spent+amount > b.DailyLimit {
		return pendingDaily{}, ErrDailyLimitExceeded
	}

	return pendingDaily{spent: spent + amount, reset: reset}, nil
}

type pendingDaily struct {
	spent int64
	reset time.Time
}

func (p pendingDaily) commit(b *UserBudget) {
	b.DailySpent = p.spent
	b.LastReset = p.reset
}

package domain

import "github.com/shopspring/decimal"

// Money is an ISO-currency amount (spec §3 Budget: "money with ISO
// currency"). decimal.Decimal avoids the float-rounding errors that would
// otherwise accumulate across thousands of add_cost calls.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"` // ISO 4217, e.g. "USD"
}

// NewMoney builds a Money value from a float and currency code.
func NewMoney(amount float64, currency string) Money {
	return Money{Amount: decimal.NewFromFloat(amount), Currency: currency}
}

// Add returns m + other. Panics if currencies differ — callers must not mix
// currencies within a single project's budget.
func (m Money) Add(other Money) Money {
	if other.Currency != "" && m.Currency != "" && m.Currency != other.Currency {
		panic("domain: cannot add Money values with different currencies: " + m.Currency + " vs " + other.Currency)
	}
	currency := m.Currency
	if currency == "" {
		currency = other.Currency
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: currency}
}

// Sub returns m - other, same currency constraint as Add.
func (m Money) Sub(other Money) Money {
	if other.Currency != "" && m.Currency != "" && m.Currency != other.Currency {
		panic("domain: cannot subtract Money values with different currencies: " + m.Currency + " vs " + other.Currency)
	}
	currency := m.Currency
	if currency == "" {
		currency = other.Currency
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: currency}
}

// Mul returns m * factor, same currency.
func (m Money) Mul(factor float64) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromFloat(factor)), Currency: m.Currency}
}

// GreaterThan reports whether m > other.
func (m Money) GreaterThan(other Money) bool {
	return m.Amount.GreaterThan(other.Amount)
}

// Budget tracks a project's total/spent/remaining spend and a
// per-category breakdown (spec §3 Budget).
//
// Invariant: spent must stay at or below total*ForceAbortMultiplier before
// the scheduler force-aborts the project; warnings fire at the configured
// warning/critical thresholds (spec §3, enforced by pkg/budget).
type Budget struct {
	Total     Money            `json:"total"`
	Spent     Money            `json:"spent"`
	Breakdown map[string]Money `json:"breakdown"` // category -> money, e.g. "image_generation"
}

// Remaining returns Total - Spent.
func (b Budget) Remaining() Money {
	return b.Total.Sub(b.Spent)
}

// SpendRatio returns Spent/Total as a float, used against BudgetConfig's
// warning/critical/force-abort thresholds.
func (b Budget) SpendRatio() float64 {
	if b.Total.Amount.IsZero() {
		return 0
	}
	ratio, _ := b.Spent.Amount.Div(b.Total.Amount).Float64()
	return ratio
}

// PredictedFinal extrapolates the project's eventual total cost by a
// simple linear projection from spend-so-far over progress-so-far (spec §9
// "a simple linear extrapolation from current progress is a reasonable
// default"). progress is in (0, 1]; callers pass Project.ProgressRatio().
// A progress of 0 (nothing completed yet) returns Spent unchanged — there's
// no trend to extrapolate from.
func (b Budget) PredictedFinal(progress float64) Money {
	if progress <= 0 {
		return b.Spent
	}
	if progress > 1 {
		progress = 1
	}
	factor := decimal.NewFromFloat(1 / progress)
	return Money{Amount: b.Spent.Amount.Mul(factor), Currency: b.Spent.Currency}
}

// AddCost adds amount to Spent and to the named category's breakdown entry,
// mirroring the State Store's add_cost(id, amount, description) RPC (spec
// §4.2) — the category comes from the task type that incurred the cost.
func (b *Budget) AddCost(amount Money, category string) {
	b.Spent = b.Spent.Add(amount)
	if b.Breakdown == nil {
		b.Breakdown = make(map[string]Money)
	}
	existing := b.Breakdown[category]
	if existing.Currency == "" {
		existing.Currency = amount.Currency
	}
	b.Breakdown[category] = existing.Add(amount)
}

// DNAEntry is one entry of the Project's DNA Bank, keyed by entity id
// (character/scene) (spec §3 DNA Bank).
type DNAEntry struct {
	Versions           []EmbeddingVersion `json:"versions"` // ordered
	MergeStrategy      MergeStrategy      `json:"merge_strategy"`
	AggregatedConfidence float64          `json:"aggregated_confidence"`
}

// EmbeddingVersion is one versioned embedding contributing to a DNAEntry.
type EmbeddingVersion struct {
	Version       int       `json:"version"`
	Weight        float64   `json:"weight"` // in [0,1]; all weights sum to 1.0 after rebalance
	SourceArtifact string   `json:"source_artifact"` // artifact URI reference
	Confidence    float64   `json:"confidence"` // in [0,1]
	Timestamp     string    `json:"timestamp"`
	Vector        []byte    `json:"vector"`
}

// Rebalance normalizes Weight across all versions so they sum to 1.0,
// preserving relative proportions (spec §3: "all weights sum to 1.0 after
// rebalance").
func (e *DNAEntry) Rebalance() {
	var sum float64
	for _, v := range e.Versions {
		sum += v.Weight
	}
	if sum <= 0 {
		return
	}
	for i := range e.Versions {
		e.Versions[i].Weight /= sum
	}
}

package obligations

import (
	"math"
	"sort"
)

// densityEpsilon keeps free items from dividing by zero when ranked.
const densityEpsilon = 0.01

// Item is an optional obligation competing for the remaining budget.
type Item struct {
	ID         string
	Amount     float64
	Importance float64
}

// Selector picks a subset of items whose amounts fit in budget. It returns
// indices into items.
type Selector interface {
	Name() string
	Select(items []Item, budget float64) []int
}

// NewSelector returns the selector named by solver. Unknown names fall back
// to greedy.
func NewSelector(solver string, maxCells int) Selector {
	if solver == "exact" {
		return ExactSelector{MaxCells: maxCells}
	}
	return GreedySelector{}
}

// GreedySelector ranks items by importance per unit amount and takes each
// one that still fits. Ties keep input order.
type GreedySelector struct{}

// Name implements Selector.
func (GreedySelector) Name() string { return "greedy" }

// Select implements Selector.
func (GreedySelector) Select(items []Item, budget float64) []int {
	if budget <= 0 || len(items) == 0 {
		return []int{}
	}
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return density(items[order[a]]) > density(items[order[b]])
	})

	chosen := []int{}
	total := 0.0
	for _, i := range order {
		if total+items[i].Amount <= budget {
			chosen = append(chosen, i)
			total += items[i].Amount
		}
	}
	return chosen
}

func density(it Item) float64 {
	return it.Importance / math.Max(it.Amount, densityEpsilon)
}

// DefaultMaxCells bounds the DP table when ExactSelector.MaxCells is unset.
const DefaultMaxCells = 5_000_000

// ExactSelector solves the 0/1 knapsack with a DP over cent-scaled amounts.
// Instances whose table would exceed MaxCells are answered greedily, and the
// result never carries less importance than the greedy selection.
type ExactSelector struct {
	MaxCells int
}

// Name implements Selector.
func (ExactSelector) Name() string { return "exact" }

// Select implements Selector.
func (s ExactSelector) Select(items []Item, budget float64) []int {
	if budget <= 0 || len(items) == 0 {
		return []int{}
	}
	greedy := GreedySelector{}.Select(items, budget)

	maxCells := s.MaxCells
	if maxCells <= 0 {
		maxCells = DefaultMaxCells
	}
	capacity := int(math.Floor(budget*100 + 1e-9))
	n := len(items)
	if int64(n+1)*int64(capacity+1) > int64(maxCells) {
		return greedy
	}

	weights := make([]int, n)
	for i, it := range items {
		weights[i] = int(math.Round(it.Amount * 100))
	}

	best := make([]float64, capacity+1)
	take := make([][]bool, n)
	for i := 0; i < n; i++ {
		take[i] = make([]bool, capacity+1)
		w, v := weights[i], items[i].Importance
		for c := capacity; c >= w; c-- {
			if cand := best[c-w] + v; cand > best[c] {
				best[c] = cand
				take[i][c] = true
			}
		}
	}

	chosen := []int{}
	c := capacity
	for i := n - 1; i >= 0; i-- {
		if take[i][c] {
			chosen = append(chosen, i)
			c -= weights[i]
		}
	}
	sort.Ints(chosen)

	if sumAmount(items, chosen) > budget+1e-9 || sumImportance(items, chosen) < sumImportance(items, greedy) {
		return greedy
	}
	return chosen
}

func sumAmount(items []Item, idx []int) float64 {
	total := 0.0
	for _, i := range idx {
		total += items[i].Amount
	}
	return total
}

func sumImportance(items []Item, idx []int) float64 {
	total := 0.0
	for _, i := range idx {
		total += items[i].Importance
	}
	return total
}

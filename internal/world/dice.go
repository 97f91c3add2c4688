package world

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
)

var diceExpr = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?$`)

// RollResult is the outcome of one dice expression.
type RollResult struct {
	Expression string `json:"expression"`
	Rolls      []int  `json:"rolls"`
	Modifier   int    `json:"modifier"`
	Total      int    `json:"total"`
}

// RollDice evaluates an expression of the form NdM, NdM+K, or NdM-K.
// N defaults to 1 and is capped at 100; M must be at least 2.
func RollDice(rng *rand.Rand, expr string) (RollResult, error) {
	m := diceExpr.FindStringSubmatch(expr)
	if m == nil {
		return RollResult{}, fmt.Errorf("invalid dice expression %q, expected NdM or NdM+K", expr)
	}

	count := 1
	if m[1] != "" {
		count, _ = strconv.Atoi(m[1])
	}
	sides, _ := strconv.Atoi(m[2])
	modifier := 0
	if m[3] != "" {
		modifier, _ = strconv.Atoi(m[3])
	}

	if count < 1 || count > 100 {
		return RollResult{}, fmt.Errorf("dice count %d out of range [1,100]", count)
	}
	if sides < 2 {
		return RollResult{}, fmt.Errorf("die must have at least 2 sides, got %d", sides)
	}

	res := RollResult{Expression: expr, Modifier: modifier}
	for i := 0; i < count; i++ {
		r := rng.Intn(sides) + 1
		res.Rolls = append(res.Rolls, r)
		res.Total += r
	}
	res.Total += modifier
	return res, nil
}

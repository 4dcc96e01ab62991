package optim

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/adinf/internal/dynamo"
)

// Objective scores one parameter combination; lower is better. A NaN score
// marks a failed combination.
type Objective func(ctx context.Context, params map[string]float64) (float64, error)

// Trial is one evaluated combination.
type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, dynamo.Invalidf("grid needs one range per parameter, got %d names and %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, dynamo.Invalidf("empty range for %s", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Size is the number of combinations.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search evaluates every combination and returns the best one with all
// trials in evaluation order. Failed trials are kept with their error and
// never win.
func (g *GridSearch) Search(ctx context.Context, objective Objective) (map[string]float64, float64, []Trial, error) {
	best := math.Inf(1)
	var bestParams map[string]float64
	trials := make([]Trial, 0, g.Size())

	err := g.searchRecursive(ctx, 0, make(map[string]float64), objective, func(tr Trial) {
		trials = append(trials, tr)
		if tr.Err == nil && !math.IsNaN(tr.Score) && tr.Score < best {
			best = tr.Score
			bestParams = tr.Params
		}
	})
	if err != nil {
		return bestParams, best, trials, err
	}
	if bestParams == nil {
		return nil, math.NaN(), trials, fmt.Errorf("%w: every grid point failed", dynamo.ErrInsufficientData)
	}
	return bestParams, best, trials, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	objective Objective,
	record func(Trial),
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		score, err := objective(ctx, current)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		record(Trial{Params: current, Score: score, Err: err})
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, objective, record); err != nil {
			return err
		}
	}
	return nil
}

// Ranked returns the successful trials sorted by score.
func Ranked(trials []Trial) []Trial {
	out := make([]Trial, 0, len(trials))
	for _, tr := range trials {
		if tr.Err == nil && !math.IsNaN(tr.Score) {
			out = append(out, tr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

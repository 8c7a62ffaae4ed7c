// Package match implements the match-function pipeline (C5): an ordered,
// stringly-configured set of stages that each drain a shared mutable
// candidate list and yield a lazy sequence of selected cloudlets. Later
// stages never reconsider a cloudlet a prior stage yielded or dropped.
package match

import (
	"iter"
	"math"
	"math/rand"
	"sort"

	"github.com/cmusatyalab/sinfonia/internal/geo"
	"github.com/cmusatyalab/sinfonia/internal/model"
)

// Stage is one pipeline step. Select receives the current candidate list
// by pointer, removes every cloudlet it yields or hard-drops, and returns
// the yielded ones in order. Cloudlets neither yielded nor dropped remain
// in *candidates for the next stage.
type Stage interface {
	Select(client model.ClientInfo, recipe model.Recipe, candidates *[]*model.Cloudlet) []*model.Cloudlet
	Name() string
}

// Pipeline is the ordered concatenation of configured stages.
type Pipeline struct {
	stages []Stage
}

// New builds a Pipeline from already-constructed stages, in the given order.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Candidates returns a lazy sequence over initial: each stage's Select is
// invoked only once the consumer's range loop reaches it, so a dispatcher
// that only needs max_results (<=3) never pays for a random-shuffle stage
// once earlier stages already supplied enough candidates.
func (p *Pipeline) Candidates(client model.ClientInfo, recipe model.Recipe, initial []*model.Cloudlet) iter.Seq[*model.Cloudlet] {
	return func(yield func(*model.Cloudlet) bool) {
		remaining := append([]*model.Cloudlet(nil), initial...)
		for _, stage := range p.stages {
			selected := stage.Select(client, recipe, &remaining)
			for _, c := range selected {
				if !yield(c) {
					return
				}
			}
		}
	}
}

// StageNames reports the configured stage order, for diagnostics.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Config tunes the built-in stages.
type Config struct {
	// EmptyAcceptedMeansAcceptAll resolves Open Question (c): whether a
	// cloudlet with no declared accepted_clients accepts every client
	// (true, the historical default) or none (false).
	EmptyAcceptedMeansAcceptAll bool
	// LocationCapKm drops location candidates farther than this from the
	// client; a value <= 0 falls back to 1000km.
	LocationCapKm float64
}

// DefaultConfig matches the spec defaults: empty accepted_clients accepts
// all, and a 1000km location cap.
func DefaultConfig() Config {
	return Config{EmptyAcceptedMeansAcceptAll: true, LocationCapKm: 1000}
}

// Names of the built-in stages, as accepted by the stringly-configured
// plugin registry (e.g. `["network","location","carbon-intensity"]`).
const (
	StageNetwork         = "network"
	StageLocation        = "location"
	StageCarbonIntensity = "carbon-intensity"
	StageRandom          = "random"
)

// Build constructs a Pipeline from a list of built-in stage names, in
// order. Unknown names are an error at startup rather than silently
// skipped, since a mistyped matcher list would otherwise degrade match
// quality without any visible failure.
func Build(names []string, cfg Config) (*Pipeline, error) {
	stages := make([]Stage, 0, len(names))
	for _, name := range names {
		stage, err := newStage(name, cfg)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return New(stages...), nil
}

func newStage(name string, cfg Config) (Stage, error) {
	switch name {
	case StageNetwork:
		return &networkStage{emptyAcceptedMeansAcceptAll: cfg.EmptyAcceptedMeansAcceptAll}, nil
	case StageLocation:
		capKm := cfg.LocationCapKm
		if capKm <= 0 {
			capKm = 1000
		}
		return &locationStage{capKm: capKm}, nil
	case StageCarbonIntensity:
		return &carbonIntensityStage{}, nil
	case StageRandom:
		return &randomStage{}, nil
	default:
		return nil, unknownStageError(name)
	}
}

type unknownStageError string

func (e unknownStageError) Error() string { return "unknown match stage: " + string(e) }

// networkStage drops cloudlets that reject the client or that fail to
// accept it, and yields (removing from the list) every remaining cloudlet
// whose local_networks contains the client's IP, in encounter order.
type networkStage struct {
	emptyAcceptedMeansAcceptAll bool
}

func (networkStage) Name() string { return StageNetwork }

func (s *networkStage) Select(client model.ClientInfo, _ model.Recipe, candidates *[]*model.Cloudlet) []*model.Cloudlet {
	var yielded, kept []*model.Cloudlet
	ip := client.IPAddress
	for _, c := range *candidates {
		if !c.AcceptsClient(ip, s.emptyAcceptedMeansAcceptAll) {
			continue // hard drop: rejected, or not in a non-empty accepted set
		}
		if ip != nil && c.IsLocalTo(ip) {
			yielded = append(yielded, c)
			continue
		}
		kept = append(kept, c)
	}
	*candidates = kept
	return yielded
}

// locationStage requires client.Location; when absent it is a no-op,
// leaving candidates untouched for the next stage. When present it orders
// every remaining candidate by great-circle distance and yields all of
// them ascending, permanently dropping any beyond capKm.
type locationStage struct {
	capKm float64
}

func (locationStage) Name() string { return StageLocation }

func (s *locationStage) Select(client model.ClientInfo, _ model.Recipe, candidates *[]*model.Cloudlet) []*model.Cloudlet {
	if !client.HasLocation() {
		return nil
	}
	type scored struct {
		c    *model.Cloudlet
		dist float64
	}
	scoredList := make([]scored, 0, len(*candidates))
	for _, c := range *candidates {
		scoredList = append(scoredList, scored{c: c, dist: geo.NearestDistanceKm(*client.Location, c.Locations)})
	}
	sort.SliceStable(scoredList, func(i, j int) bool { return scoredList[i].dist < scoredList[j].dist })

	result := make([]*model.Cloudlet, 0, len(scoredList))
	for _, sc := range scoredList {
		if s.capKm > 0 && sc.dist > s.capKm {
			continue // beyond cap: dropped entirely, not carried to later stages
		}
		result = append(result, sc.c)
	}
	*candidates = nil
	return result
}

// carbonIntensityStage sorts the remaining candidates ascending by
// reported carbon intensity (missing values sort last) and yields all of
// them; nothing is left for a later stage.
type carbonIntensityStage struct{}

func (carbonIntensityStage) Name() string { return StageCarbonIntensity }

func (carbonIntensityStage) Select(_ model.ClientInfo, _ model.Recipe, candidates *[]*model.Cloudlet) []*model.Cloudlet {
	sorted := append([]*model.Cloudlet(nil), (*candidates)...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, iok := sorted[i].Resources.CarbonIntensity()
		cj, jok := sorted[j].Resources.CarbonIntensity()
		if !iok {
			ci = math.Inf(1)
		}
		if !jok {
			cj = math.Inf(1)
		}
		return ci < cj
	})
	*candidates = nil
	return sorted
}

// randomStage shuffles whatever candidates remain and yields all of them.
type randomStage struct{}

func (randomStage) Name() string { return StageRandom }

func (randomStage) Select(_ model.ClientInfo, _ model.Recipe, candidates *[]*model.Cloudlet) []*model.Cloudlet {
	shuffled := append([]*model.Cloudlet(nil), (*candidates)...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	*candidates = nil
	return shuffled
}

package engine

import (
	"time"

	"github.com/lazypower/hebbian/internal/config"
)

// Params are the engine's policy constants. See config.Config for the
// meaning and defaults of each.
type Params struct {
	// learning
	SeedMyelination  float64
	LearningRate     float64
	CoactivationRate float64
	FixRate          float64
	WindowSize       int
	WindowAge        time.Duration
	ContextCap       int
	MaxContextChars  int
	Directed         bool

	// recall
	MinQueryLen         int
	MaxHops             int
	HopDecay            float64
	ConfidenceFloor     float64
	SimilarityThreshold float64
	MaxSeeds            int
	MaxNeighbors        int
	MaxVectorScan       int
	MyelinationBias     float64
	MyelinationBlend    float64
	DefaultLimit        int
	DefaultTokenBudget  int
	ResultOverhead      int

	// decay
	SynapseHalfLife     time.Duration
	MyelinationHalfLife time.Duration
	PruneEpsilon        float64
	OrphanGrace         time.Duration

	// consolidation
	MinPathWeight         float64
	ShortcutRate          float64
	MaxFanout             int
	MergeSimilarity       float64
	DemoteBelow           float64
	DemoteGrace           time.Duration
	SuperhighwayThreshold float64

	Tokens config.TokenConfig
}

// DefaultParams returns the parameters for config.Default().
func DefaultParams() Params {
	return ParamsFromConfig(config.Default())
}

// ParamsFromConfig maps configuration onto engine parameters.
func ParamsFromConfig(cfg config.Config) Params {
	hours := func(h float64) time.Duration { return time.Duration(h * float64(time.Hour)) }
	return Params{
		SeedMyelination:  cfg.Learning.SeedMyelination,
		LearningRate:     cfg.Learning.LearningRate,
		CoactivationRate: cfg.Learning.CoactivationRate,
		FixRate:          cfg.Learning.FixRate,
		WindowSize:       cfg.Learning.WindowSize,
		WindowAge:        time.Duration(cfg.Learning.WindowSeconds) * time.Second,
		ContextCap:       cfg.Learning.ContextCap,
		MaxContextChars:  cfg.Learning.MaxContextChars,
		Directed:         cfg.Learning.Directed,

		MinQueryLen:         cfg.Recall.MinQueryLen,
		MaxHops:             cfg.Recall.MaxHops,
		HopDecay:            cfg.Recall.HopDecay,
		ConfidenceFloor:     cfg.Recall.ConfidenceFloor,
		SimilarityThreshold: cfg.Recall.SimilarityThreshold,
		MaxSeeds:            cfg.Recall.MaxSeeds,
		MaxNeighbors:        cfg.Recall.MaxNeighbors,
		MaxVectorScan:       cfg.Recall.MaxVectorScan,
		MyelinationBias:     cfg.Recall.MyelinationBias,
		MyelinationBlend:    cfg.Recall.MyelinationBlend,
		DefaultLimit:        cfg.Recall.DefaultLimit,
		DefaultTokenBudget:  cfg.Recall.DefaultTokenBudget,
		ResultOverhead:      cfg.Recall.ResultOverhead,

		SynapseHalfLife:     hours(cfg.Decay.SynapseHalfLifeHours),
		MyelinationHalfLife: hours(cfg.Decay.MyelinationHalfLifeHours),
		PruneEpsilon:        cfg.Decay.PruneEpsilon,
		OrphanGrace:         hours(cfg.Decay.OrphanGraceHours),

		MinPathWeight:         cfg.Consolidation.MinPathWeight,
		ShortcutRate:          cfg.Consolidation.ShortcutRate,
		MaxFanout:             cfg.Consolidation.MaxFanout,
		MergeSimilarity:       cfg.Consolidation.MergeSimilarity,
		DemoteBelow:           cfg.Consolidation.DemoteBelow,
		DemoteGrace:           hours(cfg.Consolidation.DemoteGraceHours),
		SuperhighwayThreshold: cfg.Consolidation.SuperhighwayThreshold,

		Tokens: cfg.Tokens,
	}
}

// Package banks is the adapter registry: for every supported bank it knows
// which pipeline stages run and builds the stage components.
package banks

import (
	"fmt"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/modules/combination"
	"github.com/aristath/custodian/internal/modules/enrichment"
	"github.com/aristath/custodian/internal/modules/mapping"
	"github.com/aristath/custodian/internal/modules/transform"
	"github.com/rs/zerolog"
)

// Stage names, in execution order.
const (
	StageEnrich    = "enrich"
	StageCombine   = "combine"
	StageTransform = "transform"
)

// Pipeline is the static description of one bank's sub-pipeline.
type Pipeline struct {
	Bank    domain.BankCode
	Enrich  *enrichment.Config  // nil when the bank needs no enrichment
	Combine *combination.Config // nil when the bank delivers one file per kind
	Layout  transform.Layout
}

// Stages lists the stages the pipeline runs.
func (p Pipeline) Stages() []string {
	var stages []string
	if p.Enrich != nil {
		stages = append(stages, StageEnrich)
	}
	if p.Combine != nil {
		stages = append(stages, StageCombine)
	}
	return append(stages, StageTransform)
}

// PipelineFor returns the pipeline of bank.
func PipelineFor(bank domain.BankCode) (Pipeline, error) {
	layout, err := transform.LayoutFor(bank)
	if err != nil {
		return Pipeline{}, err
	}
	p := Pipeline{Bank: bank, Layout: layout}
	if cfg, ok := enrichmentFor(bank); ok {
		p.Enrich = &cfg
	}
	if cfg, ok := combination.ConfigFor(bank); ok {
		p.Combine = &cfg
	}
	return p, nil
}

// All returns the pipelines of every supported bank.
func All() []Pipeline {
	out := make([]Pipeline, 0, len(domain.AllBanks()))
	for _, bank := range domain.AllBanks() {
		p, err := PipelineFor(bank)
		if err != nil {
			// LayoutFor covers every bank in AllBanks
			panic(err)
		}
		out = append(out, p)
	}
	return out
}

func enrichmentFor(bank domain.BankCode) (enrichment.Config, bool) {
	switch bank {
	case domain.BankHSBC:
		return enrichment.HSBCConfig(), true
	case domain.BankPershing:
		return enrichment.PershingConfig(), true
	case domain.BankLombard:
		return enrichment.LombardConfig(), true
	}
	return enrichment.Config{}, false
}

// Settings are the run-time policies shared by every bank's components.
type Settings struct {
	Thresholds  enrichment.Thresholds
	StrictBanks []domain.BankCode // banks whose combiner requires complete deliveries
	Lookup      transform.AssetLookup
	Rates       transform.RateProvider
}

// Adapters are the stage components of one bank for one run.
// Enricher and Combiner are nil when the pipeline skips the stage.
type Adapters struct {
	Pipeline    Pipeline
	Enricher    *enrichment.Enricher
	Combiner    *combination.Combiner
	Transformer *transform.Transformer
}

// Registry builds adapters from pipelines and settings.
type Registry struct {
	settings Settings
	strict   map[domain.BankCode]bool
	log      zerolog.Logger
}

// NewRegistry creates a registry.
func NewRegistry(settings Settings, log zerolog.Logger) *Registry {
	strict := make(map[domain.BankCode]bool, len(settings.StrictBanks))
	for _, b := range settings.StrictBanks {
		strict[b] = true
	}
	return &Registry{
		settings: settings,
		strict:   strict,
		log:      log,
	}
}

// Adapters builds bank's components. mappings is the account table of the run.
func (r *Registry) Adapters(bank domain.BankCode, mappings *mapping.Table) (*Adapters, error) {
	p, err := PipelineFor(bank)
	if err != nil {
		return nil, fmt.Errorf("failed to build adapters: %w", err)
	}
	if mappings == nil {
		mappings = mapping.NewTable(nil)
	}

	a := &Adapters{Pipeline: p}
	if p.Enrich != nil {
		a.Enricher = enrichment.NewEnricher(*p.Enrich, r.settings.Thresholds, r.log)
	}
	if p.Combine != nil {
		a.Combiner = combination.NewCombiner(*p.Combine, combination.Options{
			Strict:   r.strict[bank],
			Expected: mappings.Accounts(bank),
		}, r.log)
	}

	var opts []transform.Option
	if p.Layout.UseLookup && r.settings.Lookup != nil {
		opts = append(opts, transform.WithLookup(r.settings.Lookup))
	}
	if p.Layout.ConvertCurrency && r.settings.Rates != nil {
		opts = append(opts, transform.WithRates(r.settings.Rates))
	}
	a.Transformer = transform.NewTransformer(p.Layout, mappings, r.log, opts...)
	return a, nil
}

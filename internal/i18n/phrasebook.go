package i18n

import (
	"context"

	"github.com/pavelanni/neetrank/internal/analysis"
)

// Phrasebook renders insight report wording in the context's language.
type Phrasebook struct {
	ctx context.Context
}

var _ analysis.Phrasebook = Phrasebook{}

// PhrasebookFor returns a Phrasebook bound to the localizer carried by ctx.
func PhrasebookFor(ctx context.Context) Phrasebook {
	return Phrasebook{ctx: ctx}
}

func (p Phrasebook) Recommendation(topic string, tier analysis.Tier) string {
	id := "RecommendMaintain"
	switch tier {
	case analysis.TierFundamentals:
		id = "RecommendFundamentals"
	case analysis.TierPractice:
		id = "RecommendPractice"
	}
	return Td(p.ctx, id, map[string]any{"Topic": topic})
}

func (p Phrasebook) Action(topic string) string {
	return Td(p.ctx, "ActionIntensive", map[string]any{"Topic": topic})
}

package pipeline

import (
	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/profile"
	"github.com/skillscope/skillscope/internal/source"
)

const skillKeywords = 3

// Queries derives one query per target role and desired location. A profile
// without target roles searches by its first skills instead. Keywords and
// locations are normalised and deduplicated.
func Queries(p *profile.Profile, maxQueries, limit int) []source.Query {
	keywords := model.NormalizeList(p.TargetRoles)
	if len(keywords) == 0 {
		skills := model.NormalizeList(p.Skills)
		keywords = skills[:min(len(skills), skillKeywords)]
	}

	locations := model.NormalizeList(p.Locations)
	if len(locations) == 0 {
		locations = []string{""}
	}

	var out []source.Query
	for _, kw := range keywords {
		for _, loc := range locations {
			if maxQueries > 0 && len(out) >= maxQueries {
				return out
			}
			out = append(out, source.Query{
				Keywords: kw,
				Location: loc,
				Remote:   p.Remote,
				JobTypes: append([]string(nil), p.JobTypes...),
				Limit:    limit,
			})
		}
	}
	return out
}

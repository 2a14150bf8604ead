package aggregate

import (
	"fmt"
	"sort"

	"github.com/sells-group/firmenradar/internal/model"
)

// mergeOutcome is the result of merging all source field maps.
type mergeOutcome struct {
	fields       model.PartialFieldMap
	fieldSources map[string]string
	conflicts    []model.FieldConflict
	missing      []string
}

// merge resolves each canonical field across sources under the policy's
// priority order. The highest-priority populated value wins; equal priority
// falls back to the most recently fetched value. Every discarded
// disagreeing value becomes a FieldConflict, never a silent drop.
func merge(policy *Policy, results map[string]model.SourceResult) mergeOutcome {
	out := mergeOutcome{
		fields:       make(model.PartialFieldMap),
		fieldSources: make(map[string]string),
	}

	for _, key := range model.CanonicalFieldKeys {
		order := policy.PriorityFor(key)
		rank := make(map[string]int, len(order))
		for i, s := range order {
			rank[s] = i
		}

		var candidates []model.FieldValue
		for _, sr := range results {
			if sr.Status != model.StatusSuccess && sr.Status != model.StatusPartialSuccess {
				continue
			}
			if fv, ok := sr.Fields[key]; ok {
				candidates = append(candidates, fv)
			}
		}
		if len(candidates) == 0 {
			out.missing = append(out.missing, key)
			continue
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			ri, rj := rankOf(rank, candidates[i].Source), rankOf(rank, candidates[j].Source)
			if ri != rj {
				return ri < rj
			}
			if !candidates[i].FetchedAt.Equal(candidates[j].FetchedAt) {
				return candidates[i].FetchedAt.After(candidates[j].FetchedAt)
			}
			return candidates[i].Source < candidates[j].Source
		})

		winner := candidates[0]
		out.fields[key] = winner
		out.fieldSources[key] = winner.Source

		for _, loser := range candidates[1:] {
			if valuesEqual(winner.Value, loser.Value) {
				continue
			}
			reason := "lower priority source"
			if rankOf(rank, winner.Source) == rankOf(rank, loser.Source) {
				reason = "older value at equal priority"
			}
			out.conflicts = append(out.conflicts, model.FieldConflict{
				Key:       key,
				Winner:    winner,
				Discarded: loser,
				Reason:    reason,
			})
		}
	}

	return out
}

func rankOf(rank map[string]int, sourceID string) int {
	if r, ok := rank[sourceID]; ok {
		return r
	}
	return len(rank)
}

// valuesEqual compares field values by their printed form, which covers the
// mix of strings, numbers, bools and string slices the parsers emit.
func valuesEqual(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

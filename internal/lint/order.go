package lint

import (
	"sort"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
)

// HeadOrder derives a publication order from the files present in a tap
// when no history is available: versioned formulae (name@version) first in
// version order, then the unversioned formula, which is the current release.
func HeadOrder(ds []*formula.Descriptor) map[string][]*formula.Descriptor {
	order := make(map[string][]*formula.Descriptor)
	for _, d := range ds {
		order[d.Package()] = append(order[d.Package()], d)
	}

	for _, seq := range order {
		sort.SliceStable(seq, func(i, j int) bool {
			vi, vj := formula.IsVersioned(seq[i].Name), formula.IsVersioned(seq[j].Name)
			if vi != vj {
				return vi
			}
			return formula.CompareVersions(seq[i].Version, seq[j].Version) < 0
		})
	}
	return order
}

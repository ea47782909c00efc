package dedup

import (
	"math"
	"sort"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
	"github.com/agext/levenshtein"
)

// TODO: lift these onto the lens contract so each vertical can tune its
// own match cascade instead of sharing one hardcoded pair; deferred until
// a second vertical actually needs a different value (see DESIGN.md).
const (
	nameSimilarityThreshold = 0.85
	geoDistanceThresholdM   = 50.0
	earthRadiusM            = 6371000.0
)

var levenshteinParams = levenshtein.NewParams()

type unionFind struct{ parent []int }

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// Group partitions entities into dedup clusters using the three-tier
// cascade: external-ID match, then slug match, then geo+name fuzzy match.
// Each tier can merge clusters the earlier tiers left separate; the
// result is the transitive closure of all three relations.
func Group(entities []model.ExtractedEntity) [][]model.ExtractedEntity {
	uf := newUnionFind(len(entities))

	externalIDIndex := make(map[string]int)
	for i, e := range entities {
		for k, v := range e.ExternalIDs {
			if v == "" {
				continue
			}
			key := k + "\x00" + v
			if j, ok := externalIDIndex[key]; ok {
				uf.union(i, j)
			} else {
				externalIDIndex[key] = i
			}
		}
	}

	slugIndex := make(map[string]int)
	for i, e := range entities {
		name := normalizeName(e.Primitives.EntityName)
		if name == "" {
			continue
		}
		if j, ok := slugIndex[name]; ok {
			uf.union(i, j)
		} else {
			slugIndex[name] = i
		}
	}

	var withCoords []int
	for i, e := range entities {
		if e.Primitives.Latitude != nil && e.Primitives.Longitude != nil {
			withCoords = append(withCoords, i)
		}
	}
	for a := 0; a < len(withCoords); a++ {
		for b := a + 1; b < len(withCoords); b++ {
			i, j := withCoords[a], withCoords[b]
			if uf.find(i) == uf.find(j) {
				continue
			}
			if geoNameFuzzyMatch(entities[i], entities[j]) {
				uf.union(i, j)
			}
		}
	}

	byRoot := make(map[int][]int)
	for i := range entities {
		root := uf.find(i)
		byRoot[root] = append(byRoot[root], i)
	}

	roots := make([]int, 0, len(byRoot))
	for root := range byRoot {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	groups := make([][]model.ExtractedEntity, 0, len(roots))
	for _, root := range roots {
		members := byRoot[root]
		sort.Ints(members)
		group := make([]model.ExtractedEntity, 0, len(members))
		for _, idx := range members {
			group = append(group, entities[idx])
		}
		groups = append(groups, group)
	}
	return groups
}

func geoNameFuzzyMatch(a, b model.ExtractedEntity) bool {
	similarity := levenshtein.Match(normalizeName(a.Primitives.EntityName), normalizeName(b.Primitives.EntityName), levenshteinParams)
	if similarity < nameSimilarityThreshold {
		return false
	}
	return haversineMeters(*a.Primitives.Latitude, *a.Primitives.Longitude, *b.Primitives.Latitude, *b.Primitives.Longitude) <= geoDistanceThresholdM
}

// haversineMeters is a direct formula implementation; no ecosystem
// geo-distance library appears anywhere in the retrieved example pack.
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

package normalizer

import (
	"sort"

	"github.com/mmtuentertainment/apmatch/pkg/models"
)

// DuplicatePair is one detected duplicate: Vendor should fold into Canonical.
type DuplicatePair struct {
	Canonical  *models.Vendor
	Duplicate  *models.Vendor
	Similarity float64
	Details    map[string]float64
}

// Cluster groups vendors whose pairwise similarity meets the threshold and
// returns one pair per duplicate, pointing at the cluster's canonical vendor.
// The oldest vendor in a cluster is canonical.
func Cluster(vendors []*models.Vendor, threshold float64) []DuplicatePair {
	n := len(vendors)
	if n < 2 {
		return nil
	}

	// union-find over vendor indexes
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	type edge struct {
		a, b    int
		score   float64
		details map[string]float64
	}
	var edges []edge

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			score, details := Similarity(identity(vendors[i]), identity(vendors[j]))
			if score >= threshold {
				edges = append(edges, edge{a: i, b: j, score: score, details: details})
				union(i, j)
			}
		}
	}

	if len(edges) == 0 {
		return nil
	}

	// canonical per cluster root: oldest created_at, ID as tiebreaker
	canonical := make(map[int]int)
	for i := 0; i < n; i++ {
		root := find(i)
		current, ok := canonical[root]
		if !ok {
			canonical[root] = i
			continue
		}
		ci, cc := vendors[i], vendors[current]
		if ci.CreatedAt.Before(cc.CreatedAt) ||
			(ci.CreatedAt.Equal(cc.CreatedAt) && ci.ID < cc.ID) {
			canonical[root] = i
		}
	}

	// best edge score per duplicate for reporting
	bestScore := make(map[int]float64)
	bestDetails := make(map[int]map[string]float64)
	for _, e := range edges {
		for _, idx := range []int{e.a, e.b} {
			if e.score > bestScore[idx] {
				bestScore[idx] = e.score
				bestDetails[idx] = e.details
			}
		}
	}

	var pairs []DuplicatePair
	for i := 0; i < n; i++ {
		root := find(i)
		canonIdx := canonical[root]
		if i == canonIdx {
			continue
		}
		if _, touched := bestScore[i]; !touched {
			continue
		}
		pairs = append(pairs, DuplicatePair{
			Canonical:  vendors[canonIdx],
			Duplicate:  vendors[i],
			Similarity: bestScore[i],
			Details:    bestDetails[i],
		})
	}

	sort.Slice(pairs, func(a, b int) bool {
		return pairs[a].Similarity > pairs[b].Similarity
	})

	return pairs
}

func identity(v *models.Vendor) VendorIdentity {
	id := VendorIdentity{Name: v.Name}
	if v.Email != nil {
		id.Email = *v.Email
	}
	if v.Phone != nil {
		id.Phone = *v.Phone
	}
	if v.TaxID != nil {
		id.TaxID = *v.TaxID
	}
	return id
}

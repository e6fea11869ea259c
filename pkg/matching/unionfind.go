package matching

import "github.com/Ramsey-B/sortinghat/pkg/models"

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}

// classes groups identities by root, keeping input order inside and across
// classes.
func (uf *unionFind) classes(identities []models.Identity) [][]models.Identity {
	index := make(map[int]int)
	var out [][]models.Identity
	for i, identity := range identities {
		root := uf.find(i)
		pos, ok := index[root]
		if !ok {
			pos = len(out)
			index[root] = pos
			out = append(out, nil)
		}
		out[pos] = append(out[pos], identity)
	}
	return out
}

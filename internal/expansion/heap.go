package expansion

import "container/heap"

// frontierItem is one entry in the expansion priority queue.
type frontierItem struct {
	cost        float64
	provisionID string
	edgeKind    string
}

// frontier is a min-heap ordered by (cost ascending, provisionID ascending)
// for a stable, deterministic pop order (spec 4.5 "Ordering and tie-breaks").
type frontier []frontierItem

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	if f[i].cost != f[j].cost {
		return f[i].cost < f[j].cost
	}
	return f[i].provisionID < f[j].provisionID
}

func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) {
	*f = append(*f, x.(frontierItem))
}

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	*f = old[:n-1]
	return item
}

var _ heap.Interface = (*frontier)(nil)

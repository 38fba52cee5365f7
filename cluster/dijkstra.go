package cluster

import (
	"container/heap"

	"github.com/nexusai-enterprises/cloudsim/cmn"
)

type pqItem struct {
	id   cmn.NodeID
	dist float64
}

type priorityQueue []pqItem

func (q priorityQueue) Len() int            { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].id < q[j].id // equal cost: lower node ID first, for a deterministic route
}
func (q priorityQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x any)         { *q = append(*q, x.(pqItem)) }
func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// dijkstraNextHop computes, from src over the given (already-online) node
// set using peersOf for live edge weights, a dst -> next-hop table
// representing the shortest path tree rooted at src (spec §4.4 link-state).
func dijkstraNextHop(src cmn.NodeID, ids []cmn.NodeID, peersOf func(cmn.NodeID) map[cmn.NodeID]float64) map[cmn.NodeID]cmn.NodeID {
	const inf = 1e18
	dist := make(map[cmn.NodeID]float64, len(ids))
	nextHop := make(map[cmn.NodeID]cmn.NodeID, len(ids))
	for _, id := range ids {
		dist[id] = inf
	}
	dist[src] = 0

	pq := &priorityQueue{{id: src, dist: 0}}
	heap.Init(pq)
	visited := make(map[cmn.NodeID]bool, len(ids))

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true
		for peer, w := range peersOf(cur.id) {
			if visited[peer] {
				continue
			}
			nd := dist[cur.id] + w
			if nd < dist[peer] {
				dist[peer] = nd
				if cur.id == src {
					nextHop[peer] = peer
				} else {
					nextHop[peer] = nextHop[cur.id]
				}
				heap.Push(pq, pqItem{id: peer, dist: nd})
			}
		}
	}
	return nextHop
}

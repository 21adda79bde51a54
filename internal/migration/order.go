package migration

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"
)

// CycleError is returned when tasks or versions cannot be ordered because
// they wait on each other.
type CycleError struct {
	Kind string
	IDs  []uint
}

func (e *CycleError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("%s cycle between %s", e.Kind, strings.Join(ids, ", "))
}

// OrderTasks orders the recipe so that every task comes after its new
// parent when that parent is migrated too. Inherited parents must already be
// filled in as explicit references. Ties keep ascending id order.
func OrderTasks(recipe Recipe) ([]uint, error) {
	ids := recipe.IDs()
	priority := make(map[uint]int, len(ids))
	for i, id := range ids {
		priority[id] = i
	}

	indegree := make(map[uint]int, len(ids))
	children := map[uint][]uint{}
	for _, id := range ids {
		ref := recipe[id].NewParent
		if ref.ID == nil {
			continue
		}
		if _, migrated := recipe[*ref.ID]; migrated {
			indegree[id]++
			children[*ref.ID] = append(children[*ref.ID], id)
		}
	}

	return kahn(ids, priority, indegree, children, "task")
}

// VersionNode is a version taking part in a migration and the ids of the
// versions it references.
type VersionNode struct {
	ID     uint
	Inputs []uint
}

// OrderVersions orders versions so that referenced versions come strictly
// before the versions referencing them. Inputs outside nodes are ignored and
// unrelated versions keep the order they were given in.
func OrderVersions(nodes []VersionNode) ([]uint, error) {
	inputs := make(map[uint][]uint, len(nodes))
	var ids []uint
	for _, n := range nodes {
		if _, dup := inputs[n.ID]; dup {
			continue
		}
		inputs[n.ID] = n.Inputs
		ids = append(ids, n.ID)
	}

	priority := make(map[uint]int, len(ids))
	for i, id := range ids {
		priority[id] = i
	}
	indegree := make(map[uint]int, len(ids))
	referencedBy := map[uint][]uint{}
	for _, id := range ids {
		seen := map[uint]bool{}
		for _, input := range inputs[id] {
			if _, moving := inputs[input]; !moving || seen[input] {
				continue
			}
			seen[input] = true
			indegree[id]++
			referencedBy[input] = append(referencedBy[input], id)
		}
	}

	return kahn(ids, priority, indegree, referencedBy, "version")
}

// kahn runs Kahn's algorithm, always emitting the ready id with the lowest
// priority.
func kahn(ids []uint, priority map[uint]int, indegree map[uint]int, next map[uint][]uint, kind string) ([]uint, error) {
	ready := &idQueue{priority: priority}
	for _, id := range ids {
		if indegree[id] == 0 {
			heap.Push(ready, id)
		}
	}

	order := make([]uint, 0, len(ids))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(uint)
		order = append(order, id)
		for _, n := range next[id] {
			indegree[n]--
			if indegree[n] == 0 {
				heap.Push(ready, n)
			}
		}
	}

	if len(order) < len(ids) {
		var stuck []uint
		for _, id := range ids {
			if indegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Slice(stuck, func(i, j int) bool { return stuck[i] < stuck[j] })
		return nil, &CycleError{Kind: kind, IDs: stuck}
	}
	return order, nil
}

type idQueue struct {
	ids      []uint
	priority map[uint]int
}

func (q *idQueue) Len() int           { return len(q.ids) }
func (q *idQueue) Less(i, j int) bool { return q.priority[q.ids[i]] < q.priority[q.ids[j]] }
func (q *idQueue) Swap(i, j int)      { q.ids[i], q.ids[j] = q.ids[j], q.ids[i] }
func (q *idQueue) Push(x any)         { q.ids = append(q.ids, x.(uint)) }
func (q *idQueue) Pop() any {
	old := q.ids
	n := len(old)
	id := old[n-1]
	q.ids = old[:n-1]
	return id
}

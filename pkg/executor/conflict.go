package executor

import "sort"

// Conflicts reports whether two tasks may not run concurrently: a write in
// one overlapping a read or a write in the other. Read-read overlap is
// harmless.
func Conflicts(a, b Task) bool {
    if overlap(a.WriteSet, b.WriteSet) { return true }
    if overlap(a.WriteSet, b.ReadSet) { return true }
    return overlap(a.ReadSet, b.WriteSet)
}

func overlap(xs, ys []string) bool {
    if len(xs) == 0 || len(ys) == 0 { return false }
    if len(xs) > len(ys) { xs, ys = ys, xs }
    seen := make(map[string]struct{}, len(xs))
    for _, x := range xs { seen[x] = struct{}{} }
    for _, y := range ys {
        if _, ok := seen[y]; ok { return true }
    }
    return false
}

// partitionLevels greedily groups task indices into conflict-free levels:
// higher-priority tasks are placed first, each into the earliest level
// holding nothing it conflicts with. Levels run sequentially, members of a
// level concurrently; within a level completion order is unspecified.
// The second result is the number of conflict edges in the batch.
func partitionLevels(tasks []Task) ([][]int, int) {
    edges := 0
    for i := 0; i < len(tasks); i++ {
        for j := i + 1; j < len(tasks); j++ {
            if Conflicts(tasks[i], tasks[j]) { edges++ }
        }
    }

    order := make([]int, len(tasks))
    for i := range order { order[i] = i }
    sort.SliceStable(order, func(i, j int) bool {
        return tasks[order[i]].Priority > tasks[order[j]].Priority
    })

    var levels [][]int
    for _, idx := range order {
        placed := false
        for li := range levels {
            fits := true
            for _, other := range levels[li] {
                if Conflicts(tasks[idx], tasks[other]) {
                    fits = false
                    break
                }
            }
            if fits {
                levels[li] = append(levels[li], idx)
                placed = true
                break
            }
        }
        if !placed { levels = append(levels, []int{idx}) }
    }
    return levels, edges
}

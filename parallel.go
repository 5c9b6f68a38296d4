package treecorr

import (
	"golang.org/x/sync/errgroup"
)

// runPartitioned runs tasks 0..numTasks-1 and accumulates their results into
// target. Tasks are split into contiguous ranges, one per worker, and each
// worker owns a private zeroed copy of target for its whole range. Once every
// worker is done the copies are added into target in worker order and
// released, so target is only ever written by the calling goroutine.
//
// If workers <= 1 (or there is a single task) the tasks run in order
// directly into target.
func runPartitioned(target *Accumulator, numTasks, workers int, run func(acc *Accumulator, task int)) error {
	if numTasks <= 0 {
		return nil
	}
	if workers <= 1 || numTasks == 1 {
		for i := 0; i < numTasks; i++ {
			run(target, i)
		}
		return nil
	}

	workers = min(workers, numTasks)
	tasksPerWorker := (numTasks + workers - 1) / workers

	partial := make([]*Accumulator, 0, workers)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		start := w * tasksPerWorker
		if start >= numTasks {
			break
		}
		end := min(start+tasksPerWorker, numTasks)

		acc := target.CloneEmpty()
		partial = append(partial, acc)
		g.Go(func() error {
			for i := start; i < end; i++ {
				run(acc, i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, acc := range partial {
		if err := target.Add(acc); err != nil {
			return err
		}
		acc.Release()
	}
	return nil
}

// pairTasks lists the top-level cell pairs of an auto-correlation: every
// cell with itself and every unordered pair of distinct cells.
func pairTasks(m int) [][2]int {
	tasks := make([][2]int, 0, m*(m+1)/2)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			tasks = append(tasks, [2]int{i, j})
		}
	}
	return tasks
}

// tripleTasks lists the top-level work of a triangle auto-correlation:
// each cell alone, each ordered pair of distinct cells (two vertices in the
// first, one in the second) and each unordered triple of distinct cells.
// The third index is -1 for single cells and pairs.
func tripleTasks(m int) [][3]int {
	tasks := make([][3]int, 0, m*m+m*(m-1)*(m-2)/6)
	for i := 0; i < m; i++ {
		tasks = append(tasks, [3]int{i, -1, -1})
	}
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			if i != j {
				tasks = append(tasks, [3]int{i, j, -1})
			}
		}
	}
	for i := 0; i < m; i++ {
		for j := i + 1; j < m; j++ {
			for k := j + 1; k < m; k++ {
				tasks = append(tasks, [3]int{i, j, k})
			}
		}
	}
	return tasks
}

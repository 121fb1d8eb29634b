package flow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/flowgrid/scriptlet"
)

// Two runs of the same graph with the same input must execute the same nodes
// in the same order and produce the same final value.
func TestScheduler_DeterministicRuns(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		chainLen := rapid.IntRange(1, 6).Draw(rt, "chainLen")
		increments := make([]int, chainLen)
		for i := range increments {
			increments[i] = rapid.IntRange(-10, 10).Draw(rt, fmt.Sprintf("inc%d", i))
		}
		seed := rapid.IntRange(-100, 100).Draw(rt, "seed")

		registry := NewBuiltinRegistry(scriptlet.New(zap.NewNop()), nil, zap.NewNop())
		builder := NewGraphBuilder("wf-prop", "deterministic").
			AddNode("entry", NodeTypeTrigger, nil).
			SetEntry("entry")
		prev := "entry"
		for i, inc := range increments {
			id := fmt.Sprintf("fn%d", i)
			builder.AddNode(id, NodeTypeFunction, map[string]any{
				"code": fmt.Sprintf("return data + %d", inc),
			})
			builder.Connect(prev, id)
			prev = id
		}
		graph := builder.Build()

		sched := NewScheduler(registry, zap.NewNop())
		now := time.Now()

		first, err := sched.Run(context.Background(), graph, NewEnvelope(seed, now, now), RunOptions{})
		if err != nil {
			rt.Fatalf("first run failed: %v", err)
		}
		second, err := sched.Run(context.Background(), graph, NewEnvelope(seed, now, now), RunOptions{})
		if err != nil {
			rt.Fatalf("second run failed: %v", err)
		}

		if first.Status != RunStatusCompleted || second.Status != RunStatusCompleted {
			rt.Fatalf("unexpected statuses %s / %s", first.Status, second.Status)
		}

		firstOrder := first.ExecutedNodes()
		secondOrder := second.ExecutedNodes()
		if len(firstOrder) != len(secondOrder) {
			rt.Fatalf("execution counts differ: %v vs %v", firstOrder, secondOrder)
		}
		for i := range firstOrder {
			if firstOrder[i] != secondOrder[i] {
				rt.Fatalf("execution order differs at %d: %v vs %v", i, firstOrder, secondOrder)
			}
		}

		want := float64(seed)
		for _, inc := range increments {
			want += float64(inc)
		}
		if got := first.FinalOutput().First(); got != want {
			rt.Fatalf("final output %v, want %v", got, want)
		}
		if got := second.FinalOutput().First(); got != want {
			rt.Fatalf("second final output %v, want %v", got, want)
		}
	})
}

// Sequential and parallel scheduling must agree on the set of executed nodes
// and the final status for fan-out/fan-in shapes.
func TestScheduler_ParallelMatchesSequential(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		width := rapid.IntRange(1, 5).Draw(rt, "width")

		registry := NewBuiltinRegistry(scriptlet.New(zap.NewNop()), nil, zap.NewNop())
		builder := NewGraphBuilder("wf-fan", "fan").
			AddNode("entry", NodeTypeTrigger, nil).
			AddNode("join", NodeTypeFunction, map[string]any{"code": "return #inputs.main"}).
			SetEntry("entry")
		for i := 0; i < width; i++ {
			id := fmt.Sprintf("branch%d", i)
			builder.AddNode(id, NodeTypeFunction, map[string]any{"code": "return data"})
			builder.Connect("entry", id)
			builder.Connect(id, "join")
		}
		graph := builder.Build()
		now := time.Now()

		seq, err := NewScheduler(registry, zap.NewNop()).
			Run(context.Background(), graph, NewEnvelope(1, now, now), RunOptions{})
		if err != nil {
			rt.Fatalf("sequential run failed: %v", err)
		}
		par, err := NewScheduler(registry, zap.NewNop(), WithParallelBranches()).
			Run(context.Background(), graph, NewEnvelope(1, now, now), RunOptions{})
		if err != nil {
			rt.Fatalf("parallel run failed: %v", err)
		}

		if seq.Status != par.Status {
			rt.Fatalf("status mismatch: %s vs %s", seq.Status, par.Status)
		}
		seqNodes := seq.ExecutedNodes()
		parNodes := par.ExecutedNodes()
		if len(seqNodes) != len(parNodes) {
			rt.Fatalf("executed sets differ in size: %v vs %v", seqNodes, parNodes)
		}

		// The join counts the items merged onto its main port: one per branch.
		if got := seq.FinalOutput().First(); got != float64(width) {
			rt.Fatalf("join saw %v items, want %d", got, width)
		}
		if got := par.FinalOutput().First(); got != float64(width) {
			rt.Fatalf("parallel join saw %v items, want %d", got, width)
		}
	})
}

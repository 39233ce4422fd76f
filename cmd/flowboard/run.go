package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/soochol/flowboard/internal/flow"
	"github.com/soochol/flowboard/internal/graph"
)

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <workflow-id>",
		Short: "Save, run and follow a workflow until it settles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := a.session(ctx, id)
			if err != nil {
				return err
			}
			defer s.Close()

			watchCtx, stopWatch := context.WithCancel(ctx)
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				watchNodes(watchCtx, s.Model(), a.stdout)
			}()
			defer func() {
				stopWatch()
				wg.Wait()
			}()

			execID, err := s.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Execution %d started\n", execID)

			res, err := s.Wait(ctx)
			if err != nil {
				return err
			}
			// Let the watcher print the final snapshot before reporting.
			stopWatch()
			wg.Wait()

			if res.Status == flow.ExecutionFailed {
				return fmt.Errorf("execution %d failed", res.ExecutionID)
			}
			if res.Status != flow.ExecutionCompleted {
				return errors.New("execution did not complete")
			}
			fmt.Fprintf(a.stdout, "Execution %d completed\n", res.ExecutionID)
			return nil
		},
	}
}

// watchNodes prints a line whenever a node's status changes. On
// cancellation it prints any change still pending in the latest snapshot.
func watchNodes(ctx context.Context, m *graph.Model, w io.Writer) {
	last := make(map[string]flow.NodeStatus)
	for {
		snap, changed := m.Subscribe()
		printTransitions(w, snap, last)
		select {
		case <-changed:
		case <-ctx.Done():
			printTransitions(w, m.Snapshot(), last)
			return
		}
	}
}

func printTransitions(w io.Writer, snap *graph.Snapshot, last map[string]flow.NodeStatus) {
	for _, n := range snap.Nodes() {
		status := n.Data.Status
		if prev, seen := last[n.ID]; seen && prev == status {
			continue
		}
		last[n.ID] = status
		switch {
		case status == flow.NodeStatusCompleted && n.Data.Output != nil:
			fmt.Fprintf(w, "  %-14s %-9s %v\n", n.ID, status, n.Data.Output)
		case status == flow.NodeStatusFailed || n.Data.Error != "":
			fmt.Fprintf(w, "  %-14s %-9s %s\n", n.ID, status, n.Data.Error)
		default:
			fmt.Fprintf(w, "  %-14s %s\n", n.ID, status)
		}
	}
}

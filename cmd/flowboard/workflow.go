package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soochol/flowboard/internal/flow"
	"github.com/soochol/flowboard/internal/persist"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid workflow id %q", s)
	}
	return id, nil
}

func (a *app) listCmd() *cobra.Command {
	var withRuns bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			ctx := cmd.Context()
			wfs, err := persist.NewClient(a.client).List(ctx)
			if err != nil {
				return err
			}

			latest := make(map[int64]*flow.ExecutionRecord, len(wfs))
			if withRuns {
				var mu sync.Mutex
				g, gctx := errgroup.WithContext(ctx)
				g.SetLimit(4)
				for _, wf := range wfs {
					g.Go(func() error {
						runs, err := a.client.ListExecutions(gctx, wf.ID)
						if err != nil {
							return fmt.Errorf("workflow %d: %w", wf.ID, err)
						}
						if len(runs) > 0 {
							mu.Lock()
							latest[wf.ID] = &runs[0]
							mu.Unlock()
						}
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return err
				}
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			if withRuns {
				fmt.Fprintln(tw, "ID\tNAME\tNODES\tLAST RUN\tSTATUS")
			} else {
				fmt.Fprintln(tw, "ID\tNAME\tNODES")
			}
			for _, wf := range wfs {
				if !withRuns {
					fmt.Fprintf(tw, "%d\t%s\t%d\n", wf.ID, wf.Name, len(wf.Nodes))
					continue
				}
				last, status := "-", "-"
				if r := latest[wf.ID]; r != nil {
					last, status = strconv.FormatInt(r.ID, 10), string(r.Status)
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", wf.ID, wf.Name, len(wf.Nodes), last, status)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&withRuns, "runs", false, "include the latest execution of each workflow")
	return cmd
}

func (a *app) createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			doc, err := persist.NewClient(a.client).Create(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Created workflow %d (%s)\n", doc.ID, doc.Name)
			return nil
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a workflow's nodes and edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := a.session(cmd.Context(), id)
			if err != nil {
				return err
			}
			defer s.Close()
			doc := s.Document()

			if asJSON {
				w, err := persist.ToWrite(doc)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(w)
			}

			fmt.Fprintf(a.stdout, "Workflow %d: %s\n\n", doc.ID, doc.Name)
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NODE\tTYPE\tLABEL\tPOSITION\tSTATUS")
			for _, n := range doc.Nodes {
				fmt.Fprintf(tw, "%s\t%s\t%s\t(%g, %g)\t%s\n", n.ID, n.Type, n.Data.Label, n.Position.X, n.Position.Y, n.Data.Status)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(doc.Edges) > 0 {
				fmt.Fprintln(a.stdout)
				for _, e := range doc.Edges {
					fmt.Fprintf(a.stdout, "%s -> %s\t(%s)\n", e.Source, e.Target, e.ID)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stored representation")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.requireLogin(); err != nil {
				return err
			}
			if err := a.client.DeleteWorkflow(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted workflow %d\n", id)
			return nil
		},
	}
}

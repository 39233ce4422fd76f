package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/soochol/flowboard/internal/editor"
	"github.com/soochol/flowboard/internal/flow"
	"github.com/soochol/flowboard/internal/graph"
)

// edit opens workflow rawID, applies fn and saves the result.
func (a *app) edit(ctx context.Context, rawID string, fn func(*editor.Session) error) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	s, err := a.session(ctx, id)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := fn(s); err != nil {
		return err
	}
	return s.Save(ctx)
}

func (a *app) addNodeCmd() *cobra.Command {
	var (
		ev graph.DropEvent
		vp = graph.Viewport{Zoom: 1}
	)
	cmd := &cobra.Command{
		Use:   "add-node <workflow-id>",
		Short: "Drop a new node onto the canvas",
		Long: "Drop a new node of --type at screen point (--x, --y). The point is\n" +
			"projected through the viewport given by --pan-x, --pan-y and --zoom.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !flow.NodeType(ev.Type).Known() {
				return fmt.Errorf("unknown node type %q, want one of %v", ev.Type, flow.NodeTypes)
			}
			return a.edit(cmd.Context(), args[0], func(s *editor.Session) error {
				n, err := s.Drop(ev, vp)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Added %s node %s at (%g, %g)\n", n.Type, n.ID, n.Position.X, n.Position.Y)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ev.Type, "type", string(flow.NodeTypeDefault), "node type")
	cmd.Flags().StringVar(&ev.Label, "label", "", "node label (default \"<type> node\")")
	cmd.Flags().Float64Var(&ev.ClientX, "x", 0, "screen x")
	cmd.Flags().Float64Var(&ev.ClientY, "y", 0, "screen y")
	cmd.Flags().Float64Var(&vp.Zoom, "zoom", 1, "viewport zoom")
	cmd.Flags().Float64Var(&vp.X, "pan-x", 0, "viewport pan x")
	cmd.Flags().Float64Var(&vp.Y, "pan-y", 0, "viewport pan y")
	return cmd
}

func (a *app) connectCmd() *cobra.Command {
	var c graph.Connection
	cmd := &cobra.Command{
		Use:   "connect <workflow-id> <source> <target>",
		Short: "Connect two nodes",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.Source, c.Target = args[1], args[2]
			return a.edit(cmd.Context(), args[0], func(s *editor.Session) error {
				snap := s.Model().Snapshot()
				for _, id := range []string{c.Source, c.Target} {
					if !snap.Has(id) {
						slog.Warn("connecting unknown node", "node", id)
					}
				}
				e, err := s.Connect(c)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Connected %s -> %s (%s)\n", e.Source, e.Target, e.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&c.SourceHandle, "source-handle", "", "source port")
	cmd.Flags().StringVar(&c.TargetHandle, "target-handle", "", "target port")
	return cmd
}

func (a *app) editNodeCmd() *cobra.Command {
	var label, text, prompt string
	cmd := &cobra.Command{
		Use:   "edit-node <workflow-id> <node-id>",
		Short: "Change a node's label, input text or prompt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p flow.NodePatch
			if cmd.Flags().Changed("label") {
				p.Label = &label
			}
			if cmd.Flags().Changed("text") {
				p.Text = &text
			}
			if cmd.Flags().Changed("prompt") {
				p.Prompt = &prompt
			}
			if p.Empty() {
				return errors.New("nothing to change: pass --label, --text or --prompt")
			}
			return a.edit(cmd.Context(), args[0], func(s *editor.Session) error {
				if err := s.Select(args[1]); err != nil {
					return fmt.Errorf("node %s: %w", args[1], err)
				}
				if err := s.Edit(p); err != nil {
					return err
				}
				n, _ := s.Selected()
				fmt.Fprintf(a.stdout, "Updated %s (%s)\n", n.ID, n.Data.Label)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "new label")
	cmd.Flags().StringVar(&text, "text", "", "new input text (text_input nodes)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "new prompt template (prompt nodes)")
	return cmd
}

func (a *app) removeNodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-node <workflow-id> <node-id>",
		Short: "Remove a node and its edges",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(cmd.Context(), args[0], func(s *editor.Session) error {
				if err := s.RemoveNode(args[1]); err != nil {
					return fmt.Errorf("node %s: %w", args[1], err)
				}
				fmt.Fprintf(a.stdout, "Removed %s\n", args[1])
				return nil
			})
		},
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okian/faceid/internal/adapters/registry"
)

// coverageReader reports how many active identities carry an encoding.
type coverageReader interface {
	Coverage(ctx context.Context) (registry.Coverage, error)
}

func newStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show how many active identities have a stored face encoding",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), e.source, cmd.OutOrStdout())
		},
	}
}

func runStatus(ctx context.Context, src coverageReader, out io.Writer) error {
	c, err := src.Coverage(ctx)
	if err != nil {
		return fmt.Errorf("read coverage: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ACTIVE\tWITH ENCODING\tWITHOUT ENCODING")
	fmt.Fprintf(w, "%d\t%d\t%d\n", c.Active, c.WithEncoding, c.WithoutEncoding())
	if err := w.Flush(); err != nil {
		return err
	}

	if len(c.Missing) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tIMAGE")
	fmt.Fprintln(w, "--\t----\t-----")
	for _, r := range c.Missing {
		image := r.ImageRef
		if image == "" {
			image = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.DisplayName, image)
	}
	return w.Flush()
}

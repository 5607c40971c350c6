package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fleetmedic/fleetmedic/internal/catalog"
)

func newActionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List the action catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCATEGORY\tELEVATED\tREMOTE\tPARAMS\tNAME")
			for _, a := range catalog.Builtin().All() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					a.ID, a.Category, yesNo(a.RequiresElevation), yesNo(a.SupportsRemote),
					paramList(a.Params), a.Name)
			}
			return w.Flush()
		},
	}
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func paramList(params []catalog.Param) string {
	if len(params) == 0 {
		return "-"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		if p.Required {
			parts[i] = p.Name + "*"
		} else {
			parts[i] = p.Name
		}
	}
	return strings.Join(parts, ",")
}

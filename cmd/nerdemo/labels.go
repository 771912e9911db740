package main

import (
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"nerdemo/internal/labels"
)

func newLabelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "Show the label table and which tags are excluded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"ID", "Tag", "Shown"})
			table.SetAutoFormatHeaders(false)
			for id, tag := range labels.Tags() {
				shown := "yes"
				if lo.Contains(a.cfg.Annotator.ExcludeTags, tag) {
					shown = "no"
				}
				table.Append([]string{strconv.Itoa(id), tag, shown})
			}
			table.Render()
			return nil
		},
	}
}

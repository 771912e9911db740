package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nerdemo/internal/annotate"
)

func newAnnotateCmd(a *app) *cobra.Command {
	var (
		asJSON  bool
		exclude []string
	)
	cmd := &cobra.Command{
		Use:   "annotate [text]",
		Short: "Recognize entities in text",
		Long: `Recognize entities in text given as arguments, or read from stdin when no
arguments are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				in := cmd.InOrStdin()
				if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
					return fmt.Errorf("no text given: pass it as arguments or pipe it on stdin")
				}
				raw, err := io.ReadAll(in)
				if err != nil {
					return err
				}
				text = string(raw)
			}
			if cmd.Flags().Changed("exclude") {
				a.cfg.Annotator.ExcludeTags = exclude
			}

			inf, cleanup, err := newInferencer(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer cleanup()
			ann, err := buildAnnotator(a.cfg, inf, a.logger)
			if err != nil {
				return err
			}

			entities, err := ann.AnnotateFrom(cmd.Context(), "cli", text)
			if err != nil {
				return err
			}
			if asJSON {
				if entities == nil {
					entities = []annotate.Annotation{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entities)
			}
			renderEntities(cmd.OutOrStdout(), entities)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entities as JSON")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "tags to drop (overrides annotator.exclude_tags)")
	return cmd
}

func renderEntities(w io.Writer, entities []annotate.Annotation) {
	if len(entities) == 0 {
		fmt.Fprintln(w, "No entities found")
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Entity", "Type", "Confidence", "Span"})
	table.SetAutoFormatHeaders(false)
	for _, e := range entities {
		table.Append([]string{e.Word, e.Tag, fmt.Sprintf("%.4f", e.Score), fmt.Sprintf("%d-%d", e.Start, e.End)})
	}
	table.Render()
}

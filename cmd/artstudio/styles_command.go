package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"artstudio/internal/api"
)

func newStylesCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "styles",
		Short: "List the preset styles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, api.StylesResponse{Default: cfg.Studio.DefaultStyle, Styles: cfg.Studio.Styles})
			}
			rows := make([][]string, 0, len(cfg.Studio.Styles))
			for _, style := range cfg.Studio.Styles {
				marker := ""
				if style == cfg.Studio.DefaultStyle {
					marker = "*"
				}
				rows = append(rows, []string{style, marker})
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderTable([]column{{Header: "Style"}, {Header: "Default"}}, rows))
			fmt.Fprintln(out, "Any other text works too: artstudio stylize photo.jpg --style \"charcoal sketch\"")
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recipes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		coll, err := application.Recipes(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Recipes (%d of %d)", len(coll.Recipes), coll.Total)))
		for _, r := range coll.Recipes {
			fmt.Fprintf(out, "%s%s  %s\n",
				idStyle.Render(fmt.Sprintf("#%d", r.ID)),
				nameStyle.Render(r.Name),
				metaStyle.Render(fmt.Sprintf("%s · %s · %d min", r.Cuisine, r.Difficulty, r.TotalTimeMinutes())),
			)
		}
		return nil
	},
}

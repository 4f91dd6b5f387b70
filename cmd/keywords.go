package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/aozora-lab/poster-cli/internal/rotation"
	"github.com/aozora-lab/poster-cli/internal/store"
)

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Manage the keyword rotation pool",
}

func withSelector(cmd *cobra.Command, fn func(*rotation.Selector, store.Store) error) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate store")
	}

	sel := rotation.New(st, true)
	if err := sel.Load(ctx); err != nil {
		return err
	}
	return fn(sel, st)
}

var keywordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keywords with rotation state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSelector(cmd, func(sel *rotation.Selector, _ store.Store) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEYWORD\tENABLED\tLAST PROCESSED\tLAST RESULT")
			for _, kw := range sel.Keywords() {
				last := "-"
				if kw.LastProcessedAt != nil {
					last = kw.LastProcessedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", kw.Text, kw.Enabled, last, kw.LastResult)
			}
			return w.Flush()
		})
	},
}

var keywordsAddCmd = &cobra.Command{
	Use:   "add <keyword>",
	Short: "Add a keyword to the rotation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSelector(cmd, func(sel *rotation.Selector, _ store.Store) error {
			return sel.Add(cmd.Context(), args[0])
		})
	},
}

var keywordsEnableCmd = &cobra.Command{
	Use:   "enable <keyword>",
	Short: "Enable a keyword",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSelector(cmd, func(sel *rotation.Selector, _ store.Store) error {
			return sel.SetEnabled(cmd.Context(), args[0], true)
		})
	},
}

var keywordsDisableCmd = &cobra.Command{
	Use:   "disable <keyword>",
	Short: "Disable a keyword without removing its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSelector(cmd, func(sel *rotation.Selector, _ store.Store) error {
			return sel.SetEnabled(cmd.Context(), args[0], false)
		})
	},
}

func init() {
	keywordsCmd.AddCommand(keywordsListCmd, keywordsAddCmd, keywordsEnableCmd, keywordsDisableCmd)
	rootCmd.AddCommand(keywordsCmd)
}

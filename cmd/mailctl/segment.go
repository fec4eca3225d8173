package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ignite/mailcraft/internal/segmentation"
)

func segmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segment",
		Short: "Work with segment rule files",
	}
	cmd.AddCommand(segmentValidateCmd())
	return cmd
}

func segmentValidateCmd() *cobra.Command {
	var showSQL bool
	cmd := &cobra.Command{
		Use:   "validate <rules.json|->",
		Short: "Check a rule tree and optionally print the compiled SQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var g segmentation.Group
			if err := json.NewDecoder(r).Decode(&g); err != nil {
				return fmt.Errorf("parse rules: %w", err)
			}
			if problems := segmentation.ValidateConditions(g); len(problems) > 0 {
				return fmt.Errorf("invalid rules:\n  %s", strings.Join(problems, "\n  "))
			}
			if _, err := segmentation.Compile(g); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ok (hash %s)\n", segmentation.HashRules(g))
			if showSQL {
				where, params, err := segmentation.NewQueryBuilder("<brand>").BuildWhere(g)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "WHERE %s\n", where)
				for i, p := range params {
					fmt.Fprintf(out, "  $%d = %v\n", i+1, p)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSQL, "sql", false, "print the WHERE clause and bind parameters")
	return cmd
}

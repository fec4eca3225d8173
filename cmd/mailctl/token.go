package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/tracking"
)

func tokenCmd(load loadFunc) *cobra.Command {
	var (
		scope  string
		step   int
		target string
	)
	cmd := &cobra.Command{
		Use:   "token <scope-id> <recipient-id> <email>",
		Short: "Print the signed tracking links for one recipient",
		Long: `Print the token and the open, click and unsubscribe URLs that a
message to email would carry. Useful for checking a link a recipient
reports as broken.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ref := tracking.Ref{Scope: domain.Scope(scope), ScopeID: args[0], RecipientID: args[1], Step: step}
			if !ref.Scope.Valid() {
				return fmt.Errorf("unknown scope %q", scope)
			}
			signer := tracking.NewSigner(cfg.Tracking.Secret)
			links := tracking.NewLinks(cfg.Tracking.BaseURL, signer)
			email := args[2]

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "token:       %s\n", signer.Token(ref.Scope, ref.ScopeID, ref.RecipientID, email))
			fmt.Fprintf(out, "open:        %s\n", links.OpenURL(ref, email))
			if target != "" {
				fmt.Fprintf(out, "click:       %s\n", links.ClickURL(ref, email, target))
			}
			fmt.Fprintf(out, "unsubscribe: %s\n", links.UnsubscribeURL(ref, email))
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", string(domain.ScopeSequence), "sequence or campaign")
	cmd.Flags().IntVar(&step, "step", 0, "sequence step index")
	cmd.Flags().StringVar(&target, "target", "", "also print a click link to this URL")
	return cmd
}

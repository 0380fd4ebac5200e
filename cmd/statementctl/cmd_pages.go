package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/financialstatementflow/internal/classifier"
)

var selectPagesCmd = &cobra.Command{
	Use:   "select-pages <document-id>",
	Short: "Show which pages would be used to read the company identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.Store.Get(ctx, args[0])
		if err != nil {
			return err
		}
		sel := classifier.SelectCompanyPages(doc.Pages)

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "rule %d, %d page(s) selected\n", sel.Rule, len(sel.Pages))
		for _, p := range sel.Pages {
			bucket := "-"
			if b, ok := classifier.Classify(p.Recognized); ok {
				bucket = b.String()
			}
			fmt.Fprintf(w, "  page %3d  %-6s  %s\n", p.Number, bucket, p.ImagePath)
		}
		return nil
	},
}

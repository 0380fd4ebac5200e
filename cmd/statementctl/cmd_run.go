package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
	"github.com/Lllllllleong/financialstatementflow/internal/services"
)

var processCmd = &cobra.Command{
	Use:   "process <file.pdf>",
	Short: "Upload a PDF and run every stage on it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		return execute(cmd, services.Task{
			Operation: models.OperationCompleteProcess,
			Filename:  filepath.Base(args[0]),
			RawBytes:  data,
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run <operation> <document-id>",
	Short: "Re-run an operation on a stored document",
	Long: "Operations: " + models.OperationRecognizeExtract + ", " + models.OperationExtract + ", " +
		models.OperationValidate + ".",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, services.Task{Operation: args[0], DocumentID: args[1]})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <document-id>",
	Short: "Run the accounting checks on a stored document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, services.Task{Operation: models.OperationValidate, DocumentID: args[0]})
	},
}

// execute runs task to completion and prints the stored document.
func execute(cmd *cobra.Command, task services.Task) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", services.DescribeOperation(task.Operation))
	st, runErr := runTask(ctx, a, task)
	if st.DocumentID == "" {
		return runErr
	}

	doc, err := a.Store.Get(ctx, st.DocumentID)
	if err != nil {
		return err
	}
	out := struct {
		ID         string                 `json:"id"`
		Status     string                 `json:"status"`
		PageCount  int                    `json:"page_count"`
		Company    *models.CompanyInfo    `json:"company_info,omitempty"`
		Validation *models.Validation     `json:"validation,omitempty"`
		Timing     *models.ProcessingTime `json:"processing_time,omitempty"`
		Error      string                 `json:"error_message,omitempty"`
	}{st.DocumentID, doc.Status, doc.PageCount, doc.CompanyInfo, doc.Validation, doc.ProcessingTime, doc.ErrorMessage}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	return runErr
}

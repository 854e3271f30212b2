package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/graph/store"
	"github.com/dshills/lexgraph/legal"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a document and run it until it needs review",
	Example: `  lexgraph submit --type new_contract_request --request "Mutual NDA with Acme"
  lexgraph submit --file supply-agreement.txt --risk high`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workID, _ := cmd.Flags().GetString("id")
		docType, _ := cmd.Flags().GetString("type")
		file, _ := cmd.Flags().GetString("file")
		request, _ := cmd.Flags().GetString("request")
		risk, _ := cmd.Flags().GetString("risk")

		if workID == "" {
			workID = uuid.NewString()
		}
		input := map[string]any{}
		if docType != "" {
			input[legal.KeyDocumentType] = docType
		}
		if request != "" {
			input[legal.KeyRequest] = request
		}
		if risk != "" {
			input[legal.KeyRiskLevel] = risk
		}
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			input[legal.KeyDocument] = string(data)
		}
		if len(input) == 0 {
			return fmt.Errorf("nothing to submit: set --type, --request or --file")
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			st, err := a.svc.Submit(ctx, workID, input)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		})
	},
}

var decideCmd = &cobra.Command{
	Use:   "decide <work-id> <decision>",
	Short: "Resume suspended work with a review decision",
	Long: `Resumes suspended work. decision is one of approved, rejected,
negotiate or request_changes. With --token the work is located by its
suspension token and <work-id> may be "-".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		comments, _ := cmd.Flags().GetString("comments")
		hasChanges, _ := cmd.Flags().GetBool("has-changes")
		reviewer, _ := cmd.Flags().GetString("reviewer")

		decision := map[string]any{
			legal.KeyDecision:   args[1],
			legal.KeyHasChanges: hasChanges,
		}
		if comments != "" {
			decision[legal.KeyComments] = comments
		}
		if reviewer != "" {
			decision[legal.KeyReviewer] = reviewer
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			var (
				st  *graph.WorkflowState
				err error
			)
			if token != "" {
				st, err = a.svc.ResumeByToken(ctx, token, decision)
			} else {
				st, err = a.svc.Resume(ctx, args[0], decision)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <work-id>",
	Short: "Print the stored state of a work unit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			st, err := a.svc.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if path, _ := cmd.Flags().GetBool("path"); path {
				for _, node := range graph.Path(st) {
					fmt.Fprintln(cmd.OutOrStdout(), node)
				}
				return nil
			}
			return printJSON(cmd.OutOrStdout(), st)
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored work, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			items, err := a.svc.List(ctx, store.ListOptions{Status: graph.Status(status), Limit: limit})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, it := range items {
				fmt.Fprintf(w, "%-36s  %-9s  %-14s  v%d  %s\n",
					it.WorkID, it.Status, it.CurrentNode, it.Version, it.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		})
	},
}

func init() {
	submitCmd.Flags().String("id", "", "Work ID (default: random UUID)")
	submitCmd.Flags().StringP("type", "t", "", "Document type: new_contract_request, contract_analysis or objection_document")
	submitCmd.Flags().StringP("file", "f", "", "File holding the document text")
	submitCmd.Flags().StringP("request", "r", "", "Drafting request for new contracts")
	submitCmd.Flags().String("risk", "", "Risk level: low, medium, high or critical")

	decideCmd.Flags().String("token", "", "Suspension token to resume")
	decideCmd.Flags().StringP("comments", "c", "", "Reviewer comments")
	decideCmd.Flags().Bool("has-changes", false, "Approved with edits; runs the version diff before export")
	decideCmd.Flags().String("reviewer", "", "Reviewer name")

	showCmd.Flags().Bool("path", false, "Print only the nodes executed so far")

	listCmd.Flags().String("status", "", "Filter by status: active, suspended, completed or failed")
	listCmd.Flags().Int("limit", 0, "Maximum number of results")

	rootCmd.AddCommand(submitCmd, decideCmd, showCmd, listCmd)
}

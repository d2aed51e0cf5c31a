// sentinelctl is the operator CLI for the sentinel engine: ingest signals,
// trigger detection, review pending actions, and inspect incidents.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

func main() {
	root := &cobra.Command{
		Use:           "sentinelctl",
		Short:         "Operator CLI for the migration sentinel engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "engine base URL")

	root.AddCommand(
		ingestCmd(),
		detectCmd(),
		actionsCmd(),
		incidentsCmd(),
		auditCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sentinelctl:", err)
		os.Exit(1)
	}
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <signals.json>",
		Short: "Ingest a batch of raw signals from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var signals []json.RawMessage
			if err := json.Unmarshal(data, &signals); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			var out map[string]any
			if err := newClient(serverURL).post("/api/v1/signals/ingest",
				map[string]any{"signals": signals}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Trigger one detection cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := newClient(serverURL).post("/api/v1/detect/run", map[string]any{}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func actionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Inspect and review candidate actions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "List actions awaiting review, highest confidence first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := newClient(serverURL).get("/api/v1/actions/pending", &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <action-id>",
		Short: "Fetch one action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := newClient(serverURL).get("/api/v1/actions/"+args[0], &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	})

	var reviewer, feedback string
	var confirmFinal bool
	approve := &cobra.Command{
		Use:   "approve <action-id>",
		Short: "Approve an action (executes unless a final gate remains)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return review(args[0], true, reviewer, feedback, confirmFinal)
		},
	}
	approve.Flags().StringVar(&reviewer, "reviewer", "", "reviewer name (required)")
	approve.Flags().StringVar(&feedback, "feedback", "", "optional review note")
	approve.Flags().BoolVar(&confirmFinal, "confirm-final", false, "pass the second confirmation gate")
	approve.MarkFlagRequired("reviewer")
	cmd.AddCommand(approve)

	var rejectReviewer, rejectFeedback string
	reject := &cobra.Command{
		Use:   "reject <action-id>",
		Short: "Reject a pending action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return review(args[0], false, rejectReviewer, rejectFeedback, false)
		},
	}
	reject.Flags().StringVar(&rejectReviewer, "reviewer", "", "reviewer name (required)")
	reject.Flags().StringVar(&rejectFeedback, "feedback", "", "optional review note")
	reject.MarkFlagRequired("reviewer")
	cmd.AddCommand(reject)

	return cmd
}

func review(actionID string, approved bool, reviewer, feedback string, confirmFinal bool) error {
	body := map[string]any{
		"action_id":     actionID,
		"approved":      approved,
		"reviewer":      reviewer,
		"feedback":      feedback,
		"confirm_final": confirmFinal,
	}
	var out map[string]any
	if err := newClient(serverURL).post("/api/v1/actions/approve", body, &out); err != nil {
		return err
	}
	return printJSON(out)
}

func incidentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "incidents",
		Short: "Inspect incidents and submit feedback",
	}

	var limit int
	var minConfidence float64
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent incidents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/v1/incidents?limit=%d&min_confidence=%g", limit, minConfidence)
			var out map[string]any
			if err := newClient(serverURL).get(path, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum incidents to return")
	list.Flags().Float64Var(&minConfidence, "min-confidence", 0, "minimum confidence filter")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <incident-id>",
		Short: "Fetch one incident with its feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := newClient(serverURL).get("/api/v1/incidents/"+args[0], &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "patterns",
		Short: "Show recurring root causes across recent incidents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := newClient(serverURL).get("/api/v1/incidents/patterns", &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	})

	var fbType, correctedCause, reviewer, notes string
	feedback := &cobra.Command{
		Use:   "feedback <incident-id>",
		Short: "Attach reviewer feedback to an incident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"feedback_type":   fbType,
				"corrected_cause": correctedCause,
				"reviewer":        reviewer,
				"notes":           notes,
			}
			var out map[string]any
			if err := newClient(serverURL).post("/api/v1/incidents/"+args[0]+"/feedback", body, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	feedback.Flags().StringVar(&fbType, "type", "", "correct, wrong_cause, or partial (required)")
	feedback.Flags().StringVar(&correctedCause, "corrected-cause", "", "the actual cause, when type is wrong_cause")
	feedback.Flags().StringVar(&reviewer, "reviewer", "", "reviewer name (required)")
	feedback.Flags().StringVar(&notes, "notes", "", "free-form notes")
	feedback.MarkFlagRequired("type")
	feedback.MarkFlagRequired("reviewer")
	cmd.AddCommand(feedback)

	return cmd
}

func auditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the execution audit trail, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := newClient(serverURL).get(fmt.Sprintf("/api/v1/audit?limit=%d", limit), &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to return")
	return cmd
}

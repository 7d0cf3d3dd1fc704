package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/driftware/harvester/pkg/models"
)

var (
	serverURL string
	client    *resty.Client
)

func main() {
	root := &cobra.Command{
		Use:   "harvesterctl",
		Short: "Control a running harvester orchestrator",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			client = resty.New().SetBaseURL(serverURL).SetTimeout(15 * time.Minute)
		},
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "orchestrator base URL")

	root.AddCommand(sessionsCmd(), discoverCmd(), batchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage browser sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List live sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sessions []models.SessionSummary
			resp, err := client.R().SetResult(&sessions).Get("/v1/sessions")
			if err != nil {
				return err
			}
			if resp.IsError() {
				return fmt.Errorf("server returned %s", resp.Status())
			}

			if len(sessions) == 0 {
				fmt.Println("no live sessions")
				return nil
			}
			for _, s := range sessions {
				fmt.Printf("%s  sandbox=%s  status=%s  last_used=%s\n",
					s.ID, s.SandboxID, s.Status, s.LastUsedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	var sessionID string
	var timeout int
	acquire := &cobra.Command{
		Use:   "acquire",
		Short: "Acquire a session, reusing a live one when the id is known",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result models.AcquireSessionResponse
			resp, err := client.R().
				SetBody(models.AcquireSessionRequest{SessionID: sessionID, Timeout: timeout}).
				SetResult(&result).
				Post("/v1/sessions")
			if err != nil {
				return err
			}
			if resp.IsError() {
				return fmt.Errorf("acquire failed: %s", resp.String())
			}

			verb := "created"
			if result.Reused {
				verb = "reused"
			}
			fmt.Printf("%s session %s\n", verb, result.Session.ID)
			fmt.Printf("viewer: %s\n", result.Session.ViewerURL)
			return nil
		},
	}
	acquire.Flags().StringVar(&sessionID, "id", "", "session id to reuse (empty provisions fresh)")
	acquire.Flags().IntVar(&timeout, "timeout", 0, "idle timeout in seconds (0 uses the server default)")

	release := &cobra.Command{
		Use:   "release <session-id>",
		Short: "Release a session and tear down its sandbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.R().Delete("/v1/sessions/" + args[0])
			if err != nil {
				return err
			}
			if resp.IsError() {
				return fmt.Errorf("release failed: %s", resp.String())
			}
			fmt.Printf("released %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, acquire, release)
	return cmd
}

func discoverCmd() *cobra.Command {
	var req models.DiscoverRequest

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Scroll the listing and enqueue visible posts as work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.SessionID == "" {
				return fmt.Errorf("--session is required")
			}

			var report models.DiscoverReport
			resp, err := client.R().SetBody(req).SetResult(&report).Post("/v1/batch/discover")
			if err != nil {
				return err
			}
			if resp.IsError() {
				return fmt.Errorf("discovery failed: %s", resp.String())
			}

			fmt.Println(report.Message)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.SessionID, "session", "", "session id to run through")
	cmd.Flags().IntVar(&req.MaxScrolls, "max-scrolls", 10, "scroll budget for loading the listing")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "max posts to extract (0 for all visible)")

	return cmd
}

func batchCmd() *cobra.Command {
	var req models.BatchProcessRequest

	cmd := &cobra.Command{
		Use:   "run-batch",
		Short: "Process pending work items through an existing session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.SessionID == "" {
				return fmt.Errorf("--session is required")
			}

			var report models.BatchReport
			resp, err := client.R().SetBody(req).SetResult(&report).Post("/v1/batch/process")
			if err != nil {
				return err
			}
			if resp.IsError() {
				return fmt.Errorf("batch failed: %s", resp.String())
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&req.SessionID, "session", "", "session id to run through")
	cmd.Flags().StringVar(&req.Condition, "condition", "", "SQL predicate selecting pending items (empty uses the default)")
	cmd.Flags().IntVar(&req.Limit, "limit", 10, "max items to process")
	cmd.Flags().Float64Var(&req.DelaySeconds, "delay", 2, "seconds to pause between items")
	cmd.Flags().StringVar(&req.ReturnURL, "return-url", "", "listing URL to navigate back to between items")

	return cmd
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/conformly/fieldsync/internal/domain"
)

// apiClient is a thin client for the daemon's local API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(agentURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(method, path string, body io.Reader, out any) error {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("agent unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string            `json:"message"`
				Fields  map[string]string `json:"fields"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			if len(apiErr.Error.Fields) > 0 {
				var parts []string
				for field, reason := range apiErr.Error.Fields {
					parts = append(parts, field+": "+reason)
				}
				return fmt.Errorf("%s (%s)", apiErr.Error.Message, strings.Join(parts, "; "))
			}
			return fmt.Errorf("%s", apiErr.Error.Message)
		}
		return fmt.Errorf("agent returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newListCmd() *cobra.Command {
	var formType, projectID, syncStatus string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued inspection forms",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := make([]string, 0, 3)
			if formType != "" {
				params = append(params, "form_type="+formType)
			}
			if projectID != "" {
				params = append(params, "project_id="+projectID)
			}
			if syncStatus != "" {
				params = append(params, "sync_status="+syncStatus)
			}
			path := "/api/v1/forms"
			if len(params) > 0 {
				path += "?" + strings.Join(params, "&")
			}

			var resp struct {
				Forms []domain.CapturedForm `json:"forms"`
				Count int                   `json:"count"`
			}
			if err := newAPIClient().do(http.MethodGet, path, nil, &resp); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LOCAL ID\tFORM TYPE\tPROJECT\tCOMPLETION\tSYNC\tCAPTURED")
			for _, f := range resp.Forms {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
					f.LocalID, f.FormType, f.ProjectID, f.CompletionPct,
					f.SyncStatus, f.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			w.Flush()
			fmt.Printf("%d form(s)\n", resp.Count)
			return nil
		},
	}

	cmd.Flags().StringVar(&formType, "form-type", "", "filter by form type")
	cmd.Flags().StringVar(&projectID, "project", "", "filter by project ID")
	cmd.Flags().StringVar(&syncStatus, "sync-status", "", "filter by sync status (pending, synced, failed)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Online  bool `json:"online"`
				Pending int  `json:"pending"`
				Failed  int  `json:"failed"`
				Synced  int  `json:"synced"`
			}
			if err := newAPIClient().do(http.MethodGet, "/api/v1/sync/status", nil, &resp); err != nil {
				return err
			}

			state := "offline"
			if resp.Online {
				state = "online"
			}
			fmt.Printf("Agent: %s\nPending: %d\nFailed: %d\nSynced: %d\n",
				state, resp.Pending, resp.Failed, resp.Synced)
			return nil
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Trigger a sync sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Skipped   bool `json:"skipped"`
				Attempted int  `json:"attempted"`
				Synced    int  `json:"synced"`
				Failed    int  `json:"failed"`
			}
			if err := newAPIClient().do(http.MethodPost, "/api/v1/sync", nil, &resp); err != nil {
				return err
			}

			if resp.Skipped {
				fmt.Println("A sweep is already running; skipped.")
				return nil
			}
			fmt.Printf("Attempted: %d, synced: %d, failed: %d\n",
				resp.Attempted, resp.Synced, resp.Failed)
			return nil
		},
	}
}

func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <local-id>",
		Short: "Requeue a failed form for sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var form domain.CapturedForm
			err := newAPIClient().do(http.MethodPost, "/api/v1/forms/"+args[0]+"/retry", nil, &form)
			if err != nil {
				return err
			}
			fmt.Printf("Requeued %s (%s)\n", form.LocalID, form.SyncStatus)
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <local-id>",
		Short: "Remove a form from the local queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := newAPIClient().do(http.MethodDelete, "/api/v1/forms/"+args[0], nil, nil)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

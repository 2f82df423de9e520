package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	adminToken string
	Version    = "dev"
)

type Metrics struct {
	TotalEvents    int `json:"total_events"`
	HighRiskEvents int `json:"high_risk_events"`
	TopRiskIPs     []struct {
		IPAddress string  `json:"ip_address"`
		MeanRisk  float64 `json:"mean_risk"`
		Events    int     `json:"events"`
	} `json:"top_risk_ips"`
}

type Alert struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Action    string    `json:"action"`
	UserID    string    `json:"user_id"`
	IPAddress string    `json:"ip_address"`
	RiskScore int       `json:"risk_score"`
}

type HealthStatus struct {
	SigningKeys       bool     `json:"signing_keys"`
	Archive           bool     `json:"archive"`
	WebhookConfigured bool     `json:"webhook_configured"`
	Healthy           bool     `json:"healthy"`
	Issues            []string `json:"issues"`
}

type RotationInfo struct {
	Due          bool          `json:"due"`
	KeyAge       time.Duration `json:"key_age"`
	ScheduledFor time.Time     `json:"scheduled_for"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "admintrust",
		Short: "Admintrust - Administrative trust engine",
		Long:  "Inspect and operate the storefront admin trust engine: sessions, threat metrics, and signing keys",
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8443", "Admintrust server URL")
	rootCmd.PersistentFlags().StringVarP(&adminToken, "token", "t", os.Getenv("ADMINTRUST_TOKEN"), "Admin session token (or ADMINTRUST_TOKEN)")

	rootCmd.AddCommand(
		statusCmd(),
		metricsCmd(),
		alertsCmd(),
		rotateCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health and key rotation status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var health HealthStatus
			if err := fetch("/v1/health", &health); err != nil {
				return err
			}

			fmt.Printf("Admintrust Status\n")
			fmt.Printf("=================\n\n")
			fmt.Printf("Healthy:           %v\n", health.Healthy)
			fmt.Printf("Signing Keys:      %v\n", health.SigningKeys)
			fmt.Printf("Event Archive:     %v\n", health.Archive)
			fmt.Printf("Webhook Sink:      %v\n", health.WebhookConfigured)
			for _, issue := range health.Issues {
				fmt.Printf("Issue:             %s\n", issue)
			}

			if adminToken == "" {
				return nil
			}
			var rotation RotationInfo
			if err := fetch("/v1/keys/rotation", &rotation); err != nil {
				return err
			}
			fmt.Printf("\nKey Age:           %s\n", rotation.KeyAge.Round(time.Second))
			fmt.Printf("Rotation Due:      %v\n", rotation.Due)
			if rotation.Due {
				fmt.Printf("Scheduled For:     %s\n", rotation.ScheduledFor.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show security event metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var metrics Metrics
			if err := fetch("/v1/metrics", &metrics); err != nil {
				return err
			}

			fmt.Printf("Total Events:      %d\n", metrics.TotalEvents)
			fmt.Printf("High Risk Events:  %d\n\n", metrics.HighRiskEvents)

			if len(metrics.TopRiskIPs) == 0 {
				return nil
			}
			sort.SliceStable(metrics.TopRiskIPs, func(i, j int) bool {
				return metrics.TopRiskIPs[i].MeanRisk > metrics.TopRiskIPs[j].MeanRisk
			})

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "IP ADDRESS\tMEAN RISK\tEVENTS")
			fmt.Fprintln(w, "----------\t---------\t------")
			for _, ip := range metrics.TopRiskIPs {
				fmt.Fprintf(w, "%s\t%.1f\t%d\n", ip.IPAddress, ip.MeanRisk, ip.Events)
			}
			w.Flush()
			return nil
		},
	}
}

func alertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "List recent high-risk events",
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload struct {
				Events []Alert `json:"events"`
			}
			if err := fetch("/v1/alerts", &payload); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tACTION\tUSER\tIP\tRISK")
			fmt.Fprintln(w, "----\t----\t------\t----\t--\t----")
			for _, a := range payload.Events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
					a.Timestamp.Format(time.RFC3339), a.EventType, a.Action, a.UserID, a.IPAddress, a.RiskScore)
			}
			w.Flush()
			return nil
		},
	}
}

func rotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Rotate the session signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				KeyID     string    `json:"key_id"`
				CreatedAt time.Time `json:"created_at"`
			}
			if err := post("/v1/keys/rotate", &result); err != nil {
				return err
			}

			fmt.Printf("Rotated signing key\n")
			fmt.Printf("Key ID:       %s\n", result.KeyID)
			fmt.Printf("Created At:   %s\n", result.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("admintrust version %s\n", Version)
		},
	}
}

func fetch(path string, out any) error {
	return request(http.MethodGet, path, out)
}

func post(path string, out any) error {
	return request(http.MethodPost, path, out)
}

func request(method, path string, out any) error {
	req, err := http.NewRequest(method, serverURL+path, nil)
	if err != nil {
		return err
	}
	if adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("not authorized: pass an admin token with --token or ADMINTRUST_TOKEN")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	return json.Unmarshal(body, out)
}

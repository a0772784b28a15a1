package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

type party struct {
	Name          string `json:"name"`
	WalletAddress string `json:"walletAddress"`
}

type requestRecord struct {
	ID                  string     `json:"_id"`
	Status              string     `json:"status"`
	IPFSHash            *string    `json:"ipfsHash"`
	IssuedAt            *time.Time `json:"issuedAt"`
	LedgerTxHash        *string    `json:"ledgerTxHash"`
	StudentDetails      *party     `json:"studentDetails"`
	OrganizationDetails *party     `json:"organizationDetails"`
}

func (r requestRecord) row() []string {
	issued := "-"
	if r.IssuedAt != nil {
		issued = r.IssuedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		r.ID,
		r.Status,
		partyWallet(r.StudentDetails),
		partyWallet(r.OrganizationDetails),
		orDash(r.IPFSHash),
		issued,
		orDash(r.LedgerTxHash),
	}
}

func partyWallet(p *party) string {
	if p == nil {
		return "-"
	}
	return p.WalletAddress
}

var requestHeaders = []string{"ID", "STATUS", "STUDENT", "ORGANIZATION", "CONTENT ID", "ISSUED AT", "LEDGER TX"}

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Inspect certificate requests",
}

var requestGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one certificate request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		data, err := client.Get("/admin/requests/"+url.PathEscape(args[0]), nil)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(cmd.OutOrStdout(), data)
		}

		var rec requestRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return printTable(cmd.OutOrStdout(), requestHeaders, [][]string{rec.row()})
	},
}

var (
	requestListStatus     string
	requestListUnanchored bool
)

var requestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List certificate requests",
	Long: `List certificate requests, optionally filtered by status.

--unanchored lists issued certificates with no recorded ledger commit.
It implies --status issued unless another status is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{}
		status := requestListStatus
		if requestListUnanchored {
			if status == "" {
				status = "issued"
			}
			query.Set("unanchored", strconv.FormatBool(true))
		}
		query.Set("status", status)

		client := NewClient(adminURL, adminToken)
		data, err := client.Get("/admin/requests", query)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(cmd.OutOrStdout(), data)
		}

		var resp struct {
			Requests []requestRecord `json:"requests"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		if len(resp.Requests) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No requests found.")
			return nil
		}

		rows := make([][]string, len(resp.Requests))
		for i, r := range resp.Requests {
			rows[i] = r.row()
		}
		return printTable(cmd.OutOrStdout(), requestHeaders, rows)
	},
}

func init() {
	rootCmd.AddCommand(requestCmd)
	requestCmd.AddCommand(requestGetCmd)
	requestCmd.AddCommand(requestListCmd)

	requestListCmd.Flags().StringVar(&requestListStatus, "status", "", "Filter by status: pending, accepted, rejected, issued")
	requestListCmd.Flags().BoolVar(&requestListUnanchored, "unanchored", false, "Only issued records without a ledger commit")
}

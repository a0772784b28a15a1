package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// UserListResponse represents the list users response
type UserListResponse struct {
	Users []struct {
		ID                     string `json:"_id"`
		WalletAddress          string `json:"walletAddress"`
		Name                   string `json:"name"`
		UserType               string `json:"userType"`
		IsBlockchainRegistered bool   `json:"isBlockchainRegistered"`
	} `json:"users"`
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Inspect registered users",
}

var userListRole string

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Long:  `List registered users, optionally only students or only organizations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		data, err := client.Get("/admin/users", url.Values{"role": {userListRole}})
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(cmd.OutOrStdout(), data)
		}

		var resp UserListResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		if len(resp.Users) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No users found.")
			return nil
		}

		headers := []string{"ID", "WALLET", "NAME", "ROLE", "ON LEDGER"}
		rows := make([][]string, len(resp.Users))
		for i, u := range resp.Users {
			rows[i] = []string{u.ID, u.WalletAddress, u.Name, u.UserType, strconv.FormatBool(u.IsBlockchainRegistered)}
		}
		return printTable(cmd.OutOrStdout(), headers, rows)
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userListCmd)

	userListCmd.Flags().StringVar(&userListRole, "role", "", "Filter by role: student, organization")
}

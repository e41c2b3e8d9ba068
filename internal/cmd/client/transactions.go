package client

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Kushchii/sse-service/internal/transaction"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewTransactionCommand constructs the `tx` command group and subcommands.
func NewTransactionCommand(baseURL BaseURLFunc) *cobra.Command {
	txCmd := &cobra.Command{Use: "tx", Short: "Transaction operations"}
	txCmd.AddCommand(
		newSubmitCommand(baseURL),
		newGetCommand(baseURL),
		newTailCommand(baseURL),
	)
	return txCmd
}

func newSubmitCommand(baseURL BaseURLFunc) *cobra.Command {
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a transaction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			userID, _ := cmd.Flags().GetString("user")
			amount, _ := cmd.Flags().GetFloat64("amount")
			currency, _ := cmd.Flags().GetString("currency")
			status, _ := cmd.Flags().GetString("status")
			desc, _ := cmd.Flags().GetString("description")
			if id == "" {
				id = uuid.NewString()
			}

			req := transaction.Request{
				ID:          id,
				UserID:      userID,
				Amount:      amount,
				Currency:    currency,
				Status:      status,
				Description: desc,
			}
			b, _ := json.Marshal(req)
			resp, err := http.Post(baseURL()+"/v1/transactions", "application/json", bytes.NewReader(b))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			var out transaction.Outcome
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id: %s\nsuccess: %v\nmessage: %s\n", id, out.Success, out.Message)
			if !out.Success {
				return fmt.Errorf("submission not accepted")
			}
			return nil
		},
	}
	submitCmd.Flags().String("id", "", "Transaction id (generated when empty)")
	submitCmd.Flags().String("user", "", "User id")
	submitCmd.Flags().Float64("amount", 0, "Amount")
	submitCmd.Flags().String("currency", "USD", "Currency code")
	submitCmd.Flags().String("status", "completed", "Status")
	submitCmd.Flags().String("description", "", "Description")
	return submitCmd
}

func newGetCommand(baseURL BaseURLFunc) *cobra.Command {
	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a transaction by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(baseURL() + "/v1/transactions/" + url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("transaction %s not found", args[0])
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unexpected status %s", resp.Status)
			}
			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(bytes.TrimSpace(b)))
			return nil
		},
	}
	return getCmd
}

// newTailCommand follows one of the SSE stream endpoints and prints each
// event as a JSON line.
func newTailCommand(baseURL BaseURLFunc) *cobra.Command {
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the transaction stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			newOnly, _ := cmd.Flags().GetBool("new")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")

			endpoint := baseURL() + "/v1/transactions/stream"
			if newOnly {
				endpoint += "/new"
			}
			if filter != "" {
				endpoint += "?filter=" + url.QueryEscape(filter)
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				b, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("stream failed: %s: %s", resp.Status, strings.TrimSpace(string(b)))
			}

			out := cmd.OutOrStdout()
			rd := bufio.NewReader(resp.Body)
			seen := 0
			for {
				line, err := rd.ReadString('\n')
				if err != nil {
					if cmd.Context().Err() != nil || err == io.EOF {
						return nil
					}
					return err
				}
				line = strings.TrimRight(line, "\n")
				if !strings.HasPrefix(line, "data: ") {
					continue
				}
				fmt.Fprintln(out, strings.TrimPrefix(line, "data: "))
				seen++
				if limit > 0 && seen >= limit {
					return nil
				}
			}
		},
	}
	tailCmd.Flags().Bool("new", false, "Live records only, skip history")
	tailCmd.Flags().String("filter", "", "CEL filter (server-side)")
	tailCmd.Flags().Int("limit", 0, "Stop after N events (0 = infinite)")
	return tailCmd
}

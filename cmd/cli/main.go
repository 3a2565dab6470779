package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	baseURL string
	timeout time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "postings-cli",
		Short: "Postings CLI tool",
		Long:  `A command line interface for interacting with the postings API.`,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the postings API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(postingCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(statementCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Account operations",
	}

	var currency string
	var scale int32

	createCmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doPost("/api/v1/accounts", map[string]any{
				"name":           args[0],
				"currency_code":  currency,
				"currency_scale": scale,
			})
		},
	}
	createCmd.Flags().StringVar(&currency, "currency", "USD", "Currency code")
	createCmd.Flags().Int32Var(&scale, "scale", 2, "Currency scale (decimal places)")

	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Get an account by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doGet("/api/v1/accounts/" + url.PathEscape(args[0]))
		},
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doGet(fmt.Sprintf("/api/v1/accounts?limit=%d&offset=%d", limit, offset))
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum accounts to return")
	listCmd.Flags().IntVar(&offset, "offset", 0, "Number of accounts to skip")

	cmd.AddCommand(createCmd, getCmd, listCmd)

	return cmd
}

func postingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posting",
		Short: "Posting operations",
	}

	var file string
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a posting draft from a JSON file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload []byte
			var err error

			if file == "" || file == "-" {
				payload, err = io.ReadAll(os.Stdin)
			} else {
				payload, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("read draft: %w", err)
			}

			var draft map[string]any
			if err := json.Unmarshal(payload, &draft); err != nil {
				return fmt.Errorf("parse draft: %w", err)
			}

			return doPost("/api/v1/postings", draft)
		},
	}
	submitCmd.Flags().StringVarP(&file, "file", "f", "-", "Draft JSON file, - for stdin")

	lookupCmd := &cobra.Command{
		Use:   "lookup [hash]",
		Short: "Look up a posting by content hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doGet("/api/v1/postings/" + url.PathEscape(args[0]))
		},
	}

	cmd.AddCommand(submitCmd, lookupCmd)

	return cmd
}

func balanceCmd() *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "balance [account-id]",
		Short: "Get an account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/accounts/" + url.PathEscape(args[0]) + "/balance"
			if asOf != "" {
				path += "?as_of=" + url.QueryEscape(asOf)
			}

			return doGet(path)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "Point in time (RFC3339)")

	return cmd
}

func statementCmd() *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "statement [account-id]",
		Short: "Get an account statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/accounts/" + url.PathEscape(args[0]) + "/statement"
			if asOf != "" {
				path += "?as_of=" + url.QueryEscape(asOf)
			}

			return doGet(path)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "Point in time (RFC3339)")

	return cmd
}

func doGet(path string) error {
	client := &http.Client{Timeout: timeout}

	resp, err := client.Get(baseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return printResponse(resp)
}

func doPost(path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	client := &http.Client{Timeout: timeout}

	resp, err := client.Post(baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		buf.Write(body)
	}

	fmt.Println(strings.TrimSpace(buf.String()))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	return nil
}

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/pushchain/spin-relay/spinClient/api"
	"github.com/pushchain/spin-relay/spinClient/config"
	"github.com/pushchain/spin-relay/spinClient/store"
)

// Output formats
const (
	OutputFormatYAML = "yaml"
	OutputFormatJSON = "json"
)

// listResponse is api.QueryResponse with the payload left undecoded.
type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Count int             `json:"count"`
}

var httpClient = &http.Client{Timeout: 2 * time.Minute}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "query",
		Aliases: []string{"q"},
		Short:   "Querying commands",
	}

	cmd.AddCommand(
		statusCmd(),
		networksCmd(),
		spinsCmd(),
	)

	return cmd
}

func statusCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query the relay session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status api.Status
			if err := callAPI(cmd, http.MethodGet, "/api/v1/status", nil, &status); err != nil {
				return err
			}
			return printOutput(status, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func networksCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "networks",
		Short: "Query the configured networks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp listResponse
			if err := callAPI(cmd, http.MethodGet, "/api/v1/networks", nil, &resp); err != nil {
				return err
			}
			var nets []api.NetworkInfo
			if err := json.Unmarshal(resp.Data, &nets); err != nil {
				return fmt.Errorf("failed to unmarshal networks: %w", err)
			}
			return printOutput(nets, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func spinsCmd() *cobra.Command {
	var (
		network      string
		limit        int
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "spins",
		Short: "Query recent spins, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			if network != "" {
				q.Set("network", network)
			}

			var resp listResponse
			if err := callAPI(cmd, http.MethodGet, "/api/v1/spins?"+q.Encode(), nil, &resp); err != nil {
				return err
			}
			var records []store.SpinRecord
			if err := json.Unmarshal(resp.Data, &records); err != nil {
				return fmt.Errorf("failed to unmarshal spins: %w", err)
			}
			return printOutput(records, outputFormat)
		},
	}

	cmd.Flags().StringVar(&network, "network", "", "Only spins on this network")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of spins")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func networkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Network selection commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [network]",
		Short: "Switch the relay to another network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result api.SwitchResult
			if err := callAPI(cmd, http.MethodPost, "/api/v1/network", api.SwitchRequest{Network: args[0]}, &result); err != nil {
				return err
			}
			if result.ConfirmationRequired {
				fmt.Fprintf(cmd.OutOrStdout(), "⏳ Switch to %s pending, approve it in the wallet and run `pspind network confirm`\n", result.Network)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Switched to %s\n", result.Network)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "confirm",
		Short: "Complete a pending network switch",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status api.Status
			if err := callAPI(cmd, http.MethodPost, "/api/v1/network/confirm", nil, &status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Switched to %s\n", status.Network)
			return nil
		},
	})

	return cmd
}

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Mint a new session delegation on the current network",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status api.Status
			if err := callAPI(cmd, http.MethodPost, "/api/v1/setup", nil, &status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Account %s ready on %s\n", status.Account, status.Network)
			return nil
		},
	}
}

func disconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Drop the session delegation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := callAPI(cmd, http.MethodPost, "/api/v1/disconnect", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ Disconnected")
			return nil
		},
	}
}

// callAPI sends body (if any) to the local relay and decodes the response into out.
func callAPI(cmd *cobra.Command, method, path string, body, out interface{}) error {
	port, err := getQueryServerPort(cmd)
	if err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(cmd.Context(), method, fmt.Sprintf("http://localhost:%d%s", port, path), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		var errResp api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		if errResp.Reason != "" {
			return fmt.Errorf("server error (%s/%s): %s", errResp.Code, errResp.Reason, errResp.Error)
		}
		return fmt.Errorf("server error: %s", errResp.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// getQueryServerPort loads the config to get the query server port
func getQueryServerPort(cmd *cobra.Command) (int, error) {
	loadedCfg, err := config.Load(homeDir(cmd))
	if err != nil {
		return 0, fmt.Errorf("failed to load config: %w", err)
	}
	if loadedCfg.QueryServerPort == 0 {
		return 8080, nil
	}
	return loadedCfg.QueryServerPort, nil
}

// printOutput prints the output in the specified format
func printOutput(data interface{}, format string) error {
	switch format {
	case OutputFormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(os.Stdout)
		return encoder.Encode(data)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// Package main implements smctl, a CLI for manual operations against a
// running streetmatch HTTP server.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/bastiangx/streetmatch/internal/httpapi"
	"github.com/bastiangx/streetmatch/pkg/geocode"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &client{}
	rootCmd := &cobra.Command{
		Use:   "smctl",
		Short: "CLI for streetmatch HTTP server operations",
		Long: `smctl is a command-line interface for the streetmatch HTTP server.
It compares street names, sends feedback, geocodes addresses and checks
server health.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&c.baseURL, "server", "http://localhost:5000", "streetmatch server URL")
	rootCmd.PersistentFlags().DurationVar(&c.timeout, "timeout", 15*time.Second, "request timeout")

	rootCmd.AddCommand(
		compareCmd(c),
		feedbackCmd(c),
		geocodeCmd(c),
		healthCmd(c),
		infoCmd(c),
	)
	return rootCmd
}

func compareCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <name1> <name2>",
		Short: "Classify a pair of street names",
		Long: `Classify a pair of street names as Exact, Similar or Different.

Examples:
  smctl compare "Main Rd" "main road"
  smctl compare --server http://localhost:8080 "18 de julio" "Avenida 18 de Julio"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.compare(cmd.Context(), httpapi.CompareRequest{Name1: args[0], Name2: args[1]})
			if err != nil {
				return err
			}
			printVerdict(cmd, res)
			return nil
		},
	}
}

func feedbackCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <name1> <name2> <label>",
		Short: "Teach the model the correct label for a pair",
		Long: `Send a pair with its correct label (0 Different, 1 Similar, 2 Exact).
The verdict printed is the one before the model learned from it.

Examples:
  smctl feedback "Cno Lecoq" "Camino Lecoq" 1`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			label, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("label must be 0, 1 or 2: %w", err)
			}
			res, err := c.compare(cmd.Context(), httpapi.CompareRequest{Name1: args[0], Name2: args[1], Feedback: &label})
			if res.Label != "" {
				printVerdict(cmd, res)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "feedback: saved")
			return nil
		},
	}
}

func geocodeCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "geocode <address>",
		Short: "Resolve an address to coordinates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var place geocode.Place
			if err := c.post(cmd.Context(), "/geolocate", httpapi.GeolocateRequest{Address: args[0]}, &place); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%.6f, %.6f\n", place.Name, place.Latitude, place.Longitude)
			return nil
		},
	}
}

func healthCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check streetmatch server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var health httpapi.HealthResponse
			if err := c.get(cmd.Context(), "/health", &health); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", health.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "Server URL: %s\n", c.baseURL)
			return nil
		},
	}
}

func infoCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe the live model",
		RunE: func(cmd *cobra.Command, args []string) error {
			var info httpapi.InfoResponse
			if err := c.get(cmd.Context(), "/api/info", &info); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "classifier: %s\n", info.Classifier)
			fmt.Fprintf(out, "policy:     %s\n", info.Policy)
			fmt.Fprintf(out, "features:   %d (%d terms)\n", info.Dimension, info.VocabularySize)
			fmt.Fprintf(out, "updates:    %d\n", info.Updates)
			return nil
		},
	}
}

func printVerdict(cmd *cobra.Command, r httpapi.CompareResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", r.Label)
	fmt.Fprintf(out, "  predicted:     %s\n", r.Predicted)
	fmt.Fprintf(out, "  edit distance: %d\n", r.EditDistance)
	fmt.Fprintf(out, "  similarity:    %.2f\n", r.Similarity)
	fmt.Fprintf(out, "  cosine:        %.2f\n", r.Cosine)
	fmt.Fprintf(out, "  confidence:    %.2f\n", r.Confidence)
}

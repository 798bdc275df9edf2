// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

const statusProbeTimeout = 2 * time.Second

// probePaths lists the health endpoints queried, in display order.
var probePaths = []struct {
	name string
	path string
}{
	{"liveness", "/healthz/liveness"},
	{"readiness", "/healthz/readiness"},
}

// ProbeStatus holds the result of one health probe.
type ProbeStatus struct {
	Probe     string `json:"probe"`
	Reachable bool   `json:"reachable"`
	Healthy   bool   `json:"healthy"`
	Status    int    `json:"status,omitempty"`
	Body      string `json:"body,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	addr       string
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand with all flags configured.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running keyward server",
		Long: `Queries the liveness and readiness probes on the metrics listener.
The address defaults to metrics.addr from the configuration. Exits non-zero
when the server is not ready.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg, http.DefaultClient)
		},
	}

	cmd.Flags().StringVar(&cfg.addr, "addr", "", "metrics listener address (host:port)")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig, client *http.Client) error {
	addr := cfg.addr
	if addr == "" {
		loaded, err := loadConfig(nil)
		if err != nil {
			return err
		}
		addr = loaded.Metrics.Addr
	}
	if addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("metrics.addr is empty; pass --addr")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	statuses := make([]ProbeStatus, 0, len(probePaths))
	for _, p := range probePaths {
		statuses = append(statuses, queryProbe(ctx, client, baseURL(addr)+p.path, p.name))
	}

	var output string
	if cfg.jsonOutput {
		var err error
		output, err = formatStatusJSON(statuses)
		if err != nil {
			return err
		}
	} else {
		output = formatStatusTable(addr, statuses)
	}
	cmd.Println(output)

	for _, s := range statuses {
		if !s.Healthy {
			return oops.Code("SERVER_UNHEALTHY").With("probe", s.Probe).Errorf("%s probe failed", s.Probe)
		}
	}
	return nil
}

func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

// queryProbe requests one probe endpoint and records the outcome.
func queryProbe(ctx context.Context, client *http.Client, url, name string) ProbeStatus {
	status := ProbeStatus{Probe: name}

	ctx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		status.Error = fmt.Sprintf("failed to build request: %v", err)
		return status
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	status.Reachable = true
	status.Status = resp.StatusCode
	status.Body = strings.TrimSpace(string(body))
	status.LatencyMS = time.Since(start).Milliseconds()
	status.Healthy = resp.StatusCode == http.StatusOK
	return status
}

// formatStatusTable formats the probes as a human-readable table.
func formatStatusTable(addr string, statuses []ProbeStatus) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "SERVER %s\n", addr)
	_, _ = fmt.Fprintln(w, "PROBE\tSTATE\tHTTP\tLATENCY\tDETAIL")
	_, _ = fmt.Fprintln(w, "-----\t-----\t----\t-------\t------")

	for _, s := range statuses {
		if !s.Reachable {
			_, _ = fmt.Fprintf(w, "%s\tunreachable\t-\t-\t%s\n", s.Probe, s.Error)
			continue
		}
		state := "failing"
		if s.Healthy {
			state = "ok"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			s.Probe, state, s.Status, formatLatency(s.LatencyMS), s.Body)
	}

	_ = w.Flush()
	return string(buf)
}

// formatStatusJSON formats the probes as JSON.
func formatStatusJSON(statuses []ProbeStatus) (string, error) {
	data, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return "", oops.Code("STATUS_FORMAT_FAILED").Wrap(err)
	}
	return string(data), nil
}

func formatLatency(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}

// byteWriter is a simple writer that appends to a byte slice.
type byteWriter []byte

func (w *byteWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}

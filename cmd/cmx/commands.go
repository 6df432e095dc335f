package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCloneCmd(opts *options) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "clone <url>",
		Short: "Clone and index a repository",
		Long: `Start processing a repository. The daemon clones it, splits its source
files into chunks and builds a search index. Only one repository is
processed at a time.

With --wait the command follows the run over the status stream until it
finishes, showing a progress bar on a terminal and plain lines otherwise.

Examples:
  cmx clone https://github.com/pallets/flask.git
  cmx clone --wait git@github.com:pallets/flask.git`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			var resp CloneResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/clone", CloneRequest{RepoURL: args[0]}, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s started\n", resp.RunID)
			if !wait {
				return nil
			}
			return waitForRun(cmd.Context(), c, out, cmd.InOrStdin(), resp.RunID)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "follow the run until it finishes")
	return cmd
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show processing status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st StatusResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/status", nil, &st); err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func printStatus(w io.Writer, st StatusResponse) {
	fmt.Fprintf(w, "Status:      %s\n", st.Status)
	fmt.Fprintf(w, "Message:     %s\n", st.Message)
	fmt.Fprintf(w, "Progress:    %.0f%%\n", st.Progress*100)
	if st.RepoID != "" {
		fmt.Fprintf(w, "Repository:  %s\n", st.RepoID)
	}
	if st.RepoURL != "" {
		fmt.Fprintf(w, "URL:         %s\n", st.RepoURL)
	}
	if st.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", st.Description)
	}
	if !st.LastUpdated.IsZero() {
		fmt.Fprintf(w, "Updated:     %s\n", humanize.Time(st.LastUpdated))
	}
	if m := st.Metadata; m != nil {
		fmt.Fprintf(w, "Files:       %s (%s code, %s lines)\n",
			humanize.Comma(int64(m.TotalFiles)), humanize.Comma(int64(m.CodeFiles)), humanize.Comma(int64(m.TotalLines)))
		if m.HeadCommit != "" {
			fmt.Fprintf(w, "Revision:    %s@%.8s\n", m.Branch, m.HeadCommit)
		}
	}
}

func newResetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset processing status to idle",
		Long: `Reset the daemon's processing status. A run still in progress keeps
working in the background but its result is discarded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st StatusResponse
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/v1/status/reset", nil, &st); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Status reset: %s\n", st.Status)
			return nil
		},
	}
}

func newAskCmd(opts *options) *cobra.Command {
	var (
		topK      int
		focusFile string
		cursor    int
		showCode  bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the indexed repository",
		Long: `Ask a question about the repository that was indexed last.

Examples:
  cmx ask "How are routes registered?"
  cmx ask --focus-file src/flask/app.py --cursor 120 "What does this method return?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ChatRequest{
				Question:  strings.Join(args, " "),
				TopK:      topK,
				FocusFile: focusFile,
			}
			if cmd.Flags().Changed("cursor") {
				req.CursorPosition = &cursor
			}

			var resp ChatResponse
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/v1/chat", req, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Answer)
			if len(resp.Sources) > 0 {
				fmt.Fprintf(out, "\nSources: %s\n", strings.Join(resp.Sources, ", "))
			}
			if showCode {
				for i, chunk := range resp.RetrievedChunks {
					fmt.Fprintf(out, "\n--- chunk %d ---\n%s\n", i+1, chunk)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 5, "number of chunks to retrieve")
	cmd.Flags().StringVar(&focusFile, "focus-file", "", "file currently being viewed")
	cmd.Flags().IntVar(&cursor, "cursor", 0, "cursor line in the focus file")
	cmd.Flags().BoolVar(&showCode, "show-code", false, "print the retrieved chunks")
	return cmd
}

func newExplainCmd(opts *options) *cobra.Command {
	var level string
	cmd := &cobra.Command{
		Use:   "explain <file|->",
		Short: "Explain a piece of code",
		Long: `Explain code read from a file or stdin at one of four levels:
5-year-old, 10-year-old, teenager, adult.

Examples:
  cmx explain main.go
  sed -n 10,40p app.py | cmx explain --level teenager -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				code []byte
				err  error
			)
			if args[0] == "-" {
				code, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read from stdin: %w", err)
				}
			} else {
				code, err = os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read file %s: %w", args[0], err)
				}
			}
			if len(strings.TrimSpace(string(code))) == 0 {
				return fmt.Errorf("no code to explain")
			}

			var resp ExplainResponse
			req := ExplainRequest{Code: string(code), Complexity: level}
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/v1/explain", req, &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Explanation)
			return nil
		},
	}
	cmd.Flags().StringVar(&level, "level", "adult", "explanation level")
	return cmd
}

func newReposCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "repos",
		Short: "List indexed repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp RepositoriesResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/repositories", nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(resp.Repositories) == 0 {
				fmt.Fprintln(out, "No repositories indexed.")
				return nil
			}
			for _, r := range resp.Repositories {
				marker := " "
				if r.Active {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-30s %s chunks, built %s\n",
					marker, r.ID, humanize.Comma(int64(r.Chunks)), humanize.Time(r.BuiltAt))
			}
			return nil
		},
	}
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check codematrix server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp HealthResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/health", nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server Status: %s\n", resp.Status)
			fmt.Fprintf(out, "Server URL: %s\n", opts.serverURL)

			keys := make([]string, 0, len(resp.APIKeysConfigured))
			for k := range resp.APIKeysConfigured {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "  %-12s configured=%t\n", k, resp.APIKeysConfigured[k])
			}
			return nil
		},
	}
}

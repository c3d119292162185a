package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const envServer = "VIGIL_SERVER"

type cli struct {
	server  string
	timeout time.Duration
}

func (c *cli) client() *client {
	return newClient(c.server, c.timeout)
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "vigilctl",
		Short:         "Manage moderation evaluation tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv(envServer)
	if server == "" {
		server = "http://localhost:8080/api"
	}
	root.PersistentFlags().StringVar(&c.server, "server", server, "API base URL (env "+envServer+")")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 2*time.Minute, "Request timeout")

	root.AddCommand(
		c.createCmd(),
		c.uploadCmd(),
		c.startCmd(),
		c.getCmd(),
		c.listCmd(),
		c.deleteCmd(),
		c.statusCmd(),
		c.reconcileCmd(),
		c.reportCmd(),
		c.exportCmd(),
		c.unflaggedCmd(),
	)
	return root
}

func (c *cli) createCmd() *cobra.Command {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		CreatedBy   string `json:"created_by"`
	}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.client().do(cmd.Context(), http.MethodPost, "/tasks", nil, body)
			return printJSON(cmd, data, err)
		},
	}
	cmd.Flags().StringVar(&body.Name, "name", "", "Task name")
	cmd.Flags().StringVar(&body.Description, "description", "", "Task description")
	cmd.Flags().StringVar(&body.CreatedBy, "created-by", os.Getenv("USER"), "Task owner")
	cmd.MarkFlagRequired("name")
	return cmd
}

func (c *cli) uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <task-id> <file>...",
		Short: "Upload source files into a created task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := c.client()
			for _, file := range args[1:] {
				data, err := cl.upload(cmd.Context(), "/tasks/"+args[0]+"/files", file)
				if err = printJSON(cmd, data, err); err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
			}
			return nil
		},
	}
}

func (c *cli) startCmd() *cobra.Command {
	return c.simple("start <task-id>", "Start moderation of a task", http.MethodPost, "/tasks/%s/start")
}

func (c *cli) getCmd() *cobra.Command {
	return c.simple("get <task-id>", "Show a task with its metrics", http.MethodGet, "/tasks/%s")
}

func (c *cli) deleteCmd() *cobra.Command {
	return c.simple("delete <task-id>", "Delete a task and everything it owns", http.MethodDelete, "/tasks/%s")
}

func (c *cli) reconcileCmd() *cobra.Command {
	return c.simple("reconcile <task-id>", "Advance a task to match its external state", http.MethodPost, "/tasks/%s/reconcile")
}

func (c *cli) unflaggedCmd() *cobra.Command {
	return c.simple("unflagged <task-id>", "List files the classifier found clean", http.MethodGet, "/reports/%s/unflagged")
}

// simple builds a command that calls one task-scoped endpoint without a body.
func (c *cli) simple(use, short, method, pattern string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf(pattern, url.PathEscape(args[0]))
			data, err := c.client().do(cmd.Context(), method, path, nil, nil)
			return printJSON(cmd, data, err)
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	var (
		status, createdBy, search string
		page, pageSize            int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			set := func(k, v string) {
				if v != "" {
					q.Set(k, v)
				}
			}
			set("status", status)
			set("created_by", createdBy)
			set("search", search)
			if page > 0 {
				q.Set("page", fmt.Sprint(page))
			}
			if pageSize > 0 {
				q.Set("page_size", fmt.Sprint(pageSize))
			}

			data, err := c.client().do(cmd.Context(), http.MethodGet, "/tasks", q, nil)
			return printJSON(cmd, data, err)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "Filter by owner")
	cmd.Flags().StringVar(&search, "search", "", "Search task names")
	cmd.Flags().IntVar(&page, "page", 0, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Page size")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Signal an external status change",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"status": args[1]}
			if reason != "" {
				body["reason"] = reason
			}
			data, err := c.client().do(cmd.Context(), http.MethodPut, "/tasks/"+url.PathEscape(args[0])+"/status", nil, body)
			return printJSON(cmd, data, err)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Failure reason")
	return cmd
}

type filterFlags struct {
	topCategory  string
	subCategory  string
	reviewResult string
	threshold    float64
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.topCategory, "top-category", "", "Only rows with this top-level category")
	cmd.Flags().StringVar(&f.subCategory, "sub-category", "", "Only rows with this sub category")
	cmd.Flags().StringVar(&f.reviewResult, "review-result", "", "Only rows with this verdict (true-positive, false-positive)")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "Minimum confidence; values below 50 are ignored")
}

func (f *filterFlags) body(cmd *cobra.Command) map[string]any {
	body := map[string]any{}
	if f.topCategory != "" {
		body["top_category"] = f.topCategory
	}
	if f.subCategory != "" {
		body["sub_category"] = f.subCategory
	}
	if f.reviewResult != "" {
		body["review_result"] = f.reviewResult
	}
	if cmd.Flags().Changed("threshold") {
		body["confidence_threshold"] = f.threshold
	}
	return body
}

func (c *cli) reportCmd() *cobra.Command {
	return c.filtered("report <task-id>", "Compute the accuracy report of a task", "/reports/%s")
}

func (c *cli) exportCmd() *cobra.Command {
	return c.filtered("export <task-id>", "Export flagged labels and print a download link", "/reports/%s/export")
}

func (c *cli) filtered(use, short, pattern string) *cobra.Command {
	var filters filterFlags

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf(pattern, url.PathEscape(args[0]))
			data, err := c.client().do(cmd.Context(), http.MethodPost, path, nil, filters.body(cmd))
			return printJSON(cmd, data, err)
		},
	}
	filters.bind(cmd)
	return cmd
}

func printJSON(cmd *cobra.Command, data []byte, err error) error {
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var out bytes.Buffer
	if json.Indent(&out, data, "", "  ") != nil {
		out.Reset()
		out.Write(data)
	}
	out.WriteByte('\n')
	_, err = cmd.OutOrStdout().Write(out.Bytes())
	return err
}

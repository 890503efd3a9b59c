package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ThesisScout/internal/app"
	"ThesisScout/internal/config"
	"ThesisScout/internal/domain"
	"ThesisScout/internal/logging"
)

type rootOptions struct {
	configPath string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "thesisscout",
		Short:        "Match blog and news articles against investment theses",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default "+config.DefaultPath()+")")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		newDiscoverCmd(opts),
		newAddCmd(opts),
		newSearchCmd(opts),
		newArticleCmd(opts),
		newMatchCmd(opts),
		newThesisCmd(opts),
		newHistoryCmd(opts),
		newStarCmd(opts),
		newDeleteCmd(opts),
		newServeCmd(opts),
		newMonitorCmd(opts),
		newVersionCmd(),
	)
	return root
}

// withApp loads config, builds the application and closes it after fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(*app.Application) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := application.Close(); cerr != nil {
			logger.Warn("close application", "error", cerr)
		}
	}()
	return fn(application)
}

func newDiscoverCmd(opts *rootOptions) *cobra.Command {
	var maxArticles int
	cmd := &cobra.Command{
		Use:   "discover <index-url>",
		Short: "Discover and process articles listed on an index page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				result, err := a.Pipeline().Ingest(cmd.Context(), args[0], maxArticles)
				if err != nil {
					return err
				}
				return printIngest(cmd.OutOrStdout(), opts, result)
			})
		},
	}
	cmd.Flags().IntVar(&maxArticles, "max", 0, "maximum number of articles (default from config)")
	return cmd
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <article-url>",
		Short: "Process a single article URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				result, err := a.Pipeline().IngestURL(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printIngest(cmd.OutOrStdout(), opts, result)
			})
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var maxResults int
	cmd := &cobra.Command{
		Use:   "search <keyword...>",
		Short: "Search papers and patents by keyword and process the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				result, err := a.Pipeline().SearchKeyword(cmd.Context(), strings.Join(args, " "), maxResults)
				if err != nil {
					return err
				}
				return printIngest(cmd.OutOrStdout(), opts, result)
			})
		},
	}
	cmd.Flags().IntVar(&maxResults, "max", 0, "maximum number of results (default from config)")
	return cmd
}

func newArticleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "article <id>",
		Short: "Show a stored article with its full text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				article, err := a.Pipeline().Article(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printArticle(cmd.OutOrStdout(), opts, article)
			})
		},
	}
}

func newMatchCmd(opts *rootOptions) *cobra.Command {
	var (
		starred bool
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Rank stored articles against active theses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				results, err := a.Pipeline().Match(cmd.Context(), starred, limit)
				if err != nil {
					return err
				}
				return printMatches(cmd.OutOrStdout(), opts, results)
			})
		},
	}
	cmd.Flags().BoolVar(&starred, "starred", false, "only starred articles and articles of starred sources")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results (default from config)")
	return cmd
}

func newThesisCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thesis",
		Short: "Manage investment theses",
	}

	var title, file string
	add := &cobra.Command{
		Use:   "add [text]",
		Short: "Create a thesis from text or a plain-text file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := thesisText(cmd, args, file)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app.Application) error {
				thesis, err := a.Pipeline().CreateThesis(cmd.Context(), title, text)
				if err != nil {
					return err
				}
				return printThesis(cmd.OutOrStdout(), opts, thesis)
			})
		},
	}
	add.Flags().StringVar(&title, "title", "", "thesis title (default: first point)")
	add.Flags().StringVar(&file, "file", "", "read thesis text from a file, - for stdin")

	var updateFile string
	update := &cobra.Command{
		Use:   "update <id> [text]",
		Short: "Replace a thesis text and re-embed it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := thesisText(cmd, args[1:], updateFile)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app.Application) error {
				thesis, err := a.Pipeline().UpdateThesis(cmd.Context(), args[0], text)
				if err != nil {
					return err
				}
				return printThesis(cmd.OutOrStdout(), opts, thesis)
			})
		},
	}
	update.Flags().StringVar(&updateFile, "file", "", "read thesis text from a file, - for stdin")

	var activeOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List theses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				theses, err := a.Pipeline().Theses(cmd.Context(), activeOnly)
				if err != nil {
					return err
				}
				return printTheses(cmd.OutOrStdout(), opts, theses)
			})
		},
	}
	list.Flags().BoolVar(&activeOnly, "active", false, "only active theses")

	cmd.AddCommand(add, update, list, newActivateCmd(opts, true), newActivateCmd(opts, false))
	return cmd
}

func newActivateCmd(opts *rootOptions, active bool) *cobra.Command {
	use, short := "activate <id>", "Include a thesis in matching"
	if !active {
		use, short = "deactivate <id>", "Exclude a thesis from matching"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				return a.Pipeline().SetThesisActive(cmd.Context(), args[0], active)
			})
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show saved sources, articles and theses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				items, err := a.Pipeline().History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printHistory(cmd.OutOrStdout(), opts, items)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")
	return cmd
}

func newStarCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "star <source|article|thesis> <id>",
		Short: "Toggle the starred flag of a history record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseRecordKind(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app.Application) error {
				starred, err := a.Pipeline().ToggleStar(cmd.Context(), kind, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s starred=%t\n", kind, args[1], starred)
				return nil
			})
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <source|article|thesis> <id>",
		Short: "Delete a history record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseRecordKind(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app.Application) error {
				return a.Pipeline().Delete(cmd.Context(), kind, args[1])
			})
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var withMonitor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				return a.Serve(cmd.Context(), withMonitor)
			})
		},
	}
	cmd.Flags().BoolVar(&withMonitor, "monitor", false, "also monitor starred sources on the configured interval")
	return cmd
}

func newMonitorCmd(opts *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Check starred sources for new articles and send digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				if !once {
					return a.Monitor(cmd.Context())
				}
				report, err := a.Pipeline().MonitorStarred(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sources=%d new=%d matches=%d notified=%t\n",
					report.Sources, report.NewArticles, len(report.Matches), report.Notified)
				return printWarnings(cmd.OutOrStdout(), report.Warnings)
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "thesisscout %s (commit: %s)\n", version, commit)
		},
	}
}

// thesisText takes the text argument or reads --file; "-" reads stdin.
func thesisText(cmd *cobra.Command, args []string, file string) (string, error) {
	switch {
	case len(args) > 0 && file != "":
		return "", domain.InvalidInput("pass thesis text or --file, not both")
	case len(args) > 0:
		return args[0], nil
	case file == "-":
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(raw), nil
	case file != "":
		raw, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read thesis file: %w", err)
		}
		return string(raw), nil
	}
	return "", domain.InvalidInput("thesis text is required")
}

func printIngest(w io.Writer, opts *rootOptions, result domain.IngestResult) error {
	if opts.jsonOutput {
		return writeJSON(w, result)
	}
	fmt.Fprintf(w, "%s: %d articles, %d ok, %d failed", result.Source.URL, len(result.Articles), result.Succeeded, result.Failed)
	if result.Partial {
		fmt.Fprint(w, " (partial)")
	}
	if result.Exhausted {
		fmt.Fprint(w, " (discovery exhausted)")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tTITLE\tURL")
	for _, a := range result.Articles {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Method, clip(a.Title, 60), a.URL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return printWarnings(w, result.Warnings)
}

func printMatches(w io.Writer, opts *rootOptions, results []domain.MatchResult) error {
	if opts.jsonOutput {
		return writeJSON(w, results)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tTHESIS\tTITLE\tREASON")
	for _, m := range results {
		score := fmt.Sprintf("%.3f", m.Score)
		if m.BelowMin {
			score += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", score, clip(m.ThesisTitle, 30), clip(m.Article.Title, 50), m.Reason)
	}
	return tw.Flush()
}

func printArticle(w io.Writer, opts *rootOptions, article domain.Article) error {
	if opts.jsonOutput {
		return writeJSON(w, article)
	}
	fmt.Fprintf(w, "%s\n%s\n", article.Title, article.URL)
	if article.PublishedAt != nil {
		fmt.Fprintf(w, "published: %s\n", article.PublishedAt.Format("2006-01-02"))
	}
	for _, field := range []struct {
		label  string
		values []string
	}{
		{"authors", article.Authors},
		{"companies", article.Companies},
		{"keywords", article.Keywords},
	} {
		if len(field.values) > 0 {
			fmt.Fprintf(w, "%s: %s\n", field.label, strings.Join(field.values, ", "))
		}
	}
	if article.Summary != "" {
		fmt.Fprintf(w, "\nsummary: %s\n", article.Summary)
	}
	_, err := fmt.Fprintf(w, "\n%s\n", article.Text)
	return err
}

func printThesis(w io.Writer, opts *rootOptions, thesis domain.ThesisDocument) error {
	if opts.jsonOutput {
		return writeJSON(w, thesis)
	}
	fmt.Fprintf(w, "%s  %s (active=%t, model=%s)\n", thesis.ID, thesis.Title, thesis.Active, thesis.Embedding.Model)
	if len(thesis.Keywords) > 0 {
		fmt.Fprintf(w, "keywords: %s\n", strings.Join(thesis.Keywords, ", "))
	}
	if len(thesis.Companies) > 0 {
		fmt.Fprintf(w, "companies: %s\n", strings.Join(thesis.Companies, ", "))
	}
	return nil
}

func printTheses(w io.Writer, opts *rootOptions, theses []domain.ThesisDocument) error {
	if opts.jsonOutput {
		return writeJSON(w, theses)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACTIVE\tTITLE")
	for _, t := range theses {
		fmt.Fprintf(tw, "%s\t%t\t%s\n", t.ID, t.Active, clip(t.Title, 70))
	}
	return tw.Flush()
}

func printHistory(w io.Writer, opts *rootOptions, items []domain.HistoryItem) error {
	if opts.jsonOutput {
		return writeJSON(w, items)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tID\tSTAR\tCREATED\tTITLE")
	for _, item := range items {
		star := ""
		if item.Starred {
			star = "*"
		}
		label := item.Title
		if label == "" {
			label = item.URL
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", item.Kind, item.ID, star, item.CreatedAt.Format("2006-01-02 15:04"), clip(label, 60))
	}
	return tw.Flush()
}

func printWarnings(w io.Writer, warnings []string) error {
	for _, warning := range warnings {
		if _, err := fmt.Fprintf(w, "warning: %s\n", warning); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func clip(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ehrlich-b/newsroom/internal/backend"
	"github.com/ehrlich-b/newsroom/internal/proxy"
)

func scrapeCmd() *cobra.Command {
	perSource := backend.DefaultPerSource
	factCheck := backend.DefaultFactCheck

	cmd := &cobra.Command{
		Use:       "scrape per-source|fact-check",
		Short:     "Trigger a backend processing job",
		Long:      "Starts a scrape on the content backend directly, using the processing token from config or a prompt.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"per-source", "fact-check"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var job backend.Job
			switch args[0] {
			case "per-source":
				job = backend.PerSourceJob(perSource)
			case "fact-check":
				job = backend.FactCheckJob(factCheck)
			default:
				return fmt.Errorf("unknown job %q (want per-source or fact-check)", args[0])
			}

			token := cfg.Admin.Token
			if token == "" {
				if token, err = promptToken(); err != nil {
					return err
				}
			}

			client := backend.New(cfg.Backend.URL, cfg.Backend.AdminTimeout, 0)
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Backend.AdminTimeout)
			defer cancel()

			fmt.Printf("starting %s on %s...\n", job.Name, cfg.Backend.URL)
			status, body, err := client.Trigger(ctx, job, token)
			if err != nil {
				return fmt.Errorf("%s: %w", job.Name, err)
			}
			fmt.Printf("HTTP %d\n%s\n", status, proxy.NormalizeBody(body))
			if status < 200 || status > 299 {
				return fmt.Errorf("%s failed with HTTP %d", job.Name, status)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&perSource.TargetPerSource, "target-per-source", perSource.TargetPerSource, "per-source: articles to process per source")
	f.IntVar(&perSource.MaxRoundsPerSource, "max-rounds", perSource.MaxRoundsPerSource, "per-source: scrape rounds per source")
	f.IntVar(&factCheck.MaxTotalArticles, "max-total", factCheck.MaxTotalArticles, "fact-check: articles to process in total")
	f.IntVar(&factCheck.MaxFactsPerArticle, "max-facts", factCheck.MaxFactsPerArticle, "fact-check: facts to verify per article")
	var perPage int
	f.IntVar(&perPage, "max-per-page", 3, "articles taken from each listing page")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		perSource.MaxArticlesPerPage = perPage
		factCheck.MaxArticlesPerPage = perPage
	}
	return cmd
}

// promptToken reads the processing token from the terminal without echo.
func promptToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("PROCESSING_ADMIN_TOKEN is not set and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Processing token: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	return token, nil
}

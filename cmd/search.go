package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/filtering"
	"github.com/skillscope/skillscope/internal/match"
	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/pipeline"
	"github.com/skillscope/skillscope/internal/profile"
)

const (
	PromptEvaluate            = "Evaluate top matches"
	PromptReportByCompanies   = "Report by companies"
	PromptResultsToFile       = "Dump results to file"
	PromptAppendToExcludeFile = "Append all postings to exclude file"
	PromptExit                = "Exit"
)

var errExit = errors.New("exit requested")

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search job sources for postings matching the profile",
	Run: func(cmd *cobra.Command, _ []string) {
		search(cmd)
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().BoolP("yes", "y", false, "do not ask, evaluate the top matches right away")
	searchCmd.Flags().IntP("show", "n", 20, "number of matches to print")
	searchCmd.Flags().StringP("exclude-file", "e", "", "special file with postings to exclude. Default is unset.")

	viper.BindPFlag("pipeline.filters.exclude-file", searchCmd.Flags().Lookup("exclude-file"))
}

func search(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := newLogger()

	a, err := newApp(ctx, logger)
	if err != nil {
		logger.Fatal("preparing the application", zap.Error(err))
	}
	defer a.Close()

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(a.Config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	p, err := a.LoadProfile()
	if err != nil {
		logger.Fatal("loading the profile", zap.Error(err))
	}

	logger.Info("starting the skillscope search", zap.String("version", version), zap.String("profile_id", p.ID))

	res, err := a.Pipeline.Search(ctx, p)
	if err != nil {
		logger.Fatal("searching postings", zap.Error(err))
	}

	for _, q := range res.Queries {
		logger.Info("query acquired",
			zap.String("query", q.Query),
			zap.Bool("live", q.Live),
			zap.Int("postings", q.Postings),
			zap.Int("inserted", q.Inserted),
			zap.String("fallback_reason", q.FallbackReason),
		)
	}

	if len(res.Results) == 0 {
		logger.Info("exiting", zap.String("reason", "no postings found"))
		return
	}

	show, _ := cmd.Flags().GetInt("show")
	printResults(cmd.OutOrStdout(), res.Results, show)

	auto, _ := cmd.Flags().GetBool("yes")
	if auto {
		if err := evaluateTop(ctx, a, p, res, cmd); err != nil {
			logger.Fatal("evaluating matches", zap.Error(err))
		}
		return
	}

	items := []string{PromptEvaluate, PromptReportByCompanies, PromptResultsToFile}
	if a.Config.Pipeline.Filters.ExcludeFile != "" {
		items = append(items, PromptAppendToExcludeFile)
	}
	prompt := promptui.Select{
		Label: "What next?",
		Items: append(items, PromptExit),
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		logger.Info("current list of matches", zap.Int("count", len(res.Results)))

		if err := handleAction(ctx, cmd, a, action, p, res); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
		if len(res.Results) == 0 {
			logger.Info("exiting", zap.String("reason", "no matches left"))
			return
		}
	}
}

func handleAction(ctx context.Context, cmd *cobra.Command, a *App, action string, p *profile.Profile, res *pipeline.SearchResult) error {
	switch action {
	case PromptEvaluate:
		return evaluateTop(ctx, a, p, res, cmd)
	case PromptReportByCompanies:
		pretty, _ := json.MarshalIndent(reportByCompany(res.Results), "", "  ")
		a.Logger.Info(string(pretty), zap.Int("matches count", len(res.Results)))
		return nil
	case PromptResultsToFile:
		filename, err := dumpToTmpFile(res)
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		a.Logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptAppendToExcludeFile:
		return appendToExcludeFile(a, res)
	case PromptExit:
		a.Logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// evaluateTop evaluates the first matches by id, so the assessment sees the stored postings.
func evaluateTop(ctx context.Context, a *App, p *profile.Profile, res *pipeline.SearchResult, cmd *cobra.Command) error {
	top := match.Shortlist(res.Results, a.Config.Evaluate.TopN)
	ids := make([]string, 0, len(top))
	for _, r := range top {
		if r.Posting.ID != "" {
			ids = append(ids, r.Posting.ID)
		}
	}
	if len(ids) == 0 {
		return errors.New("none of the matches is stored, nothing to evaluate")
	}

	eval, err := a.Pipeline.Evaluate(ctx, p, ids)
	if eval != nil {
		printEvaluation(cmd.OutOrStdout(), eval)
	}
	if err != nil {
		return err
	}
	return nil
}

func appendToExcludeFile(a *App, res *pipeline.SearchResult) error {
	path := a.Config.Pipeline.Filters.ExcludeFile

	list, err := filtering.LoadExcludeList(path)
	if err != nil {
		return err
	}

	postings := make([]model.Posting, 0, len(res.Results))
	for _, r := range res.Results {
		postings = append(postings, r.Posting)
	}
	list.Append(filtering.ToExcludeList(postings, time.Now().UTC()))

	if err := list.ToFile(path); err != nil {
		return fmt.Errorf("write exclude file: %w", err)
	}

	a.Logger.Info("postings appended to exclude file",
		zap.String("exclude_file", path),
		zap.Int("count", len(postings)),
	)
	res.Results = nil
	return nil
}

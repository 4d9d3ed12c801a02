// Command batchctl submits, polls and downloads provider batch jobs from the
// command line using the same configuration as the server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"batchforge/internal/config"
	"batchforge/internal/csvexport"
	"batchforge/internal/domain"
	"batchforge/internal/provider/zhipu"
	"batchforge/internal/service"
)

const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
	exitConfig  = 3
)

const usage = `Usage:
  batchctl submit [-key K] [-model M] [-system S] [-prompt P] [-max-tokens N]
                  [-temperature F] [-top-p F] [-dry-run] <file.csv|file.xlsx>
  batchctl status [-key K] <job_id>
  batchctl fetch  [-key K] [-o out.csv] <job_id>`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one batchctl command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitConfig
	}
	svc := service.NewBatchService(zhipu.NewClient(&cfg.Provider), nil, nil, nil, &cfg.Batch, &cfg.Provider, &cfg.S3)

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "submit":
		err = submit(ctx, svc, cfg, rest, stdout)
	case "status":
		err = status(ctx, svc, cfg, rest, stdout)
	case "fetch":
		err = fetch(ctx, svc, cfg, rest, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n%s\n", cmd, usage)
		return exitUsage
	}

	var ue *usageError
	switch {
	case err == nil:
		return exitSuccess
	case errors.As(err, &ue):
		fmt.Fprintf(stderr, "%v\n%s\n", err, usage)
		return exitUsage
	default:
		fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return exitFailure
	}
}

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func newFlagSet(name string, cfg *config.Config) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	key := fs.String("key", cfg.Provider.APIKey, "provider API key (defaults to BATCHFORGE_PROVIDER_API_KEY)")
	return fs, key
}

func parseOne(fs *flag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", &usageError{msg: err.Error()}
	}
	if fs.NArg() != 1 {
		return "", &usageError{msg: fs.Name() + " requires exactly one " + what}
	}
	return fs.Arg(0), nil
}

func submit(ctx context.Context, svc service.BatchService, cfg *config.Config, args []string, stdout io.Writer) error {
	fs, key := newFlagSet("submit", cfg)
	defaults := svc.DefaultParams()
	model := fs.String("model", defaults.Model, "model name")
	system := fs.String("system", "", "system prompt")
	prompt := fs.String("prompt", defaults.UserPrompt, "user prompt template")
	maxTokens := fs.Int("max-tokens", defaults.MaxTokens, "max tokens per request")
	temperature := fs.Float64("temperature", defaults.Temperature, "sampling temperature")
	topP := fs.Float64("top-p", defaults.TopP, "nucleus sampling")
	dryRun := fs.Bool("dry-run", false, "report what would be submitted without contacting the provider")

	path, err := parseOne(fs, args, "input file")
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	params := defaults
	params.Model = *model
	params.SystemPrompt = *system
	params.UserPrompt = *prompt
	params.MaxTokens = *maxTokens
	params.Temperature = *temperature
	params.TopP = *topP

	input := service.BatchInput{
		APIKey:     *key,
		SourceName: filepath.Base(path),
		Reader:     f,
		Params:     params,
	}

	if *dryRun {
		p, err := svc.Preview(ctx, input)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "rows: %d  skipped: %d  records: %d  document: %d bytes\n",
			p.TotalRows, p.SkippedRows, p.RecordCount, p.DocumentBytes)
		for i, rec := range p.Sample {
			fmt.Fprintf(stdout, "  [%d] row %d: %s\n", i+1, rec.OriginIndex, rec.Text)
		}
		warnPlaceholder(stdout, p.PlaceholderMissing)
		return nil
	}

	res, err := svc.Submit(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "job: %s\nrows: %d  skipped: %d  records: %d\n",
		res.JobID, res.TotalRows, res.SkippedRows, res.RecordCount)
	warnPlaceholder(stdout, res.PlaceholderMissing)
	return nil
}

func warnPlaceholder(w io.Writer, missing bool) {
	if missing {
		fmt.Fprintln(w, "warning: the user prompt has no {content} placeholder; every request carries the same prompt")
	}
}

func status(ctx context.Context, svc service.BatchService, cfg *config.Config, args []string, stdout io.Writer) error {
	fs, key := newFlagSet("status", cfg)
	jobID, err := parseOne(fs, args, "job id")
	if err != nil {
		return err
	}

	job, err := svc.GetStatus(ctx, *key, jobID)
	if err != nil {
		return err
	}
	printJob(stdout, job)
	return nil
}

func printJob(w io.Writer, job *domain.Job) {
	fmt.Fprintf(w, "job: %s\nstatus: %s (%s)\nrequests: %d total, %d completed, %d failed\n",
		job.ID, job.Status, job.Status.Phase(), job.Counts.Total, job.Counts.Completed, job.Counts.Failed)
	for _, e := range job.Errors {
		fmt.Fprintf(w, "error: %s: %s\n", e.Code, e.Message)
	}
}

func fetch(ctx context.Context, svc service.BatchService, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs, key := newFlagSet("fetch", cfg)
	out := fs.String("o", "", "write the CSV to this file instead of stdout")
	jobID, err := parseOne(fs, args, "job id")
	if err != nil {
		return err
	}

	res, err := svc.GetResults(ctx, *key, jobID)
	if err != nil {
		return err
	}

	w := stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := csvexport.WriteResults(w, res.Result.Rows); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}

	fmt.Fprintf(stderr, "%d rows (%d lines skipped, %d duplicate ids)\n",
		len(res.Result.Rows), res.Result.Skipped, res.Result.Duplicates)
	return nil
}

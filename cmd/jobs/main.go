// Command jobs enqueues and inspects import jobs in the Postgres job queue.
//
// Usage:
//
//	go run ./cmd/jobs enqueue -priority 50 -source manual 1000 1100
//	go run ./cmd/jobs enqueue -source backfill -from 2015 -to 2020 1000
//	go run ./cmd/jobs list -status failed -limit 20
//	go run ./cmd/jobs show 0b6f3c1e-7a3d-4d6a-9f1e-2b1d7c9a4e10
//
// The database is read from -database or DATABASE_URL.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
	"github.com/couchcryptid/rainfall-import-service/internal/queue"
)

const usage = `usage: jobs [-database URL] <command> [flags] [args]

commands:
  enqueue  create a pending import job for each station id
  list     list jobs, newest first
  show     print one job as JSON`

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprintln(stderr, usage) }
	dsn := fs.String("database", sharedcfg.EnvOrDefault("DATABASE_URL", ""), "Postgres connection string")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 || *dsn == "" {
		fs.Usage()
		return 2
	}

	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		fmt.Fprintf(stderr, "connect: %v\n", err)
		return 1
	}
	defer pool.Close()

	q := queue.NewPostgres(pool, clockwork.NewRealClock(), queue.DefaultBackoff)
	if err := q.Migrate(ctx); err != nil {
		fmt.Fprintf(stderr, "migrate: %v\n", err)
		return 1
	}

	if err := execute(ctx, q, fs.Arg(0), fs.Args()[1:], stdout); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", fs.Arg(0), err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

var errUsage = errors.New("invalid usage")

func execute(ctx context.Context, q queue.Queue, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "enqueue":
		return enqueue(ctx, q, args, out)
	case "list":
		return list(ctx, q, args, out)
	case "show":
		return show(ctx, q, args, out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func enqueue(ctx context.Context, q queue.Queue, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	priority := fs.Int("priority", domain.DefaultPriority, "job priority, higher runs first")
	source := fs.String("source", string(domain.SourceManual), "job source: manual or backfill")
	retries := fs.Int("max-retries", domain.DefaultMaxRetries, "attempts before the job is marked failed")
	from := fs.Int("from", 0, "first water year to import")
	to := fs.Int("to", 0, "last water year to import")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: at least one station id is required", errUsage)
	}
	src := domain.JobSource(*source)
	if src != domain.SourceManual && src != domain.SourceBackfill {
		return fmt.Errorf("%w: source must be manual or backfill, got %q", errUsage, *source)
	}
	if *from > 0 && *to > 0 && *from > *to {
		return fmt.Errorf("%w: -from %d is after -to %d", errUsage, *from, *to)
	}

	var failed int
	for _, station := range fs.Args() {
		p := queue.EnqueueParams{
			StationID:  station,
			Priority:   *priority,
			Source:     src,
			MaxRetries: *retries,
		}
		if *from > 0 || *to > 0 {
			p.Snapshot = &domain.GaugeSummary{StationID: station, FromWaterYear: *from, ToWaterYear: *to}
		}
		job, err := q.Enqueue(ctx, p)
		switch {
		case errors.Is(err, domain.ErrDuplicateActiveJob):
			fmt.Fprintf(out, "%s\tskipped: station already has an active job\n", station)
		case err != nil:
			failed++
			fmt.Fprintf(out, "%s\terror: %v\n", station, err)
		default:
			fmt.Fprintf(out, "%s\t%s\n", station, job.ID)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d stations could not be enqueued", failed, fs.NArg())
	}
	return nil
}

func list(ctx context.Context, q queue.Queue, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	status := fs.String("status", "", "only jobs in this status")
	station := fs.String("station", "", "only jobs for this station")
	limit := fs.Int("limit", 50, "maximum jobs to print")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	st := domain.JobStatus(*status)
	if st != "" && !st.Active() && !st.Terminal() {
		return fmt.Errorf("%w: unknown status %q", errUsage, *status)
	}

	jobs, err := q.List(ctx, queue.ListFilter{Status: st, StationID: *station, Limit: *limit})
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}
	return writeTable(out, jobs)
}

func writeTable(out io.Writer, jobs []domain.ImportJob) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATION\tSTATUS\tPRIORITY\tRETRIES\tSOURCE\tCREATED\tLAST ERROR")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d/%d\t%s\t%s\t%s\n",
			j.ID, j.StationID, j.Status, j.Priority, j.RetryCount, j.MaxRetries,
			j.Source, j.CreatedAt.UTC().Format(time.RFC3339), truncate(j.LastError, 60))
	}
	return tw.Flush()
}

func show(ctx context.Context, q queue.Queue, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: show takes exactly one job id", errUsage)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	job, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

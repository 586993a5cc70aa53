// Command generate-events writes a reproducible batch of score events as
// newline-delimited JSON for replay through events_file.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/okian/podium/internal/eventsource"
	"github.com/okian/podium/pkg/logger"
)

const (
	outputFilePermission = 0o644
	dateLayout           = "2006-01-02"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		output   = flag.String("output", "", "Output file (default: stdout)")
		users    = flag.Int("users", eventsource.DefaultUsers, "Number of users in the roster")
		days     = flag.Int("days", eventsource.DefaultDays, "Number of days to cover")
		step     = flag.Duration("step", eventsource.DefaultStep, "Time between steps")
		minEv    = flag.Int("min", eventsource.DefaultMinPerStep, "Minimum events per step")
		maxEv    = flag.Int("max", eventsource.DefaultMaxPerStep, "Maximum events per step")
		seed     = flag.Uint64("seed", 1, "Random seed")
		start    = flag.String("start", "2013-03-01", "First day, YYYY-MM-DD")
		timezone = flag.String("tz", "America/Detroit", "IANA time zone of the start day")
	)
	flag.Parse()

	// Events may go to stdout; logs stay on stderr.
	logger.SetOutput(os.Stderr)
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	log := logger.Named("generate-events")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		log.Error(ctx, "invalid time zone", logger.String("tz", *timezone), logger.Error(err))
		return 1
	}
	first, err := time.ParseInLocation(dateLayout, *start, loc)
	if err != nil {
		log.Error(ctx, "invalid start day", logger.String("start", *start), logger.Error(err))
		return 1
	}

	gen, err := eventsource.NewGenerator(eventsource.GeneratorConfig{
		Users:      *users,
		Start:      first,
		Steps:      eventsource.StepsFor(*days, *step),
		Step:       *step,
		MinPerStep: *minEv,
		MaxPerStep: *maxEv,
		Seed:       *seed,
	})
	if err != nil {
		log.Error(ctx, "invalid generator settings", logger.Error(err))
		return 1
	}

	var out io.Writer = os.Stdout
	if *output != "" {
		f, err := os.OpenFile(*output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outputFilePermission)
		if err != nil {
			log.Error(ctx, "failed to create output file", logger.String("output", *output), logger.Error(err))
			return 1
		}
		defer func() {
			if err := f.Close(); err != nil {
				log.Error(ctx, "failed to close output file", logger.Error(err))
			}
		}()
		out = f
	}

	began := time.Now()
	n, err := eventsource.NewWriter(out).Copy(ctx, gen)
	if err != nil {
		log.Error(ctx, "failed to write events", logger.Int("written", n), logger.Error(err))
		return 1
	}
	log.Info(ctx, "events written",
		logger.Int("events", n),
		logger.Int("users", *users),
		logger.Any("seed", *seed),
		logger.Duration("elapsed", time.Since(began)),
	)
	return 0
}

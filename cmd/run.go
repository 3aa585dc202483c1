/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/config"
	"github.com/blacktop/autopost/internal/logutil"
	"github.com/blacktop/autopost/internal/metrics"
	"github.com/blacktop/autopost/internal/pipeline"
	"github.com/blacktop/autopost/internal/provider/bagdhara"
	"github.com/blacktop/autopost/internal/provider/bing"
	"github.com/blacktop/autopost/internal/provider/calendar"
	"github.com/blacktop/autopost/internal/provider/card"
	"github.com/blacktop/autopost/internal/provider/fetch"
	"github.com/blacktop/autopost/internal/provider/movie"
	"github.com/blacktop/autopost/internal/provider/progress"
	"github.com/blacktop/autopost/internal/provider/spotlight"
	"github.com/blacktop/autopost/internal/scheduler"
	"github.com/spf13/cobra"
	"golang.org/x/image/font"
)

var providerNames = []string{"bing", "spotlight", "calendar", "progress", "bagdhara", "movie"}

var providerDescriptions = map[string]string{
	"bing":      "Post the Bing wallpaper of the day",
	"spotlight": "Post up to four Windows Spotlight images",
	"calendar":  "Post today's Bangla calendar date as a card",
	"progress":  "Post the year's progress and reply with the time remaining",
	"bagdhara":  "Post a random Bangla idiom with its meaning",
	"movie":     "Post posters of movies released on this day",
}

func newProviderCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: providerDescriptions[name],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), appConfig, name, cmd.OutOrStdout())
		},
	}
}

func newProvider(name string, cfg *config.Config) (autopost.Provider, error) {
	opts := fetch.Options{
		Timeout:   cfg.HTTP.Timeout,
		Retries:   cfg.HTTP.Retries,
		UserAgent: cfg.HTTP.UserAgent,
	}
	client := fetch.New(opts)

	switch name {
	case "bing":
		return bing.New(bing.Config{
			Regions: cfg.Bing.Regions,
			Region:  cfg.Bing.Region,
			Seed:    cfg.Run.Seed,
		}, client), nil
	case "spotlight":
		return spotlight.New(spotlight.Config{
			Countries: cfg.Spotlight.Countries,
			Country:   cfg.Spotlight.Country,
			Locale:    cfg.Spotlight.Locale,
			Count:     cfg.Spotlight.Count,
			MinBytes:  cfg.Spotlight.MinBytes,
			Seed:      cfg.Run.Seed,
		}, client), nil
	case "calendar":
		loc, err := cfg.CalendarLocation()
		if err != nil {
			return nil, err
		}
		face, err := bengaliFace(cfg)
		if err != nil {
			return nil, err
		}
		return calendar.New(calendar.Config{
			Location: loc,
			Width:    cfg.Calendar.Width,
			Height:   cfg.Calendar.Height,
			Face:     face,
		}), nil
	case "progress":
		loc, err := cfg.CalendarLocation()
		if err != nil {
			return nil, err
		}
		return progress.New(progress.Config{
			Location: loc,
			Width:    cfg.Progress.Width,
			Height:   cfg.Progress.Height,
		}), nil
	case "bagdhara":
		face, err := bengaliFace(cfg)
		if err != nil {
			return nil, err
		}
		return bagdhara.New(bagdhara.Config{
			URL:    cfg.Bagdhara.URL,
			Seed:   cfg.Run.Seed,
			Width:  cfg.Calendar.Width,
			Height: cfg.Calendar.Height,
			Face:   face,
		}, client), nil
	case "movie":
		loc, err := cfg.CalendarLocation()
		if err != nil {
			return nil, err
		}
		user, key := cfg.KaggleCredentials()
		opts.MaxBodyBytes = movie.DefaultMaxDatasetBytes
		return movie.New(movie.Config{
			Dataset:  cfg.Movie.Dataset,
			Username: user,
			Key:      key,
			Count:    cfg.Movie.Count,
			Location: loc,
		}, fetch.New(opts)), nil
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

// bengaliFace loads calendar.font, or returns nil when none is configured.
func bengaliFace(cfg *config.Config) (font.Face, error) {
	if cfg.Calendar.Font == "" {
		return nil, nil
	}
	face, err := card.LoadFace(cfg.Calendar.Font, cfg.Calendar.FontSize)
	if err != nil {
		return nil, fmt.Errorf("calendar.font %s: %w", cfg.Calendar.Font, err)
	}
	return face, nil
}

func runOnce(ctx context.Context, cfg *config.Config, name string, out io.Writer) error {
	provider, err := newProvider(name, cfg)
	if err != nil {
		return err
	}
	publishers, err := buildPublishers(ctx, cfg.Run.Targets, cfg.Run.DryRun, out)
	if err != nil {
		return err
	}

	runner := pipeline.New(provider, publishers, pipeline.Options{
		Budget:    cfg.Budget.Budget(),
		Compress:  cfg.Budget.Compress(),
		DropOrder: cfg.Budget.DropOrder,
		Metrics:   metrics.New(),
	})
	res, runErr := runner.Run(ctx)
	for _, tr := range res.Targets {
		if tr.Err == nil && tr.Ref.URL != "" {
			fmt.Fprintf(out, "posted to %s: %s\n", tr.Target, tr.Ref.URL)
		}
		if tr.Reply.URL != "" {
			fmt.Fprintf(out, "replied on %s: %s\n", tr.Target, tr.Reply.URL)
		}
	}

	if path := cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			logutil.Warnf("write metrics textfile %s: %v", path, err)
		}
	}
	return runErr
}

func newScheduleCommand() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run providers on their cron schedules until interrupted",
		Long: "schedule runs every provider listed under schedule.jobs in the config file " +
			"(provider name -> five-field cron spec) in schedule.timezone.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := appConfig
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSchedule(ctx, cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func runSchedule(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if len(cfg.Schedule.Jobs) == 0 {
		return errors.New("no jobs configured under schedule.jobs")
	}

	s, err := scheduler.New(cfg.Schedule.Timezone)
	if err != nil {
		return err
	}
	for name, spec := range cfg.Schedule.Jobs {
		if _, err := newProvider(name, cfg); err != nil {
			return err
		}
		if err := s.AddJob(name, spec, func(ctx context.Context) error {
			return runOnce(ctx, cfg, name, out)
		}); err != nil {
			return err
		}
	}

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logutil.Infof("serving metrics on %s/metrics", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logutil.Errorf("metrics server: %v", err)
			}
		}()
	}

	s.Start(ctx)
	for _, job := range s.ListJobs() {
		logutil.Infof("%s next run at %s", job.Name, job.NextRun.Format(time.RFC3339))
	}

	<-ctx.Done()
	<-s.Stop().Done()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
	return nil
}

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
	"os"
	"sort"
	"strings"

	"github.com/blacktop/autopost/internal/autopost"
	"github.com/blacktop/autopost/internal/autopost/bluesky"
	"github.com/blacktop/autopost/internal/autopost/mastodon"
	"github.com/blacktop/autopost/internal/autopost/twitter"
	"github.com/blacktop/autopost/internal/config"
	"github.com/blacktop/autopost/internal/logutil"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	configPath  string
	targetsFlag []string
	dryRun      bool
	verbose     bool

	appConfig *config.Config
)

var supportedTargets = map[string]struct{}{
	"bluesky":  {},
	"mastodon": {},
	"twitter":  {},
}

var targetAliases = map[string]string{
	"bsky": "bluesky",
	"x":    "twitter",
}

const defaultBlueskyPDSURL = "https://bsky.social"

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autopost",
		Short: "Publish daily images to social networks",
		Long: "autopost fetches an image source (Bing, Windows Spotlight, movie posters of the day, " +
			"or a generated Bangla calendar, year progress or idiom card), fits every image and the caption " +
			"into each target's limits, and publishes one post per target.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		Example: `  autopost bing
  autopost spotlight --target bluesky --target mastodon
  autopost calendar --dry-run
  autopost progress --target all
  autopost schedule --metrics-addr :9090`,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Config file (default ~/.config/autopost/config.yaml)")
	flags.StringSliceVar(&targetsFlag, "target", nil, "Targets to post to (bluesky, mastodon, twitter, or all)")
	flags.BoolVar(&dryRun, "dry-run", false, "Print uploads and posts without publishing")
	flags.BoolVarP(&verbose, "verbose", "V", false, "Enable debug logging")
	cmd.Flags().SortFlags = false

	for _, name := range providerNames {
		cmd.AddCommand(newProviderCommand(name))
	}
	cmd.AddCommand(newScheduleCommand())
	cmd.AddCommand(newCompletionCommand())

	return cmd
}

func setup(cmd *cobra.Command, _ []string) error {
	logutil.SetVerbose(verbose)
	logutil.SetJSON(!term.IsTerminal(int(os.Stderr.Fd())))

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("dry-run") {
		cfg.Run.DryRun = dryRun
	}
	if cmd.Flags().Changed("target") {
		cfg.Run.Targets = targetsFlag
	}
	if cfg.Run.Targets, err = normalizeTargets(cfg.Run.Targets); err != nil {
		return err
	}

	appConfig = cfg
	return nil
}

func normalizeTargets(values []string) ([]string, error) {
	if len(values) == 0 {
		return []string{"bluesky"}, nil
	}

	result := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, raw := range values {
		raw = strings.TrimSpace(strings.ToLower(raw))
		if raw == "" {
			continue
		}
		if raw == "all" {
			return sortedTargets([]string{"twitter", "mastodon", "bluesky"}), nil
		}
		if alias, ok := targetAliases[raw]; ok {
			raw = alias
		}
		if _, ok := supportedTargets[raw]; !ok {
			return nil, fmt.Errorf("unsupported target %q", raw)
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		result = append(result, raw)
	}

	if len(result) == 0 {
		return nil, errors.New("no targets selected")
	}

	return sortedTargets(result), nil
}

func sortedTargets(targets []string) []string {
	out := append([]string(nil), targets...)
	sort.Strings(out)
	return out
}

var targetLimits = map[string]autopost.Limits{
	"bluesky":  bluesky.DefaultLimits,
	"mastodon": mastodon.DefaultLimits,
	"twitter":  twitter.DefaultLimits,
}

// targetMeasures count caption length the way each network does. Nil means
// graphemes.
var targetMeasures = map[string]func(string) int{
	"mastodon": mastodon.Length,
	"twitter":  twitter.WeightedLength,
}

func buildPublishers(ctx context.Context, targets []string, simulate bool, out io.Writer) ([]autopost.Publisher, error) {
	constructors := map[string]func(context.Context) (autopost.Publisher, error){
		"bluesky": func(ctx context.Context) (autopost.Publisher, error) {
			return bluesky.New(ctx, bluesky.Config{PDSURL: defaultBlueskyPDSURL})
		},
		"mastodon": func(ctx context.Context) (autopost.Publisher, error) {
			return mastodon.New(ctx)
		},
		"twitter": func(ctx context.Context) (autopost.Publisher, error) {
			return twitter.New(ctx)
		},
	}

	publishers := make([]autopost.Publisher, 0, len(targets))
	var errs []error
	for _, target := range targets {
		if simulate {
			publishers = append(publishers, autopost.NewDryRun(target, targetLimits[target], out, autopost.WithMeasure(targetMeasures[target])))
			continue
		}
		constructor, ok := constructors[target]
		if !ok {
			errs = append(errs, fmt.Errorf("target %q is not implemented", target))
			continue
		}
		publisher, err := constructor(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		publishers = append(publishers, publisher)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(publishers) == 0 {
		return nil, errors.New("no targets available")
	}
	return publishers, nil
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/benjaminschreck/go-dynprompts/internal/logging"
	"github.com/benjaminschreck/go-dynprompts/pkg/generator"
	"github.com/benjaminschreck/go-dynprompts/pkg/wildcard"
)

type generateOptions struct {
	inline      string
	count       int
	fromPrompts bool
	jsonOutput  bool
	watch       bool
}

// generateResult is the output for one template.
type generateResult struct {
	Source  string   `json:"source"`
	Prompts []string `json:"prompts"`
}

func newGenerateCmd() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate [template files...]",
		Short: "Render templates into prompts",
		Long: `Render each template into prompts. Use - to read a template from stdin.

With several files, each is rendered by its own generator concurrently;
output keeps the order of the arguments.`,
		Example: `  dynprompts generate -t "{{ choice('a', 'b') }}" -n 5
  dynprompts generate scene.j2 portrait.j2 --wildcards ./wildcards --json
  dynprompts generate prompts.txt --from-prompts`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.inline, "template", "t", "", "template text to render")
	flags.IntVarP(&opts.count, "count", "n", 1, "number of renders per template")
	flags.BoolVar(&opts.fromPrompts, "from-prompts", false, "treat each non-empty input line as its own template")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")
	flags.BoolVar(&opts.watch, "watch", false, "render again whenever the wildcard directory changes")
	return cmd
}

type namedSource struct {
	name string
	text string
}

func runGenerate(cmd *cobra.Command, args []string, opts *generateOptions) error {
	settings := settingsFrom(cmd)
	if opts.count < 1 {
		return errors.Newf("--count must be at least 1, got %d", opts.count)
	}

	sources, err := collectSources(cmd, args, opts.inline)
	if err != nil {
		return err
	}

	store, dir, closeStore, err := settings.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logging.Warn("Failed to close wildcard store: %v", err)
		}
	}()

	render := func() error {
		results, err := generateAll(cmd.Context(), sources, store, settings.Generator, opts)
		if err != nil {
			return err
		}
		return printResults(cmd.OutOrStdout(), results, opts.jsonOutput)
	}

	if err := render(); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}
	if dir == nil {
		return errors.New("--watch requires --wildcards")
	}
	return watchAndRender(cmd.Context(), dir, render)
}

func collectSources(cmd *cobra.Command, args []string, inline string) ([]namedSource, error) {
	var sources []namedSource
	if inline != "" {
		sources = append(sources, namedSource{name: "<inline>", text: inline})
	}
	for _, path := range args {
		text, err := readSource(cmd, path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, namedSource{name: path, text: text})
	}
	if len(sources) == 0 {
		return nil, errors.New("no template given: pass files, - for stdin, or --template")
	}
	return sources, nil
}

// generateAll renders every source with its own generator, concurrently.
func generateAll(ctx context.Context, sources []namedSource, store wildcard.Store, config *generator.Config, opts *generateOptions) ([]generateResult, error) {
	results := make([]generateResult, len(sources))
	g, ctx := errgroup.WithContext(ctx)

	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			gen := generator.NewJinjaGenerator(src.text, store, generator.WithConfig(config))

			var prompts []string
			var err error
			if opts.fromPrompts {
				prompts, err = gen.GenerateFromPrompts(splitPrompts(src.text))
			} else {
				prompts, err = gen.Generate(opts.count)
			}
			if err != nil {
				return errors.Wrapf(err, "%s", src.name)
			}
			results[i] = generateResult{Source: src.name, Prompts: prompts}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// splitPrompts returns the non-blank lines of text.
func splitPrompts(text string) []string {
	var prompts []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		prompts = append(prompts, line)
	}
	return prompts
}

func printResults(w io.Writer, results []generateResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, r := range results {
		for _, p := range r.Prompts {
			if _, err := fmt.Fprintln(w, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// watchAndRender re-runs render after every reload of dir until ctx is done.
func watchAndRender(ctx context.Context, dir *wildcard.DirStore, render func() error) error {
	w, err := wildcard.Watch(dir)
	if err != nil {
		return err
	}
	defer w.Close()

	var mu sync.Mutex
	w.OnReload(func(*wildcard.DirStore) {
		mu.Lock()
		defer mu.Unlock()
		if err := render(); err != nil {
			logging.Error("Render after reload failed: %v", err)
		}
	})

	logging.Info("Watching %s for wildcard changes, press Ctrl+C to stop", dir.Root())
	<-ctx.Done()
	return nil
}

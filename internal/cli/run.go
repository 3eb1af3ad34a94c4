package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/events"
	"github.com/kode4food/cascade/pkg/flow"
)

type runOptions struct {
	seed    string
	runID   string
	resume  string
	events  string
	verbose bool
}

func (a *app) runCommand() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run a flow document once and print the final snapshot",
		Long: "Run a flow document once and print the final snapshot.\n" +
			"Exits 0 when the run completes, 1 when it fails and 2 when " +
			"it is cancelled.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), args[0], &opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.seed, "seed", "",
		"initial state as a YAML or JSON object, merged over the document "+
			"(or over the persisted state when resuming)")
	f.StringVar(&opts.runID, "run-id", "", "run ID (generated when empty)")
	f.StringVar(&opts.resume, "resume", "",
		"resume the persisted run with this ID (requires --store)")
	f.StringVar(&opts.events, "events", "",
		"write every event as a JSON line to this file")
	f.BoolVarP(&opts.verbose, "verbose", "v", false,
		"print events as they happen")
	return cmd
}

func (a *app) run(ctx context.Context, path string, opts *runOptions) error {
	def, f, err := a.loadFlow(path)
	if err != nil {
		return err
	}

	seed := def.Seed()
	if opts.resume != "" {
		seed = api.Values{}
	}
	if opts.seed != "" {
		var extra api.Values
		if err := yaml.Unmarshal([]byte(opts.seed), &extra); err != nil {
			return fmt.Errorf("invalid --seed: %w", err)
		}
		maps.Copy(seed, extra)
	}

	runOpts := []flow.RunOption{flow.WithSeed(seed)}
	if opts.runID != "" {
		runOpts = append(runOpts, flow.WithRunID(api.RunID(opts.runID)))
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(st)
	if st != nil {
		runOpts = append(runOpts, flow.WithStore(st))
	}
	if opts.resume != "" {
		if st == nil {
			return fmt.Errorf("%w: --resume", ErrStoreRequired)
		}
		runOpts = append(runOpts, flow.WithResume(api.RunID(opts.resume)))
	}

	if opts.verbose {
		runOpts = append(runOpts, flow.WithListener(events.NewPrinter(a.errOut)))
	}
	if opts.events != "" {
		sl, err := a.eventSink(opts.events)
		if err != nil {
			return err
		}
		defer sl.Close()
		runOpts = append(runOpts, flow.WithListener(sl))
	}

	res, err := f.Kickoff(ctx, runOpts...)
	if err != nil {
		return err
	}
	if err := a.printJSON(runResponse(res)); err != nil {
		return err
	}
	return exitStatus(res.Status, res.Err)
}

func (a *app) eventSink(path string) (*events.SinkListener, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	sl, err := events.NewSinkListener(
		events.NewJSONSink(file), a.cfg.SinkBatchSize,
	)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return sl, nil
}

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

func runResponse(res *flow.Result) *api.RunResponse {
	resp := &api.RunResponse{
		Snapshot:   res.Snapshot(),
		FailedStep: res.FailedStep,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return resp
}

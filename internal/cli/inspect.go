package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/store"
)

var ErrRunNotFound = errors.New("run not found")

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check that flow documents load and build",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				def, f, err := a.loadFlow(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				_, _ = fmt.Fprintf(a.out, "%s: %s ok (%d steps)\n",
					path, f.Name(), len(def.Steps))
			}
			return nil
		},
	}
}

func (a *app) describeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe FILE",
		Short: "Print the steps and edges of a flow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, f, err := a.loadFlow(args[0])
			if err != nil {
				return err
			}
			g, err := f.Build()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(a.out, g.Describe())
			return err
		},
	}
}

func (a *app) stateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "state RUN_ID",
		Short: "Print the persisted snapshot of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if st == nil {
				return ErrStoreRequired
			}
			defer closeStore(st)

			snap, err := st.Load(cmd.Context(), api.RunID(args[0]))
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrRunNotFound, args[0])
			}
			if err != nil {
				return err
			}
			return a.printJSON(snap)
		},
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type historyOpts struct {
	*rootOpts
}

func newHistory(parent *rootOpts) *historyOpts {
	return &historyOpts{rootOpts: parent}
}

func (opts *historyOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "show the published desired states, oldest first",
		Example: makeExample(
			"rollctl history",
		),
		RunE: opts.RunE,
	}
}

func (opts *historyOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}

	history, err := opts.API.History(context.Background())
	if err != nil {
		return err
	}

	w := newTabwriter()
	fmt.Fprintln(w, "REVISION\tIMAGE\tREPLICAS\tDIGEST")
	for _, state := range history {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", state.Revision.Counter, state.Image, state.Replicas, state.Revision.Digest)
	}
	w.Flush()
	return nil
}

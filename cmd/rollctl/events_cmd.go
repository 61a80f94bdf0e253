package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type eventsOpts struct {
	*rootOpts
}

func newEvents(parent *rootOpts) *eventsOpts {
	return &eventsOpts{rootOpts: parent}
}

func (opts *eventsOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "show recent daemon events, oldest first",
		Example: makeExample(
			"rollctl events",
		),
		RunE: opts.RunE,
	}
}

func (opts *eventsOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}

	events, err := opts.API.Events(context.Background())
	if err != nil {
		return err
	}

	w := newTabwriter()
	fmt.Fprintln(w, "TIME\tTYPE\tREVISION\tMESSAGE")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.StartedAt.Format("2006-01-02 15:04:05"), e.Type, e.Revision.Counter, e.Message)
	}
	w.Flush()
	return nil
}

package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type statusOpts struct {
	*rootOpts
	output string
}

func newStatus(parent *rootOpts) *statusOpts {
	return &statusOpts{rootOpts: parent}
}

func (opts *statusOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "display the daemon's sync status",
		Example: makeExample(
			"rollctl status --output=json",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "yaml", `The format to output ("yaml" or "json")`)
	return cmd
}

func (opts *statusOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}

	marshal, err := outputMarshal(opts.output)
	if err != nil {
		return err
	}

	summary, err := opts.API.Status(context.Background())
	if err != nil {
		return err
	}

	bytes, err := marshal(summary)
	if err != nil {
		return errors.Wrap(err, "marshalling to output format "+opts.output)
	}
	cmd.OutOrStdout().Write(bytes)
	return nil
}

package main

import (
	"context"

	"github.com/spf13/cobra"
)

type exportOpts struct {
	*rootOpts
}

func newExport(parent *rootOpts) *exportOpts {
	return &exportOpts{rootOpts: parent}
}

func (opts *exportOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "export the desired-state history as YAML",
		Example: makeExample(
			"rollctl export > history.yaml",
		),
		RunE: opts.RunE,
	}
}

func (opts *exportOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}

	body, err := opts.API.Export(context.Background())
	if err != nil {
		return err
	}
	cmd.OutOrStdout().Write(body)
	return nil
}

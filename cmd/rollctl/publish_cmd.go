package main

import (
	"context"
	"fmt"
	"io/ioutil"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fluxcd/rollout/pkg/image"
	"github.com/fluxcd/rollout/pkg/resource"
)

type publishOpts struct {
	*rootOpts
	image string
	file  string
}

func newPublish(parent *rootOpts) *publishOpts {
	return &publishOpts{rootOpts: parent}
}

func (opts *publishOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "publish a new desired state",
		Example: makeExample(
			"rollctl publish --image=quay.io/example/app:v1.2.3",
			"rollctl publish --file=spec.yaml",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.image, "image", "i", "", "image reference to publish; the rest of the spec is carried over from the current desired state")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "path to a YAML spec to publish, or - to read from stdin")
	return cmd
}

func (opts *publishOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}
	if (opts.image == "") == (opts.file == "") {
		return newUsageError("please supply exactly one of --image, --file")
	}

	ctx := context.Background()

	var rev resource.Revision
	switch {
	case opts.image != "":
		ref, err := image.ParseRef(opts.image)
		if err != nil {
			return newUsageError(err.Error())
		}
		rev, err = opts.API.PublishImage(ctx, ref)
		if err != nil {
			return err
		}
	default:
		var body []byte
		var err error
		if opts.file == "-" {
			body, err = ioutil.ReadAll(cmd.InOrStdin())
		} else {
			body, err = ioutil.ReadFile(opts.file)
		}
		if err != nil {
			return errors.Wrap(err, "reading spec")
		}
		var spec resource.Spec
		if err := yaml.Unmarshal(body, &spec); err != nil {
			return errors.Wrap(err, "parsing spec")
		}
		rev, err = opts.API.PublishSpec(ctx, spec)
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "published as revision %d\n", rev.Counter)
	return nil
}

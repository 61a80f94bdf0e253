package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxcd/rollout/pkg/api"
	"github.com/fluxcd/rollout/pkg/http/client"
	httpdaemon "github.com/fluxcd/rollout/pkg/http/daemon"
)

const (
	EnvVariableURL = "ROLLOUT_URL"
)

type rootOpts struct {
	URL string
	API api.Server
}

func newRoot() *rootOpts {
	return &rootOpts{}
}

var rootLongHelp = strings.TrimSpace(`
rollctl talks to the rollout daemon.

Workflow:
  rollctl status                                 # Is live state converged on desired state?
  rollctl publish --image=example/app:v1.2.3     # Publish a new image as desired state.
  rollctl events                                 # What has the daemon been doing?
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "rollctl",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVarP(&opts.URL, "url", "u", "http://localhost:3030",
		fmt.Sprintf("base URL of the rolloutd API server; you can also set the environment variable %s", EnvVariableURL))

	cmd.AddCommand(
		newStatus(opts).Command(),
		newExport(opts).Command(),
		newHistory(opts).Command(),
		newEvents(opts).Command(),
		newPublish(opts).Command(),
		newVersionCommand(),
	)

	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	url := os.Getenv(EnvVariableURL)
	if cmd.Flags().Changed("url") || url == "" {
		url = opts.URL
	}

	opts.API = client.New(http.DefaultClient, httpdaemon.NewRouter(), url)
	return nil
}

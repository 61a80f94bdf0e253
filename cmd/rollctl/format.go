package main

import (
	"encoding/json"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

func newTabwriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
}

func makeExample(examples ...string) string {
	var buf strings.Builder
	for _, ex := range examples {
		buf.WriteString("  " + ex + "\n")
	}
	return strings.TrimRight(buf.String(), "\n")
}

// outputMarshal picks a marshaller for the --output flag.
func outputMarshal(format string) (func(interface{}) ([]byte, error), error) {
	switch format {
	case "yaml":
		return yaml.Marshal, nil
	case "json":
		return func(v interface{}) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}, nil
	default:
		return nil, errors.New("unknown output format " + format)
	}
}

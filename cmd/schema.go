// Package cmd implements the command-line interface for reelfeed.
package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/reelfeed/reelfeed/feed"
	"github.com/reelfeed/reelfeed/history"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(schemaCmd)

	schemaCmd.Flags().BoolP("history", "s", false, "Generate the JSON Schema for watch history records")
}

// schemaCmd generates JSON schemas for the structured data this application
// reads and writes, for consumption by external tooling.
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate JSON schemas for structured application outputs",
	Run: func(cmd *cobra.Command, args []string) {
		reflector := new(jsonschema.Reflector)
		reflector.Anonymous = true
		reflector.Namer = func(t reflect.Type) string {
			name := t.Name()
			switch strings.ToLower(name) {
			case "descriptor", "saveditem":
				return filepath.Base(t.PkgPath()) + "." + name
			}

			return name
		}

		var schema *jsonschema.Schema

		switch {
		case lo.Must(cmd.Flags().GetBool("history")):
			schema = reflector.Reflect(map[string]*history.SavedItem{})
		default:
			schema = reflector.Reflect([]*feed.Descriptor{})
		}

		handleErr(json.NewEncoder(os.Stdout).Encode(schema))
	},
}

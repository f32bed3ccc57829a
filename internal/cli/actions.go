package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orbyt-dev/orbyt/internal/action"
)

var actionsJSON bool

// handlerInfo is the serializable view of one registered action handler.
type handlerInfo struct {
	Name         string              `json:"name"`
	Version      string              `json:"version"`
	Actions      []string            `json:"actions"`
	Capabilities action.Capabilities `json:"capabilities"`
}

// actionsCmd implements "orbyt actions". It lists the registered action
// handlers, the action name patterns they serve, and their capability
// metadata.
var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List registered action handlers",
	Long: `List every registered action handler with its supported action
patterns and capability metadata (concurrency, idempotence, resources).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := action.NewRegistry()
		action.RegisterBuiltins(registry)

		infos := make([]handlerInfo, 0)
		for _, h := range registry.Handlers() {
			infos = append(infos, handlerInfo{
				Name:         h.Name(),
				Version:      h.Version(),
				Actions:      h.SupportedActions(),
				Capabilities: h.Capabilities(),
			})
		}

		if actionsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(infos)
		}

		printHandlers(cmd, infos)
		return nil
	},
}

func init() {
	actionsCmd.Flags().BoolVar(&actionsJSON, "json", false, "Output the handler list as JSON")
	rootCmd.AddCommand(actionsCmd)
}

// printHandlers writes the human-readable handler listing.
func printHandlers(cmd *cobra.Command, infos []handlerInfo) {
	out := cmd.OutOrStdout()

	header := styleHeader.Render("Registered Action Handlers")
	fmt.Fprintln(out, header)
	fmt.Fprintln(out, strings.Repeat("=", len("Registered Action Handlers")))
	fmt.Fprintln(out)

	for _, info := range infos {
		fmt.Fprintln(out, styleSection.Render(fmt.Sprintf("%s (v%s)", info.Name, info.Version)))
		fmt.Fprintf(out, "  actions:    %s\n", strings.Join(info.Actions, ", "))
		fmt.Fprintf(out, "  concurrent: %t\n", info.Capabilities.Concurrent)
		fmt.Fprintf(out, "  idempotent: %t\n", info.Capabilities.Idempotent)
		if len(info.Capabilities.Resources) > 0 {
			fmt.Fprintf(out, "  resources:  %s\n", strings.Join(info.Capabilities.Resources, ", "))
		}
		if info.Capabilities.Cost != "" {
			fmt.Fprintf(out, "  cost:       %s\n", info.Capabilities.Cost)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "%d handler(s) registered\n", len(infos))
}

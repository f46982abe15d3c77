package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Execute creates the root command tree and runs it
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

// options are the persistent flags shared by subcommands
type options struct {
	dbURL    string
	redisURL string
	jsonOut  bool
}

func newRootCmd(version string) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "authzctl",
		Short: "Inspect and administer tenantguard authorization",
		Long: `authzctl answers authorization questions offline against the built-in
role table and manages dynamic permission grants in the permission store.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.dbURL, "db", os.Getenv("TENANTGUARD_POSTGRES_URL"), "permission store URL")
	cmd.PersistentFlags().StringVar(&opts.redisURL, "redis", os.Getenv("TENANTGUARD_REDIS_URL"), "shared permission cache URL, invalidated after grant changes")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "output as JSON")

	cmd.AddCommand(newRolesCmd(opts))
	cmd.AddCommand(newPermissionsCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newCanCmd(opts))
	cmd.AddCommand(newGuardCmd(opts))
	cmd.AddCommand(newGrantCmd(opts))
	cmd.AddCommand(newRevokeCmd(opts))
	cmd.AddCommand(newGrantsCmd(opts))

	return cmd
}

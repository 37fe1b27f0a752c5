package up

import (
	"github.com/spf13/cobra"

	"github.com/instruqt/armlab/internal/lab"
	generalutils "github.com/instruqt/armlab/utils/general"
)

type UpDependencies struct {
	Service lab.ServiceFactory
}

// NewUpCmd provisions one ARM lab VM end to end.
func NewUpCmd(deps UpDependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Provision an ARM lab VM",
		Long: `Creates the firewall/network resources and a single ARM64 VM on the
selected cloud, waits for a public IP and prints connection instructions.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := generalutils.HandleSignals(cmd.Context())
			svc, err := deps.Service(ctx)
			if err != nil {
				return err
			}
			return svc.Up(ctx)
		},
	}
}

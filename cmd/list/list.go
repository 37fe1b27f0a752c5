package list

import (
	"github.com/spf13/cobra"

	"github.com/instruqt/armlab/internal/lab"
	generalutils "github.com/instruqt/armlab/utils/general"
)

type ListDependencies struct {
	Service lab.ServiceFactory
}

// NewListCmd lists the lab VMs managed by this tool.
func NewListCmd(deps ListDependencies) *cobra.Command {
	return &cobra.Command{
		Use:          "list",
		Short:        "List armlab-managed VMs",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := generalutils.HandleSignals(cmd.Context())
			svc, err := deps.Service(ctx)
			if err != nil {
				return err
			}
			return svc.List(ctx)
		},
	}
}

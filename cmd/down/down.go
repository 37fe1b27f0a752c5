package down

import (
	"github.com/spf13/cobra"

	"github.com/instruqt/armlab/internal/lab"
	generalutils "github.com/instruqt/armlab/utils/general"
)

type DownDependencies struct {
	Service lab.ServiceFactory
}

// NewDownCmd deletes every resource a previous up run created.
func NewDownCmd(deps DownDependencies) *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "down <run-id>",
		Short: "Delete the resources of a lab run",
		Long: `Deletes the VM, firewall and networking resources tagged with the
given run ID. The run ID is the timestamp suffix printed by up.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := generalutils.HandleSignals(cmd.Context())
			svc, err := deps.Service(ctx)
			if err != nil {
				return err
			}
			return svc.Down(ctx, args[0], assumeYes)
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

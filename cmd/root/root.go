package root

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdDown "github.com/instruqt/armlab/cmd/down"
	cmdList "github.com/instruqt/armlab/cmd/list"
	cmdUp "github.com/instruqt/armlab/cmd/up"
	cmdVersion "github.com/instruqt/armlab/cmd/version"
	"github.com/instruqt/armlab/internal/config"
	"github.com/instruqt/armlab/internal/providers"
)

// NewRootCmd builds the armlab command tree.
func NewRootCmd(version string) *cobra.Command {
	v := config.NewViper()
	logger := logrus.New()

	cmd := &cobra.Command{
		Use:   "armlab",
		Short: "Provision ephemeral ARM lab VMs",
		Long: `armlab provisions a single ARM64 virtual machine plus minimal
networking and firewall resources on GCP, Azure or AWS, for ephemeral
Instruqt training sandboxes.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if v.GetBool(config.ParamVerbose) {
				logger.SetLevel(logrus.DebugLevel)
			}
			if v.GetBool(config.ParamJSON) {
				logger.SetFormatter(&logrus.JSONFormatter{})
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP(config.ParamProvider, "p", "", "cloud provider ("+strings.Join(providers.Names(), "|")+")")
	pf.String(config.ParamNamePrefix, config.DefaultNamePrefix, "prefix for all created resource names")
	pf.String(config.ParamSSHPublicKey, "", "path to the SSH public key installed on the VM")
	pf.String(config.ParamOutput, "", "path of the connection summary file")
	pf.String(config.ParamFormat, "text", "summary file format (text|yaml)")
	pf.Duration(config.ParamTimeout, config.DefaultPollTimeout, "how long to wait for a public IP")
	pf.Bool(config.ParamVerbose, false, "enable debug logging")
	pf.Bool(config.ParamJSON, false, "log in JSON format")

	pf.String(config.ParamProject, "", "GCP project ID")
	pf.String(config.ParamZone, config.DefaultZone, "GCP zone")
	pf.String(config.ParamRegion, "", "AWS region (defaults to the SDK chain)")
	pf.String(config.ParamLocation, config.DefaultLocation, "Azure location")
	pf.String(config.ParamResourceGroup, "", "Azure resource group (defaults to the first existing one)")

	if err := v.BindPFlags(pf); err != nil {
		logger.WithError(err).Fatal("Failed to bind flags")
	}

	deps := defaultDependencies(v, logger)
	cmd.AddCommand(cmdUp.NewUpCmd(deps.Up))
	cmd.AddCommand(cmdDown.NewDownCmd(deps.Down))
	cmd.AddCommand(cmdList.NewListCmd(deps.List))
	cmd.AddCommand(cmdVersion.NewVersionCmd(version))

	return cmd
}

type dependencies struct {
	Up   cmdUp.UpDependencies
	Down cmdDown.DownDependencies
	List cmdList.ListDependencies
}

func defaultDependencies(v *viper.Viper, logger *logrus.Logger) dependencies {
	factory := newServiceFactory(v, logger)
	return dependencies{
		Up:   cmdUp.UpDependencies{Service: factory},
		Down: cmdDown.DownDependencies{Service: factory},
		List: cmdList.ListDependencies{Service: factory},
	}
}

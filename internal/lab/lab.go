package lab

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/instruqt/armlab/internal/config"
	"github.com/instruqt/armlab/internal/provider"
	"github.com/instruqt/armlab/internal/summary"
	"github.com/instruqt/armlab/models"
	promptutils "github.com/instruqt/armlab/utils/prompt"
	"github.com/instruqt/armlab/utils/spinner"
	"github.com/instruqt/armlab/utils/sshkey"
)

var validate = validator.New()

// Handler runs the end-to-end lab workflows on top of a cloud provider.
type Handler struct {
	Config   *config.Config
	Provider provider.Provider
	Fs       afero.Fs
	Log      logrus.FieldLogger
	Out      io.Writer
	Prompter promptutils.Prompter
}

// New returns a handler with the real filesystem and prompter wired in.
func New(cfg *config.Config, p provider.Provider, logger logrus.FieldLogger, out io.Writer) *Handler {
	return &Handler{
		Config:   cfg,
		Provider: p,
		Fs:       afero.NewOsFs(),
		Log:      logger,
		Out:      out,
		Prompter: promptutils.NewPrompt(),
	}
}

// Up provisions one ARM lab VM and prints/saves the connection summary.
func (h *Handler) Up(ctx context.Context) error {
	key, err := sshkey.Load(h.Fs, h.Config.SSHKeyPath)
	if err != nil {
		return err
	}
	h.Log.WithField("fingerprint", key.Fingerprint).Debug("Loaded SSH public key")

	spec := models.VMSpec{
		NamePrefix:   h.Config.NamePrefix,
		RunID:        strconv.FormatInt(time.Now().Unix(), 10),
		SSHPublicKey: key.Authorized,
		Ports:        models.LabPorts,
	}
	if err := validate.Struct(spec); err != nil {
		return err
	}

	h.Log.WithFields(logrus.Fields{"run_id": spec.RunID, "provider": h.Provider.Name()}).
		Info("Provisioning lab VM")

	sp := spinner.New(fmt.Sprintf("Provisioning %s...", spec.InstanceName()))
	sp.Start()
	inst, err := h.Provider.Provision(ctx, spec)
	sp.Stop()
	if err != nil {
		// Resources created before the failure are left in place, as the
		// original scripts did. The run ID makes them collectable.
		return fmt.Errorf("provisioning run %s failed: %w", spec.RunID, err)
	}

	s := summary.Build(inst)
	summary.Print(h.Out, s)

	if err := summary.Write(h.Fs, h.Config.OutputPath, s, h.Config.Format); err != nil {
		return err
	}
	fmt.Fprintf(h.Out, "Instance info saved to %s.\n", h.Config.OutputPath)
	return nil
}

// Down tears down every resource created by the given run.
func (h *Handler) Down(ctx context.Context, runID string, assumeYes bool) error {
	if !assumeYes {
		ok := h.Prompter.PromptForConfirmation(fmt.Sprintf("Delete all %s resources of run %s", h.Provider.Name(), runID))
		if !ok {
			fmt.Fprintln(h.Out, "Aborted.")
			return nil
		}
	}

	h.Log.WithFields(logrus.Fields{"run_id": runID, "provider": h.Provider.Name()}).
		Info("Destroying lab resources")

	sp := spinner.New(fmt.Sprintf("Destroying run %s...", runID))
	sp.Start()
	err := h.Provider.Destroy(ctx, runID)
	sp.Stop()
	if err != nil {
		return fmt.Errorf("destroying run %s failed: %w", runID, err)
	}
	fmt.Fprintf(h.Out, "All resources of run %s deleted.\n", runID)
	return nil
}

// List prints the lab VMs managed by this tool.
func (h *Handler) List(ctx context.Context) error {
	instances, err := h.Provider.List(ctx)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		fmt.Fprintln(h.Out, "No lab VMs found.")
		return nil
	}

	table := tablewriter.NewWriter(h.Out)
	table.SetHeader([]string{"Name", "Run ID", "State", "Public IP", "Type", "Location", "Launched"})
	for _, inst := range instances {
		launched := ""
		if !inst.LaunchedAt.IsZero() {
			launched = inst.LaunchedAt.Format(time.RFC3339)
		}
		table.Append([]string{
			inst.Name,
			inst.RunID,
			inst.State,
			inst.PublicIPAddress,
			inst.MachineType,
			inst.Location,
			launched,
		})
	}
	table.Render()
	return nil
}

package gcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	compute "google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"

	"github.com/instruqt/armlab/internal/config"
	"github.com/instruqt/armlab/internal/provider"
	"github.com/instruqt/armlab/models"
)

const ProviderName = "gcp"

const (
	// Ampere Altra, the smallest ARM machine type on GCE.
	machineType = "t2a-standard-1"

	imageProject = "ubuntu-os-cloud"
	imageFamily  = "ubuntu-2204-lts-arm64"

	adminUser = "ubuntu"

	// Operations finish much faster than IP assignment; poll them tighter.
	operationPollInterval = 2 * time.Second
)

// Provider provisions lab VMs on Google Compute Engine.
type Provider struct {
	api          ComputeAPI
	log          logrus.FieldLogger
	project      string
	zone         string
	pollInterval time.Duration
	pollTimeout  time.Duration
}

var _ provider.Provider = (*Provider)(nil)

// NewFromConfig builds a GCE service client using application default
// credentials.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (provider.Provider, error) {
	if cfg.GCP.Project == "" {
		return nil, fmt.Errorf("GCP project not set (use --project or GOOGLE_PROJECT)")
	}
	srv, err := compute.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute service: %w", err)
	}
	return New(NewComputeAPI(srv), logger, cfg.GCP.Project, cfg.GCP.Zone, cfg.PollInterval, cfg.PollTimeout), nil
}

// New wires an existing compute API; used by tests.
func New(api ComputeAPI, logger logrus.FieldLogger, project, zone string, pollInterval, pollTimeout time.Duration) *Provider {
	return &Provider{
		api:          api,
		log:          logger,
		project:      project,
		zone:         zone,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

func (p *Provider) Name() models.CloudProvider { return models.ProviderGCP }

func (p *Provider) Provision(ctx context.Context, spec models.VMSpec) (*models.Instance, error) {
	image, err := p.api.GetImageFromFamily(ctx, imageProject, imageFamily)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Ubuntu image: %w", classifyError(err))
	}

	if err := p.createFirewall(ctx, spec); err != nil {
		return nil, err
	}

	if err := p.createInstance(ctx, spec, image.SelfLink); err != nil {
		return nil, err
	}

	p.log.WithFields(logrus.Fields{"instance_name": spec.InstanceName(), "run_id": spec.RunID}).
		Info("Instance created, waiting for public IP")
	return p.waitForPublicIP(ctx, spec)
}

// networkTag links the firewall rule to the instance it protects.
func networkTag(runID string) string {
	return "armlab-" + runID
}

func (p *Provider) createFirewall(ctx context.Context, spec models.VMSpec) error {
	name := spec.FirewallName()
	p.log.WithField("firewall", name).Info("Creating firewall rule")

	fw := &compute.Firewall{
		Name: name,
		Allowed: []*compute.FirewallAllowed{
			{
				IPProtocol: "tcp",
				Ports: lo.Map(spec.Ports, func(port int32, _ int) string {
					return strconv.Itoa(int(port))
				}),
			},
		},
		Direction:    "INGRESS",
		SourceRanges: []string{"0.0.0.0/0"},
		TargetTags:   []string{networkTag(spec.RunID)},
	}

	op, err := p.api.InsertFirewall(ctx, p.project, fw)
	if err != nil {
		return fmt.Errorf("failed to create firewall %s: %w", name, classifyError(err))
	}
	return p.waitForGlobalOperation(ctx, op)
}

func (p *Provider) createInstance(ctx context.Context, spec models.VMSpec, sourceImage string) error {
	name := spec.InstanceName()
	p.log.WithField("instance_name", name).Info("Creating instance")

	inst := &compute.Instance{
		Name:        name,
		MachineType: fmt.Sprintf("zones/%s/machineTypes/%s", p.zone, machineType),
		Disks: []*compute.AttachedDisk{
			{
				Boot:       true,
				AutoDelete: true,
				InitializeParams: &compute.AttachedDiskInitializeParams{
					SourceImage: sourceImage,
				},
			},
		},
		NetworkInterfaces: []*compute.NetworkInterface{
			{
				Network: "global/networks/default",
				AccessConfigs: []*compute.AccessConfig{
					{Name: "External NAT", Type: "ONE_TO_ONE_NAT"},
				},
			},
		},
		Metadata: &compute.Metadata{
			Items: []*compute.MetadataItems{
				{
					Key:   "ssh-keys",
					Value: googleapi.String(fmt.Sprintf("%s:%s", adminUser, spec.SSHPublicKey)),
				},
			},
		},
		Labels: map[string]string{
			models.ManagedByKey: models.ManagedByValue,
			models.RunIDKey:     spec.RunID,
		},
		Tags: &compute.Tags{Items: []string{networkTag(spec.RunID)}},
	}

	op, err := p.api.InsertInstance(ctx, p.project, p.zone, inst)
	if err != nil {
		return fmt.Errorf("failed to create instance %s: %w", name, classifyError(err))
	}
	return p.waitForZoneOperation(ctx, op)
}

func (p *Provider) waitForPublicIP(ctx context.Context, spec models.VMSpec) (*models.Instance, error) {
	deadline := time.Now().Add(p.pollTimeout)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	name := spec.InstanceName()
	for {
		inst, err := p.api.GetInstance(ctx, p.project, p.zone, name)
		if err != nil {
			return nil, classifyError(err)
		}
		if ip := natIP(inst); ip != "" {
			return p.toInstance(inst), nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("instance %s: %w", name, provider.ErrIPTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Provider) Destroy(ctx context.Context, runID string) error {
	instances, err := p.api.ListInstances(ctx, p.project, p.zone, fmt.Sprintf("labels.%s=%s", models.RunIDKey, runID))
	if err != nil {
		return classifyError(err)
	}
	for _, inst := range instances {
		p.log.WithField("instance_name", inst.Name).Info("Deleting instance")
		op, err := p.api.DeleteInstance(ctx, p.project, p.zone, inst.Name)
		if err != nil {
			return fmt.Errorf("failed to delete instance %s: %w", inst.Name, classifyError(err))
		}
		if err := p.waitForZoneOperation(ctx, op); err != nil {
			return err
		}
	}

	// Firewalls carry no labels; match them by the run suffix in the name.
	firewalls, err := p.api.ListFirewalls(ctx, p.project)
	if err != nil {
		return classifyError(err)
	}
	for _, fw := range firewalls {
		if !strings.HasSuffix(fw.Name, "-fw-"+runID) {
			continue
		}
		p.log.WithField("firewall", fw.Name).Info("Deleting firewall rule")
		op, err := p.api.DeleteFirewall(ctx, p.project, fw.Name)
		if err != nil {
			return fmt.Errorf("failed to delete firewall %s: %w", fw.Name, classifyError(err))
		}
		if err := p.waitForGlobalOperation(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) List(ctx context.Context) ([]models.Instance, error) {
	instances, err := p.api.ListInstances(ctx, p.project, p.zone, fmt.Sprintf("labels.%s=%s", models.ManagedByKey, models.ManagedByValue))
	if err != nil {
		return nil, classifyError(err)
	}

	out := make([]models.Instance, 0, len(instances))
	for _, inst := range instances {
		out = append(out, *p.toInstance(inst))
	}
	return out, nil
}

func (p *Provider) waitForZoneOperation(ctx context.Context, op *compute.Operation) error {
	return p.waitForOperation(ctx, op, func(name string) (*compute.Operation, error) {
		return p.api.GetZoneOperation(ctx, p.project, p.zone, name)
	})
}

func (p *Provider) waitForGlobalOperation(ctx context.Context, op *compute.Operation) error {
	return p.waitForOperation(ctx, op, func(name string) (*compute.Operation, error) {
		return p.api.GetGlobalOperation(ctx, p.project, name)
	})
}

// waitForOperation polls an operation sleep-then-get until it reports DONE.
func (p *Provider) waitForOperation(ctx context.Context, op *compute.Operation, get func(name string) (*compute.Operation, error)) error {
	deadline := time.Now().Add(p.pollTimeout)
	for {
		if op.Status == "DONE" {
			if op.Error != nil && len(op.Error.Errors) > 0 {
				return fmt.Errorf("operation %s failed: %s", op.Name, op.Error.Errors[0].Message)
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for operation %s", op.Name)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(operationPollInterval):
		}

		next, err := get(op.Name)
		if err != nil {
			return classifyError(err)
		}
		op = next
	}
}

func (p *Provider) toInstance(inst *compute.Instance) *models.Instance {
	m := &models.Instance{
		ID:          strconv.FormatUint(inst.Id, 10),
		Name:        inst.Name,
		Provider:    models.ProviderGCP,
		RunID:       inst.Labels[models.RunIDKey],
		State:       inst.Status,
		MachineType: lastPathComponent(inst.MachineType),
		Location:    p.zone,
		AdminUser:   adminUser,
		Tags:        inst.Labels,
	}
	if t, err := time.Parse(time.RFC3339, inst.CreationTimestamp); err == nil {
		m.LaunchedAt = t
	}
	m.PublicIPAddress = natIP(inst)
	if len(inst.NetworkInterfaces) > 0 {
		m.PrivateIPAddress = inst.NetworkInterfaces[0].NetworkIP
	}
	return m
}

func natIP(inst *compute.Instance) string {
	for _, iface := range inst.NetworkInterfaces {
		for _, ac := range iface.AccessConfigs {
			if ac.NatIP != "" {
				return ac.NatIP
			}
		}
	}
	return ""
}

func lastPathComponent(url string) string {
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		return url[idx+1:]
	}
	return url
}

// classifyError surfaces the human-readable message googleapi buries in
// its error body.
func classifyError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && len(apiErr.Errors) > 0 {
		return fmt.Errorf("GCE API error (HTTP %d): %s", apiErr.Code, apiErr.Errors[0].Message)
	}
	return err
}

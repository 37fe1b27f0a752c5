package azure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v4"
	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/instruqt/armlab/internal/config"
	"github.com/instruqt/armlab/internal/provider"
	"github.com/instruqt/armlab/models"
)

const ProviderName = "azure"

const (
	vmSize = "Standard_A1_v5"

	imagePublisher = "Canonical"
	imageOffer     = "UbuntuServer"
	imageSKU       = "22_04-lts"
	imageVersion   = "latest"

	adminUser = "azureuser"

	vnetAddressPrefix   = "10.0.0.0/16"
	subnetAddressPrefix = "10.0.0.0/24"

	// NSG rule priorities start here and step by 10 per port.
	basePriority = 1000
)

// Provider provisions lab VMs on Azure via ARM.
type Provider struct {
	resources    ResourcesAPI
	network      NetworkAPI
	compute      ComputeAPI
	log          logrus.FieldLogger
	location     string
	rgOverride   string
	pollInterval time.Duration
	pollTimeout  time.Duration
}

var _ provider.Provider = (*Provider)(nil)

// NewFromConfig authenticates with the resolved SPN credentials and wires
// the ARM clients. Credential construction is retried with exponential
// backoff since Instruqt sandboxes occasionally race AAD propagation.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (provider.Provider, error) {
	if cfg.Azure.SubscriptionID == "" {
		return nil, fmt.Errorf("AZURE_SUBSCRIPTION_ID is required")
	}

	var cred *azidentity.ClientSecretCredential
	login := func() error {
		var err error
		cred, err = azidentity.NewClientSecretCredential(
			cfg.Azure.Credentials.TenantID,
			cfg.Azure.Credentials.ClientID,
			cfg.Azure.Credentials.ClientSecret,
			nil,
		)
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(login, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("azure SPN login failed: %w", err)
	}

	resources, err := NewResourcesAPI(cred, cfg.Azure.SubscriptionID)
	if err != nil {
		return nil, err
	}
	network, err := NewNetworkAPI(cred, cfg.Azure.SubscriptionID)
	if err != nil {
		return nil, err
	}
	compute, err := NewComputeAPI(cred, cfg.Azure.SubscriptionID)
	if err != nil {
		return nil, err
	}

	return New(resources, network, compute, logger, cfg.Azure.Location, cfg.Azure.ResourceGroup, cfg.PollInterval, cfg.PollTimeout), nil
}

// New wires existing ARM API adapters; used by tests.
func New(resources ResourcesAPI, network NetworkAPI, compute ComputeAPI, logger logrus.FieldLogger, location, rgOverride string, pollInterval, pollTimeout time.Duration) *Provider {
	return &Provider{
		resources:    resources,
		network:      network,
		compute:      compute,
		log:          logger,
		location:     location,
		rgOverride:   rgOverride,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

func (p *Provider) Name() models.CloudProvider { return models.ProviderAzure }

func (p *Provider) Provision(ctx context.Context, spec models.VMSpec) (*models.Instance, error) {
	rg, err := p.resolveResourceGroup(ctx, spec)
	if err != nil {
		return nil, err
	}

	subnet, err := p.createNetwork(ctx, rg, spec)
	if err != nil {
		return nil, err
	}

	nsg, err := p.createSecurityGroup(ctx, rg, spec)
	if err != nil {
		return nil, err
	}

	pipName := publicIPName(spec)
	pip, err := p.createPublicIP(ctx, rg, pipName, spec)
	if err != nil {
		return nil, err
	}

	nic, err := p.createInterface(ctx, rg, spec, subnet.ID, pip.ID, nsg.ID)
	if err != nil {
		return nil, err
	}

	if err := p.createVirtualMachine(ctx, rg, spec, nic.ID); err != nil {
		return nil, err
	}

	p.log.WithFields(logrus.Fields{"vm_name": spec.InstanceName(), "run_id": spec.RunID}).
		Info("VM created, waiting for public IP")
	ip, err := p.waitForPublicIP(ctx, rg, pipName)
	if err != nil {
		return nil, err
	}

	return &models.Instance{
		Name:            spec.InstanceName(),
		Provider:        models.ProviderAzure,
		RunID:           spec.RunID,
		PublicIPAddress: ip,
		State:           "Succeeded",
		MachineType:     vmSize,
		Location:        p.location,
		AdminUser:       adminUser,
		LaunchedAt:      time.Now().UTC(),
		Tags: map[string]string{
			models.ManagedByKey: models.ManagedByValue,
			models.RunIDKey:     spec.RunID,
			"resource-group":    rg,
		},
	}, nil
}

// resolveResourceGroup honors AZURE_RESOURCE_GROUP, falls back to the
// first existing group in the subscription, and creates a fresh one when
// the subscription is empty.
func (p *Provider) resolveResourceGroup(ctx context.Context, spec models.VMSpec) (string, error) {
	if p.rgOverride != "" {
		p.log.WithField("resource_group", p.rgOverride).Info("Using resource group from configuration")
		return p.rgOverride, nil
	}

	names, err := p.resources.ListResourceGroups(ctx)
	if err != nil {
		return "", classifyError(err)
	}
	if len(names) > 0 {
		p.log.WithField("resource_group", names[0]).Info("Found existing resource group")
		return names[0], nil
	}

	name := spec.NamePrefix + "-rg-" + spec.RunID
	p.log.WithField("resource_group", name).Info("No existing resource groups; creating one")
	if err := p.resources.CreateResourceGroup(ctx, name, p.location); err != nil {
		return "", classifyError(err)
	}
	return name, nil
}

func vnetName(spec models.VMSpec) string     { return spec.NamePrefix + "-vnet-" + spec.RunID }
func subnetName(spec models.VMSpec) string   { return spec.NamePrefix + "-subnet" }
func publicIPName(spec models.VMSpec) string { return spec.NamePrefix + "-ip-" + spec.RunID }
func nicName(spec models.VMSpec) string      { return spec.NamePrefix + "-nic-" + spec.RunID }

func (p *Provider) createNetwork(ctx context.Context, rg string, spec models.VMSpec) (*armnetwork.Subnet, error) {
	name := vnetName(spec)
	p.log.WithField("vnet", name).Info("Creating virtual network")
	_, err := p.network.CreateVirtualNetwork(ctx, rg, name, armnetwork.VirtualNetwork{
		Location: to.Ptr(p.location),
		Tags:     runTags(spec.RunID),
		Properties: &armnetwork.VirtualNetworkPropertiesFormat{
			AddressSpace: &armnetwork.AddressSpace{
				AddressPrefixes: []*string{to.Ptr(vnetAddressPrefix)},
			},
		},
	})
	if err != nil {
		return nil, classifyError(err)
	}

	subnet, err := p.network.CreateSubnet(ctx, rg, name, subnetName(spec), armnetwork.Subnet{
		Properties: &armnetwork.SubnetPropertiesFormat{
			AddressPrefix: to.Ptr(subnetAddressPrefix),
		},
	})
	if err != nil {
		return nil, classifyError(err)
	}
	return &subnet, nil
}

func (p *Provider) createSecurityGroup(ctx context.Context, rg string, spec models.VMSpec) (*armnetwork.SecurityGroup, error) {
	name := spec.FirewallName()
	p.log.WithField("nsg", name).Info("Creating network security group")
	nsg, err := p.network.CreateSecurityGroup(ctx, rg, name, armnetwork.SecurityGroup{
		Location: to.Ptr(p.location),
		Tags:     runTags(spec.RunID),
	})
	if err != nil {
		return nil, classifyError(err)
	}

	priority := int32(basePriority)
	for _, port := range spec.Ports {
		ruleName := fmt.Sprintf("AllowTCP%d", port)
		p.log.WithFields(logrus.Fields{"rule": ruleName, "port": port}).Debug("Creating NSG rule")
		err := p.network.CreateSecurityRule(ctx, rg, name, ruleName, armnetwork.SecurityRule{
			Properties: &armnetwork.SecurityRulePropertiesFormat{
				Protocol:                 to.Ptr(armnetwork.SecurityRuleProtocolTCP),
				Access:                   to.Ptr(armnetwork.SecurityRuleAccessAllow),
				Direction:                to.Ptr(armnetwork.SecurityRuleDirectionInbound),
				Priority:                 to.Ptr(priority),
				SourceAddressPrefix:      to.Ptr("*"),
				SourcePortRange:          to.Ptr("*"),
				DestinationAddressPrefix: to.Ptr("*"),
				DestinationPortRange:     to.Ptr(fmt.Sprintf("%d", port)),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create NSG rule %s: %w", ruleName, classifyError(err))
		}
		priority += 10
	}
	return &nsg, nil
}

func (p *Provider) createPublicIP(ctx context.Context, rg, name string, spec models.VMSpec) (*armnetwork.PublicIPAddress, error) {
	p.log.WithField("public_ip", name).Info("Creating public IP")
	pip, err := p.network.CreatePublicIP(ctx, rg, name, armnetwork.PublicIPAddress{
		Location: to.Ptr(p.location),
		Tags:     runTags(spec.RunID),
		SKU: &armnetwork.PublicIPAddressSKU{
			Name: to.Ptr(armnetwork.PublicIPAddressSKUNameBasic),
		},
		Properties: &armnetwork.PublicIPAddressPropertiesFormat{
			PublicIPAllocationMethod: to.Ptr(armnetwork.IPAllocationMethodStatic),
		},
	})
	if err != nil {
		return nil, classifyError(err)
	}
	return &pip, nil
}

func (p *Provider) createInterface(ctx context.Context, rg string, spec models.VMSpec, subnetID, pipID, nsgID *string) (*armnetwork.Interface, error) {
	name := nicName(spec)
	p.log.WithField("nic", name).Info("Creating network interface")
	nic, err := p.network.CreateInterface(ctx, rg, name, armnetwork.Interface{
		Location: to.Ptr(p.location),
		Tags:     runTags(spec.RunID),
		Properties: &armnetwork.InterfacePropertiesFormat{
			IPConfigurations: []*armnetwork.InterfaceIPConfiguration{
				{
					Name: to.Ptr("ipconfig1"),
					Properties: &armnetwork.InterfaceIPConfigurationPropertiesFormat{
						Subnet:          &armnetwork.Subnet{ID: subnetID},
						PublicIPAddress: &armnetwork.PublicIPAddress{ID: pipID},
					},
				},
			},
			NetworkSecurityGroup: &armnetwork.SecurityGroup{ID: nsgID},
		},
	})
	if err != nil {
		return nil, classifyError(err)
	}
	return &nic, nil
}

func (p *Provider) createVirtualMachine(ctx context.Context, rg string, spec models.VMSpec, nicID *string) error {
	name := spec.InstanceName()
	p.log.WithField("vm_name", name).Info("Creating virtual machine")
	_, err := p.compute.CreateVirtualMachine(ctx, rg, name, armcompute.VirtualMachine{
		Location: to.Ptr(p.location),
		Tags:     runTags(spec.RunID),
		Properties: &armcompute.VirtualMachineProperties{
			HardwareProfile: &armcompute.HardwareProfile{
				VMSize: to.Ptr(armcompute.VirtualMachineSizeTypes(vmSize)),
			},
			StorageProfile: &armcompute.StorageProfile{
				ImageReference: &armcompute.ImageReference{
					Publisher: to.Ptr(imagePublisher),
					Offer:     to.Ptr(imageOffer),
					SKU:       to.Ptr(imageSKU),
					Version:   to.Ptr(imageVersion),
				},
				OSDisk: &armcompute.OSDisk{
					CreateOption: to.Ptr(armcompute.DiskCreateOptionTypesFromImage),
					DeleteOption: to.Ptr(armcompute.DiskDeleteOptionTypesDelete),
					ManagedDisk: &armcompute.ManagedDiskParameters{
						StorageAccountType: to.Ptr(armcompute.StorageAccountTypesStandardLRS),
					},
				},
			},
			OSProfile: &armcompute.OSProfile{
				ComputerName:  to.Ptr(name),
				AdminUsername: to.Ptr(adminUser),
				LinuxConfiguration: &armcompute.LinuxConfiguration{
					DisablePasswordAuthentication: to.Ptr(true),
					SSH: &armcompute.SSHConfiguration{
						PublicKeys: []*armcompute.SSHPublicKey{
							{
								Path:    to.Ptr(fmt.Sprintf("/home/%s/.ssh/authorized_keys", adminUser)),
								KeyData: to.Ptr(spec.SSHPublicKey),
							},
						},
					},
				},
			},
			NetworkProfile: &armcompute.NetworkProfile{
				NetworkInterfaces: []*armcompute.NetworkInterfaceReference{
					{
						ID: nicID,
						Properties: &armcompute.NetworkInterfaceReferenceProperties{
							Primary: to.Ptr(true),
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create VM %s: %w", name, classifyError(err))
	}
	return nil
}

// waitForPublicIP re-reads the public IP resource until the address shows
// up. Static Basic IPs are usually assigned immediately, but the original
// lab scripts polled anyway and sandbox subscriptions have proven them
// right.
func (p *Provider) waitForPublicIP(ctx context.Context, rg, pipName string) (string, error) {
	deadline := time.Now().Add(p.pollTimeout)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		pip, err := p.network.GetPublicIP(ctx, rg, pipName)
		if err != nil {
			return "", classifyError(err)
		}
		if pip.Properties != nil && pip.Properties.IPAddress != nil && *pip.Properties.IPAddress != "" {
			return *pip.Properties.IPAddress, nil
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("public IP %s: %w", pipName, provider.ErrIPTimeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Provider) Destroy(ctx context.Context, runID string) error {
	rg, vms, err := p.findRunVMs(ctx, runID)
	if err != nil {
		return err
	}

	for _, vm := range vms {
		p.log.WithField("vm_name", *vm.Name).Info("Deleting virtual machine")
		if err := p.compute.DeleteVirtualMachine(ctx, rg, *vm.Name); err != nil {
			return classifyError(err)
		}
	}

	// Dependent resources must go in reverse creation order.
	prefix := prefixFromRun(vms, runID)
	if prefix == "" {
		return nil
	}
	steps := []struct {
		kind string
		del  func() error
	}{
		{"network interface", func() error { return p.network.DeleteInterface(ctx, rg, prefix+"-nic-"+runID) }},
		{"public IP", func() error { return p.network.DeletePublicIP(ctx, rg, prefix+"-ip-"+runID) }},
		{"network security group", func() error { return p.network.DeleteSecurityGroup(ctx, rg, prefix+"-fw-"+runID) }},
		{"virtual network", func() error { return p.network.DeleteVirtualNetwork(ctx, rg, prefix+"-vnet-"+runID) }},
	}
	for _, step := range steps {
		p.log.WithField("resource", step.kind).Info("Deleting resource")
		if err := step.del(); err != nil {
			return fmt.Errorf("failed to delete %s: %w", step.kind, classifyError(err))
		}
	}
	return nil
}

// findRunVMs locates the VMs of a run along with their resource group.
// The resource group may have been pre-existing, so it is read back from
// the VM tags rather than re-derived.
func (p *Provider) findRunVMs(ctx context.Context, runID string) (string, []*armcompute.VirtualMachine, error) {
	groups := []string{}
	if p.rgOverride != "" {
		groups = append(groups, p.rgOverride)
	} else {
		names, err := p.resources.ListResourceGroups(ctx)
		if err != nil {
			return "", nil, classifyError(err)
		}
		groups = names
	}

	for _, rg := range groups {
		vms, err := p.compute.ListVirtualMachines(ctx, rg)
		if err != nil {
			return "", nil, classifyError(err)
		}
		var matched []*armcompute.VirtualMachine
		for _, vm := range vms {
			if vm.Tags != nil && vm.Tags[models.RunIDKey] != nil && *vm.Tags[models.RunIDKey] == runID {
				matched = append(matched, vm)
			}
		}
		if len(matched) > 0 {
			return rg, matched, nil
		}
	}
	return "", nil, fmt.Errorf("no VM found for run %s", runID)
}

// prefixFromRun recovers the name prefix from a VM name of the form
// <prefix>-vm-<runID>.
func prefixFromRun(vms []*armcompute.VirtualMachine, runID string) string {
	suffix := "-vm-" + runID
	for _, vm := range vms {
		if vm.Name == nil || !strings.HasSuffix(*vm.Name, suffix) {
			continue
		}
		return strings.TrimSuffix(*vm.Name, suffix)
	}
	return ""
}

func (p *Provider) List(ctx context.Context) ([]models.Instance, error) {
	groups := []string{}
	if p.rgOverride != "" {
		groups = append(groups, p.rgOverride)
	} else {
		names, err := p.resources.ListResourceGroups(ctx)
		if err != nil {
			return nil, classifyError(err)
		}
		groups = names
	}

	var out []models.Instance
	for _, rg := range groups {
		vms, err := p.compute.ListVirtualMachines(ctx, rg)
		if err != nil {
			return nil, classifyError(err)
		}
		for _, vm := range vms {
			if vm.Tags == nil || vm.Tags[models.ManagedByKey] == nil || *vm.Tags[models.ManagedByKey] != models.ManagedByValue {
				continue
			}
			out = append(out, toInstance(vm, rg))
		}
	}
	return out, nil
}

func toInstance(vm *armcompute.VirtualMachine, rg string) models.Instance {
	m := models.Instance{
		Provider:  models.ProviderAzure,
		AdminUser: adminUser,
		Tags:      map[string]string{"resource-group": rg},
	}
	if vm.ID != nil {
		m.ID = *vm.ID
	}
	if vm.Name != nil {
		m.Name = *vm.Name
	}
	if vm.Location != nil {
		m.Location = *vm.Location
	}
	for k, v := range vm.Tags {
		if v != nil {
			m.Tags[k] = *v
		}
	}
	m.RunID = m.Tags[models.RunIDKey]
	if vm.Properties != nil {
		if vm.Properties.ProvisioningState != nil {
			m.State = *vm.Properties.ProvisioningState
		}
		if vm.Properties.HardwareProfile != nil && vm.Properties.HardwareProfile.VMSize != nil {
			m.MachineType = string(*vm.Properties.HardwareProfile.VMSize)
		}
		if vm.Properties.TimeCreated != nil {
			m.LaunchedAt = *vm.Properties.TimeCreated
		}
	}
	return m
}

func runTags(runID string) map[string]*string {
	return map[string]*string{
		models.ManagedByKey: to.Ptr(models.ManagedByValue),
		models.RunIDKey:     to.Ptr(runID),
	}
}

// classifyError lifts the ARM error code out of the HTTP response body.
func classifyError(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return fmt.Errorf("azure API error %s (HTTP %d): %w", respErr.ErrorCode, respErr.StatusCode, err)
	}
	return err
}

package azure

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v4"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
)

// ResourcesAPI covers resource group management.
type ResourcesAPI interface {
	CreateResourceGroup(ctx context.Context, name, location string) error
	ListResourceGroups(ctx context.Context) ([]string, error)
}

// NetworkAPI flattens the ARM network clients; the Begin* pollers are
// awaited inside the adapter so callers (and tests) see plain calls.
type NetworkAPI interface {
	CreateVirtualNetwork(ctx context.Context, rg, name string, vnet armnetwork.VirtualNetwork) (armnetwork.VirtualNetwork, error)
	CreateSubnet(ctx context.Context, rg, vnetName, name string, subnet armnetwork.Subnet) (armnetwork.Subnet, error)
	CreateSecurityGroup(ctx context.Context, rg, name string, nsg armnetwork.SecurityGroup) (armnetwork.SecurityGroup, error)
	CreateSecurityRule(ctx context.Context, rg, nsgName, name string, rule armnetwork.SecurityRule) error
	CreatePublicIP(ctx context.Context, rg, name string, pip armnetwork.PublicIPAddress) (armnetwork.PublicIPAddress, error)
	GetPublicIP(ctx context.Context, rg, name string) (armnetwork.PublicIPAddress, error)
	CreateInterface(ctx context.Context, rg, name string, nic armnetwork.Interface) (armnetwork.Interface, error)
	DeleteInterface(ctx context.Context, rg, name string) error
	DeletePublicIP(ctx context.Context, rg, name string) error
	DeleteSecurityGroup(ctx context.Context, rg, name string) error
	DeleteVirtualNetwork(ctx context.Context, rg, name string) error
}

// ComputeAPI covers the virtual machine operations.
type ComputeAPI interface {
	CreateVirtualMachine(ctx context.Context, rg, name string, vm armcompute.VirtualMachine) (armcompute.VirtualMachine, error)
	DeleteVirtualMachine(ctx context.Context, rg, name string) error
	ListVirtualMachines(ctx context.Context, rg string) ([]*armcompute.VirtualMachine, error)
}

type resourcesClient struct {
	groups *armresources.ResourceGroupsClient
}

// NewResourcesAPI wraps the ARM resource groups client.
func NewResourcesAPI(cred azcore.TokenCredential, subscriptionID string) (ResourcesAPI, error) {
	groups, err := armresources.NewResourceGroupsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, err
	}
	return &resourcesClient{groups: groups}, nil
}

func (c *resourcesClient) CreateResourceGroup(ctx context.Context, name, location string) error {
	_, err := c.groups.CreateOrUpdate(ctx, name, armresources.ResourceGroup{Location: &location}, nil)
	return err
}

func (c *resourcesClient) ListResourceGroups(ctx context.Context) ([]string, error) {
	var names []string
	pager := c.groups.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, rg := range page.Value {
			if rg.Name != nil {
				names = append(names, *rg.Name)
			}
		}
	}
	return names, nil
}

type networkClient struct {
	vnets     *armnetwork.VirtualNetworksClient
	subnets   *armnetwork.SubnetsClient
	nsgs      *armnetwork.SecurityGroupsClient
	rules     *armnetwork.SecurityRulesClient
	publicIPs *armnetwork.PublicIPAddressesClient
	nics      *armnetwork.InterfacesClient
}

// NewNetworkAPI wraps the ARM network clients.
func NewNetworkAPI(cred azcore.TokenCredential, subscriptionID string) (NetworkAPI, error) {
	factory, err := armnetwork.NewClientFactory(subscriptionID, cred, nil)
	if err != nil {
		return nil, err
	}
	return &networkClient{
		vnets:     factory.NewVirtualNetworksClient(),
		subnets:   factory.NewSubnetsClient(),
		nsgs:      factory.NewSecurityGroupsClient(),
		rules:     factory.NewSecurityRulesClient(),
		publicIPs: factory.NewPublicIPAddressesClient(),
		nics:      factory.NewInterfacesClient(),
	}, nil
}

func (c *networkClient) CreateVirtualNetwork(ctx context.Context, rg, name string, vnet armnetwork.VirtualNetwork) (armnetwork.VirtualNetwork, error) {
	poller, err := c.vnets.BeginCreateOrUpdate(ctx, rg, name, vnet, nil)
	if err != nil {
		return armnetwork.VirtualNetwork{}, err
	}
	res, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return armnetwork.VirtualNetwork{}, err
	}
	return res.VirtualNetwork, nil
}

func (c *networkClient) CreateSubnet(ctx context.Context, rg, vnetName, name string, subnet armnetwork.Subnet) (armnetwork.Subnet, error) {
	poller, err := c.subnets.BeginCreateOrUpdate(ctx, rg, vnetName, name, subnet, nil)
	if err != nil {
		return armnetwork.Subnet{}, err
	}
	res, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return armnetwork.Subnet{}, err
	}
	return res.Subnet, nil
}

func (c *networkClient) CreateSecurityGroup(ctx context.Context, rg, name string, nsg armnetwork.SecurityGroup) (armnetwork.SecurityGroup, error) {
	poller, err := c.nsgs.BeginCreateOrUpdate(ctx, rg, name, nsg, nil)
	if err != nil {
		return armnetwork.SecurityGroup{}, err
	}
	res, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return armnetwork.SecurityGroup{}, err
	}
	return res.SecurityGroup, nil
}

func (c *networkClient) CreateSecurityRule(ctx context.Context, rg, nsgName, name string, rule armnetwork.SecurityRule) error {
	poller, err := c.rules.BeginCreateOrUpdate(ctx, rg, nsgName, name, rule, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

func (c *networkClient) CreatePublicIP(ctx context.Context, rg, name string, pip armnetwork.PublicIPAddress) (armnetwork.PublicIPAddress, error) {
	poller, err := c.publicIPs.BeginCreateOrUpdate(ctx, rg, name, pip, nil)
	if err != nil {
		return armnetwork.PublicIPAddress{}, err
	}
	res, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return armnetwork.PublicIPAddress{}, err
	}
	return res.PublicIPAddress, nil
}

func (c *networkClient) GetPublicIP(ctx context.Context, rg, name string) (armnetwork.PublicIPAddress, error) {
	res, err := c.publicIPs.Get(ctx, rg, name, nil)
	if err != nil {
		return armnetwork.PublicIPAddress{}, err
	}
	return res.PublicIPAddress, nil
}

func (c *networkClient) CreateInterface(ctx context.Context, rg, name string, nic armnetwork.Interface) (armnetwork.Interface, error) {
	poller, err := c.nics.BeginCreateOrUpdate(ctx, rg, name, nic, nil)
	if err != nil {
		return armnetwork.Interface{}, err
	}
	res, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return armnetwork.Interface{}, err
	}
	return res.Interface, nil
}

func (c *networkClient) DeleteInterface(ctx context.Context, rg, name string) error {
	poller, err := c.nics.BeginDelete(ctx, rg, name, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

func (c *networkClient) DeletePublicIP(ctx context.Context, rg, name string) error {
	poller, err := c.publicIPs.BeginDelete(ctx, rg, name, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

func (c *networkClient) DeleteSecurityGroup(ctx context.Context, rg, name string) error {
	poller, err := c.nsgs.BeginDelete(ctx, rg, name, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

func (c *networkClient) DeleteVirtualNetwork(ctx context.Context, rg, name string) error {
	poller, err := c.vnets.BeginDelete(ctx, rg, name, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

type computeClient struct {
	vms *armcompute.VirtualMachinesClient
}

// NewComputeAPI wraps the ARM virtual machines client.
func NewComputeAPI(cred azcore.TokenCredential, subscriptionID string) (ComputeAPI, error) {
	vms, err := armcompute.NewVirtualMachinesClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, err
	}
	return &computeClient{vms: vms}, nil
}

func (c *computeClient) CreateVirtualMachine(ctx context.Context, rg, name string, vm armcompute.VirtualMachine) (armcompute.VirtualMachine, error) {
	poller, err := c.vms.BeginCreateOrUpdate(ctx, rg, name, vm, nil)
	if err != nil {
		return armcompute.VirtualMachine{}, err
	}
	res, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return armcompute.VirtualMachine{}, err
	}
	return res.VirtualMachine, nil
}

func (c *computeClient) DeleteVirtualMachine(ctx context.Context, rg, name string) error {
	poller, err := c.vms.BeginDelete(ctx, rg, name, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

func (c *computeClient) ListVirtualMachines(ctx context.Context, rg string) ([]*armcompute.VirtualMachine, error) {
	var vms []*armcompute.VirtualMachine
	pager := c.vms.NewListPager(rg, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		vms = append(vms, page.Value...)
	}
	return vms, nil
}

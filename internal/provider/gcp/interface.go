package gcp

import (
	"context"

	compute "google.golang.org/api/compute/v1"
)

// ComputeAPI flattens the chained GCE service calls into plain methods so
// tests can fake them.
type ComputeAPI interface {
	InsertFirewall(ctx context.Context, project string, fw *compute.Firewall) (*compute.Operation, error)
	DeleteFirewall(ctx context.Context, project, name string) (*compute.Operation, error)
	ListFirewalls(ctx context.Context, project string) ([]*compute.Firewall, error)
	GetGlobalOperation(ctx context.Context, project, name string) (*compute.Operation, error)

	InsertInstance(ctx context.Context, project, zone string, inst *compute.Instance) (*compute.Operation, error)
	DeleteInstance(ctx context.Context, project, zone, name string) (*compute.Operation, error)
	GetInstance(ctx context.Context, project, zone, name string) (*compute.Instance, error)
	ListInstances(ctx context.Context, project, zone, filter string) ([]*compute.Instance, error)
	GetZoneOperation(ctx context.Context, project, zone, name string) (*compute.Operation, error)

	GetImageFromFamily(ctx context.Context, project, family string) (*compute.Image, error)
}

type computeService struct {
	srv *compute.Service
}

// NewComputeAPI wraps a GCE service client.
func NewComputeAPI(srv *compute.Service) ComputeAPI {
	return &computeService{srv: srv}
}

func (s *computeService) InsertFirewall(ctx context.Context, project string, fw *compute.Firewall) (*compute.Operation, error) {
	return compute.NewFirewallsService(s.srv).Insert(project, fw).Context(ctx).Do()
}

func (s *computeService) DeleteFirewall(ctx context.Context, project, name string) (*compute.Operation, error) {
	return compute.NewFirewallsService(s.srv).Delete(project, name).Context(ctx).Do()
}

func (s *computeService) ListFirewalls(ctx context.Context, project string) ([]*compute.Firewall, error) {
	list, err := compute.NewFirewallsService(s.srv).List(project).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

func (s *computeService) GetGlobalOperation(ctx context.Context, project, name string) (*compute.Operation, error) {
	return compute.NewGlobalOperationsService(s.srv).Get(project, name).Context(ctx).Do()
}

func (s *computeService) InsertInstance(ctx context.Context, project, zone string, inst *compute.Instance) (*compute.Operation, error) {
	return compute.NewInstancesService(s.srv).Insert(project, zone, inst).Context(ctx).Do()
}

func (s *computeService) DeleteInstance(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	return compute.NewInstancesService(s.srv).Delete(project, zone, name).Context(ctx).Do()
}

func (s *computeService) GetInstance(ctx context.Context, project, zone, name string) (*compute.Instance, error) {
	return compute.NewInstancesService(s.srv).Get(project, zone, name).Context(ctx).Do()
}

func (s *computeService) ListInstances(ctx context.Context, project, zone, filter string) ([]*compute.Instance, error) {
	call := compute.NewInstancesService(s.srv).List(project, zone)
	if filter != "" {
		call = call.Filter(filter)
	}
	list, err := call.Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

func (s *computeService) GetZoneOperation(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	return compute.NewZoneOperationsService(s.srv).Get(project, zone, name).Context(ctx).Do()
}

func (s *computeService) GetImageFromFamily(ctx context.Context, project, family string) (*compute.Image, error) {
	return compute.NewImagesService(s.srv).GetFromFamily(project, family).Context(ctx).Do()
}

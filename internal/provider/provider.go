package provider

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/instruqt/armlab/internal/config"
	"github.com/instruqt/armlab/models"
)

// ErrUnknownProvider is returned when the requested cloud is not registered.
var ErrUnknownProvider = errors.New("unknown cloud provider")

// ErrIPTimeout is returned when a VM never reported a public IP within the
// polling deadline.
var ErrIPTimeout = errors.New("timed out waiting for public IP assignment")

// Provider provisions and tears down lab VMs on one cloud.
type Provider interface {
	// Name returns the provider's registry name.
	Name() models.CloudProvider
	// Provision creates the firewall/network scaffolding and the VM,
	// waits until a public IP is assigned and returns the instance.
	Provision(ctx context.Context, spec models.VMSpec) (*models.Instance, error)
	// Destroy removes every resource created by the run with the given ID.
	Destroy(ctx context.Context, runID string) error
	// List returns the lab VMs managed by this tool.
	List(ctx context.Context) ([]models.Instance, error)
}

// Factory builds a provider from resolved configuration.
type Factory func(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (Provider, error)

package providers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/instruqt/armlab/internal/config"
	"github.com/instruqt/armlab/internal/provider"
	"github.com/instruqt/armlab/internal/provider/aws"
	"github.com/instruqt/armlab/internal/provider/azure"
	"github.com/instruqt/armlab/internal/provider/gcp"
)

// All registered cloud providers.
var registry = map[string]provider.Factory{
	aws.ProviderName:   aws.NewFromConfig,
	azure.ProviderName: azure.NewFromConfig,
	gcp.ProviderName:   gcp.NewFromConfig,
}

// Get creates an instance of the named provider.
func Get(ctx context.Context, name string, cfg *config.Config, logger logrus.FieldLogger) (provider.Provider, error) {
	f, found := registry[name]
	if !found {
		return nil, provider.ErrUnknownProvider
	}
	return f(ctx, cfg, logger.WithField("provider", name))
}

// Names returns the registered provider names.
func Names() []string {
	return []string{aws.ProviderName, azure.ProviderName, gcp.ProviderName}
}

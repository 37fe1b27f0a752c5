package root

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/instruqt/armlab/internal/config"
	"github.com/instruqt/armlab/internal/lab"
	"github.com/instruqt/armlab/internal/providers"
)

func newServiceFactory(v *viper.Viper, logger *logrus.Logger) lab.ServiceFactory {
	return func(ctx context.Context) (lab.Service, error) {
		cfg, err := config.FromViper(v)
		if err != nil {
			return nil, err
		}
		if cfg.Provider == "" {
			return nil, fmt.Errorf("no provider selected; use --provider (%s)", strings.Join(providers.Names(), "|"))
		}

		p, err := providers.Get(ctx, cfg.Provider, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", cfg.Provider, err)
		}
		return lab.New(cfg, p, logger.WithField("provider", cfg.Provider), os.Stdout), nil
	}
}

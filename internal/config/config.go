package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Parameter names understood by viper. Each is also overridable through
// the environment with the ARMLAB_ prefix (e.g. ARMLAB_NAME_PREFIX), and
// the cloud-native variables the original lab scripts honored are bound
// explicitly below.
const (
	ParamProvider     = "provider"
	ParamNamePrefix   = "name-prefix"
	ParamSSHPublicKey = "ssh-public-key"
	ParamOutput       = "output"
	ParamFormat       = "format"
	ParamTimeout      = "timeout"
	ParamVerbose      = "verbose"
	ParamJSON         = "json"

	ParamProject       = "project"
	ParamZone          = "zone"
	ParamRegion        = "region"
	ParamLocation      = "location"
	ParamResourceGroup = "resource-group"
)

const (
	DefaultNamePrefix = "armlab"
	DefaultZone       = "us-central1-a"
	DefaultLocation   = "eastus"

	// Fixed-interval polling used while waiting for a public IP.
	DefaultPollInterval = 10 * time.Second
	DefaultPollTimeout  = 5 * time.Minute
)

// Config is the fully resolved tool configuration.
type Config struct {
	Provider     string
	NamePrefix   string
	SSHKeyPath   string
	OutputPath   string
	Format       string
	PollInterval time.Duration
	PollTimeout  time.Duration

	GCP   GCPConfig
	AWS   AWSConfig
	Azure AzureConfig
}

type GCPConfig struct {
	Project string
	Zone    string
}

type AWSConfig struct {
	// Region is optional; when empty the SDK default chain decides.
	Region string
}

type AzureConfig struct {
	Location       string
	ResourceGroup  string
	SubscriptionID string
	Credentials    AzureCredentials
}

// NewViper returns a viper instance with armlab defaults and the
// environment bindings the original provisioning scripts used.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault(ParamNamePrefix, DefaultNamePrefix)
	v.SetDefault(ParamSSHPublicKey, defaultSSHKeyPath())
	v.SetDefault(ParamFormat, "text")
	v.SetDefault(ParamTimeout, DefaultPollTimeout)
	v.SetDefault(ParamZone, DefaultZone)
	v.SetDefault(ParamLocation, DefaultLocation)

	v.SetEnvPrefix("ARMLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Unprefixed variables carried over from the shell scripts.
	_ = v.BindEnv(ParamZone, "ARMLAB_ZONE", "ZONE")
	_ = v.BindEnv(ParamProject, "ARMLAB_PROJECT", "GOOGLE_PROJECT")
	_ = v.BindEnv(ParamRegion, "ARMLAB_REGION", "AWS_REGION")
	_ = v.BindEnv(ParamLocation, "ARMLAB_LOCATION", "AZURE_LOCATION")
	_ = v.BindEnv(ParamResourceGroup, "ARMLAB_RESOURCE_GROUP", "AZURE_RESOURCE_GROUP")

	return v
}

// FromViper resolves the final configuration from viper state.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Provider:     v.GetString(ParamProvider),
		NamePrefix:   v.GetString(ParamNamePrefix),
		SSHKeyPath:   v.GetString(ParamSSHPublicKey),
		OutputPath:   v.GetString(ParamOutput),
		Format:       v.GetString(ParamFormat),
		PollInterval: DefaultPollInterval,
		PollTimeout:  v.GetDuration(ParamTimeout),
		GCP: GCPConfig{
			Project: v.GetString(ParamProject),
			Zone:    v.GetString(ParamZone),
		},
		AWS: AWSConfig{
			Region: v.GetString(ParamRegion),
		},
		Azure: AzureConfig{
			Location:       v.GetString(ParamLocation),
			ResourceGroup:  v.GetString(ParamResourceGroup),
			SubscriptionID: os.Getenv("AZURE_SUBSCRIPTION_ID"),
		},
	}

	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = DefaultOutputPath(cfg.Provider)
	}

	if cfg.Provider == "azure" {
		creds, err := ResolveAzureCredentials(os.Getenv)
		if err != nil {
			return nil, err
		}
		cfg.Azure.Credentials = creds
	}

	return cfg, nil
}

// DefaultOutputPath is where the connection summary is written when
// --output is not given. The per-cloud temp files match the paths the
// original scripts wrote.
func DefaultOutputPath(provider string) string {
	if provider == "" {
		return "/tmp/armlab-instance-info.txt"
	}
	return fmt.Sprintf("/tmp/%s-instance-info.txt", provider)
}

func defaultSSHKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ssh/id_rsa.pub"
	}
	return filepath.Join(home, ".ssh", "id_rsa.pub")
}

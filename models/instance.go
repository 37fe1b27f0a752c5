package models

import "time"

// CloudProvider identifies one of the supported clouds.
type CloudProvider string

const (
	ProviderGCP   CloudProvider = "gcp"
	ProviderAzure CloudProvider = "azure"
	ProviderAWS   CloudProvider = "aws"
)

// Tag keys stamped on every resource this tool creates so that
// down/list can find them later.
const (
	ManagedByKey   = "managed-by"
	ManagedByValue = "armlab"
	RunIDKey       = "armlab-run-id"
)

// Instance describes a provisioned lab VM, normalized across providers.
type Instance struct {
	ID               string
	Name             string
	Provider         CloudProvider
	RunID            string
	PublicIPAddress  string
	PrivateIPAddress string
	State            string
	MachineType      string
	Location         string
	AdminUser        string
	LaunchedAt       time.Time
	Tags             map[string]string
}

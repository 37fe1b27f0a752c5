package config

import "fmt"

// AzureCredentials holds the service principal used for non-interactive
// Azure logins.
type AzureCredentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// ResolveAzureCredentials reads SPN credentials from the environment.
//
// Instruqt injects per-subscription credentials indirectly: the variable
// INSTRUQT_AZURE_SUBSCRIPTIONS names a subscription alias, and the actual
// values live in INSTRUQT_AZURE_SUBSCRIPTION_<alias>_SPN_ID,
// _SPN_PASSWORD and _TENANT_ID. Outside Instruqt the conventional
// ARM_CLIENT_ID / ARM_CLIENT_SECRET / ARM_TENANT_ID variables are used.
// The getenv parameter exists so tests can supply a fake environment.
func ResolveAzureCredentials(getenv func(string) string) (AzureCredentials, error) {
	if alias := getenv("INSTRUQT_AZURE_SUBSCRIPTIONS"); alias != "" {
		creds := AzureCredentials{
			ClientID:     getenv(fmt.Sprintf("INSTRUQT_AZURE_SUBSCRIPTION_%s_SPN_ID", alias)),
			ClientSecret: getenv(fmt.Sprintf("INSTRUQT_AZURE_SUBSCRIPTION_%s_SPN_PASSWORD", alias)),
			TenantID:     getenv(fmt.Sprintf("INSTRUQT_AZURE_SUBSCRIPTION_%s_TENANT_ID", alias)),
		}
		if err := creds.validate(alias); err != nil {
			return AzureCredentials{}, err
		}
		return creds, nil
	}

	creds := AzureCredentials{
		ClientID:     getenv("ARM_CLIENT_ID"),
		ClientSecret: getenv("ARM_CLIENT_SECRET"),
		TenantID:     getenv("ARM_TENANT_ID"),
	}
	if err := creds.validate(""); err != nil {
		return AzureCredentials{}, err
	}
	return creds, nil
}

func (c AzureCredentials) validate(alias string) error {
	missing := ""
	switch {
	case c.ClientID == "":
		missing = "client ID"
	case c.ClientSecret == "":
		missing = "client secret"
	case c.TenantID == "":
		missing = "tenant ID"
	}
	if missing == "" {
		return nil
	}
	if alias != "" {
		return fmt.Errorf("azure SPN %s not set for Instruqt subscription %q", missing, alias)
	}
	return fmt.Errorf("azure SPN %s not set (ARM_CLIENT_ID/ARM_CLIENT_SECRET/ARM_TENANT_ID)", missing)
}

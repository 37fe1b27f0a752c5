package summary

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/instruqt/armlab/models"
)

const separator = "================================================================"

// Build assembles the connection summary for a provisioned instance.
func Build(inst *models.Instance) models.Summary {
	return models.Summary{
		Provider:     inst.Provider,
		RunID:        inst.RunID,
		InstanceName: inst.Name,
		Location:     inst.Location,
		PublicIP:     inst.PublicIPAddress,
		AdminUser:    inst.AdminUser,
		SSHCommand:   fmt.Sprintf("ssh %s@%s", inst.AdminUser, inst.PublicIPAddress),
		DeleteHint:   deleteHint(inst),
	}
}

// deleteHint is the provider-native cleanup command, kept for users who
// reach for the cloud CLI instead of `armlab down`.
func deleteHint(inst *models.Instance) string {
	switch inst.Provider {
	case models.ProviderGCP:
		return fmt.Sprintf("gcloud compute instances delete %s --zone %s --quiet", inst.Name, inst.Location)
	case models.ProviderAzure:
		return fmt.Sprintf("az group delete --name %s --yes --no-wait", inst.Tags["resource-group"])
	case models.ProviderAWS:
		return fmt.Sprintf("aws ec2 terminate-instances --instance-ids %s", inst.ID)
	}
	return ""
}

// Print writes the human-readable banner the lab scripts printed after a
// successful provision.
func Print(w io.Writer, s models.Summary) {
	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "%s ARM-based VM details:\n", strings.ToUpper(string(s.Provider)))
	fmt.Fprintf(w, "  VM Name:   %s\n", s.InstanceName)
	fmt.Fprintf(w, "  Location:  %s\n", s.Location)
	fmt.Fprintf(w, "  Public IP: %s\n", s.PublicIP)
	fmt.Fprintf(w, "  Run ID:    %s\n", s.RunID)
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, "To SSH into your VM, run:")
	fmt.Fprintf(w, "  %s\n", s.SSHCommand)
	fmt.Fprintln(w, separator)
}

// Render returns the summary file contents in the requested format
// ("text" or "yaml").
func Render(s models.Summary, format string) (string, error) {
	switch format {
	case "", "text":
		return renderText(s), nil
	case "yaml":
		out, err := yaml.Marshal(s)
		if err != nil {
			return "", err
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("unknown summary format %q", format)
	}
}

func renderText(s models.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s ARM-based VM details:\n\n", strings.ToUpper(string(s.Provider)))
	fmt.Fprintf(&b, "VM Name:   %s\n", s.InstanceName)
	fmt.Fprintf(&b, "Location:  %s\n", s.Location)
	fmt.Fprintf(&b, "Public IP: %s\n", s.PublicIP)
	fmt.Fprintf(&b, "Run ID:    %s\n", s.RunID)
	fmt.Fprintf(&b, "\nSSH command:\n  %s\n", s.SSHCommand)
	fmt.Fprintf(&b, "\nTo delete all resources, run:\n  armlab down --provider %s %s\n", s.Provider, s.RunID)
	if s.DeleteHint != "" {
		fmt.Fprintf(&b, "or:\n  %s\n", s.DeleteHint)
	}
	return b.String()
}

// Write renders the summary and saves it at path.
func Write(fs afero.Fs, path string, s models.Summary, format string) error {
	content, err := Render(s, format)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write summary file %s: %w", path, err)
	}
	return nil
}

package models

// LabPorts is the fixed list of TCP ports opened to all inbound traffic
// on every lab VM. Instruqt tracks expect these to be reachable.
var LabPorts = []int32{22, 80, 443, 3306, 5432, 6379, 27017, 5000, 8080, 8443}

// VMSpec carries everything a provider needs to provision one lab VM.
// RunID is the unix-timestamp suffix appended to every resource name; it
// is the unit of cleanup for the down command.
type VMSpec struct {
	NamePrefix   string  `validate:"required,min=3,max=40"`
	RunID        string  `validate:"required"`
	SSHPublicKey string  `validate:"required"`
	Ports        []int32 `validate:"required,min=1"`
}

// InstanceName returns the VM name for this run.
func (s VMSpec) InstanceName() string {
	return s.NamePrefix + "-vm-" + s.RunID
}

// FirewallName returns the firewall / security group / NSG name for this run.
func (s VMSpec) FirewallName() string {
	return s.NamePrefix + "-fw-" + s.RunID
}

// KeyName returns the key pair name for this run (AWS only).
func (s VMSpec) KeyName() string {
	return s.NamePrefix + "-key-" + s.RunID
}

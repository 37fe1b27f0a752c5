package models

// Summary is the connection information handed to the lab user after a
// successful provision. It is printed to stdout and written to the
// summary file, optionally as YAML.
type Summary struct {
	Provider     CloudProvider `yaml:"provider"`
	RunID        string        `yaml:"run_id"`
	InstanceName string        `yaml:"instance_name"`
	Location     string        `yaml:"location"`
	PublicIP     string        `yaml:"public_ip"`
	AdminUser    string        `yaml:"admin_user"`
	SSHCommand   string        `yaml:"ssh_command"`
	DeleteHint   string        `yaml:"delete_hint"`
}

// Package config stores the user configuration for mideactl: the selected
// cloud app profile, the account name and the token/key pairs learned for
// each appliance. Passwords are never written to disk; they are prompted
// when a command needs the cloud.
package config

// Package config handles loading and validating printrelay configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with PRINTRELAY_* environment variables
//   - Decrypting stored credentials (mqtt.auth.password, influxdb.token)
//   - Validation of required fields
//
// Security Considerations:
//   - Sensitive values should be set via environment variables or stored
//     encrypted with `printrelay encrypt-secret`
//   - The credentials key is never read from the config file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config

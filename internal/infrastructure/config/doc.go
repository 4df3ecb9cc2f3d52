// Package config handles loading and validating rxcore configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (RXCORE_ prefix)
//   - Validation of required fields and security settings
//   - Default value handling
//
// Security Considerations:
//   - JWT secrets should be set via environment variables, never committed
//   - Access and refresh secrets must be distinct so a leak of one cannot forge the other
//   - Production mode forces Secure, SameSite=None session cookies
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config

// Package config handles loading and validating arduino-iot configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (ARDUINO_IOT_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Access tokens and device secrets should be set via environment variables
//     or a token file rather than the YAML file
//   - The config and token files should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/arduino-iot.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Cloud.Host)
package config

// Package config loads the eegstreams runtime configuration.
//
// Loading is layered: Default() values, then each file added with AddLayer
// (JSON, or YAML by extension) deep-merged so a layer only overrides the keys
// it sets, then EEGSTREAMS_* environment variables, then Validate:
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/lab.json")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// Durations accept Go duration strings ("10s", "50ms") or numbers of seconds.
// Validate reports every problem in one error that matches
// errors.ErrInvalidConfig.
package config

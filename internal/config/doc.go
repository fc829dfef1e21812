// Package config provides loading and environment overlay for flagstream
// client configuration. It exposes a Default() baseline, JSON file loading,
// and FLAGSTREAM_* environment overrides.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/flagstream.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { /* handle */ }
//	rt, _ := runtime.Open(runtime.Options{Config: cfg, Handler: h})
//	defer rt.Close()
package config

// Package config provides centralized configuration management for the
// terminal process. It handles loading configuration from multiple sources,
// validation, and provides a type-safe API for accessing configuration values
// throughout the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern POS_<SECTION>_<KEY>:
//
//	POS_SERVER_PORT=8377
//	POS_STORE_PATH=/var/lib/posd/pos.db
//	POS_SYNC_INTERVAL=30s
//	POS_LICENSE_SERVER_URL=https://licensing.example.com
//
// # Usage
//
//	cfg, err := config.Load("posd.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(cfg.Sync.Interval)
package config

// Package config provides configuration parsing for storefront clients.
//
// The configuration is stored in storefront.json in the working directory.
// This package handles loading, saving, validating and environment
// overrides.
//
// # Configuration File Structure
//
//	{
//	  "apiBaseURL": "https://api.example.com/api",
//	  "pushURL": "wss://api.example.com/ws",
//	  "requestTimeout": "15s",
//	  "logLevel": "info",
//	  "realtime": {
//	    "maxRetries": 5,
//	    "retryDelay": "1s"
//	  },
//	  "session": {
//	    "backend": "file",
//	    "path": ".storefront/session.json"
//	  },
//	  "metrics": {
//	    "namespace": "storefront"
//	  }
//	}
//
// # Environment
//
// Every field can be overridden with a STOREFRONT_ variable, for example
// STOREFRONT_API_BASE_URL, STOREFRONT_SESSION_BACKEND or
// STOREFRONT_REALTIME_RETRY_DELAY.
//
// # Usage
//
//	cfg, err := config.Resolve(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("API:", cfg.APIBaseURL)
package config

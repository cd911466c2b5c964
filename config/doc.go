// Package config loads struct-based configuration from .env files and
// environment variables.
//
// Fields are bound with `env` tags; defaults and required markers live in the
// same tag:
//
//	type Config struct {
//	    ListenAddr string        `env:"LISTEN_ADDR,default::8080"`
//	    BaseURL    string        `env:"BASE_URL,required"`
//	    Timeout    time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// Every name is prefixed with "SIGNIN_" unless WithPrefix says otherwise.
// Values already present in the environment win over .env files.
package config

package config

import (
	"fmt"
)

func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.ANAF.Validate(); err != nil {
		return fmt.Errorf("anaf config: %w", err)
	}

	if err := c.Security.Validate(c.Environment); err != nil {
		return fmt.Errorf("security config: %w", err)
	}

	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	return nil
}

func (c *ANAFConfig) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client id is required - set ANAF_CLIENT_ID environment variable")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client secret is required - set ANAF_CLIENT_SECRET environment variable")
	}
	if c.RedirectURI == "" {
		return fmt.Errorf("redirect uri is required - set ANAF_REDIRECT_URI environment variable")
	}
	if c.Environment != "sandbox" && c.Environment != "production" {
		return fmt.Errorf("environment must be sandbox or production, got %q", c.Environment)
	}
	return nil
}

func (c *SecurityConfig) Validate(environment string) error {
	if environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("jwt secret is required in production - set JWT_SECRET environment variable")
		}
		if _, err := c.DecodedEncryptionKey(); err != nil {
			return fmt.Errorf("encryption key: %w", err)
		}
	}
	return nil
}

package util

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const Name = "stegodon"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

// RetryPolicy is the (max_attempts, base_backoff, multiplier) triple from
// spec §4.C4's retry table, keyed by verb class.
type RetryPolicy struct {
	MaxAttempts  int     `yaml:"maxAttempts"`
	BaseSeconds  float64 `yaml:"baseSeconds"`
	Multiplier   float64 `yaml:"multiplier"`
}

type AppConfig struct {
	Conf struct {
		Host            string
		SshPort         int    `yaml:"sshPort"`
		HttpPort        int    `yaml:"httpPort"`
		SslDomain       string `yaml:"sslDomain"`
		WithAp          bool   `yaml:"withAp"`
		Single          bool   `yaml:"single"`
		Closed          bool   `yaml:"closed"`
		NodeDescription string `yaml:"nodeDescription"`
		WithJournald    bool   `yaml:"withJournald"`
		WithPprof       bool   `yaml:"withPprof"`
		MaxChars        int    `yaml:"maxChars"`
		ShowGlobal      bool   `yaml:"showGlobal"`
		SshOnly         bool   `yaml:"sshOnly"`
		ShowTos         bool   `yaml:"showTos"`

		// Federation core (SPEC_FULL.md Ambient Stack / Configuration)
		MaxJsonSize               int64                  `yaml:"maxJsonSize"`
		MaxJsonDepth              int                    `yaml:"maxJsonDepth"`
		MaxJsonKeys               int                    `yaml:"maxJsonKeys"`
		MaxStringLength           int                    `yaml:"maxStringLength"`
		SigSkewSeconds            int                    `yaml:"sigSkewSeconds"`
		ClaimTimeoutSeconds       int                    `yaml:"claimTimeoutSeconds"`
		StreamLengthCap           int                    `yaml:"streamLengthCap"`
		CompletedMessageTTLHours  int                    `yaml:"completedMessageTtlHours"`
		FailureThreshold          int                    `yaml:"failureThreshold"`
		RecoveryTimeoutSeconds    int                    `yaml:"recoveryTimeoutSeconds"`
		HalfOpenProbes            int                    `yaml:"halfOpenProbes"`
		SuccessThreshold          int                    `yaml:"successThreshold"`
		DeadThresholdHours        int                    `yaml:"deadThresholdHours"`
		SuspenseTTLMinutes        int                    `yaml:"suspenseTtlMinutes"`
		SuspenseCap               int                    `yaml:"suspenseCap"`
		OutboundTimeoutSeconds    int                    `yaml:"outboundTimeoutSeconds"`
		BlockedDomains            []string               `yaml:"blockedDomains"`
		AllowlistUnsigned         []string               `yaml:"allowlistUnsigned"`
		LDSignaturePolicy         string                 `yaml:"ldSignaturePolicy"`
		DebugObservability        bool                   `yaml:"debugObservability"`
		PerDestinationConcurrency int                    `yaml:"perDestinationConcurrency"`
		GlobalOutboundConcurrency int                    `yaml:"globalOutboundConcurrency"`
		RetryPolicies             map[string]RetryPolicy `yaml:"retryPolicies"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	// Try to read from resolved path
	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		// Try to write default config to user config directory
		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("STEGODON_HOST")
	envSshPort := os.Getenv("STEGODON_SSHPORT")
	envHttpPort := os.Getenv("STEGODON_HTTPPORT")
	envSslDomain := os.Getenv("STEGODON_SSLDOMAIN")
	envWithAp := os.Getenv("STEGODON_WITH_AP")
	envSingle := os.Getenv("STEGODON_SINGLE")
	envClosed := os.Getenv("STEGODON_CLOSED")
	envNodeDescription := os.Getenv("STEGODON_NODE_DESCRIPTION")
	envWithJournald := os.Getenv("STEGODON_WITH_JOURNALD")
	envWithPprof := os.Getenv("STEGODON_WITH_PPROF")
	envMaxChars := os.Getenv("STEGODON_MAX_CHARS")
	envShowGlobal := os.Getenv("STEGODON_SHOW_GLOBAL")
	envSshOnly := os.Getenv("STEGODON_SSH_ONLY")
	envShowTos := os.Getenv("STEGODON_SHOW_TOS")
	envBlockedDomains := os.Getenv("STEGODON_BLOCKED_DOMAINS")
	envLDPolicy := os.Getenv("STEGODON_LD_SIGNATURE_POLICY")
	envDebugObs := os.Getenv("STEGODON_DEBUG_OBSERVABILITY")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envSshPort != "" {
		v, err := strconv.Atoi(envSshPort)
		if err != nil {
			log.Printf("Error parsing STEGODON_SSHPORT: %v", err)
		}
		c.Conf.SshPort = v
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			log.Printf("Error parsing STEGODON_HTTPPORT: %v", err)
		}
		c.Conf.HttpPort = v
	}

	if envSslDomain != "" {
		c.Conf.SslDomain = envSslDomain
	}

	if envWithAp == "true" {
		c.Conf.WithAp = true
	}

	if envSingle == "true" {
		c.Conf.Single = true
	}

	if envClosed == "true" {
		c.Conf.Closed = true
	}

	if envNodeDescription != "" {
		c.Conf.NodeDescription = envNodeDescription
	}

	if envWithJournald == "true" {
		c.Conf.WithJournald = true
	}

	if envWithPprof == "true" {
		c.Conf.WithPprof = true
	}

	if envShowGlobal == "true" {
		c.Conf.ShowGlobal = true
	}

	if envSshOnly == "true" {
		c.Conf.SshOnly = true
	}

	if envShowTos == "true" {
		c.Conf.ShowTos = true
	}

	if envMaxChars != "" {
		v, err := strconv.Atoi(envMaxChars)
		if err != nil {
			log.Printf("Error parsing STEGODON_MAX_CHARS: %v", err)
		} else {
			// Apply maximum limit of 300 characters
			if v > 300 {
				log.Printf("STEGODON_MAX_CHARS value %d exceeds maximum of 300, capping at 300", v)
				c.Conf.MaxChars = 300
				// Catch less then 1 character in config.
			} else if v < 1 {
				log.Printf("STEGODON_MAX_CHARS value %d is less than minimum of 1, setting to default 150", v)
				c.Conf.MaxChars = 150
			} else {
				c.Conf.MaxChars = v
			}
		}
	}

	// Set default value if not set in config or environment
	if c.Conf.MaxChars == 0 {
		c.Conf.MaxChars = 150
	} else if c.Conf.MaxChars > 300 {
		// Apply maximum limit of 300 characters for config file values too
		log.Printf("maxChars value %d in config exceeds maximum of 300, capping at 300", c.Conf.MaxChars)
		c.Conf.MaxChars = 300
	} else if c.Conf.MaxChars < 1 {
		log.Printf("maxChars value %d in config is less than minimum of 1, setting to default 150", c.Conf.MaxChars)
		c.Conf.MaxChars = 150
	}

	if envBlockedDomains != "" {
		c.Conf.BlockedDomains = strings.Split(envBlockedDomains, ",")
	}

	if envLDPolicy != "" {
		c.Conf.LDSignaturePolicy = envLDPolicy
	}

	if envDebugObs == "true" {
		c.Conf.DebugObservability = true
	}

	applyFederationDefaults(c)

	return c, nil
}

// applyFederationDefaults fills in the spec §6/§4.C4/§4.C8 default
// values for any federation-core option left unset in config.yaml.
func applyFederationDefaults(c *AppConfig) {
	d := &c.Conf
	if d.MaxJsonSize == 0 {
		d.MaxJsonSize = 1 << 20 // 1 MiB
	}
	if d.MaxJsonDepth == 0 {
		d.MaxJsonDepth = 50
	}
	if d.MaxJsonKeys == 0 {
		d.MaxJsonKeys = 1000
	}
	if d.MaxStringLength == 0 {
		d.MaxStringLength = 500 * 1024
	}
	if d.SigSkewSeconds == 0 {
		d.SigSkewSeconds = 12 * 3600
	}
	if d.ClaimTimeoutSeconds == 0 {
		d.ClaimTimeoutSeconds = 5 * 60
	}
	if d.StreamLengthCap == 0 {
		d.StreamLengthCap = 1_000_000
	}
	if d.CompletedMessageTTLHours == 0 {
		d.CompletedMessageTTLHours = 24
	}
	if d.FailureThreshold == 0 {
		d.FailureThreshold = 5
	}
	if d.RecoveryTimeoutSeconds == 0 {
		d.RecoveryTimeoutSeconds = 5 * 60
	}
	if d.HalfOpenProbes == 0 {
		d.HalfOpenProbes = 3
	}
	if d.SuccessThreshold == 0 {
		d.SuccessThreshold = 3
	}
	if d.DeadThresholdHours == 0 {
		d.DeadThresholdHours = 24
	}
	if d.SuspenseTTLMinutes == 0 {
		d.SuspenseTTLMinutes = 120
	}
	if d.SuspenseCap == 0 {
		d.SuspenseCap = 10_000
	}
	if d.OutboundTimeoutSeconds == 0 {
		d.OutboundTimeoutSeconds = 10
	}
	if d.PerDestinationConcurrency == 0 {
		d.PerDestinationConcurrency = 4
	}
	if d.GlobalOutboundConcurrency == 0 {
		d.GlobalOutboundConcurrency = 256
	}
	if d.LDSignaturePolicy == "" {
		d.LDSignaturePolicy = "reject"
	}
	if d.RetryPolicies == nil {
		d.RetryPolicies = map[string]RetryPolicy{
			"createUpdate": {MaxAttempts: 10, BaseSeconds: 30, Multiplier: 2.0},
			"delete":       {MaxAttempts: 8, BaseSeconds: 60, Multiplier: 1.5},
			"follow":       {MaxAttempts: 8, BaseSeconds: 30, Multiplier: 2.0},
			"likeUndo":     {MaxAttempts: 5, BaseSeconds: 60, Multiplier: 1.5},
		}
	}
}

package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy controls which alerts become incidents and how flapping is judged.
// It is loaded from a YAML file at boot; without a file the defaults apply.
type Policy struct {
	// ProductionEnvironments lists environment names treated as production
	ProductionEnvironments []string `yaml:"production_environments"`

	// CriticalServices are services whose info-level alerts still open
	// incidents in production
	CriticalServices []string `yaml:"critical_services"`

	// FlapWindowMinutes is the trailing window for the flap detector
	FlapWindowMinutes int `yaml:"flap_window_minutes"`

	// FlapThreshold is the delivery count at which a fingerprint flaps
	FlapThreshold int `yaml:"flap_threshold"`
}

// DefaultPolicy returns the built-in correlation policy
func DefaultPolicy() *Policy {
	return &Policy{
		ProductionEnvironments: []string{"prod", "production", "live"},
		CriticalServices:       []string{},
		FlapWindowMinutes:      30,
		FlapThreshold:          5,
	}
}

// LoadPolicy reads the policy YAML from path. An empty path returns the
// defaults; a missing or unreadable file is an error so a typo'd path
// doesn't silently run with defaults.
func LoadPolicy(path string) (*Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if policy.FlapWindowMinutes <= 0 {
		policy.FlapWindowMinutes = 30
	}
	if policy.FlapThreshold <= 0 {
		policy.FlapThreshold = 5
	}

	log.Printf("Loaded correlation policy from %s", path)
	return policy, nil
}

// FlapWindow returns the flap detection window as a duration
func (p *Policy) FlapWindow() time.Duration {
	return time.Duration(p.FlapWindowMinutes) * time.Minute
}

// IsProduction reports whether the environment counts as production
func (p *Policy) IsProduction(environment string) bool {
	for _, env := range p.ProductionEnvironments {
		if env == environment {
			return true
		}
	}
	return false
}

// IsCriticalService reports whether the service is on the critical allowlist
func (p *Policy) IsCriticalService(service string) bool {
	for _, s := range p.CriticalServices {
		if s == service {
			return true
		}
	}
	return false
}

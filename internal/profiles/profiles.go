// Package profiles provides named scan profiles for pingscan. A profile is a
// reusable set of services to probe, optionally with its own per-probe
// timeout. Built-in profiles cover common cases; custom ones come from the
// configuration file.
package profiles

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anstrom/pingscan/internal/config"
	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/services"
)

const (
	// MaxNameLength bounds profile names.
	MaxNameLength = 64

	// DefaultProfile scans every protocol with its default ports.
	DefaultProfile = "default"
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Profile is a named service selection.
type Profile struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Services maps protocol names to port specifications. Nil means every
	// protocol with its default ports.
	Services map[string]string `json:"services,omitempty" yaml:"services,omitempty"`
	// Timeout overrides the per-probe timeout when positive.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	BuiltIn bool          `json:"built_in" yaml:"built_in"`
}

// Request parses the profile's services into the form services.Resolve takes.
func (p *Profile) Request() (map[services.Protocol][]int, error) {
	if len(p.Services) == 0 {
		return nil, nil
	}
	return services.ParseRequest(p.Services)
}

func (p *Profile) clone() *Profile {
	c := *p
	if p.Services != nil {
		c.Services = make(map[string]string, len(p.Services))
		for k, v := range p.Services {
			c.Services[k] = v
		}
	}
	return &c
}

// builtIns are always available and cannot be changed.
var builtIns = []Profile{
	{
		Name:        DefaultProfile,
		Description: "Every protocol with its default ports",
	},
	{
		Name:        "ping",
		Description: "ICMP echo only",
		Services:    map[string]string{"icmp": ""},
	},
	{
		Name:        "quick",
		Description: "ICMP plus SSH and web ports",
		Services:    map[string]string{"icmp": "", "tcp": "22,80,443"},
		Timeout:     time.Second,
	},
	{
		Name:        "web",
		Description: "Common HTTP and HTTPS ports",
		Services:    map[string]string{"tcp": "80,443,8000,8080,8443"},
	},
	{
		Name:        "infra",
		Description: "DNS, NTP, SNMP and SSH",
		Services:    map[string]string{"tcp": "22,53", "udp": "53,123,161"},
	},
	{
		Name:        "windows",
		Description: "RPC, NetBIOS, SMB and RDP",
		Services:    map[string]string{"tcp": "135,139,445,3389", "udp": "137"},
	},
}

// Manager holds the profile catalog. It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewManager creates a catalog of the built-in profiles plus custom ones.
// A custom profile may not reuse a built-in name.
func NewManager(custom ...Profile) (*Manager, error) {
	m := &Manager{profiles: make(map[string]*Profile, len(builtIns)+len(custom))}
	for i := range builtIns {
		p := builtIns[i].clone()
		p.BuiltIn = true
		m.profiles[p.Name] = p
	}
	for _, p := range custom {
		if err := m.Create(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// FromConfig creates a catalog of the built-in profiles plus the profiles
// section of the configuration file.
func FromConfig(custom []config.ProfileConfig) (*Manager, error) {
	list := make([]Profile, 0, len(custom))
	for _, p := range custom {
		list = append(list, Profile{
			Name:        p.Name,
			Description: p.Description,
			Services:    p.Services,
			Timeout:     p.Timeout,
		})
	}
	m, err := NewManager(list...)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "invalid profiles", err)
	}
	return m, nil
}

// GetAll returns every profile, built-ins first, then by name.
func (m *Manager) GetAll() []*Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		all = append(all, p.clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].BuiltIn != all[j].BuiltIn {
			return all[i].BuiltIn
		}
		return all[i].Name < all[j].Name
	})
	return all
}

// Get returns a copy of the named profile.
func (m *Manager) Get(name string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[strings.ToLower(name)]
	if !ok {
		return nil, errors.ErrProfileNotFound(name)
	}
	return p.clone(), nil
}

// Create adds a custom profile.
func (m *Manager) Create(p Profile) error {
	normalize(&p)
	if err := ValidateProfile(&p); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.profiles[p.Name]; exists {
		return errors.NewConfigFieldError(errors.CodeValidation, "profile already exists", "name", p.Name)
	}
	m.profiles[p.Name] = p.clone()
	return nil
}

// Update replaces a custom profile.
func (m *Manager) Update(p Profile) error {
	normalize(&p)
	if err := ValidateProfile(&p); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.profiles[p.Name]
	if !ok {
		return errors.ErrProfileNotFound(p.Name)
	}
	if existing.BuiltIn {
		return errors.NewConfigFieldError(errors.CodeValidation, "built-in profiles cannot be modified", "name", p.Name)
	}
	m.profiles[p.Name] = p.clone()
	return nil
}

// Delete removes a custom profile.
func (m *Manager) Delete(name string) error {
	name = strings.ToLower(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.profiles[name]
	if !ok {
		return errors.ErrProfileNotFound(name)
	}
	if existing.BuiltIn {
		return errors.NewConfigFieldError(errors.CodeValidation, "built-in profiles cannot be deleted", "name", name)
	}
	delete(m.profiles, name)
	return nil
}

// Clone copies an existing profile under a new name as a custom profile.
func (m *Manager) Clone(source, newName string) (*Profile, error) {
	p, err := m.Get(source)
	if err != nil {
		return nil, err
	}
	p.Name = newName
	p.Description = fmt.Sprintf("Copy of %s", source)
	if err := m.Create(*p); err != nil {
		return nil, err
	}
	return m.Get(newName)
}

// Len returns the number of profiles.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.profiles)
}

// normalize lowercases the name and protocol keys of a custom profile.
func normalize(p *Profile) {
	p.Name = strings.ToLower(p.Name)
	p.BuiltIn = false
	if p.Services == nil {
		return
	}
	specs := make(map[string]string, len(p.Services))
	for proto, spec := range p.Services {
		specs[strings.ToLower(strings.TrimSpace(proto))] = spec
	}
	p.Services = specs
}

// ValidateProfile checks a profile's name, services and timeout.
func ValidateProfile(p *Profile) error {
	if p.Name == "" {
		return errors.ErrConfigInvalid("name", p.Name)
	}
	if len(p.Name) > MaxNameLength || !namePattern.MatchString(p.Name) {
		return errors.NewConfigFieldError(errors.CodeValidation,
			"profile names use lowercase letters, digits, '-' and '_'", "name", p.Name)
	}
	if p.Timeout < 0 {
		return errors.ErrConfigInvalid("timeout", p.Timeout)
	}
	for proto, spec := range p.Services {
		if _, err := services.ParseProtocol(proto); err != nil {
			return &errors.ConfigError{Code: errors.CodeValidation, Message: "unknown protocol",
				Field: "services." + proto, Value: proto, Cause: err}
		}
		if _, err := services.ParsePorts(spec); err != nil {
			return &errors.ConfigError{Code: errors.CodeValidation, Message: "invalid port specification",
				Field: "services." + proto, Value: spec, Cause: err}
		}
	}
	return nil
}

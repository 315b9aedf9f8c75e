package advisor

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/ashureev/quarrel-labs/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var catalogYAML []byte

// Profile is the immutable persona and capability metadata of one advisor.
type Profile struct {
	ID          ID     `yaml:"id" json:"id"`
	DisplayName string `yaml:"displayName" json:"displayName"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Color       string `yaml:"color" json:"color"`
	Voice       string `yaml:"voice" json:"voice"`
	Vision      bool   `yaml:"vision" json:"isVisionCapable"`
	Persona     string `yaml:"persona" json:"-"`
}

type catalog struct {
	Selector string    `yaml:"selector"`
	Advisors []Profile `yaml:"advisors"`
}

// Registry is a read-only lookup of advisor profiles.
type Registry struct {
	profiles [idCount]Profile
	selector string
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Default returns the registry decoded from the embedded catalogue.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = Parse(catalogYAML)
	})
	return defaultRegistry, defaultErr
}

// Parse decodes a catalogue. Every advisor in the closed set must have exactly
// one profile, and only the Vision advisor may be vision capable.
func Parse(data []byte) (*Registry, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode advisor catalogue: %w", err)
	}

	r := &Registry{selector: c.Selector}
	seen := make(map[ID]bool, idCount)
	for _, p := range c.Advisors {
		if !p.ID.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrUnknownID, uint8(p.ID))
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate advisor profile %s", p.ID)
		}
		if p.Persona == "" {
			return nil, fmt.Errorf("advisor %s has no persona", p.ID)
		}
		if p.Vision != (p.ID == Vision) {
			return nil, fmt.Errorf("advisor %s: only %s may be vision capable", p.ID, Vision)
		}
		seen[p.ID] = true
		r.profiles[p.ID] = p
	}
	for _, id := range All() {
		if !seen[id] {
			return nil, fmt.Errorf("advisor %s has no profile", id)
		}
	}
	if r.selector == "" {
		return nil, errors.New("advisor catalogue has no selector instructions")
	}
	return r, nil
}

// Profile returns the profile for id. Ids outside the closed set yield a zero Profile.
func (r *Registry) Profile(id ID) Profile {
	if !id.Valid() {
		return Profile{}
	}
	return r.profiles[id]
}

// Profiles returns every profile in declaration order.
func (r *Registry) Profiles() []Profile {
	out := make([]Profile, 0, idCount-1)
	for _, id := range All() {
		out = append(out, r.profiles[id])
	}
	return out
}

// SelectorInstructions returns the persona used for advisor selection.
func (r *Registry) SelectorInstructions() string {
	return r.selector
}

// Labels maps speaker tags to display names for prompt rendering.
func (r *Registry) Labels() map[string]string {
	labels := map[string]string{domain.UserSpeaker: "我方"}
	for _, id := range All() {
		labels[id.String()] = r.profiles[id].DisplayName
	}
	return labels
}

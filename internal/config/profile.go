// Package config loads the exam profile: the canonical topic list and the
// suggested colleges for a competitive exam.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed neet.toml
var defaultProfile []byte

// Profile describes one exam domain.
type Profile struct {
	Name     string   `toml:"name"`
	Topics   []string `toml:"topics"`
	Colleges []string `toml:"colleges"`
}

// DefaultProfile returns the embedded NEET profile.
func DefaultProfile() Profile {
	var p Profile
	if _, err := toml.Decode(string(defaultProfile), &p); err != nil {
		panic("config: embedded profile is invalid: " + err.Error())
	}
	return p
}

// LoadProfile reads a TOML profile from path. An empty path or a missing
// file yields the default profile; fields left out of the file keep their
// default values.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return Profile{}, fmt.Errorf("failed to stat profile: %w", err)
	}

	var fileProfile Profile
	if _, err := toml.DecodeFile(path, &fileProfile); err != nil {
		return Profile{}, fmt.Errorf("failed to decode profile: %w", err)
	}
	if fileProfile.Name != "" {
		p.Name = fileProfile.Name
	}
	if len(fileProfile.Topics) > 0 {
		p.Topics = fileProfile.Topics
	}
	if len(fileProfile.Colleges) > 0 {
		p.Colleges = fileProfile.Colleges
	}
	return p, nil
}

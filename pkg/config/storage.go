package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

func SaveToFile(profile *Profile, path string) error {
	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	profile.Timestamp = time.Now()
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

func LoadFromFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	return &profile, nil
}

func GetProfilePath(name string) string {
	return filepath.Join("etc", "lora", fmt.Sprintf("%s.json", name))
}

// Load resolves a profile reference: an existing file path wins, otherwise
// the name is looked up among the builtins.
func Load(ref string) (*Profile, error) {
	if _, err := os.Stat(ref); err == nil {
		return LoadFromFile(ref)
	}
	p, err := Lookup(ref)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

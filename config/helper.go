package config

import (
	"path"

	"github.com/mitchellh/go-homedir"
)

const (
	MainDir          = ".taxipipe"
	MainFileFullName = "pipeline.yaml"
)

// DefaultPath returns ~/.taxipipe/pipeline.yaml.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return path.Join(home, MainDir, MainFileFullName), nil
}

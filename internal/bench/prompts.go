package bench

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPrompts is the rotation used when no prompt file is given
var DefaultPrompts = []string{
	"Write a comprehensive technical documentation for deploying a multi-region, highly available microservices architecture on AWS.",
	"Analyze the current state of cloud computing in enterprise environments.",
	"Compare and contrast AWS container services: ECS, EKS, App Runner, Lambda, and Fargate.",
	"Design a real-time analytics platform for IoT devices at scale.",
}

type promptFile struct {
	Prompts []string `yaml:"prompts"`
}

// LoadPrompts reads an ordered prompt list from a YAML file of the form
//
//	prompts:
//	  - "first prompt"
//	  - "second prompt"
func LoadPrompts(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", path, err)
	}
	var pf promptFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse prompt file %s: %w", path, err)
	}
	if err := validatePrompts(pf.Prompts); err != nil {
		return nil, fmt.Errorf("prompt file %s: %w", path, err)
	}
	return pf.Prompts, nil
}

func validatePrompts(prompts []string) error {
	if len(prompts) == 0 {
		return errors.New("prompt list is empty")
	}
	for i, p := range prompts {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("prompt %d is blank", i)
		}
	}
	return nil
}

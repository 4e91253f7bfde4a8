package service

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

type Step struct {
	Step           string `yaml:"step"`
	Command        string `yaml:"command"`
	TimeoutSeconds int64  `yaml:"timeout_seconds"`
}

type Publish struct {
	Remote      string `yaml:"remote"`
	Branch      string `yaml:"branch"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
	Message     string `yaml:"message"`
}

type RefreshScript struct {
	Steps     []Step   `yaml:"steps"`
	Artifacts []string `yaml:"artifacts"`
	Publish   Publish  `yaml:"publish"`
}

func ReadRefreshScript(path string) (*RefreshScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rs := new(RefreshScript)
	if err := yaml.Unmarshal(b, rs); err != nil {
		return nil, err
	}
	rs.applyDefaults()
	if err := rs.validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *RefreshScript) applyDefaults() {
	if rs.Publish.Remote == "" {
		rs.Publish.Remote = "origin"
	}
	if rs.Publish.Branch == "" {
		rs.Publish.Branch = "main"
	}
	if rs.Publish.AuthorName == "" {
		rs.Publish.AuthorName = "refreshd-bot"
	}
	if rs.Publish.AuthorEmail == "" {
		rs.Publish.AuthorEmail = "refreshd-bot@users.noreply.github.com"
	}
	if rs.Publish.Message == "" {
		rs.Publish.Message = "Refresh class data and map"
	}
	for i := range rs.Steps {
		if rs.Steps[i].TimeoutSeconds == 0 {
			rs.Steps[i].TimeoutSeconds = 3600
		}
	}
}

func (rs *RefreshScript) validate() error {
	if len(rs.Steps) == 0 {
		return fmt.Errorf("refresh script has no steps")
	}
	for _, s := range rs.Steps {
		if s.Command == "" {
			return fmt.Errorf("refresh script step '%s' has no command", s.Step)
		}
	}
	if len(rs.Artifacts) == 0 {
		return fmt.Errorf("refresh script has no artifacts")
	}
	return nil
}

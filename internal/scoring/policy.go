package scoring

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const policyPathEnv = "SCORING_POLICY_PATH"

//go:embed policy.yaml
var policyFS embed.FS

type Policy struct {
	Name    string `yaml:"policy"`
	Version int    `yaml:"version"`

	Initial struct {
		WithPhoto    int `yaml:"with_photo"`
		WithoutPhoto int `yaml:"without_photo"`
	} `yaml:"initial"`

	Rates struct {
		Confirm        float64 `yaml:"confirm"`
		NoLongerActive float64 `yaml:"no_longer_active"`
		False          float64 `yaml:"false"`
	} `yaml:"rates"`

	Levels struct {
		High   int `yaml:"high"`
		Medium int `yaml:"medium"`
		Low    int `yaml:"low"`
	} `yaml:"levels"`

	Transitions struct {
		VerifyThreshold   int `yaml:"verify_threshold"`
		VerifyMinConfirms int `yaml:"verify_min_confirms"`
		RemoveThreshold   int `yaml:"remove_threshold"`
		RemoveMinFalse    int `yaml:"remove_min_false"`
	} `yaml:"transitions"`
}

// DefaultPolicy mirrors the embedded policy.yaml.
func DefaultPolicy() Policy {
	var p Policy
	p.Name = "report_confidence"
	p.Version = 1
	p.Initial.WithPhoto = 70
	p.Initial.WithoutPhoto = 40
	p.Rates.Confirm = 0.20
	p.Rates.NoLongerActive = 0.15
	p.Rates.False = 0.35
	p.Levels.High = 70
	p.Levels.Medium = 40
	p.Levels.Low = 20
	p.Transitions.VerifyThreshold = 85
	p.Transitions.VerifyMinConfirms = 2
	p.Transitions.RemoveThreshold = 10
	p.Transitions.RemoveMinFalse = 3
	return p
}

// LoadPolicy reads SCORING_POLICY_PATH when set, else the embedded policy.
// On any error the default policy is returned alongside the error.
func LoadPolicy() (Policy, error) {
	data, err := readPolicy()
	if err != nil {
		return DefaultPolicy(), err
	}
	return ParsePolicy(data)
}

func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return DefaultPolicy(), fmt.Errorf("parse scoring policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return DefaultPolicy(), err
	}
	return p, nil
}

func readPolicy() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(policyPathEnv)); path != "" {
		return os.ReadFile(path)
	}
	return policyFS.ReadFile("policy.yaml")
}

func (p Policy) Validate() error {
	inScore := func(v int) bool { return v >= 0 && v <= 100 }
	inRate := func(v float64) bool { return v > 0 && v < 1 }

	switch {
	case strings.TrimSpace(p.Name) != "report_confidence":
		return fmt.Errorf("unexpected policy: %q", p.Name)
	case !inScore(p.Initial.WithPhoto) || !inScore(p.Initial.WithoutPhoto):
		return errors.New("initial scores must be within [0,100]")
	case p.Initial.WithPhoto <= p.Initial.WithoutPhoto:
		return errors.New("initial score with photo must exceed score without photo")
	case !inRate(p.Rates.Confirm) || !inRate(p.Rates.NoLongerActive) || !inRate(p.Rates.False):
		return errors.New("rates must be within (0,1)")
	case p.Rates.False <= p.Rates.NoLongerActive:
		return errors.New("false rate must exceed no_longer_active rate")
	case !(p.Levels.High > p.Levels.Medium && p.Levels.Medium > p.Levels.Low && p.Levels.Low > 0 && p.Levels.High <= 100):
		return errors.New("levels must be strictly descending within (0,100]")
	case !inScore(p.Transitions.VerifyThreshold) || !inScore(p.Transitions.RemoveThreshold):
		return errors.New("transition thresholds must be within [0,100]")
	case p.Transitions.RemoveThreshold >= p.Transitions.VerifyThreshold:
		return errors.New("remove threshold must be below verify threshold")
	case p.Transitions.VerifyMinConfirms < 0 || p.Transitions.RemoveMinFalse < 0:
		return errors.New("transition minimums must not be negative")
	}
	return nil
}

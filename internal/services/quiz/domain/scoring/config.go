package scoring

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	apperrors "github.com/louisbranch/workprint/internal/platform/errors"
	"github.com/louisbranch/workprint/internal/services/quiz/domain/script"
	"gopkg.in/yaml.v3"
)

// Letters lists the valid answer letters in order.
var Letters = []string{"A", "B", "C", "D"}

// Trait is a named scoring dimension.
type Trait string

// Profile weights one trait total per declared trait.
type Profile struct {
	Name    string
	Weights map[Trait]int
}

// Config is the validated scoring table: the trait alphabet, the answer
// matrix and the profile classification rules.
type Config struct {
	Traits         []Trait
	Profiles       []Profile
	TieBreak       []string
	DefaultProfile string
	// Matrix maps question number to letter to trait increments.
	Matrix map[int]map[string]map[Trait]int
}

type configFile struct {
	Traits   []string `yaml:"traits"`
	Profiles []struct {
		Name    string         `yaml:"name"`
		Weights map[string]int `yaml:"weights"`
	} `yaml:"profiles"`
	TieBreak       []string                          `yaml:"tie_break"`
	DefaultProfile string                            `yaml:"default_profile"`
	Questions      map[int]map[string]map[string]int `yaml:"questions"`
}

//go:embed default_scoring.yaml
var defaultScoring []byte

var defaultEngine = mustLoad(defaultScoring)

// Default returns the engine built from the embedded configuration.
func Default() *Engine {
	return defaultEngine
}

// LoadFile reads a scoring configuration from disk.
func LoadFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scoring config %s: %w", path, err)
	}
	return Load(data)
}

// Load parses and validates a YAML scoring configuration.
func Load(data []byte) (*Engine, error) {
	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeScoringInvalid, "decode scoring config", err)
	}
	cfg, err := file.validate()
	if err != nil {
		return nil, err
	}
	return NewEngine(cfg), nil
}

func (f configFile) validate() (Config, error) {
	var cfg Config

	if len(f.Traits) == 0 {
		return cfg, invalidConfig("at least one trait is required", nil)
	}
	declared := make(map[Trait]bool, len(f.Traits))
	for _, raw := range f.Traits {
		trait := Trait(strings.TrimSpace(raw))
		if trait == "" {
			return cfg, invalidConfig("trait names cannot be blank", nil)
		}
		if declared[trait] {
			return cfg, invalidConfig("trait declared twice", map[string]string{"trait": string(trait)})
		}
		declared[trait] = true
		cfg.Traits = append(cfg.Traits, trait)
	}

	if len(f.Profiles) == 0 {
		return cfg, invalidConfig("at least one profile is required", nil)
	}
	profileNames := make(map[string]bool, len(f.Profiles))
	for _, raw := range f.Profiles {
		name := strings.TrimSpace(raw.Name)
		if name == "" {
			return cfg, invalidConfig("profile names cannot be blank", nil)
		}
		if profileNames[name] {
			return cfg, invalidConfig("profile declared twice", map[string]string{"profile": name})
		}
		profileNames[name] = true
		weights, err := traitWeights(raw.Weights, declared, map[string]string{"profile": name})
		if err != nil {
			return cfg, err
		}
		cfg.Profiles = append(cfg.Profiles, Profile{Name: name, Weights: weights})
	}

	if len(f.TieBreak) != len(cfg.Profiles) {
		return cfg, invalidConfig("tie_break must list every profile exactly once", nil)
	}
	seen := make(map[string]bool, len(f.TieBreak))
	for _, raw := range f.TieBreak {
		name := strings.TrimSpace(raw)
		if !profileNames[name] || seen[name] {
			return cfg, invalidConfig("tie_break must list every profile exactly once", map[string]string{"profile": name})
		}
		seen[name] = true
		cfg.TieBreak = append(cfg.TieBreak, name)
	}

	cfg.DefaultProfile = strings.TrimSpace(f.DefaultProfile)
	if !profileNames[cfg.DefaultProfile] {
		return cfg, invalidConfig("default_profile must be a declared profile", map[string]string{"profile": cfg.DefaultProfile})
	}

	if len(f.Questions) != script.QuestionCount {
		return cfg, invalidConfig(fmt.Sprintf("answer matrix has %d questions, want %d", len(f.Questions), script.QuestionCount), nil)
	}
	cfg.Matrix = make(map[int]map[string]map[Trait]int, script.QuestionCount)
	for number := 1; number <= script.QuestionCount; number++ {
		answers, ok := f.Questions[number]
		if !ok {
			return cfg, invalidConfig("question missing from answer matrix", map[string]string{"question": fmt.Sprint(number)})
		}
		if len(answers) != len(Letters) {
			return cfg, invalidConfig("question must define exactly letters A to D", map[string]string{"question": fmt.Sprint(number)})
		}
		row := make(map[string]map[Trait]int, len(Letters))
		for _, letter := range Letters {
			increments, ok := answers[letter]
			if !ok {
				return cfg, invalidConfig("answer missing from answer matrix", map[string]string{
					"question": fmt.Sprint(number),
					"letter":   letter,
				})
			}
			weights, err := traitWeights(increments, declared, map[string]string{
				"question": fmt.Sprint(number),
				"letter":   letter,
			})
			if err != nil {
				return cfg, err
			}
			row[letter] = weights
		}
		cfg.Matrix[number] = row
	}
	return cfg, nil
}

func traitWeights(raw map[string]int, declared map[Trait]bool, context map[string]string) (map[Trait]int, error) {
	weights := make(map[Trait]int, len(raw))
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		trait := Trait(strings.TrimSpace(key))
		meta := copyMetadata(context)
		meta["trait"] = string(trait)
		if !declared[trait] {
			return nil, invalidConfig("undeclared trait", meta)
		}
		if raw[key] < 0 {
			return nil, invalidConfig("weights cannot be negative", meta)
		}
		weights[trait] = raw[key]
	}
	return weights, nil
}

func invalidConfig(message string, metadata map[string]string) error {
	if len(metadata) > 0 {
		keys := make([]string, 0, len(metadata))
		for key := range metadata {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%q", key, metadata[key]))
		}
		message = message + " (" + strings.Join(parts, " ") + ")"
	}
	return apperrors.WithMetadata(apperrors.CodeScoringInvalid, message, metadata)
}

func copyMetadata(source map[string]string) map[string]string {
	out := make(map[string]string, len(source)+1)
	for key, value := range source {
		out[key] = value
	}
	return out
}

func mustLoad(data []byte) *Engine {
	engine, err := Load(data)
	if err != nil {
		panic(fmt.Sprintf("embedded scoring config: %v", err))
	}
	return engine
}

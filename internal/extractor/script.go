package extractor

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/archai/internal/requirements"
)

//go:embed script.yaml
var defaultScript []byte

// Script holds every canned line of the conversation. It is loaded from an
// embedded YAML document so wording changes never touch code.
type Script struct {
	Welcome          string            `yaml:"welcome"`
	Trouble          string            `yaml:"trouble"`
	GreetingReply    string            `yaml:"greeting_reply"`
	Questions        map[string]string `yaml:"questions"`
	Acknowledgements []string          `yaml:"acknowledgements"`
	Confirm          string            `yaml:"confirm"`
	Affirmed         string            `yaml:"affirmed"`
	Corrected        string            `yaml:"corrected"`
	Progress         Progress          `yaml:"progress"`
	Failures         Failures          `yaml:"failures"`
	Tokens           Tokens            `yaml:"tokens"`
}

// Progress holds the rhetorical narration emitted as the pipeline advances.
type Progress struct {
	Generating  string `yaml:"generating"`
	Refining    string `yaml:"refining"`
	Floorplan   string `yaml:"floorplan"`
	Interior    string `yaml:"interior"`
	Done        string `yaml:"done"`
	Inspiration string `yaml:"inspiration"`
	Edited      string `yaml:"edited"`
}

// Failures holds the conversational error explanations.
type Failures struct {
	Generation  string `yaml:"generation"`
	Refinement  string `yaml:"refinement"`
	Interior    string `yaml:"interior"`
	Interrupted string `yaml:"interrupted"`
	RateLimited string `yaml:"rate_limited"`
}

// Tokens are the lowercase phrases the rule-based matcher looks for.
type Tokens struct {
	Affirm    []string `yaml:"affirm"`
	Negate    []string `yaml:"negate"`
	Greeting  []string `yaml:"greeting"`
	Addressee []string `yaml:"addressee"`
}

// DefaultScript parses the embedded script.
func DefaultScript() (*Script, error) {
	return ParseScript(defaultScript)
}

// MustDefaultScript is DefaultScript for package initialisation and tests.
func MustDefaultScript() *Script {
	s, err := DefaultScript()
	if err != nil {
		panic(err)
	}
	return s
}

// ParseScript decodes and validates a script document.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing conversation script: %w", err)
	}
	for _, f := range requirements.CollectedFields {
		if strings.TrimSpace(s.Questions[string(f)]) == "" {
			return nil, fmt.Errorf("conversation script: no question for %s", f)
		}
	}
	if s.Welcome == "" || s.Trouble == "" || s.Confirm == "" {
		return nil, fmt.Errorf("conversation script: welcome, trouble and confirm are required")
	}
	return &s, nil
}

// Question returns the prompt asking for f.
func (s *Script) Question(f requirements.Field) string {
	return s.Questions[string(f)]
}

// ConfirmWithSummary asks for confirmation and lists what was gathered.
func (s *Script) ConfirmWithSummary(rec requirements.Record) string {
	return s.Confirm + "\n\n" + rec.Summary()
}

// acknowledge picks a deterministic acknowledgement for the n-th answer.
func (s *Script) acknowledge(n int) string {
	if len(s.Acknowledgements) == 0 {
		return ""
	}
	return s.Acknowledgements[n%len(s.Acknowledgements)]
}

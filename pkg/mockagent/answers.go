package mockagent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultAnswer = "I don't know."

// Answers is the canned data served by the mock agent.
type Answers struct {
	DefaultAnswer string            `yaml:"defaultAnswer"`
	Answers       map[string]string `yaml:"answers"`
	Transcripts   []Transcript      `yaml:"transcripts"`
}

type Transcript struct {
	UserID       int    `yaml:"userId"`
	TranscriptID int    `yaml:"transcriptId"`
	Content      string `yaml:"content"`
	Summary      string `yaml:"summary"`
}

// LoadAnswers reads an answers file. An empty path yields an empty set that
// answers everything with the default answer.
func LoadAnswers(path string) (*Answers, error) {
	a := &Answers{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read answers file: %w", err)
		}
		if err := yaml.Unmarshal(data, a); err != nil {
			return nil, fmt.Errorf("parse answers file: %w", err)
		}
	}
	if a.DefaultAnswer == "" {
		a.DefaultAnswer = defaultAnswer
	}
	return a, nil
}

// Lookup matches question exactly, then case- and space-insensitively.
func (a *Answers) Lookup(question string) string {
	if ans, ok := a.Answers[question]; ok {
		return ans
	}
	norm := normalize(question)
	for q, ans := range a.Answers {
		if normalize(q) == norm {
			return ans
		}
	}
	return a.DefaultAnswer
}

func (a *Answers) Transcript(userID, transcriptID int) (Transcript, bool) {
	for _, t := range a.Transcripts {
		if t.UserID == userID && t.TranscriptID == transcriptID {
			return t, true
		}
	}
	return Transcript{}, false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

package ai

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prompt is the pair of chat messages sent for one analysis.
// User may reference {{role}} and must reference {{resume}}.
type Prompt struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

const defaultSystemPrompt = `You are an experienced recruiter and ATS specialist reviewing résumés.
Return JSON only, without markdown, in exactly this shape:
{
  "overall_score": number,
  "section_scores": {
    "professional_summary": number,
    "work_experience": number,
    "skills": number,
    "education": number,
    "format": number
  },
  "strengths": string[],
  "improvements": string[],
  "ats_tips": string[]
}

Rules:
- Score each section from 0 to 20 using the full range:
  0-5 very poor or missing, 6-10 weak, 11-14 average, 15-17 strong, 18-20 excellent.
- A missing, empty or unclear section scores 0.
- The professional summary may be titled Summary, Profile, Objective, About or
  appear untitled as a short paragraph above the work history. Score it whenever
  such a paragraph exists.
- overall_score = (sum of the five section scores) * 5, rounded to an integer.
- If the document is not a résumé (essay, report, job description), set
  overall_score between 10 and 40 and put "Not a resume." in improvements.
- Score only what is written. Do not infer missing content.`

const defaultUserPrompt = `Analyze this résumé for the role: "{{role}}"

Résumé text:
{{resume}}`

// DefaultPrompt returns the built-in prompt.
func DefaultPrompt() Prompt {
	return Prompt{System: defaultSystemPrompt, User: defaultUserPrompt}
}

// LoadPrompt reads a YAML prompt override. An empty path returns DefaultPrompt;
// fields left empty in the file keep their defaults.
func LoadPrompt(path string) (Prompt, error) {
	p := DefaultPrompt()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Prompt{}, fmt.Errorf("op=ai.LoadPrompt: %w", err)
	}
	var override Prompt
	if err := yaml.Unmarshal(b, &override); err != nil {
		return Prompt{}, fmt.Errorf("op=ai.LoadPrompt: parse %s: %w", path, err)
	}
	if strings.TrimSpace(override.System) != "" {
		p.System = override.System
	}
	if strings.TrimSpace(override.User) != "" {
		if !strings.Contains(override.User, "{{resume}}") {
			return Prompt{}, fmt.Errorf("op=ai.LoadPrompt: user template must contain {{resume}}")
		}
		p.User = override.User
	}
	return p, nil
}

// Render fills the user template with role and résumé text.
func (p Prompt) Render(role, resume string) (system, user string) {
	r := strings.NewReplacer("{{role}}", role, "{{resume}}", resume)
	return p.System, r.Replace(p.User)
}

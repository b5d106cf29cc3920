package headhunter

import (
	"strings"
	"time"

	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/source"
)

const publishedLayout = "2006-01-02T15:04:05-0700"

type Named struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type Vacancy struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Area     Named  `json:"area,omitempty"`
	Schedule Named  `json:"schedule,omitempty"`
	Employer struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"employer,omitempty"`
	AlternateURL string  `json:"alternate_url,omitempty"`
	Employment   Named   `json:"employment,omitempty"`
	Description  string  `json:"description,omitempty"`
	KeySkills    []Named `json:"key_skills,omitempty"`
	Archived     bool    `json:"archived,omitempty"`
	Snippet      struct {
		Requirement    string `json:"requirement,omitempty"`
		Responsibility string `json:"responsibility,omitempty"`
	} `json:"snippet,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

var jobTypeByEmployment = map[string]string{
	"full":      "fulltime",
	"part":      "parttime",
	"probation": "internship",
	"project":   "contract",
	"volunteer": "volunteer",
}

// ToPosting maps the vacancy onto a posting. Key skills are appended to the
// description so skill detection and enrichment can see them.
func (v *Vacancy) ToPosting() model.Posting {
	description := v.Description
	if strings.TrimSpace(description) == "" {
		description = strings.TrimSpace(v.Snippet.Requirement + " " + v.Snippet.Responsibility)
	}
	if len(v.KeySkills) > 0 {
		names := make([]string, 0, len(v.KeySkills))
		for _, skill := range v.KeySkills {
			names = append(names, skill.Name)
		}
		description += "\nKey skills: " + strings.Join(names, ", ")
	}

	p := model.Posting{
		Source:      Name,
		SourceID:    v.ID,
		Title:       strings.TrimSpace(v.Name),
		Company:     strings.TrimSpace(v.Employer.Name),
		Location:    strings.TrimSpace(v.Area.Name),
		Remote:      v.Schedule.ID == "remote",
		JobType:     jobTypeByEmployment[v.Employment.ID],
		Description: source.PlainText(description),
		URL:         v.AlternateURL,
	}

	if published, err := time.Parse(publishedLayout, v.PublishedAt); err == nil {
		p.PostedAt = published.UTC()
	}

	return p
}

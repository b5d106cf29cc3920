package profile

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/skillscope/skillscope/internal/model"
)

// Profile is the structured candidate profile used for matching and evaluation.
type Profile struct {
	ID          string           `mapstructure:"id" json:"id" validate:"required"`
	Name        string           `mapstructure:"name" json:"name"`
	Skills      []string         `mapstructure:"skills" json:"skills"`
	TargetRoles []string         `mapstructure:"target-roles" json:"target_roles"`
	Locations   []string         `mapstructure:"locations" json:"locations"`
	Remote      bool             `mapstructure:"remote" json:"remote"`
	JobTypes    []string         `mapstructure:"job-types" json:"job_types"`
	Field       string           `mapstructure:"field" json:"field"`
	Experience  string           `mapstructure:"experience" json:"experience"`
	Summary     string           `mapstructure:"summary" json:"summary"`
	Languages   []string         `mapstructure:"languages" json:"languages"`
	Education   []Education      `mapstructure:"education" json:"education" validate:"dive"`
	WorkHistory []WorkExperience `mapstructure:"work-history" json:"work_history" validate:"dive"`
}

type Education struct {
	Degree         string `mapstructure:"degree" json:"degree"`
	FieldOfStudy   string `mapstructure:"field-of-study" json:"field_of_study"`
	Institution    string `mapstructure:"institution" json:"institution"`
	GraduationYear int    `mapstructure:"graduation-year" json:"graduation_year" validate:"omitempty,gte=1950,lte=2100"`
}

type WorkExperience struct {
	JobTitle         string  `mapstructure:"job-title" json:"job_title" validate:"required"`
	Company          string  `mapstructure:"company" json:"company"`
	Years            float64 `mapstructure:"years" json:"years" validate:"gte=0"`
	Responsibilities string  `mapstructure:"responsibilities" json:"responsibilities"`
}

var validate = validator.New()

// Load reads a profile from a YAML or JSON file, normalises and validates it.
func Load(path string) (*Profile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading profile %q: %w", path, err)
	}

	var p Profile
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("decoding profile %q: %w", path, err)
	}

	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &p, nil
}

// Validate checks the profile carries enough information to be matched.
func (p *Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	if len(p.Skills) == 0 && len(p.TargetRoles) == 0 {
		return errors.New("invalid profile: at least one skill or target role is required")
	}
	return nil
}

// Normalize deduplicates and case-normalises the matching-relevant lists.
func (p *Profile) Normalize() {
	p.ID = strings.TrimSpace(p.ID)
	p.Skills = model.NormalizeList(p.Skills)
	p.TargetRoles = model.NormalizeList(p.TargetRoles)
	p.Locations = model.NormalizeList(p.Locations)
	p.JobTypes = model.NormalizeList(p.JobTypes)
}

// Clone returns a deep copy so a search works on an immutable snapshot.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Skills = append([]string(nil), p.Skills...)
	c.TargetRoles = append([]string(nil), p.TargetRoles...)
	c.Locations = append([]string(nil), p.Locations...)
	c.JobTypes = append([]string(nil), p.JobTypes...)
	c.Languages = append([]string(nil), p.Languages...)
	c.Education = append([]Education(nil), p.Education...)
	c.WorkHistory = append([]WorkExperience(nil), p.WorkHistory...)
	return &c
}

// Fingerprint identifies the matching-relevant content of the profile.
func (p *Profile) Fingerprint() string {
	remote := "onsite"
	if p.Remote {
		remote = "remote"
	}
	key := strings.Join([]string{
		p.ID,
		strings.Join(p.Skills, ","),
		strings.Join(p.TargetRoles, ","),
		strings.Join(p.Locations, ","),
		strings.Join(p.JobTypes, ","),
		remote,
		model.Normalize(p.Experience),
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Text renders the profile as plain text for prompts.
func (p *Profile) Text() string {
	var b strings.Builder
	line := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		fmt.Fprintf(&b, "%s: %s\n", label, value)
	}

	line("Name", p.Name)
	line("Field", p.Field)
	line("Experience", p.Experience)
	line("Skills", strings.Join(p.Skills, ", "))
	line("Target roles", strings.Join(p.TargetRoles, ", "))
	line("Preferred locations", strings.Join(p.Locations, ", "))
	if p.Remote {
		line("Remote", "open to remote work")
	}
	line("Job types", strings.Join(p.JobTypes, ", "))
	line("Languages", strings.Join(p.Languages, ", "))

	if len(p.Education) > 0 {
		b.WriteString("Education:\n")
		for _, e := range p.Education {
			fmt.Fprintf(&b, "- %s in %s, %s", e.Degree, e.FieldOfStudy, e.Institution)
			if e.GraduationYear > 0 {
				fmt.Fprintf(&b, " (%d)", e.GraduationYear)
			}
			b.WriteString("\n")
		}
	}

	if len(p.WorkHistory) > 0 {
		b.WriteString("Work history:\n")
		for _, w := range p.WorkHistory {
			fmt.Fprintf(&b, "- %s at %s, %.1f years", w.JobTitle, w.Company, w.Years)
			if w.Responsibilities != "" {
				fmt.Fprintf(&b, ": %s", w.Responsibilities)
			}
			b.WriteString("\n")
		}
	}

	line("Summary", p.Summary)
	return strings.TrimSpace(b.String())
}

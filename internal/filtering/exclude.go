package filtering

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/skillscope/skillscope/internal/model"
)

// ExcludeList is the content of the exclude file.
type ExcludeList struct {
	Items []*Excluded `json:"items"`
}

type Excluded struct {
	Fingerprint string    `json:"fingerprint"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	URL         string    `json:"url,omitempty"`
	ExcludedAt  time.Time `json:"excluded_at"`
}

// LoadExcludeList reads the exclude file. A missing or empty file is an empty list.
func LoadExcludeList(path string) (*ExcludeList, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ExcludeList{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludeList{}, nil
	}

	var excluded ExcludeList
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, err
	}
	return &excluded, nil
}

// ToExcludeList converts postings into exclude entries stamped with at.
func ToExcludeList(postings []model.Posting, at time.Time) *ExcludeList {
	excluded := &ExcludeList{}
	for i := range postings {
		p := &postings[i]
		excluded.Items = append(excluded.Items, &Excluded{
			Fingerprint: p.EnsureFingerprint(),
			Title:       p.Title,
			Company:     p.Company,
			URL:         p.URL,
			ExcludedAt:  at.UTC(),
		})
	}
	return excluded
}

// Append adds entries whose fingerprint is not listed yet.
func (l *ExcludeList) Append(s *ExcludeList) {
	known := l.Fingerprints()
	for _, item := range s.Items {
		if _, ok := known[item.Fingerprint]; ok {
			continue
		}
		known[item.Fingerprint] = struct{}{}
		l.Items = append(l.Items, item)
	}
}

func (l *ExcludeList) Fingerprints() map[string]struct{} {
	set := make(map[string]struct{}, len(l.Items))
	for _, item := range l.Items {
		set[item.Fingerprint] = struct{}{}
	}
	return set
}

func (l *ExcludeList) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(l)
}

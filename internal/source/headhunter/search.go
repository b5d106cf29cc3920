package headhunter

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/skillscope/skillscope/internal/source"
)

const (
	SearchPath  = "/vacancies"
	VacancyPath = "/vacancies/%s"
)

type SearchParams struct {
	Text string `yaml:"text"`
	// hhparam is custom tag for reflect. Please see below.
	Areas      []int    `hhparam:"area"`
	OrderBy    string   `yaml:"order_by"`
	Schedules  []string `hhparam:"schedule"`
	Employment []string `hhparam:"employment"`
	PerPage    string   `yaml:"per_page"`
	Period     uint     `yaml:"period"`
}

var employmentByJobType = map[string]string{
	"fulltime":   "full",
	"parttime":   "part",
	"internship": "probation",
	"student":    "probation",
	"contract":   "project",
	"volunteer":  "volunteer",
}

func paramsFor(q source.Query, areas []int) *SearchParams {
	text := strings.TrimSpace(q.Keywords)
	if loc := strings.TrimSpace(q.Location); loc != "" && len(areas) == 0 {
		text = strings.TrimSpace(text + " " + loc)
	}

	params := &SearchParams{
		Text:    text,
		Areas:   areas,
		OrderBy: "publication_time",
		PerPage: perPage,
	}
	if q.Limit > 0 && q.Limit < 100 {
		params.PerPage = strconv.Itoa(q.Limit)
	}
	if q.Remote {
		params.Schedules = append(params.Schedules, "remote")
	}
	for _, jt := range q.JobTypes {
		if e, ok := employmentByJobType[strings.ToLower(jt)]; ok {
			params.Employment = append(params.Employment, e)
		}
	}
	return params
}

func (c *Client) search(ctx context.Context, params *SearchParams) ([]*Vacancy, error) {
	if params.PerPage == "" {
		params.PerPage = perPage
	}

	items, err := c.GetItems(ctx, c.APIURL+SearchPath, buildParams(params), c.MaxPages)
	if err != nil {
		return nil, err
	}

	var vacancies []*Vacancy
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &vacancies,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(items); err != nil {
		return nil, fmt.Errorf("decode vacancies: %w", err)
	}

	return vacancies, nil
}

// GetVacancy loads a single vacancy with its full description.
func (c *Client) GetVacancy(ctx context.Context, id string) (*Vacancy, error) {
	var v Vacancy
	if err := c.getJSON(ctx, c.APIURL+fmt.Sprintf(VacancyPath, url.PathEscape(id)), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func buildParams(params *SearchParams) url.Values {
	q := url.Values{}
	value := reflect.ValueOf(params).Elem()
	for _, field := range reflect.VisibleFields(value.Type()) {
		// Our custom tag is used here.
		key := field.Tag.Get("hhparam")
		if key == "" {
			key = field.Tag.Get("yaml")
		}
		if key == "" {
			continue
		}

		switch v := value.FieldByIndex(field.Index).Interface().(type) {
		case []int:
			for _, item := range v {
				q.Add(key, strconv.Itoa(item))
			}
		case []string:
			for _, item := range v {
				q.Add(key, item)
			}
		default:
			s := fmt.Sprintf("%v", v)
			if s != "" && s != "0" {
				q.Set(key, s)
			}
		}
	}

	return q
}

// Package saju carries the structured chart facts a client supplies with a
// question. Facts are request-scoped: they are injected into the generation
// prompt only and are never persisted or used for passage retrieval.
package saju

import (
	"fmt"
	"strings"
)

// Pillars are the four pillars (eight characters) of a chart.
type Pillars struct {
	Year  string `json:"year,omitempty"`
	Month string `json:"month,omitempty"`
	Day   string `json:"day,omitempty"`
	Hour  string `json:"hour,omitempty"`
}

// Facts is the structured chart record for one request.
type Facts struct {
	Name       string  `json:"name,omitempty"`
	BirthDate  string  `json:"birth_date,omitempty"`
	BirthTime  string  `json:"birth_time,omitempty"`
	Gender     string  `json:"gender,omitempty"`
	DayMaster  string  `json:"day_master,omitempty"`
	Pillars    Pillars `json:"pillars,omitempty"`
	Daewoon    string  `json:"daewoon,omitempty"`
	YearlyLuck string  `json:"yearly_luck,omitempty"`
}

// Empty reports whether no usable fact is present.
func (f *Facts) Empty() bool {
	if f == nil {
		return true
	}
	return f.BirthDate == "" && f.DayMaster == "" && f.Pillars == Pillars{} &&
		f.Daewoon == "" && f.YearlyLuck == ""
}

// PromptBlock renders the facts as the structured block appended after the
// question text so it augments generation without touching retrieval.
func (f *Facts) PromptBlock() string {
	if f.Empty() {
		return ""
	}

	var b strings.Builder
	b.WriteString("[내담자 사주 정보]\n")
	if f.Name != "" {
		fmt.Fprintf(&b, "- 이름: %s\n", f.Name)
	}
	if f.BirthDate != "" {
		birth := f.BirthDate
		if f.BirthTime != "" {
			birth += " " + f.BirthTime
		}
		fmt.Fprintf(&b, "- 생년월일시: %s\n", birth)
	}
	if f.Gender != "" {
		fmt.Fprintf(&b, "- 성별: %s\n", f.Gender)
	}
	if f.DayMaster != "" {
		fmt.Fprintf(&b, "- 일간(본원): %s\n", f.DayMaster)
	}
	if f.Pillars != (Pillars{}) {
		fmt.Fprintf(&b, "- 사주팔자: 년주 %s / 월주 %s / 일주 %s / 시주 %s\n",
			orUnknown(f.Pillars.Year), orUnknown(f.Pillars.Month),
			orUnknown(f.Pillars.Day), orUnknown(f.Pillars.Hour))
	}
	if f.Daewoon != "" {
		fmt.Fprintf(&b, "- 현재 대운: %s\n", f.Daewoon)
	}
	if f.YearlyLuck != "" {
		fmt.Fprintf(&b, "- 올해 세운: %s\n", f.YearlyLuck)
	}
	return strings.TrimRight(b.String(), "\n")
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "정보 없음"
	}
	return v
}

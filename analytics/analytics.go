// Package analytics tabulates survey responses into per-question summaries.
// Summarization is a pure function of the survey's questions and the fetched
// response set; malformed answers are dropped, never reported as errors.
package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pulsehq/pulse-survey/model"
)

type Summary struct {
	TotalResponses int               `json:"totalResponses"`
	Questions      []QuestionSummary `json:"questions"`
}

// QuestionSummary is implemented by exactly one summary type per question
// type: ChoiceSummary, RatingSummary, TextSummary.
type QuestionSummary interface {
	questionSummary()
}

type ChoiceSummary struct {
	QuestionID int                `json:"questionId"`
	Text       string             `json:"text"`
	Type       model.QuestionType `json:"type"`
	Counts     OptionCounts       `json:"data"`
}

type RatingSummary struct {
	QuestionID int                `json:"questionId"`
	Text       string             `json:"text"`
	Type       model.QuestionType `json:"type"`
	Average    string             `json:"average"`
	Ratings    []int              `json:"responses"`
}

type TextSummary struct {
	QuestionID int                `json:"questionId"`
	Text       string             `json:"text"`
	Type       model.QuestionType `json:"type"`
	Answers    []string           `json:"answers"`
}

func (ChoiceSummary) questionSummary() {}
func (RatingSummary) questionSummary() {}
func (TextSummary) questionSummary()   {}

type OptionCount struct {
	Option string
	Count  int
}

// OptionCounts is a tally keyed by declared option, in declared order.
// It marshals to a JSON object whose keys keep that order.
type OptionCounts []OptionCount

func (oc OptionCounts) MarshalJSON() ([]byte, error) {
	buf := bytes.Buffer{}
	buf.WriteByte('{')
	for i, c := range oc {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Option)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(c.Count))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Summarize tabulates all responses to a survey, question by question.
// A response contributes at most one answer per question: the first whose
// reference matches. Questions with a stored type that is no longer known
// degrade to the free-text summary.
func Summarize(questions []model.Question, responses []model.Response) Summary {
	summary := Summary{
		TotalResponses: len(responses),
		Questions:      make([]QuestionSummary, 0, len(questions)),
	}

	for _, q := range questions {
		values := matchedValues(q.ID, responses)

		var qs QuestionSummary
		switch q.Type {
		case model.MultipleChoice:
			qs = summarizeChoices(q, values)
		case model.Rating:
			qs = summarizeRatings(q, values)
		default:
			qs = summarizeText(q, values)
		}
		summary.Questions = append(summary.Questions, qs)
	}

	return summary
}

func matchedValues(questionID int, responses []model.Response) []string {
	values := []string{}
	for _, r := range responses {
		for _, a := range r.Answers {
			if a.QuestionID == questionID {
				values = append(values, a.Value)
				break
			}
		}
	}
	return values
}

func summarizeChoices(q model.Question, values []string) ChoiceSummary {
	counts := make(OptionCounts, len(q.Options))
	index := make(map[string]int, len(q.Options))
	for i, opt := range q.Options {
		counts[i] = OptionCount{Option: opt}
		index[opt] = i
	}

	for _, v := range values {
		// values that match no declared option are dropped
		if i, ok := index[v]; ok {
			counts[i].Count++
		}
	}

	return ChoiceSummary{
		QuestionID: q.ID,
		Text:       q.Text,
		Type:       q.Type,
		Counts:     counts,
	}
}

func summarizeRatings(q model.Question, values []string) RatingSummary {
	ratings := []int{}
	sum := 0
	for _, v := range values {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		ratings = append(ratings, n)
		sum += n
	}

	average := "0.00"
	if len(ratings) > 0 {
		average = fmt.Sprintf("%.2f", float64(sum)/float64(len(ratings)))
	}

	return RatingSummary{
		QuestionID: q.ID,
		Text:       q.Text,
		Type:       q.Type,
		Average:    average,
		Ratings:    ratings,
	}
}

func summarizeText(q model.Question, values []string) TextSummary {
	return TextSummary{
		QuestionID: q.ID,
		Text:       q.Text,
		Type:       q.Type,
		Answers:    values,
	}
}

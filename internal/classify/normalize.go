package classify

import (
	"encoding/json"
	"fmt"

	"github.com/tariffdesk/tariffdesk/internal/results"
)

// rawOutcome captures every response shape the classification service is known
// to produce. Clarification questions arrive under either "clarifications" or
// "questions", as bare strings or objects; candidates arrive under either
// "candidates" or "matches", as a bare array or wrapped in "matched_rules".
type rawOutcome struct {
	Type               string            `json:"type"`
	NeedsClarification bool              `json:"needs_clarification"`
	Clarifications     []json.RawMessage `json:"clarifications"`
	Questions          []json.RawMessage `json:"questions"`
	Candidates         json.RawMessage   `json:"candidates"`
	Matches            json.RawMessage   `json:"matches"`
	MaxConfidence      *float64          `json:"max_confidence"`
}

type rawQuestion struct {
	Question string   `json:"question"`
	Text     string   `json:"text"`
	Options  []string `json:"options"`
}

type rawCandidate struct {
	HTS          string                    `json:"hts"`
	HTSCode      string                    `json:"hts_code"`
	Description  string                    `json:"description"`
	Score        *float64                  `json:"score"`
	Confidence   *float64                  `json:"confidence"`
	TariffRate   string                    `json:"tariff_rate"`
	Rationale    string                    `json:"rationale"`
	Reasoning    string                    `json:"reasoning"`
	Rulings      []results.CBPRuling       `json:"cbp_rulings"`
	Verification *results.RuleVerification `json:"rule_verification"`
}

type matchedRules struct {
	MatchedRules []rawCandidate `json:"matched_rules"`
}

// normalizeOutcome maps a raw service payload into the canonical Outcome.
// A payload that is neither a clarification request nor a candidate list is
// malformed; this is the single place shape ambiguity is resolved.
func normalizeOutcome(data []byte) (*Outcome, error) {
	var raw rawOutcome
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	questions, err := normalizeQuestions(raw)
	if err != nil {
		return nil, err
	}

	candidates, err := normalizeCandidates(raw)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		NeedsClarification: raw.Type == "clarify" || raw.NeedsClarification || len(questions) > 0,
		Questions:          questions,
		Candidates:         candidates,
		MaxConfidence:      raw.MaxConfidence,
	}

	if outcome.NeedsClarification && len(outcome.Questions) == 0 {
		return nil, fmt.Errorf("%w: clarification response without questions", ErrMalformed)
	}
	if !outcome.NeedsClarification && len(outcome.Candidates) == 0 {
		return nil, fmt.Errorf("%w: response carries neither questions nor candidates", ErrMalformed)
	}

	return outcome, nil
}

func normalizeQuestions(raw rawOutcome) ([]Question, error) {
	source := raw.Clarifications
	if len(source) == 0 {
		source = raw.Questions
	}

	questions := make([]Question, 0, len(source))
	for _, entry := range source {
		q, err := normalizeQuestion(entry)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}

	if len(questions) == 0 {
		return nil, nil
	}
	return questions, nil
}

func normalizeQuestion(entry json.RawMessage) (Question, error) {
	var text string
	if err := json.Unmarshal(entry, &text); err == nil {
		return Question{Text: text}, nil
	}

	var obj rawQuestion
	if err := json.Unmarshal(entry, &obj); err != nil {
		return Question{}, fmt.Errorf("%w: unparseable question: %w", ErrMalformed, err)
	}

	q := Question{Text: obj.Question, Options: obj.Options}
	if q.Text == "" {
		q.Text = obj.Text
	}
	if q.Text == "" {
		return Question{}, fmt.Errorf("%w: question without text", ErrMalformed)
	}
	return q, nil
}

func normalizeCandidates(raw rawOutcome) ([]results.Candidate, error) {
	source := raw.Candidates
	if len(source) == 0 {
		source = raw.Matches
	}
	if len(source) == 0 {
		return nil, nil
	}

	var entries []rawCandidate
	if err := json.Unmarshal(source, &entries); err != nil {
		var wrapped matchedRules
		if err := json.Unmarshal(source, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: unparseable candidates: %w", ErrMalformed, err)
		}
		entries = wrapped.MatchedRules
	}

	if len(entries) == 0 {
		return nil, nil
	}

	candidates := make([]results.Candidate, 0, len(entries))
	for _, entry := range entries {
		candidates = append(candidates, entry.toCandidate())
	}
	return candidates, nil
}

func (r rawCandidate) toCandidate() results.Candidate {
	c := results.Candidate{
		HTS:          r.HTS,
		Description:  r.Description,
		Score:        r.Score,
		TariffRate:   r.TariffRate,
		Reasoning:    r.Reasoning,
		Rulings:      r.Rulings,
		Verification: r.Verification,
	}

	if c.HTS == "" {
		c.HTS = r.HTSCode
	}
	if c.Score == nil {
		c.Score = r.Confidence
	}
	if c.Reasoning == "" {
		c.Reasoning = r.Rationale
	}

	return c
}

// rawBulkItem mirrors the per-item payload within a bulk run snapshot. The
// classification result arrives either pre-assembled under "classification_result"
// or as a ranked "candidates" list.
type rawBulkItem struct {
	ID            string                        `json:"id"`
	RowNumber     int                           `json:"row_number"`
	ExtractedData map[string]string             `json:"extracted_data"`
	Status        ItemStatus                    `json:"status"`
	Result        *results.ClassificationResult `json:"classification_result"`
	Candidates    []rawCandidate                `json:"candidates"`
	Error         string                        `json:"error"`
	Questions     []json.RawMessage             `json:"clarification_questions"`
	Answers       []string                      `json:"clarification_answers"`
}

type rawBulkRun struct {
	RunID           string        `json:"run_id"`
	Status          RunStatus     `json:"status"`
	TotalItems      int           `json:"total_items"`
	ProgressCurrent int           `json:"progress_current"`
	ProgressTotal   int           `json:"progress_total"`
	Summary         RunSummary    `json:"results_summary"`
	Items           []rawBulkItem `json:"items"`
}

func normalizeBulkRun(data []byte) (*BulkRun, error) {
	var raw rawBulkRun
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if raw.RunID == "" {
		return nil, fmt.Errorf("%w: bulk run without run_id", ErrMalformed)
	}

	run := &BulkRun{
		RunID:           raw.RunID,
		Status:          raw.Status,
		TotalItems:      raw.TotalItems,
		ProgressCurrent: raw.ProgressCurrent,
		ProgressTotal:   raw.ProgressTotal,
		Summary:         raw.Summary,
		Items:           make([]BulkItem, 0, len(raw.Items)),
	}

	for _, entry := range raw.Items {
		item, err := normalizeBulkItem(entry)
		if err != nil {
			return nil, err
		}
		run.Items = append(run.Items, item)
	}

	return run, nil
}

func normalizeBulkItem(raw rawBulkItem) (BulkItem, error) {
	item := BulkItem{
		ID:            raw.ID,
		RowNumber:     raw.RowNumber,
		ExtractedData: raw.ExtractedData,
		Status:        raw.Status,
		Result:        raw.Result,
		Error:         raw.Error,
		Answers:       raw.Answers,
	}

	if item.Result == nil && len(raw.Candidates) > 0 {
		candidates := make([]results.Candidate, 0, len(raw.Candidates))
		for _, c := range raw.Candidates {
			candidates = append(candidates, c.toCandidate())
		}
		item.Result = results.New(candidates)
	}

	for _, entry := range raw.Questions {
		q, err := normalizeQuestion(entry)
		if err != nil {
			return BulkItem{}, err
		}
		item.Questions = append(item.Questions, q)
	}

	return item, nil
}

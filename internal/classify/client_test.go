package classify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tariffdesk/tariffdesk/internal/classify"
	"github.com/tariffdesk/tariffdesk/internal/results"
)

func ptr(f float64) *float64 { return &f }

func newTestClient(t *testing.T, handler http.Handler) *classify.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := classify.Config{BaseURL: server.URL, Token: "test-token", Timeout: "5s"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return classify.NewClient(&cfg, logger)
}

func respondJSON(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	})
}

func TestClassifyNormalizesResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want *classify.Outcome
	}{
		{
			name: "clarify type with string clarifications",
			body: `{"type":"clarify","clarifications":["What is the primary material?","Is it battery powered?"]}`,
			want: &classify.Outcome{
				NeedsClarification: true,
				Questions: []classify.Question{
					{Text: "What is the primary material?"},
					{Text: "Is it battery powered?"},
				},
			},
		},
		{
			name: "needs_clarification flag with question objects",
			body: `{"needs_clarification":true,"questions":[{"question":"Intended use?","options":["household","industrial"]}]}`,
			want: &classify.Outcome{
				NeedsClarification: true,
				Questions: []classify.Question{
					{Text: "Intended use?", Options: []string{"household", "industrial"}},
				},
			},
		},
		{
			name: "question object carrying text field",
			body: `{"questions":[{"text":"Fabric composition?"}]}`,
			want: &classify.Outcome{
				NeedsClarification: true,
				Questions:          []classify.Question{{Text: "Fabric composition?"}},
			},
		},
		{
			name: "bare candidates array",
			body: `{"candidates":[{"hts":"7323.93.0000","description":"steel kitchenware","score":0.97,"tariff_rate":"2%","reasoning":"stainless household article"}],"max_confidence":0.97}`,
			want: &classify.Outcome{
				Candidates: []results.Candidate{
					{
						HTS:         "7323.93.0000",
						Description: "steel kitchenware",
						Score:       ptr(0.97),
						TariffRate:  "2%",
						Reasoning:   "stainless household article",
					},
				},
				MaxConfidence: ptr(0.97),
			},
		},
		{
			name: "matches wrapped in matched_rules with alias fields",
			body: `{"matches":{"matched_rules":[{"hts_code":"6110.20.2079","confidence":0.82,"rationale":"knit cotton pullover"}]}}`,
			want: &classify.Outcome{
				Candidates: []results.Candidate{
					{HTS: "6110.20.2079", Score: ptr(0.82), Reasoning: "knit cotton pullover"},
				},
			},
		},
		{
			name: "questions alongside partial candidates stays clarification",
			body: `{"questions":["Material?"],"candidates":[{"hts":"9102.12.80","score":0.41}]}`,
			want: &classify.Outcome{
				NeedsClarification: true,
				Questions:          []classify.Question{{Text: "Material?"}},
				Candidates:         []results.Candidate{{HTS: "9102.12.80", Score: ptr(0.41)}},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, respondJSON(tc.body))

			got, err := client.Classify(context.Background(), classify.Request{Description: "widget"})
			if err != nil {
				t.Fatalf("Classify() error: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassifyMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>gateway timeout</html>`},
		{"clarify without questions", `{"type":"clarify"}`},
		{"neither questions nor candidates", `{"max_confidence":0.5}`},
		{"question without text", `{"questions":[{"options":["a","b"]}]}`},
		{"unparseable candidates", `{"candidates":42}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, respondJSON(tc.body))

			_, err := client.Classify(context.Background(), classify.Request{Description: "widget"})
			if !errors.Is(err, classify.ErrMalformed) {
				t.Errorf("Classify() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestClassifyRequestWire(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody map[string]any
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{"candidates":[{"hts":"7323.93.0000","score":0.9}]}`)
	}))

	req := classify.Request{
		Description: "stainless steel water bottle",
		UserID:      "analyst-1",
		Threshold:   0.8,
		Clarification: &classify.Clarification{
			OriginalQuery: "water bottle",
			Response:      "stainless steel, 750ml",
		},
	}
	if _, err := client.Classify(context.Background(), req); err != nil {
		t.Fatalf("Classify() error: %v", err)
	}

	if gotPath != "/classify" {
		t.Errorf("path = %q, want %q", gotPath, "/classify")
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("authorization = %q, want bearer token", gotAuth)
	}
	if got := gotBody["description"]; got != "stainless steel water bottle" {
		t.Errorf("description = %v", got)
	}
	clar, ok := gotBody["clarification"].(map[string]any)
	if !ok {
		t.Fatalf("clarification missing from payload: %v", gotBody)
	}
	if clar["original_query"] != "water bottle" || clar["clarification_response"] != "stainless steel, 750ml" {
		t.Errorf("clarification payload = %v", clar)
	}
}

func TestClassifyServiceError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error":"model overloaded"}`)
	}))

	_, err := client.Classify(context.Background(), classify.Request{Description: "widget"})
	if !errors.Is(err, classify.ErrService) {
		t.Fatalf("Classify() error = %v, want ErrService", err)
	}
}

func TestClassifyTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	cfg := classify.Config{BaseURL: server.URL, Timeout: "1s"}
	client := classify.NewClient(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	server.Close()

	_, err := client.Classify(context.Background(), classify.Request{Description: "widget"})
	if !errors.Is(err, classify.ErrTransport) {
		t.Errorf("Classify() error = %v, want ErrTransport", err)
	}
}

func TestStartBulk(t *testing.T) {
	var (
		gotFile      []byte
		gotUser      string
		gotThreshold string
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bulk" {
			t.Errorf("path = %q, want /bulk", r.URL.Path)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile() error: %v", err)
		}
		gotFile, _ = io.ReadAll(file)
		gotUser = r.FormValue("user_id")
		gotThreshold = r.FormValue("confidence_threshold")
		io.WriteString(w, `{"run_id":"bulk-9","status":"pending","total_items":12}`)
	}))

	handle, err := client.StartBulk(context.Background(), classify.StartBulkRequest{
		Filename:  "catalog.csv",
		Data:      []byte("name,origin\nbottle,VN\n"),
		UserID:    "analyst-1",
		Threshold: 0.75,
	})
	if err != nil {
		t.Fatalf("StartBulk() error: %v", err)
	}

	if string(gotFile) != "name,origin\nbottle,VN\n" {
		t.Errorf("uploaded file = %q", gotFile)
	}
	if gotUser != "analyst-1" {
		t.Errorf("user_id = %q", gotUser)
	}
	if gotThreshold != "0.75" {
		t.Errorf("confidence_threshold = %q", gotThreshold)
	}
	want := &classify.BulkRunHandle{RunID: "bulk-9", Status: classify.RunPending, TotalItems: 12}
	if diff := cmp.Diff(want, handle); diff != "" {
		t.Errorf("StartBulk() mismatch (-want +got):\n%s", diff)
	}
}

func TestStartBulkWithoutRunID(t *testing.T) {
	client := newTestClient(t, respondJSON(`{"status":"pending"}`))

	_, err := client.StartBulk(context.Background(), classify.StartBulkRequest{
		Filename: "catalog.csv",
		Data:     []byte("x"),
	})
	if !errors.Is(err, classify.ErrMalformed) {
		t.Errorf("StartBulk() error = %v, want ErrMalformed", err)
	}
}

func TestPollBulk(t *testing.T) {
	body := `{
		"run_id": "bulk-9",
		"status": "processing",
		"total_items": 3,
		"progress_current": 2,
		"progress_total": 3,
		"results_summary": {"completed": 1, "exceptions": 1, "errors": 0},
		"items": [
			{
				"id": "item-1",
				"row_number": 1,
				"extracted_data": {"product_name": "water bottle"},
				"status": "completed",
				"classification_result": {
					"primary": {"hts": "7323.93.0000", "confidence": 97},
					"alternates": []
				}
			},
			{
				"id": "item-2",
				"row_number": 2,
				"status": "exception",
				"candidates": [
					{"hts_code": "6110.20.2079", "confidence": 0.61, "rationale": "knit pullover"},
					{"hts": "6110.30.3059", "score": 0.44}
				],
				"clarification_questions": ["Knit or woven?"]
			},
			{
				"id": "item-3",
				"row_number": 3,
				"status": "error",
				"error": "unreadable row"
			}
		]
	}`
	client := newTestClient(t, respondJSON(body))

	got, err := client.PollBulk(context.Background(), "bulk-9")
	if err != nil {
		t.Fatalf("PollBulk() error: %v", err)
	}

	want := &classify.BulkRun{
		RunID:           "bulk-9",
		Status:          classify.RunProcessing,
		TotalItems:      3,
		ProgressCurrent: 2,
		ProgressTotal:   3,
		Summary:         classify.RunSummary{Completed: 1, Exceptions: 1},
		Items: []classify.BulkItem{
			{
				ID:            "item-1",
				RowNumber:     1,
				ExtractedData: map[string]string{"product_name": "water bottle"},
				Status:        classify.ItemCompleted,
				Result: &results.ClassificationResult{
					Primary:    results.Entry{HTS: "7323.93.0000", Confidence: 97},
					Alternates: []results.Entry{},
				},
			},
			{
				ID:        "item-2",
				RowNumber: 2,
				Status:    classify.ItemException,
				Result: &results.ClassificationResult{
					Primary: results.Entry{HTS: "6110.20.2079", Confidence: 61, Reasoning: "knit pullover"},
					Alternates: []results.Entry{
						{HTS: "6110.30.3059", Confidence: 44},
					},
				},
				Questions: []classify.Question{{Text: "Knit or woven?"}},
			},
			{
				ID:        "item-3",
				RowNumber: 3,
				Status:    classify.ItemError,
				Error:     "unreadable row",
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PollBulk() mismatch (-want +got):\n%s", diff)
	}

	if !want.Items[1].NeedsClarification() {
		t.Error("exception item with questions should need clarification")
	}
	if want.Items[0].NeedsClarification() {
		t.Error("completed item should not need clarification")
	}
}

func TestPollBulkWithoutRunID(t *testing.T) {
	client := newTestClient(t, respondJSON(`{"status":"processing"}`))

	_, err := client.PollBulk(context.Background(), "bulk-9")
	if !errors.Is(err, classify.ErrMalformed) {
		t.Errorf("PollBulk() error = %v, want ErrMalformed", err)
	}
}

func TestClarifyItem(t *testing.T) {
	var (
		gotPath string
		gotBody map[string][]string
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{}`)
	}))

	err := client.ClarifyItem(context.Background(), "bulk-9", "item-2", []string{"knit"})
	if err != nil {
		t.Fatalf("ClarifyItem() error: %v", err)
	}

	if gotPath != "/bulk/bulk-9/items/item-2/clarify" {
		t.Errorf("path = %q", gotPath)
	}
	if diff := cmp.Diff([]string{"knit"}, gotBody["clarification_answers"]); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestCancelBulk(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"acknowledged", `{"success":true}`, true},
		{"declined", `{"success":false}`, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, respondJSON(tc.body))

			got, err := client.CancelBulk(context.Background(), "bulk-9")
			if err != nil {
				t.Fatalf("CancelBulk() error: %v", err)
			}
			if got != tc.want {
				t.Errorf("CancelBulk() = %t, want %t", got, tc.want)
			}
		})
	}
}

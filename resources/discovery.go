package resources

import (
	"context"
	"fmt"

	"github.com/aranyahq/aranya-go/api"
)

// Question is one discovery-questionnaire question.
type Question struct {
	ID       int64    `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// QuestionResponse is one selected answer, keyed by question ID and option
// index.
type QuestionResponse struct {
	QuestionID     int64 `json:"question_id"`
	SelectedOption int   `json:"selected_option"`
}

// Discovery accesses the discovery-questionnaire endpoints.
type Discovery struct {
	client *api.Client
}

func NewDiscovery(client *api.Client) *Discovery {
	return &Discovery{client: client}
}

// Questions lists the questionnaire.
func (d *Discovery) Questions(ctx context.Context) ([]Question, error) {
	var questions []Question
	if err := d.client.Get(ctx, "/discovery_questions", &questions); err != nil {
		return nil, fmt.Errorf("list discovery questions: %w", err)
	}
	return questions, nil
}

// SubmitResponses records the user's answers.
func (d *Discovery) SubmitResponses(ctx context.Context, responses []QuestionResponse) error {
	body := map[string]any{"responses": responses}
	if err := d.client.Post(ctx, "/user_responses_api/", body, nil); err != nil {
		return fmt.Errorf("submit questionnaire responses: %w", err)
	}
	return nil
}

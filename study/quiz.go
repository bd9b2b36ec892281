package study

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/revisely/go-study-client/artifacts"
	"github.com/revisely/go-study-client/gateway"
)

// QuizQuestion is one generated multiple-choice question. Answer indexes
// into Options.
type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      int      `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

type quizResponse struct {
	Questions []QuizQuestion `json:"questions"`
}

// QuizClient mirrors FlashcardsClient for quiz generation.
type QuizClient struct {
	api   *gateway.Client
	cache *artifacts.Cache
	log   zerolog.Logger
}

func NewQuizClient(api *gateway.Client, cache *artifacts.Cache, log zerolog.Logger) (*QuizClient, error) {
	if api == nil {
		return nil, errors.New("[NewQuizClient] gateway client is required")
	}
	if cache == nil {
		return nil, errors.New("[NewQuizClient] artifact cache is required")
	}
	return &QuizClient{api: api, cache: cache, log: log}, nil
}

// Generate returns the quiz set for noteID, from cache unless force is set.
func (q *QuizClient) Generate(ctx context.Context, noteID string, force bool) ([]QuizQuestion, error) {
	if !force {
		if questions, ok := decodeItems[QuizQuestion](mustGet(ctx, q.cache, artifacts.KindQuiz, noteID)); ok {
			q.rememberResource(ctx, noteID)
			return questions, nil
		}
	}

	resp, err := gateway.Call[quizResponse](ctx, q.api, gateway.Request{
		Method: http.MethodPost,
		Path:   notePath(noteID) + "/quiz",
	})
	if err != nil {
		return nil, err
	}

	if items, err := encodeItems(resp.Questions); err == nil {
		if err := q.cache.Set(ctx, artifacts.KindQuiz, noteID, items); err != nil {
			q.log.Warn().Err(err).Str("note", noteID).Msg("could not cache quiz")
		}
	}
	q.rememberResource(ctx, noteID)
	return resp.Questions, nil
}

func (q *QuizClient) rememberResource(ctx context.Context, noteID string) {
	if err := q.cache.SetLastResource(ctx, noteID); err != nil {
		q.log.Warn().Err(err).Str("note", noteID).Msg("could not record last resource")
	}
}

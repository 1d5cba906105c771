package builtin

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/orbi-bot/orbi/internal/core"
	"github.com/orbi-bot/orbi/internal/extension"
)

func init() {
	extension.RegisterHandler("trivia_quiz", &triviaQuiz{})
}

// triviaQuiz runs a short quiz round. Questions come from
// questions.json in the extension directory with a small compiled-in
// fallback set.
type triviaQuiz struct {
	api       *extension.API
	questions []triviaQuestion
}

type triviaQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

var fallbackQuestions = []triviaQuestion{
	{Question: "What planet is known as the red planet?", Answer: "mars"},
	{Question: "How many legs does a spider have?", Answer: "8"},
	{Question: "What do caterpillars turn into?", Answer: "butterflies"},
	{Question: "What is the biggest animal in the ocean?", Answer: "blue whale"},
}

func (q *triviaQuiz) OnLoad(api *extension.API) error {
	q.api = api
	if err := api.ReadJSONAsset("questions.json", &q.questions); err != nil || len(q.questions) == 0 {
		q.questions = fallbackQuestions
	}
	return nil
}

func (q *triviaQuiz) VoiceTriggers() []core.VoiceTrigger {
	return []core.VoiceTrigger{
		{Phrases: []string{"quiz me", "ask me a question"}, Action: "ask_question"},
	}
}

func (q *triviaQuiz) HandleAction(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "ask_question":
		if q.api.StopRequested() {
			return map[string]interface{}{"success": false, "message": "stopped"}, nil
		}
		idx := rand.Intn(len(q.questions))
		question := q.questions[idx]
		q.api.SetEmotion("thinking")
		q.api.Speak(question.Question)
		if err := q.api.SetData("current_question", idx); err != nil {
			return nil, err
		}
		score, _ := q.api.GetData("score", float64(0)).(float64)
		return map[string]interface{}{"success": true, "question": question.Question, "score": int(score)}, nil

	case "check_answer":
		idx, ok := q.api.GetData("current_question", nil).(float64)
		if !ok {
			q.api.Speak("Ask me to quiz you first!")
			return map[string]interface{}{"success": false, "message": "no active question"}, nil
		}
		given, _ := params["answer"].(string)
		question := q.questions[int(idx)%len(q.questions)]

		if strings.Contains(strings.ToLower(given), question.Answer) {
			score, _ := q.api.GetData("score", float64(0)).(float64)
			q.api.SetData("score", score+1)
			q.api.SetEmotion("sparkling")
			q.api.Speak(fmt.Sprintf("That's right! It's %s! You have %d points!", question.Answer, int(score)+1))
			return map[string]interface{}{"success": true, "correct": true}, nil
		}
		q.api.Speak(fmt.Sprintf("Good try! The answer is %s.", question.Answer))
		return map[string]interface{}{"success": true, "correct": false}, nil

	case "reset_score":
		q.api.SetData("score", 0)
		q.api.Speak("Okay, starting fresh! Quiz me when you're ready!")
		return map[string]interface{}{"success": true}, nil
	}

	return map[string]interface{}{"success": false, "message": "Unknown action"}, nil
}

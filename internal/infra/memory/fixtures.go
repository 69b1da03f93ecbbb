package memory

import (
	"strconv"

	"quiz-league-client/internal/domain"
)

// DailyQuiz is the question set played when no API is configured.
func DailyQuiz(quizID string) domain.Quiz {
	return domain.Quiz{ID: quizID, Questions: []domain.Question{
		{
			ID:            "q1",
			Text:          "Which player has won the most Ballon d'Or awards?",
			Options:       []string{"Lionel Messi", "Cristiano Ronaldo", "Michel Platini", "Johan Cruyff"},
			CorrectAnswer: "Lionel Messi",
		},
		{
			ID:            "q2",
			Text:          "In which year did Leicester City win the Premier League?",
			Options:       []string{"2014", "2016", "2018", "2020"},
			CorrectAnswer: "2016",
		},
		{
			ID:            "q3",
			Text:          "What is the official name of the stadium where FC Barcelona plays?",
			Options:       []string{"Santiago Bernabéu", "San Siro", "Camp Nou", "Anfield"},
			CorrectAnswer: "Camp Nou",
		},
		{
			ID:            "q4",
			Text:          "Which country won the FIFA World Cup in 2014?",
			Options:       []string{"Brazil", "Argentina", "Germany", "Spain"},
			CorrectAnswer: "Germany",
		},
		{
			ID:            "q5",
			Text:          "How many substitutes are currently permitted in a standard FIFA match?",
			Options:       []string{"3", "5", "7", "Unlimited"},
			CorrectAnswer: "5",
		},
	}}
}

// SeedLeague is a league record preloaded into LeagueRepository.
type SeedLeague struct {
	ID          string
	Name        string
	Description string
	Code        string
	Private     bool
	StartsIn    int
	Members     []string
}

// DefaultLeagues are the popular public leagues plus one private league.
func DefaultLeagues() []SeedLeague {
	return []SeedLeague{
		{ID: "3", Name: "Euro Elite Trivial", Description: "Test your UCL/UEL knowledge.", StartsIn: 3600, Members: seedMembers("euro", 560)},
		{ID: "4", Name: "Classic EPL Heads", Description: "90s and 2000s English football quiz.", StartsIn: 10800, Members: seedMembers("epl", 320)},
		{ID: "5", Name: "South American Soccer", Description: "Quiz on CONMEBOL teams and legends.", StartsIn: 5400, Members: seedMembers("conmebol", 150)},
		{ID: "7", Name: "Golden Boot Society", Description: "Invite-only strikers club.", Code: "G8H7P3", Private: true, StartsIn: 86400, Members: seedMembers("boot", 4)},
	}
}

func seedMembers(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = prefix + "-member-" + strconv.Itoa(i+1)
	}
	return out
}

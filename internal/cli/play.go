package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"quiz-league-client/internal/app"
	"quiz-league-client/internal/countdown"
	"quiz-league-client/internal/domain"
)

func newPlayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Play the daily quiz in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := buildStack(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			launcher := app.NewQuizLauncher(opts.cfg.Quiz.QuizConfig, st.quizzes, app.Collaborators{
				Scores: st.scores(opts.cfg.User.ID),
				Logger: opts.logger,
			})
			defer launcher.Close()
			if err := playQuiz(cmd.Context(), launcher, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				return err
			}
			return st.printStanding(cmd.Context(), opts.cfg.User.ID, cmd.OutOrStdout())
		},
	}
}

// playQuiz runs one session, reading option numbers from in.
func playQuiz(ctx context.Context, launcher *app.QuizLauncher, in io.Reader, out io.Writer) error {
	state := launcher.State()
	fmt.Fprintf(out, "%s (available for %s)\n", state.Name, state.AvailableText)

	session, err := launcher.Launch(ctx)
	if err != nil {
		return err
	}
	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()

	var (
		mu      sync.Mutex
		current *domain.Question
	)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		last := -1
		for snap := range updates {
			if snap.Status != domain.QuizActive || snap.Question == nil || snap.QuestionIndex == last {
				continue
			}
			last = snap.QuestionIndex
			q := *snap.Question
			mu.Lock()
			current = &q
			mu.Unlock()
			fmt.Fprintf(out, "\nQuestion %d/%d  [%s left]\n%s\n", snap.QuestionIndex+1, snap.Total, countdown.FormatRemaining(snap.RemainingSeconds), q.Text)
			for i, opt := range q.Options {
				fmt.Fprintf(out, "  %d) %s\n", i+1, opt)
			}
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-session.Done():
				return
			}
		}
		close(lines)
	}()

loop:
	for {
		select {
		case <-session.Done():
			break loop
		case <-ctx.Done():
			session.Close()
			break loop
		case line, ok := <-lines:
			if !ok {
				session.Close()
				break loop
			}
			mu.Lock()
			q := current
			mu.Unlock()
			if q == nil {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil || n < 1 || n > len(q.Options) {
				fmt.Fprintf(out, "Enter a number between 1 and %d.\n", len(q.Options))
				continue
			}
			if err := session.SelectAnswer(q.Options[n-1]); err != nil {
				fmt.Fprintln(out, domain.UserMessage(err, err.Error()))
				continue
			}
			res, err := session.Submit()
			if err != nil {
				fmt.Fprintln(out, domain.UserMessage(err, err.Error()))
				continue
			}
			if res.Correct {
				fmt.Fprintf(out, "Correct! +%d\n", res.Awarded)
			} else {
				fmt.Fprintln(out, "Incorrect.")
			}
		}
	}
	<-printed

	result, ok := session.Result()
	if !ok {
		fmt.Fprintln(out, "Quiz abandoned.")
		return nil
	}
	fmt.Fprintf(out, "\nQuiz complete: %d/%d correct, %d points, %d%% accuracy.\n",
		result.Correct, result.Total, result.Points, result.Accuracy)
	return nil
}

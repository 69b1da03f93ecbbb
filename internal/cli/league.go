package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"quiz-league-client/internal/app"
	"quiz-league-client/internal/countdown"
	"quiz-league-client/internal/domain"
)

func newLeagueCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "league",
		Short: "Create, join and browse leagues",
	}
	cmd.AddCommand(newLeagueCreateCmd(opts))
	cmd.AddCommand(newLeagueJoinCmd(opts))
	cmd.AddCommand(newLeagueSearchCmd(opts))
	cmd.AddCommand(newLeagueMineCmd(opts))
	return cmd
}

// withWorkflow builds the stack and a league workflow in mode, runs fn and
// tears both down.
func withWorkflow(cmd *cobra.Command, opts *rootOptions, mode domain.LeagueMode, fn func(*app.LeagueWorkflow) error) error {
	st, err := buildStack(cmd.Context(), opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	refreshed := make(chan []domain.MemberLeague, 1)
	workflow := app.NewLeagueWorkflow(st.leagues, opts.cfg.User.ID, mode, app.Collaborators{
		Refresher: st.refresher(opts.cfg.User.ID, func(leagues []domain.MemberLeague) {
			select {
			case refreshed <- leagues:
			default:
			}
		}),
		Logger: opts.logger,
	})
	defer workflow.Close()

	if err := fn(workflow); err != nil {
		return err
	}
	snap := workflow.Snapshot()
	if snap.Create.Phase != domain.CreateSuccess && snap.Join.Phase != domain.JoinJoined {
		return nil
	}
	select {
	case leagues := <-refreshed:
		fmt.Fprintf(out, "You are now in %d league(s).\n", len(leagues))
	case <-time.After(2 * time.Second):
	}
	return nil
}

func newLeagueCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		description string
		private     bool
		weeks       int
		start       string
	)
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a league",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate := domain.CivilDate(time.Now())
			if start != "" {
				parsed, err := domain.ParseDate(start)
				if err != nil {
					return fmt.Errorf("parse --start: %w", err)
				}
				startDate = parsed
			}
			return withWorkflow(cmd, opts, domain.ModeCreate, func(w *app.LeagueWorkflow) error {
				for _, set := range []func() error{
					func() error { return w.SetName(args[0]) },
					func() error { return w.SetDescription(description) },
					func() error { return w.SetPrivate(private) },
					func() error { return w.SetDurationWeeks(weeks) },
					func() error { return w.SetStartDate(startDate) },
				} {
					if err := set(); err != nil {
						return err
					}
				}
				err := w.SubmitCreate(cmd.Context())
				snap := w.Snapshot()
				if err != nil {
					return errors.New(snap.Create.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), snap.Create.Message)
				fmt.Fprintf(cmd.OutOrStdout(), "Runs %s to %s.\n", snap.Create.StartDate, snap.Create.EndDate)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "league description")
	cmd.Flags().BoolVar(&private, "private", false, "invite-only league with a join code")
	cmd.Flags().IntVar(&weeks, "weeks", 1, "number of game weeks (1-5)")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD (default today)")
	return cmd
}

func newLeagueJoinCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "join CODE",
		Short: "Join a private league by code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withWorkflow(cmd, opts, domain.ModeJoin, func(w *app.LeagueWorkflow) error {
				if err := w.SetJoinCode(args[0]); err != nil {
					return err
				}
				if err := w.CheckJoinCode(cmd.Context()); err != nil {
					return errors.New(w.Snapshot().Join.Message)
				}
				fmt.Fprintln(out, w.Snapshot().Join.Message)

				if !yes && !confirm(cmd.InOrStdin(), out, "Join this league? [y/N] ") {
					if err := w.CancelJoin(); err != nil {
						return err
					}
					fmt.Fprintln(out, w.Snapshot().Join.Message)
					return nil
				}
				if err := w.ConfirmJoin(cmd.Context()); err != nil {
					return errors.New(w.Snapshot().Join.Message)
				}
				fmt.Fprintln(out, w.Snapshot().Join.Message)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "join without asking for confirmation")
	return cmd
}

func newLeagueSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY",
		Short: "Search public leagues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := buildStack(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			results := make(chan domain.SearchState, 1)
			search := app.NewLeagueSearch(st.leagues, app.Collaborators{Logger: opts.logger}, func(s domain.SearchState) {
				select {
				case results <- s:
				default:
				}
			})
			defer search.Close()
			search.Update(args[0])

			select {
			case res := <-results:
				printPublicLeagues(cmd.OutOrStdout(), res.Results)
				return nil
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		},
	}
}

func newLeagueMineCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List the leagues you belong to",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := buildStack(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			leagues, err := st.lister.MyLeagues(ctx, opts.cfg.User.ID)
			if err != nil {
				return errors.New(domain.UserMessage(err, err.Error()))
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tMEMBERS\tPOINTS\tOWNER")
			for _, l := range leagues {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%t\n", l.Name, l.Members, l.Points, l.IsOwner)
			}
			return tw.Flush()
		},
	}
}

func printPublicLeagues(out io.Writer, leagues []domain.PublicLeague) {
	if len(leagues) == 0 {
		fmt.Fprintln(out, "No leagues found.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMEMBERS\tSTARTS IN\tDESCRIPTION")
	for _, l := range leagues {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", l.Name, l.Members, countdown.FormatRemaining(l.StartsIn), l.Description)
	}
	_ = tw.Flush()
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

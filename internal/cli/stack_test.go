package cli

import (
	"bytes"
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"quiz-league-client/internal/config"
)

func newRedisStack(t *testing.T) (*stack, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.Default()
	cfg.Redis.Addr = mr.Addr()
	st, err := buildStack(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st, mr
}

func TestStackPrintsLedgerStanding(t *testing.T) {
	st, _ := newRedisStack(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, st.printStanding(ctx, "u1", &out))
	require.Equal(t, "Total: 0 points.\n", out.String())

	require.NoError(t, st.scores("u1").UpdateScore(ctx, 30))
	require.NoError(t, st.scores("u2").UpdateScore(ctx, 50))
	require.NoError(t, st.scores("u1").UpdateScore(ctx, 10))

	out.Reset()
	require.NoError(t, st.printStanding(ctx, "u1", &out))
	require.Equal(t, "Total: 40 points, #2 today.\n", out.String())
}

func TestStackWithoutRedisPrintsNothing(t *testing.T) {
	st, err := buildStack(context.Background(), config.Default(), zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()

	var out bytes.Buffer
	require.NoError(t, st.printStanding(context.Background(), "u1", &out))
	require.Empty(t, out.String())
	require.NoError(t, st.invalidateQuiz(context.Background()))
}

func TestStackInvalidatesCachedQuestions(t *testing.T) {
	st, mr := newRedisStack(t)
	ctx := context.Background()
	key := "quiz:" + st.cfg.Quiz.ID + ":questions"

	_, err := st.quizzes.GetQuiz(ctx, st.cfg.Quiz.ID)
	require.NoError(t, err)
	require.True(t, mr.Exists(key))

	require.NoError(t, st.invalidateQuiz(ctx))
	require.False(t, mr.Exists(key))
}

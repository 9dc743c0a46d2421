package session

import (
	"context"
	"fmt"
	"testing"

	"maripist/internal/persona"
	"maripist/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

// Full send cycle against a real SQLite store: optimistic turns settle to
// canonical ids and the durable record round-trips into a fresh
// orchestrator without re-seeding a greeting.
func TestSendCycleWithSQLiteStore(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))

	st, err := store.NewMessageStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	client := &fakeClient{reply: "It sounds like a lot to carry."}
	o := NewOrchestrator(st, client, nil, "local")

	p := persona.Persona{ID: "dr-calm", Name: "Dr. Calm", Personality: 0.9}
	require.NoError(t, o.Send(context.Background(), p, "I feel overwhelmed"))

	seq, ok := o.History(p.ID)
	require.True(t, ok)
	require.Len(t, seq, 3)
	require.True(t, IsGreeting(seq[0].ID))
	require.True(t, IsDurable(seq[1].ID))
	require.True(t, IsDurable(seq[2].ID))

	// A fresh orchestrator over the same store sees only the durable turns.
	o2 := NewOrchestrator(st, client, nil, "local")
	seq2, err := o2.EnsureHistory(p)
	require.NoError(t, err)
	require.Len(t, seq2, 2)
	require.Equal(t, "I feel overwhelmed", seq2[0].Text)
	require.Equal(t, "It sounds like a lot to carry.", seq2[1].Text)
	for _, m := range seq2 {
		require.True(t, IsDurable(m.ID), "reloaded turn %s must be durable", m.ID)
	}
}

// Sends to different personas proceed independently and each history stays
// internally ordered.
func TestConcurrentSendsAcrossPersonas(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))

	st, err := store.NewMessageStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	client := &fakeClient{reply: "noted"}
	o := NewOrchestrator(st, client, nil, "local")

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		p := persona.Persona{
			ID:          fmt.Sprintf("persona-%d", i),
			Name:        fmt.Sprintf("Persona %d", i),
			Personality: 0.5,
		}
		g.Go(func() error {
			for j := 0; j < 3; j++ {
				if err := o.Send(context.Background(), p, fmt.Sprintf("message %d", j)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("persona-%d", i)
		seq, ok := o.History(id)
		require.True(t, ok)
		// greeting + 3 user turns + 3 replies
		require.Len(t, seq, 7)
		for j, m := range seq[1:] {
			require.True(t, IsDurable(m.ID), "turn %d of %s", j, id)
			require.Equal(t, id, m.PersonaID)
		}
	}
}

package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navikt/meetcore/internal/models"
)

// newTestStore returns a store whose clock advances one second per registration
func newTestStore() *Store {
	s := NewStore()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func TestRegisterCreatesMeeting(t *testing.T) {
	s := newTestStore()
	assert.False(t, s.MeetingExists("M1"))

	p, created := s.Register("M1", models.Participant{ID: "A", DisplayName: "Alice"})
	assert.True(t, created)
	assert.Equal(t, models.StateConnected, p.State)
	assert.Equal(t, models.ParticipantHuman, p.Kind)
	assert.False(t, p.JoinedAt.IsZero())
	assert.True(t, s.MeetingExists("M1"))
	assert.Equal(t, []string{"M1"}, s.MeetingIDs())
}

func TestRegisterIsIdempotent(t *testing.T) {
	s := newTestStore()

	first, _ := s.Register("M1", models.Participant{ID: "A", DisplayName: "Alice"})
	again, created := s.Register("M1", models.Participant{ID: "A", Kind: models.ParticipantAI})

	assert.False(t, created)
	assert.Equal(t, first.JoinedAt, again.JoinedAt)
	assert.Equal(t, "Alice", again.DisplayName, "empty display name keeps the existing one")
	assert.Equal(t, models.ParticipantAI, again.Kind)
	assert.Len(t, s.ListParticipants("M1"), 1)
}

func TestUnregisterLastParticipantDeletesMeeting(t *testing.T) {
	s := newTestStore()
	s.Register("M1", models.Participant{ID: "A"})
	s.Register("M1", models.Participant{ID: "B"})

	p, ok := s.Unregister("M1", "A")
	require.True(t, ok)
	assert.Equal(t, models.StateDisconnected, p.State)
	assert.True(t, s.MeetingExists("M1"))

	_, ok = s.Unregister("M1", "B")
	require.True(t, ok)
	assert.False(t, s.MeetingExists("M1"))
	assert.Empty(t, s.MeetingIDs())

	_, ok = s.Unregister("M1", "B")
	assert.False(t, ok)
}

func TestUpdate(t *testing.T) {
	s := newTestStore()
	s.Register("M1", models.Participant{ID: "A"})

	muted := true
	level := 3.5
	p, err := s.Update("M1", "A", models.ParticipantPatch{Muted: &muted, AudioLevel: &level})
	require.NoError(t, err)
	assert.True(t, p.Muted)
	assert.Equal(t, 1.0, p.AudioLevel)

	stored, ok := s.Get("M1", "A")
	require.True(t, ok)
	assert.Equal(t, p, stored)

	_, err = s.Update("M1", "ghost", models.ParticipantPatch{Muted: &muted})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Update("nope", "A", models.ParticipantPatch{Muted: &muted})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListParticipantsOrderedByJoinTime(t *testing.T) {
	s := newTestStore()
	s.Register("M1", models.Participant{ID: "C"})
	s.Register("M1", models.Participant{ID: "A"})
	s.Register("M1", models.Participant{ID: "B"})

	var ids []string
	for _, p := range s.ListParticipants("M1") {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"C", "A", "B"}, ids)
	assert.Empty(t, s.ListParticipants("unknown"))
}

func TestListMatchesMembershipAfterJoinLeaveSequence(t *testing.T) {
	s := newTestStore()
	ops := []struct {
		join bool
		id   string
	}{
		{true, "A"}, {true, "B"}, {true, "A"}, {false, "B"}, {true, "C"},
		{false, "A"}, {true, "B"}, {false, "Z"}, {true, "C"},
	}

	expected := map[string]bool{}
	for _, op := range ops {
		if op.join {
			s.Register("M1", models.Participant{ID: op.id})
			expected[op.id] = true
		} else {
			s.Unregister("M1", op.id)
			delete(expected, op.id)
		}

		list := s.ListParticipants("M1")
		seen := map[string]bool{}
		for _, p := range list {
			assert.False(t, seen[p.ID], "duplicate participant %s", p.ID)
			seen[p.ID] = true
		}
		assert.Equal(t, expected, seen)
	}
}

func TestDeleteMeeting(t *testing.T) {
	s := newTestStore()
	s.Register("M1", models.Participant{ID: "A"})
	s.Register("M1", models.Participant{ID: "B"})

	removed := s.DeleteMeeting("M1")
	assert.Len(t, removed, 2)
	for _, p := range removed {
		assert.Equal(t, models.StateDisconnected, p.State)
	}
	assert.False(t, s.MeetingExists("M1"))
	assert.Nil(t, s.DeleteMeeting("M1"))

	// A later join starts a fresh meeting
	p, created := s.Register("M1", models.Participant{ID: "A"})
	assert.True(t, created)
	assert.Equal(t, 1, s.Count("M1"))
	assert.Equal(t, models.StateConnected, p.State)
}

func TestConcurrentJoinLeave(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	for m := 0; m < 4; m++ {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(meetingID, participantID string) {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					s.Register(meetingID, models.Participant{ID: participantID})
					s.Unregister(meetingID, participantID)
				}
			}(fmt.Sprintf("M%d", m), fmt.Sprintf("P%d", i))
		}
	}
	wg.Wait()

	assert.Empty(t, s.MeetingIDs())
}

func TestTranscriptionClaim(t *testing.T) {
	s := NewStore()

	require.NoError(t, s.ClaimTranscription("M1", "S1"))
	require.NoError(t, s.ClaimTranscription("M1", "S1"))
	assert.ErrorIs(t, s.ClaimTranscription("M1", "S2"), ErrTranscriptionActive)

	id, ok := s.ActiveTranscription("M1")
	assert.True(t, ok)
	assert.Equal(t, "S1", id)

	assert.False(t, s.ReleaseTranscription("M1", "S2"))
	assert.True(t, s.ReleaseTranscription("M1", "S1"))
	_, ok = s.ActiveTranscription("M1")
	assert.False(t, ok)

	require.NoError(t, s.ClaimTranscription("M1", "S2"))
}

package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/navikt/meetcore/internal/models"
	"github.com/navikt/meetcore/internal/service"
	"github.com/navikt/meetcore/internal/session"
)

// MockPresenceCallback is a mock for testing callbacks
type MockPresenceCallback struct {
	mock.Mock
}

func (m *MockPresenceCallback) OnUpdate(presence models.MeetingPresence) {
	m.Called(presence)
}

func TestMeetingService_ListMeetings(t *testing.T) {
	store := session.NewStore()
	meetingService := service.NewMeetingService(store)

	store.Register("m2", models.Participant{ID: "alice"})
	store.Register("m1", models.Participant{ID: "bob"})
	store.Register("m1", models.Participant{ID: "agent", Kind: models.ParticipantAI})
	require.NoError(t, store.ClaimTranscription("m1", "S1"))

	meetings := meetingService.ListMeetings()
	require.Len(t, meetings, 2)

	assert.Equal(t, "m1", meetings[0].ID)
	assert.Equal(t, 2, meetings[0].ParticipantCount)
	assert.Equal(t, 1, meetings[0].HumanCount)
	assert.Equal(t, 1, meetings[0].AICount)
	assert.Equal(t, "S1", meetings[0].TranscriptionSessionID)

	assert.Equal(t, "m2", meetings[1].ID)
	assert.Equal(t, 1, meetings[1].ParticipantCount)
	assert.Empty(t, meetings[1].TranscriptionSessionID)
}

func TestMeetingService_GetMeeting(t *testing.T) {
	store := session.NewStore()
	meetingService := service.NewMeetingService(store)

	_, err := meetingService.GetMeeting("missing")
	assert.ErrorIs(t, err, service.ErrMeetingNotFound)

	store.Register("m1", models.Participant{ID: "alice"})
	summary, err := meetingService.GetMeeting("m1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ParticipantCount)

	store.Unregister("m1", "alice")
	_, err = meetingService.GetMeeting("m1")
	assert.ErrorIs(t, err, service.ErrMeetingNotFound)
}

func TestMeetingService_GetParticipants(t *testing.T) {
	store := session.NewStore()
	meetingService := service.NewMeetingService(store)

	_, err := meetingService.GetParticipants("m1")
	assert.ErrorIs(t, err, service.ErrMeetingNotFound)

	store.Register("m1", models.Participant{ID: "alice"})
	store.Register("m1", models.Participant{ID: "bob"})

	participants, err := meetingService.GetParticipants("m1")
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, "alice", participants[0].ID)
	assert.Equal(t, "bob", participants[1].ID)
}

func TestMeetingService_NotifyPresenceChanged(t *testing.T) {
	store := session.NewStore()
	meetingService := service.NewMeetingService(store)

	mockCallback := new(MockPresenceCallback)
	meetingService.RegisterUpdateCallback(mockCallback.OnUpdate)

	store.Register("m1", models.Participant{ID: "alice"})

	mockCallback.On("OnUpdate", mock.MatchedBy(func(p models.MeetingPresence) bool {
		return p.MeetingID == "m1" && p.Active && len(p.Participants) == 1 && p.Participants[0].ID == "alice"
	})).Return().Once()
	meetingService.NotifyPresenceChanged("m1")

	store.Unregister("m1", "alice")
	mockCallback.On("OnUpdate", mock.MatchedBy(func(p models.MeetingPresence) bool {
		return p.MeetingID == "m1" && !p.Active && len(p.Participants) == 0
	})).Return().Once()
	meetingService.NotifyPresenceChanged("m1")

	mockCallback.AssertExpectations(t)
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamroom/jamroom/internal/app"
	"github.com/jamroom/jamroom/internal/app/orch"
	"github.com/jamroom/jamroom/internal/config"
	"github.com/jamroom/jamroom/internal/domain"
	"github.com/jamroom/jamroom/internal/playback"
	"github.com/jamroom/jamroom/internal/store"
)

type stubState struct {
	rec      *domain.PlaybackRecord
	fetchErr error
}

func (s *stubState) Fetch(context.Context, domain.RoomID) (*domain.PlaybackRecord, error) {
	return s.rec, s.fetchErr
}

func (s *stubState) Upsert(context.Context, *domain.PlaybackRecord) error { return nil }
func (s *stubState) Add(context.Context, *domain.QueueEntry) error        { return nil }
func (s *stubState) Remove(context.Context, domain.RoomID, string) error  { return nil }

func (s *stubState) List(context.Context, domain.RoomID) ([]domain.QueueEntry, error) {
	return nil, nil
}

func (s *stubState) Head(context.Context, domain.RoomID) (*domain.QueueEntry, error) {
	return nil, nil
}

func (s *stubState) Advance(context.Context, domain.RoomID) (*domain.QueueEntry, error) {
	return nil, nil
}

func (s *stubState) Subscribe(context.Context, domain.RoomID) (<-chan store.Event, func()) {
	ch := make(chan store.Event)
	close(ch)
	return ch, func() {}
}

func (s *stubState) DeleteRoomState(context.Context, domain.RoomID) error { return nil }

func newTestRouter(t *testing.T, state orch.StateStore) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	o := orch.New(app.NewRegistry(), app.NewRoomManager(), app.SimplePolicy{}, state)
	cfg := &config.Config{Mode: "release", Secret: "test-secret", StaticPath: t.TempDir()}
	return SetupRouter(context.Background(), cfg, o), o
}

func getPlayer(r *gin.Engine, roomID domain.RoomID) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/"+string(roomID)+"/player", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestPlayerEndpointMissingRecordIs404EvenWrapped(t *testing.T) {
	state := &stubState{fetchErr: fmt.Errorf("fetch player record: %w", playback.ErrRecordNotFound)}
	r, o := newTestRouter(t, state)
	room := o.CreateRoom(context.Background(), "party", "alice")

	w := getPlayer(r, room.Room().ID)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no playback record")
}

func TestPlayerEndpointStoreFailureIs500(t *testing.T) {
	state := &stubState{fetchErr: errors.New("connection refused")}
	r, o := newTestRouter(t, state)
	room := o.CreateRoom(context.Background(), "party", "alice")

	w := getPlayer(r, room.Room().ID)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPlayerEndpointReturnsRecord(t *testing.T) {
	state := &stubState{rec: &domain.PlaybackRecord{
		RoomID: "r-1", CurrentItemID: "song-1", Playing: true, Position: 12.5,
	}}
	r, o := newTestRouter(t, state)
	room := o.CreateRoom(context.Background(), "party", "alice")

	w := getPlayer(r, room.Room().ID)

	require.Equal(t, http.StatusOK, w.Code)
	var rec domain.PlaybackRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "song-1", rec.CurrentItemID)
	assert.True(t, rec.Playing)
}

func TestPlayerEndpointUnknownRoomIs404(t *testing.T) {
	r, _ := newTestRouter(t, &stubState{})

	w := getPlayer(r, "no-such-room")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

package handlers

import (
	"net/http"
	"testing"

	"immortal-nexus-api/internal/models"
	"immortal-nexus-api/internal/realtime"
	"immortal-nexus-api/internal/wire"

	"github.com/stretchr/testify/require"
)

type sendResponse struct {
	Message         models.Message         `json:"message"`
	Delivery        realtime.DeliveryState `json:"delivery"`
	RecipientOnline bool                   `json:"recipientOnline"`
}

func TestSendMessage_OnlineRecipientGetsPush(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.login(t, "alice")
	bobID, _ := env.login(t, "bob")
	bobTab := &stubConn{id: "bob-tab"}
	env.registry.Register(bobID, bobTab)

	w := env.do(t, http.MethodPost, "/api/messages", aliceToken, map[string]string{
		"recipientId": bobID,
		"content":     "hello bob",
		"clientId":    "tmp-1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp sendResponse
	decodeBody(t, w, &resp)
	require.Equal(t, realtime.StateDelivered, resp.Delivery)
	require.True(t, resp.RecipientOnline)
	require.Equal(t, "tmp-1", resp.Message.ClientID)

	events := bobTab.events(t)
	require.Len(t, events, 1)
	require.Equal(t, resp.Message.ID, events[0].(wire.NewMessage).Message.ID)
}

func TestSendMessage_OfflineRecipientCatchesUp(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.login(t, "alice")
	bobID, bobToken := env.login(t, "bob")

	w := env.do(t, http.MethodPost, "/api/messages", aliceToken, map[string]string{
		"recipientId": bobID,
		"content":     "you were away",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var sent sendResponse
	decodeBody(t, w, &sent)
	require.Equal(t, realtime.StatePersisted, sent.Delivery)
	env.router.Wait()

	// history is the durable copy
	w = env.do(t, http.MethodGet, "/api/messages/"+aliceID, bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Messages []models.Message `json:"messages"`
		Count    int              `json:"count"`
	}
	decodeBody(t, w, &history)
	require.Equal(t, 1, history.Count)
	require.Equal(t, sent.Message.ID, history.Messages[0].ID)
	require.False(t, history.Messages[0].Read)

	// the push that could not be delivered is drained once
	w = env.do(t, http.MethodGet, "/api/events/missed", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var missed struct {
		Events []MissedEvent `json:"events"`
		Count  int           `json:"count"`
	}
	decodeBody(t, w, &missed)
	require.Equal(t, 1, missed.Count)
	require.Equal(t, string(wire.KindNewMessage), missed.Events[0].Kind)
	evt, err := wire.Decode(missed.Events[0].Event)
	require.NoError(t, err)
	require.Equal(t, "you were away", evt.(wire.NewMessage).Message.Content)

	w = env.do(t, http.MethodGet, "/api/events/missed", bobToken, nil)
	decodeBody(t, w, &missed)
	require.Zero(t, missed.Count)

	w = env.do(t, http.MethodPatch, "/api/messages/"+aliceID+"/read", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var updated struct {
		Updated int64 `json:"updated"`
	}
	decodeBody(t, w, &updated)
	require.Equal(t, int64(1), updated.Updated)
}

func TestSendMessage_Validation(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.login(t, "alice")

	w := env.do(t, http.MethodPost, "/api/messages", aliceToken, map[string]string{
		"recipientId": "nobody",
		"content":     "hello?",
	})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/messages", aliceToken, map[string]string{
		"recipientId": aliceID,
		"content":     "note to self",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/messages", aliceToken, map[string]string{
		"recipientId": aliceID,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cuappdev/clicker-backend/internal/models"
	"github.com/cuappdev/clicker-backend/internal/session"
	"github.com/cuappdev/clicker-backend/internal/utils"
)

const (
	maxFrameBytes = 64 << 10
	frameTimeout  = 15 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// GroupWS attaches a connection to the live session of the group with the
// join code in the URL. The caller joins the group as a member if they are
// not already in it.
func (h *Handlers) GroupWS(w http.ResponseWriter, r *http.Request) {
	claims, err := utils.VerifyRequest(r, h.secret)
	if err != nil {
		utils.JSON(w, http.StatusUnauthorized, models.ErrorResponse{Code: "unauthorized", Message: err.Error()})
		return
	}
	userID := claims.Subject

	s, ok := h.registry.GetByCode(strings.ToUpper(chi.URLParam(r, "code")))
	if !ok {
		writeError(w, errNoSession)
		return
	}
	group, err := h.groups.GetByID(r.Context(), s.Group.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	role, ok := group.RoleOf(userID)
	if !ok {
		if _, err := h.groups.AddMember(r.Context(), group.ID, userID); err != nil {
			h.log.Error("failed to add member", zap.String("groupId", group.ID), zap.Error(err))
			writeError(w, err)
			return
		}
		role = models.RoleMember
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	client := session.NewClient(conn, userID, role)
	if err := s.Attach(client); err != nil {
		client.Send(errFrame(err))
		return
	}
	defer s.Detach(client)

	for {
		var frame models.WSFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
		err := h.dispatch(ctx, s, client, frame)
		cancel()
		if err != nil {
			client.Send(errFrame(err))
		}
	}
}

// dispatch applies one client frame to the session. Errors go back to the
// sending connection only.
func (h *Handlers) dispatch(ctx context.Context, s *session.GroupSession, c *session.Client, frame models.WSFrame) error {
	switch frame.Type {
	case "current-poll":
		c.Send(models.WSFrame{Type: "poll", Data: s.CurrentPollView(c.Role, c.UserID)})
		return nil
	case "answer":
		var sub models.Submission
		if err := decode(frame.Data, &sub); err != nil {
			return err
		}
		return s.SubmitAnswer(c.UserID, sub)
	}

	if !c.IsAdmin() {
		switch frame.Type {
		case "start-poll", "stop-poll", "share-results", "end-poll", "delete-live-poll", "delete-poll", "end-session":
			return errForbidden
		}
		return errUnknownType
	}

	switch frame.Type {
	case "start-poll":
		var req models.StartPollRequest
		if err := decode(frame.Data, &req); err != nil {
			return err
		}
		d, err := h.resolveDraft(ctx, c.UserID, req)
		if err != nil {
			return err
		}
		return s.StartPoll(d)

	case "stop-poll":
		return s.StopPoll()

	case "share-results":
		return s.ShareResults()

	case "end-poll":
		var req models.EndPollRequest
		if err := decode(frame.Data, &req); err != nil {
			return err
		}
		return s.EndPoll(ctx, req.Save)

	case "delete-live-poll":
		return s.DeleteLivePoll()

	case "delete-poll":
		var req models.DeletePollRequest
		if err := decode(frame.Data, &req); err != nil {
			return err
		}
		return h.deletePoll(ctx, s.Group.ID, req.PollID)

	case "end-session":
		var req models.EndSessionRequest
		if err := decode(frame.Data, &req); err != nil {
			return err
		}
		return s.RequestEnd(ctx, req.Save)
	}
	return errUnknownType
}

func (h *Handlers) resolveDraft(ctx context.Context, userID string, req models.StartPollRequest) (models.PollDraft, error) {
	if req.Draft != nil {
		return *req.Draft, nil
	}
	if req.DraftID == "" {
		return models.PollDraft{}, errBadFrame
	}
	d, err := h.drafts.Get(ctx, req.DraftID)
	if err != nil {
		return models.PollDraft{}, err
	}
	if d.OwnerID != userID {
		return models.PollDraft{}, errForbidden
	}
	return d.PollDraft(), nil
}

// decode converts a frame's loosely typed data into out.
func decode(in any, out any) error {
	if in == nil {
		return nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return errBadFrame
	}
	if err := json.Unmarshal(b, out); err != nil {
		return errBadFrame
	}
	return nil
}

package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/cuappdev/clicker-backend/internal/drafts"
	"github.com/cuappdev/clicker-backend/internal/middleware"
	"github.com/cuappdev/clicker-backend/internal/models"
	"github.com/cuappdev/clicker-backend/internal/repositories"
	"github.com/cuappdev/clicker-backend/internal/session"
	"github.com/cuappdev/clicker-backend/internal/utils"
)

const maxImportBytes = 1 << 20

type Deps struct {
	Log      *zap.Logger
	Secret   string
	Registry *session.Registry
	Groups   GroupRepository
	Drafts   DraftRepository
	Polls    session.PollStore
	// Relay is optional. Without it only sessions on this instance are reachable.
	Relay EndRelay
}

type Handlers struct {
	log      *zap.Logger
	secret   string
	registry *session.Registry
	groups   GroupRepository
	drafts   DraftRepository
	polls    session.PollStore
	relay    EndRelay
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		log:      d.Log,
		secret:   d.Secret,
		registry: d.Registry,
		groups:   d.Groups,
		drafts:   d.Drafts,
		polls:    d.Polls,
		relay:    d.Relay,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// groupRole loads the group in the URL and the caller's role in it.
func (h *Handlers) groupRole(r *http.Request) (*models.Group, models.Role, error) {
	group, err := h.groups.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, "", err
	}
	role, ok := group.RoleOf(middleware.UserID(r))
	if !ok {
		return nil, "", errNotInGroup
	}
	return group, role, nil
}

func (h *Handlers) adminGroup(r *http.Request) (*models.Group, error) {
	group, role, err := h.groupRole(r)
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin {
		return nil, errForbidden
	}
	return group, nil
}

func (h *Handlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	req := middleware.GetValidatedRequest[*models.CreateGroupRequest](r)
	group, err := h.groups.Create(r.Context(), strings.TrimSpace(req.Name), middleware.UserID(r))
	if err != nil {
		h.log.Error("failed to create group", zap.Error(err))
		writeError(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, group)
}

func (h *Handlers) GetGroup(w http.ResponseWriter, r *http.Request) {
	group, _, err := h.groupRole(r)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, group)
}

type liveResponse struct {
	Sessions    []models.LiveGroup `json:"sessions"`
	RemoteCodes []string           `json:"remoteCodes,omitempty"`
}

// ListLive reports which of the requested join codes have a live session.
func (h *Handlers) ListLive(w http.ResponseWriter, r *http.Request) {
	codes := lo.Compact(lo.Map(strings.Split(r.URL.Query().Get("codes"), ","), func(c string, _ int) string {
		return strings.ToUpper(strings.TrimSpace(c))
	}))
	resp := liveResponse{Sessions: h.registry.ListLive(codes)}

	if h.relay != nil && len(codes) > 0 {
		all, err := h.relay.LiveCodes(r.Context())
		if err != nil {
			h.log.Warn("failed to read cluster live codes", zap.Error(err))
		} else {
			local := lo.Map(resp.Sessions, func(g models.LiveGroup, _ int) string { return g.Code })
			resp.RemoteCodes = lo.Without(lo.Intersect(codes, all), local...)
		}
	}
	utils.JSON(w, http.StatusOK, resp)
}

func (h *Handlers) StartSession(w http.ResponseWriter, r *http.Request) {
	group, err := h.adminGroup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s, err := h.registry.StartNewSession(*group)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, models.LiveGroup{ID: s.Group.ID, Name: s.Group.Name, Code: s.Group.Code})
}

// EndSession stores the running poll unless save=false and closes the
// session. A session on another instance is asked to end through the relay.
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	group, err := h.adminGroup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	save := queryBool(r, "save", true)

	if _, ok := h.registry.Get(group.ID); !ok {
		if h.relay == nil {
			writeError(w, errNoSession)
			return
		}
		host, err := h.relay.HostOf(r.Context(), group.ID)
		if err != nil {
			h.log.Error("failed to look up session host", zap.String("groupId", group.ID), zap.Error(err))
			writeError(w, err)
			return
		}
		if host == "" {
			writeError(w, errNoSession)
			return
		}
		if err := h.relay.RequestEnd(r.Context(), group.ID, save); err != nil {
			h.log.Error("failed to relay end request", zap.String("groupId", group.ID), zap.Error(err))
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err := h.registry.EndSession(r.Context(), group.ID, save); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPolls returns the group's ended polls. Members only see shared polls
// and only their own answers.
func (h *Handlers) ListPolls(w http.ResponseWriter, r *http.Request) {
	group, role, err := h.groupRole(r)
	if err != nil {
		writeError(w, err)
		return
	}
	polls, err := h.polls.LoadEndedPolls(r.Context(), group.ID)
	if err != nil {
		h.log.Error("failed to load polls", zap.String("groupId", group.ID), zap.Error(err))
		writeError(w, err)
		return
	}
	if role == models.RoleAdmin {
		utils.JSON(w, http.StatusOK, lo.Map(polls, func(p models.Poll, _ int) models.AdminPollView { return p.AdminView() }))
		return
	}
	userID := middleware.UserID(r)
	shared := lo.Filter(polls, func(p models.Poll, _ int) bool { return p.Shared })
	utils.JSON(w, http.StatusOK, lo.Map(shared, func(p models.Poll, _ int) models.MemberPollView { return p.MemberView(userID) }))
}

func (h *Handlers) DeletePoll(w http.ResponseWriter, r *http.Request) {
	group, err := h.adminGroup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	pollID := chi.URLParam(r, "pollId")
	if err := h.deletePoll(r.Context(), group.ID, pollID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deletePoll removes a stored poll of groupID, through the live session when
// there is one so connected clients hear about it.
func (h *Handlers) deletePoll(ctx context.Context, groupID, pollID string) error {
	polls, err := h.polls.LoadEndedPolls(ctx, groupID)
	if err != nil {
		return err
	}
	if !lo.ContainsBy(polls, func(p models.Poll) bool { return p.ID == pollID }) {
		return repositories.ErrPollNotFound
	}
	if s, ok := h.registry.Get(groupID); ok {
		return s.DeletePoll(ctx, pollID)
	}
	return h.polls.Delete(ctx, pollID)
}

func (h *Handlers) ListDrafts(w http.ResponseWriter, r *http.Request) {
	ds, err := h.drafts.ListByOwner(r.Context(), middleware.UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, ds)
}

func (h *Handlers) CreateDraft(w http.ResponseWriter, r *http.Request) {
	req := middleware.GetValidatedRequest[*models.PollDraft](r)
	d, err := h.drafts.Create(r.Context(), middleware.UserID(r), *req)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, d)
}

// ImportDrafts stores every draft of a YAML document, or none if any is invalid.
func (h *Handlers) ImportDrafts(w http.ResponseWriter, r *http.Request) {
	parsed, err := drafts.Parse(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, err)
		return
	}
	ds, err := h.drafts.CreateMany(r.Context(), middleware.UserID(r), parsed)
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, ds)
}

func (h *Handlers) SampleDrafts(w http.ResponseWriter, _ *http.Request) {
	samples, err := drafts.Samples()
	if err != nil {
		writeError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, samples)
}

func (h *Handlers) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.drafts.Delete(r.Context(), chi.URLParam(r, "id"), middleware.UserID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryBool(r *http.Request, key string, def bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

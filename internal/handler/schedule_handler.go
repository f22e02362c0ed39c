package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"waste-portal/internal/backend"
	"waste-portal/internal/form"
	"waste-portal/internal/middleware"
	"waste-portal/internal/model"
	"waste-portal/internal/workspace"
)

type ScheduleHandler struct {
	workspace *workspace.Registry
}

func NewScheduleHandler(ws *workspace.Registry) *ScheduleHandler {
	return &ScheduleHandler{workspace: ws}
}

func owner(c *gin.Context) form.Owner {
	s := middleware.GetSession(c)
	return form.Owner{UserID: s.UserID(), ResidenceID: s.ResidenceID()}
}

// formState renders a form with its options. A failed waste type fetch is
// shown with the form rather than failing the request.
func formState(c *gin.Context, f *form.Controller) gin.H {
	state := gin.H{"draft": f.Draft(), "strategy": f.Strategy()}
	options, err := f.Options(c.Request.Context())
	state["options"] = options
	if err != nil {
		_ = c.Error(err)
		state["error"] = form.MsgWasteTypes
	}
	return state
}

func bindChange(c *gin.Context) (model.FieldChangeRequest, bool) {
	var req model.FieldChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	return req, true
}

// Handles GET /schedules/new
func (h *ScheduleHandler) GetCreateForm(c *gin.Context) {
	f := h.workspace.CreateForm(middleware.GetSession(c).ID)
	c.JSON(http.StatusOK, formState(c, f))
}

// Handles PATCH /schedules/new - stores one field of the draft.
func (h *ScheduleHandler) ChangeCreateForm(c *gin.Context) {
	req, ok := bindChange(c)
	if !ok {
		return
	}
	f := h.workspace.CreateForm(middleware.GetSession(c).ID)
	if err := f.Change(req.Field, req.Value); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"draft": f.Draft()})
}

// Handles POST /schedules/new
func (h *ScheduleHandler) SubmitCreateForm(c *gin.Context) {
	f := h.workspace.CreateForm(middleware.GetSession(c).ID)
	res, err := f.Submit(c.Request.Context(), owner(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":  res.Message,
		"schedule": res.Schedule,
		"draft":    f.Draft(),
	})
}

func (h *ScheduleHandler) editForm(c *gin.Context) (*form.Controller, string, bool) {
	id := c.Param("id")
	if err := backend.CheckID(id); err != nil {
		respondError(c, err)
		return nil, "", false
	}
	return h.workspace.EditForm(middleware.GetSession(c).ID, id), id, true
}

// Handles GET /schedules/:id/edit - loads the schedule on first visit.
func (h *ScheduleHandler) GetEditForm(c *gin.Context) {
	f, id, ok := h.editForm(c)
	if !ok {
		return
	}
	schedule, loaded := f.Loaded()
	if !loaded || c.Query("reload") != "" {
		var err error
		if schedule, err = f.Load(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
	}

	state := formState(c, f)
	state["schedule"] = schedule
	c.JSON(http.StatusOK, state)
}

// Handles PATCH /schedules/:id/edit - refused changes leave the draft as it
// was and come back as 422.
func (h *ScheduleHandler) ChangeEditForm(c *gin.Context) {
	f, _, ok := h.editForm(c)
	if !ok {
		return
	}
	req, ok := bindChange(c)
	if !ok {
		return
	}
	if err := f.Change(req.Field, req.Value); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"draft": f.Draft()})
}

// Handles POST /schedules/:id/edit
func (h *ScheduleHandler) SubmitEditForm(c *gin.Context) {
	f, id, ok := h.editForm(c)
	if !ok {
		return
	}
	res, err := f.Submit(c.Request.Context(), owner(c))
	if err != nil {
		respondError(c, err)
		return
	}
	h.workspace.ReleaseEditForm(middleware.GetSession(c).ID, id)

	c.JSON(http.StatusOK, gin.H{
		"message":  res.Message,
		"redirect": res.Redirect,
		"schedule": res.Schedule,
	})
}

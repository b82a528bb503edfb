package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ptahnest/ptahnest/internal/services"
	appErrors "github.com/ptahnest/ptahnest/pkg/errors"
	"github.com/ptahnest/ptahnest/pkg/response"
)

// ProjectHandler exposes the project and membership lifecycle endpoints.
type ProjectHandler struct {
	projects *services.ProjectService
}

func NewProjectHandler(projects *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

type createProjectRequest struct {
	Name        string   `json:"name" validate:"required,min=3,max=100"`
	Description string   `json:"description" validate:"required,max=2000"`
	Tags        []string `json:"tags" validate:"max=20"`
	LookingFor  []string `json:"looking_for" validate:"max=20"`
}

type updateProjectRequest struct {
	Name            string   `json:"name" validate:"required,min=3,max=100"`
	Description     string   `json:"description" validate:"required,max=2000"`
	Tags            []string `json:"tags" validate:"max=20"`
	LookingFor      []string `json:"looking_for" validate:"max=20"`
	RecruitmentOpen bool     `json:"recruitment_open"`
}

type joinRequestBody struct {
	Message string `json:"message" validate:"max=500"`
}

type resolveRequestBody struct {
	Action string `json:"action" validate:"required,oneof=accept reject"`
}

// POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req createProjectRequest
	if !bindAndValidate(c, &req) {
		return
	}

	project, err := h.projects.Create(requestContext(c), services.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
		LookingFor:  req.LookingFor,
		CreatorID:   currentUserID(c),
	})
	if err != nil {
		response.Error(c, projectError(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"project": project})
}

// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	views, err := h.projects.ListForUser(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, projectError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"projects": views})
}

// GET /api/projects/discover
func (h *ProjectHandler) Discover(c *gin.Context) {
	views, err := h.projects.Discover(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, projectError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"projects": views})
}

// GET /api/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	view, err := h.projects.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, projectError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"project": view})
}

// PUT /api/projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	var req updateProjectRequest
	if !bindAndValidate(c, &req) {
		return
	}

	project, err := h.projects.Update(requestContext(c), c.Param("id"), currentUserID(c), services.UpdateProjectInput{
		Name:            req.Name,
		Description:     req.Description,
		Tags:            req.Tags,
		LookingFor:      req.LookingFor,
		RecruitmentOpen: req.RecruitmentOpen,
	})
	if err != nil {
		response.Error(c, projectError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"project": project})
}

// PATCH /api/projects/:id/recruitment
func (h *ProjectHandler) ToggleRecruitment(c *gin.Context) {
	open, err := h.projects.ToggleRecruitment(requestContext(c), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Error(c, projectError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"recruitment_open": open})
}

// DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.projects.Delete(requestContext(c), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, projectError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Project deleted"})
}

// POST /api/projects/:id/join
func (h *ProjectHandler) RequestJoin(c *gin.Context) {
	var req joinRequestBody
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.projects.RequestJoin(requestContext(c), c.Param("id"), currentUserID(c), req.Message)
	if err != nil {
		response.Error(c, projectError(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"request": request})
}

// GET /api/projects/:id/requests
func (h *ProjectHandler) ListRequests(c *gin.Context) {
	views, err := h.projects.ListRequests(requestContext(c), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Error(c, projectError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"requests": views})
}

// PATCH /api/projects/:id/requests/:rid
func (h *ProjectHandler) ResolveRequest(c *gin.Context) {
	var req resolveRequestBody
	if !bindAndValidate(c, &req) {
		return
	}

	accept := req.Action == "accept"
	err := h.projects.ResolveRequest(requestContext(c), c.Param("id"), c.Param("rid"), currentUserID(c), accept)
	if err != nil {
		response.Error(c, projectError(err))
		return
	}

	message := "Request rejected"
	if accept {
		message = "Request accepted"
	}
	response.Success(c, http.StatusOK, gin.H{"message": message})
}

// GET /api/projects/:id/members
func (h *ProjectHandler) ListMembers(c *gin.Context) {
	views, err := h.projects.ListMembers(requestContext(c), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Error(c, projectError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"members":         views,
		"current_user_id": currentUserID(c),
	})
}

// DELETE /api/projects/:id/leave
func (h *ProjectHandler) Leave(c *gin.Context) {
	if err := h.projects.Leave(requestContext(c), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, projectError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "You have left the project"})
}

// projectError translates service sentinels into client-facing errors.
func projectError(err error) error {
	var cooldown *services.CooldownError
	switch {
	case errors.Is(err, services.ErrProjectNotFound):
		return appErrors.ErrNotFound.WithMessage("Project not found")
	case errors.Is(err, services.ErrProjectClosed):
		return appErrors.NewBadRequest("This project is not accepting new members")
	case errors.Is(err, services.ErrOwnProject):
		return appErrors.NewBadRequest("You cannot request to join your own project")
	case errors.Is(err, services.ErrAlreadyMember):
		return appErrors.ErrConflict.WithMessage("You are already a member of this project")
	case errors.Is(err, services.ErrKickedFromProject):
		return appErrors.NewBadRequest("You cannot rejoin this project")
	case errors.Is(err, services.ErrLeftProject):
		return appErrors.NewBadRequest("You left this project. Contact the creator to rejoin.")
	case errors.Is(err, services.ErrRequestPending):
		return appErrors.ErrConflict.WithMessage("You already have a pending request for this project")
	case errors.As(err, &cooldown):
		return appErrors.NewBadRequest(fmt.Sprintf(
			"Your previous request was rejected. You can reapply in %d days.", cooldown.DaysRemaining))
	case errors.Is(err, services.ErrRequestNotFound), errors.Is(err, services.ErrRequestMismatch):
		return appErrors.ErrNotFound.WithMessage("Request not found")
	case errors.Is(err, services.ErrRequestResolved):
		return appErrors.ErrConflict.WithMessage("Request has already been resolved")
	case errors.Is(err, services.ErrNotCreator):
		return appErrors.ErrForbidden.WithMessage("Only the project creator can do that")
	case errors.Is(err, services.ErrNotMember):
		return appErrors.ErrForbidden.WithMessage("Only project members can view this")
	case errors.Is(err, services.ErrCreatorCannotLeave):
		return appErrors.NewBadRequest("Creators cannot leave their own project. Delete it instead.")
	case errors.Is(err, services.ErrMembershipNotFound):
		return appErrors.ErrNotFound.WithMessage("You are not a member of this project")
	default:
		return appErrors.Wrap(err, "Internal server error")
	}
}

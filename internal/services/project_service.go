package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ptahnest/ptahnest/internal/models"
	"github.com/ptahnest/ptahnest/pkg/metrics"
)

var (
	// ErrProjectNotFound covers both a missing project and a mutation the
	// caller does not own; the API does not distinguish the two.
	ErrProjectNotFound = errors.New("project service: project not found")
	// ErrProjectClosed rejects join requests against non-active projects.
	ErrProjectClosed = errors.New("project service: project is not active")
	// ErrOwnProject rejects a creator requesting to join their own project.
	ErrOwnProject = errors.New("project service: cannot join own project")
	// ErrAlreadyMember rejects joining while an active membership exists.
	ErrAlreadyMember = errors.New("project service: already a member")
	// ErrLeftProject rejects rejoining after leaving; history is permanent.
	ErrLeftProject = errors.New("project service: previously left project")
	// ErrKickedFromProject rejects rejoining after removal.
	ErrKickedFromProject = errors.New("project service: removed from project")
	// ErrRequestPending rejects duplicate join requests.
	ErrRequestPending = errors.New("project service: request already pending")
	// ErrRequestNotFound indicates the join request does not exist.
	ErrRequestNotFound = errors.New("project service: request not found")
	// ErrRequestMismatch indicates the request belongs to another project.
	ErrRequestMismatch = errors.New("project service: request does not belong to project")
	// ErrRequestResolved rejects resolving a request twice.
	ErrRequestResolved = errors.New("project service: request already resolved")
	// ErrNotCreator marks operations reserved for the project creator.
	ErrNotCreator = errors.New("project service: caller is not the creator")
	// ErrNotMember marks member-only reads by outsiders.
	ErrNotMember = errors.New("project service: caller is not a member")
	// ErrCreatorCannotLeave: the only terminal action for a creator is
	// deleting the whole project.
	ErrCreatorCannotLeave = errors.New("project service: creator cannot leave")
	// ErrMembershipNotFound rejects leaving without an active membership.
	ErrMembershipNotFound = errors.New("project service: no active membership")
)

// CooldownError reports how long a rejected applicant must wait before
// reapplying.
type CooldownError struct {
	DaysRemaining int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("project service: rejected %d days before reapplication allowed", e.DaysRemaining)
}

// ProjectService is the membership state machine: it governs project
// status, per-user membership status and join-request status, and enforces
// transition legality inside per-operation transactions.
type ProjectService struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewProjectService constructs the service. The clock is injectable for
// cooldown tests.
func NewProjectService(db *gorm.DB, clock func() time.Time) (*ProjectService, error) {
	if db == nil {
		return nil, errors.New("project service: db is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &ProjectService{db: db, clock: clock}, nil
}

// CreateProjectInput captures the fields for a new project.
type CreateProjectInput struct {
	Name        string
	Description string
	Tags        []string
	LookingFor  []string
	CreatorID   string
}

// UpdateProjectInput describes the mutable project fields.
type UpdateProjectInput struct {
	Name            string
	Description     string
	Tags            []string
	LookingFor      []string
	RecruitmentOpen bool
}

// ProjectView is a project enriched with caller-relative display status and
// aggregate counts for list endpoints.
type ProjectView struct {
	models.Project
	// DisplayStatus folds project status and the caller's membership
	// status into one value: deleted wins, then left/kicked, then active.
	DisplayStatus   string `json:"display_status"`
	Members         int64  `json:"members"`
	CreatorUsername string `json:"creator_username,omitempty"`
}

// RequestView is a pending join request enriched with requester identity.
type RequestView struct {
	ID        string               `json:"id"`
	ProjectID string               `json:"project_id"`
	UserID    string               `json:"user_id"`
	Status    models.RequestStatus `json:"status"`
	Message   string               `json:"message"`
	CreatedAt time.Time            `json:"created_at"`
	Username  string               `json:"username"`
	Email     string               `json:"email"`
}

// MemberView is an active membership enriched with member identity.
type MemberView struct {
	ID       string            `json:"id"`
	UserID   string            `json:"user_id"`
	Role     models.MemberRole `json:"role"`
	JoinedAt time.Time         `json:"joined_at"`
	Username string            `json:"username"`
	Email    string            `json:"email"`
}

// Create persists a new active project and its creator membership in one
// transaction. Recruitment opens automatically when roles are sought.
func (s *ProjectService) Create(ctx context.Context, input CreateProjectInput) (*models.Project, error) {
	name := strings.TrimSpace(input.Name)
	description := strings.TrimSpace(input.Description)
	if name == "" || description == "" {
		return nil, errors.New("project service: name and description are required")
	}
	if strings.TrimSpace(input.CreatorID) == "" {
		return nil, errors.New("project service: creator id is required")
	}

	project := &models.Project{
		Name:            name,
		Description:     description,
		Status:          models.ProjectActive,
		CreatorID:       input.CreatorID,
		Tags:            datatypes.NewJSONSlice(normaliseIDs(input.Tags)),
		LookingFor:      datatypes.NewJSONSlice(normaliseIDs(input.LookingFor)),
		RecruitmentOpen: len(normaliseIDs(input.LookingFor)) > 0,
	}

	now := s.clock()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return err
		}

		membership := &models.Membership{
			ProjectID: project.ID,
			UserID:    input.CreatorID,
			Role:      models.RoleCreator,
			Status:    models.MembershipActive,
			JoinedAt:  now,
		}
		return tx.Create(membership).Error
	})
	if err != nil {
		return nil, fmt.Errorf("project service: create project: %w", err)
	}

	return project, nil
}

// ListForUser returns every project the user created or joined, including
// past ones, with display status resolved per row. Active engagements sort
// first, then newest.
func (s *ProjectService) ListForUser(ctx context.Context, userID string) ([]ProjectView, error) {
	var memberships []models.Membership
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("project service: list memberships: %w", err)
	}

	if len(memberships) == 0 {
		return []ProjectView{}, nil
	}

	statusByProject := make(map[string]models.MembershipStatus, len(memberships))
	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		statusByProject[m.ProjectID] = m.Status
		ids = append(ids, m.ProjectID)
	}

	var projects []models.Project
	if err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("project service: list projects: %w", err)
	}

	counts, err := s.activeMemberCounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]ProjectView, 0, len(projects))
	for _, p := range projects {
		views = append(views, ProjectView{
			Project:       p,
			DisplayStatus: displayStatus(p.Status, statusByProject[p.ID]),
			Members:       counts[p.ID],
		})
	}

	sortViews(views)
	return views, nil
}

// sortViews orders active engagements first, then newest.
func sortViews(views []ProjectView) {
	sort.SliceStable(views, func(i, j int) bool {
		ri, rj := rank(views[i]), rank(views[j])
		if ri != rj {
			return ri < rj
		}
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
}

func rank(v ProjectView) int {
	if v.DisplayStatus == string(models.ProjectActive) {
		return 0
	}
	return 1
}

// Discover lists publicly visible recruiting projects. When the caller is
// known, projects they are an active member of are excluded; projects they
// left or were removed from stay visible.
func (s *ProjectService) Discover(ctx context.Context, userID string) ([]ProjectView, error) {
	query := s.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("status = ? AND recruitment_open = ?", models.ProjectActive, true)

	if userID != "" {
		query = query.Where("id NOT IN (?)",
			s.db.Model(&models.Membership{}).
				Select("project_id").
				Where("user_id = ? AND status = ?", userID, models.MembershipActive))
	}

	var projects []models.Project
	if err := query.Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("project service: discover projects: %w", err)
	}

	ids := make([]string, 0, len(projects))
	creatorIDs := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
		creatorIDs = append(creatorIDs, p.CreatorID)
	}

	counts, err := s.activeMemberCounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	usernames, err := s.usernamesByID(ctx, creatorIDs)
	if err != nil {
		return nil, err
	}

	views := make([]ProjectView, 0, len(projects))
	for _, p := range projects {
		views = append(views, ProjectView{
			Project:         p,
			DisplayStatus:   string(p.Status),
			Members:         counts[p.ID],
			CreatorUsername: usernames[p.CreatorID],
		})
	}
	return views, nil
}

// Get fetches a single project with its creator's username.
func (s *ProjectService) Get(ctx context.Context, id string) (*ProjectView, error) {
	var project models.Project
	err := s.db.WithContext(ctx).Take(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("project service: get project: %w", err)
	}

	counts, err := s.activeMemberCounts(ctx, []string{project.ID})
	if err != nil {
		return nil, err
	}

	usernames, err := s.usernamesByID(ctx, []string{project.CreatorID})
	if err != nil {
		return nil, err
	}

	return &ProjectView{
		Project:         project,
		DisplayStatus:   string(project.Status),
		Members:         counts[project.ID],
		CreatorUsername: usernames[project.CreatorID],
	}, nil
}

// Update mutates the project's editable fields. Ownership is re-verified by
// the guarded update inside the transaction, so a check/act race cannot
// mutate somebody else's project.
func (s *ProjectService) Update(ctx context.Context, id, creatorID string, input UpdateProjectInput) (*models.Project, error) {
	name := strings.TrimSpace(input.Name)
	description := strings.TrimSpace(input.Description)
	if name == "" || description == "" {
		return nil, errors.New("project service: name and description are required")
	}

	var updated models.Project
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Project{}).
			Where("id = ? AND creator_id = ?", id, creatorID).
			Updates(map[string]interface{}{
				"name":             name,
				"description":      description,
				"tags":             datatypes.NewJSONSlice(normaliseIDs(input.Tags)),
				"looking_for":      datatypes.NewJSONSlice(normaliseIDs(input.LookingFor)),
				"recruitment_open": input.RecruitmentOpen,
				"updated_at":       s.clock(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrProjectNotFound
		}
		return tx.Take(&updated, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ToggleRecruitment flips recruitment_open for the creator and returns the
// new value. The flip happens in the database row so concurrent toggles
// serialise cleanly.
func (s *ProjectService) ToggleRecruitment(ctx context.Context, id, creatorID string) (bool, error) {
	var open bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Project{}).
			Where("id = ? AND creator_id = ?", id, creatorID).
			Updates(map[string]interface{}{
				"recruitment_open": gorm.Expr("NOT recruitment_open"),
				"updated_at":       s.clock(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrProjectNotFound
		}

		var project models.Project
		if err := tx.Take(&project, "id = ?", id).Error; err != nil {
			return err
		}
		open = project.RecruitmentOpen
		return nil
	})
	if err != nil {
		return false, err
	}
	return open, nil
}

// Delete soft-deletes the project and purges its join requests. The status
// transition is one-way; the row itself stays as history.
func (s *ProjectService) Delete(ctx context.Context, id, creatorID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Project{}).
			Where("id = ? AND creator_id = ? AND status = ?", id, creatorID, models.ProjectActive).
			Updates(map[string]interface{}{
				"status":     models.ProjectDeleted,
				"updated_at": s.clock(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrProjectNotFound
		}

		return tx.Delete(&models.JoinRequest{}, "project_id = ?", id).Error
	})
}

// RequestJoin creates a pending join request for the caller. The unique
// (project_id, user_id) index is the race gate, and the stale-rejected
// replacement is a single conditional upsert rather than delete+insert, so
// two reapplications after the cooldown cannot both slip through.
func (s *ProjectService) RequestJoin(ctx context.Context, projectID, userID, message string) (*models.JoinRequest, error) {
	now := s.clock()
	cutoff := now.Add(-models.RejectionCooldown)

	var request *models.JoinRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		err := tx.Take(&project, "id = ?", projectID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProjectNotFound
		}
		if err != nil {
			return err
		}

		if project.Status != models.ProjectActive {
			return ErrProjectClosed
		}
		if project.CreatorID == userID {
			return ErrOwnProject
		}

		var membership models.Membership
		err = tx.Take(&membership, "project_id = ? AND user_id = ?", projectID, userID).Error
		if err == nil {
			switch membership.Status {
			case models.MembershipActive:
				return ErrAlreadyMember
			case models.MembershipKicked:
				return ErrKickedFromProject
			default:
				return ErrLeftProject
			}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var existing models.JoinRequest
		err = tx.Take(&existing, "project_id = ? AND user_id = ?", projectID, userID).Error
		if err == nil {
			switch existing.Status {
			case models.RequestPending:
				return ErrRequestPending
			case models.RequestAccepted:
				return ErrAlreadyMember
			case models.RequestRejected:
				if existing.CreatedAt.After(cutoff) {
					elapsed := now.Sub(existing.CreatedAt)
					remaining := int((models.RejectionCooldown - elapsed + 24*time.Hour - 1) / (24 * time.Hour))
					if remaining < 0 {
						remaining = 0
					}
					return &CooldownError{DaysRemaining: remaining}
				}
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		fresh := models.JoinRequest{
			ProjectID: projectID,
			UserID:    userID,
			Status:    models.RequestPending,
			Message:   strings.TrimSpace(message),
		}
		fresh.CreatedAt = now

		result := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"status":     models.RequestPending,
				"message":    fresh.Message,
				"created_at": now,
				"updated_at": now,
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Eq{Column: clause.Column{Table: "join_requests", Name: "status"}, Value: string(models.RequestRejected)},
				clause.Lte{Column: clause.Column{Table: "join_requests", Name: "created_at"}, Value: cutoff},
			}},
		}).Create(&fresh)
		if result.Error != nil {
			if isUniqueConstraintError(result.Error) {
				return ErrRequestPending
			}
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Lost the race against a concurrent request for the same pair.
			return ErrRequestPending
		}

		// On the reapplication path the conflict clause updated the stored
		// row, keeping its id, so fresh's generated id matches nothing.
		// Re-read to hand back the persisted row.
		var stored models.JoinRequest
		if err := tx.Take(&stored, "project_id = ? AND user_id = ?", projectID, userID).Error; err != nil {
			return err
		}

		request = &stored
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.JoinRequests.WithLabelValues(string(models.RequestPending)).Inc()
	return request, nil
}

// ListRequests returns the project's pending requests with requester
// identity. Only the creator may see them.
func (s *ProjectService) ListRequests(ctx context.Context, projectID, callerID string) ([]RequestView, error) {
	if err := s.requireCreator(ctx, projectID, callerID); err != nil {
		return nil, err
	}

	var views []RequestView
	err := s.db.WithContext(ctx).
		Model(&models.JoinRequest{}).
		Select("join_requests.id, join_requests.project_id, join_requests.user_id, join_requests.status, join_requests.message, join_requests.created_at, users.username, users.email").
		Joins("JOIN users ON users.id = join_requests.user_id").
		Where("join_requests.project_id = ? AND join_requests.status = ?", projectID, models.RequestPending).
		Order("join_requests.created_at DESC").
		Scan(&views).Error
	if err != nil {
		return nil, fmt.Errorf("project service: list requests: %w", err)
	}
	if views == nil {
		views = []RequestView{}
	}
	return views, nil
}

// ResolveRequest accepts or rejects a pending request. Acceptance inserts
// the membership row inside the same transaction that flips the request
// status; the status predicate on the update is the gate against double
// resolution.
func (s *ProjectService) ResolveRequest(ctx context.Context, projectID, requestID, callerID string, accept bool) error {
	target := models.RequestRejected
	if accept {
		target = models.RequestAccepted
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		err := tx.Take(&project, "id = ?", projectID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProjectNotFound
		}
		if err != nil {
			return err
		}
		if project.CreatorID != callerID {
			return ErrNotCreator
		}

		var request models.JoinRequest
		err = tx.Take(&request, "id = ?", requestID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		if request.ProjectID != projectID {
			return ErrRequestMismatch
		}
		if !request.Status.CanTransition(target) {
			return ErrRequestResolved
		}

		result := tx.Model(&models.JoinRequest{}).
			Where("id = ? AND status = ?", requestID, models.RequestPending).
			Update("status", target)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRequestResolved
		}

		if accept {
			membership := &models.Membership{
				ProjectID: projectID,
				UserID:    request.UserID,
				Role:      models.RoleMember,
				Status:    models.MembershipActive,
				JoinedAt:  s.clock(),
			}
			if err := tx.Create(membership).Error; err != nil {
				if isUniqueConstraintError(err) {
					return ErrAlreadyMember
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.JoinRequests.WithLabelValues(string(target)).Inc()
	return nil
}

// Leave transitions the caller's membership to left. Creators are refused:
// their only terminal action is deleting the project. Request rows for the
// pair are purged so the user can reapply later.
func (s *ProjectService) Leave(ctx context.Context, projectID, userID string) error {
	now := s.clock()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		err := tx.Take(&project, "id = ?", projectID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProjectNotFound
		}
		if err != nil {
			return err
		}
		if project.CreatorID == userID {
			return ErrCreatorCannotLeave
		}

		result := tx.Model(&models.Membership{}).
			Where("project_id = ? AND user_id = ? AND status = ?", projectID, userID, models.MembershipActive).
			Updates(map[string]interface{}{
				"status":  models.MembershipLeft,
				"left_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrMembershipNotFound
		}

		return tx.Delete(&models.JoinRequest{}, "project_id = ? AND user_id = ?", projectID, userID).Error
	})
}

// ListMembers returns the project's active members. Visible to the creator
// and to active members only.
func (s *ProjectService) ListMembers(ctx context.Context, projectID, callerID string) ([]MemberView, error) {
	var project models.Project
	err := s.db.WithContext(ctx).Take(&project, "id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("project service: get project: %w", err)
	}

	if project.CreatorID != callerID {
		var count int64
		err := s.db.WithContext(ctx).Model(&models.Membership{}).
			Where("project_id = ? AND user_id = ? AND status = ?", projectID, callerID, models.MembershipActive).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("project service: check membership: %w", err)
		}
		if count == 0 {
			return nil, ErrNotMember
		}
	}

	var views []MemberView
	err = s.db.WithContext(ctx).
		Model(&models.Membership{}).
		Select("memberships.id, memberships.user_id, memberships.role, memberships.joined_at, users.username, users.email").
		Joins("JOIN users ON users.id = memberships.user_id").
		Where("memberships.project_id = ? AND memberships.status = ?", projectID, models.MembershipActive).
		Order("memberships.joined_at ASC").
		Scan(&views).Error
	if err != nil {
		return nil, fmt.Errorf("project service: list members: %w", err)
	}
	if views == nil {
		views = []MemberView{}
	}
	return views, nil
}

func (s *ProjectService) requireCreator(ctx context.Context, projectID, callerID string) error {
	var project models.Project
	err := s.db.WithContext(ctx).Take(&project, "id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrProjectNotFound
	}
	if err != nil {
		return fmt.Errorf("project service: get project: %w", err)
	}
	if project.CreatorID != callerID {
		return ErrNotCreator
	}
	return nil
}

func (s *ProjectService) activeMemberCounts(ctx context.Context, projectIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(projectIDs))
	if len(projectIDs) == 0 {
		return counts, nil
	}

	type row struct {
		ProjectID string
		Total     int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&models.Membership{}).
		Select("project_id, COUNT(*) AS total").
		Where("project_id IN ? AND status = ?", projectIDs, models.MembershipActive).
		Group("project_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("project service: count members: %w", err)
	}

	for _, r := range rows {
		counts[r.ProjectID] = r.Total
	}
	return counts, nil
}

func (s *ProjectService) usernamesByID(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	ids := normaliseIDs(userIDs)
	if len(ids) == 0 {
		return names, nil
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("project service: load users: %w", err)
	}

	for _, u := range users {
		names[u.ID] = u.Username
	}
	return names, nil
}

// displayStatus resolves the caller-relative status: a deleted project
// overrides everything, then a non-active membership, then the project's
// own status.
func displayStatus(project models.ProjectStatus, membership models.MembershipStatus) string {
	if project == models.ProjectDeleted {
		return string(models.ProjectDeleted)
	}
	switch membership {
	case models.MembershipLeft, models.MembershipKicked:
		return string(membership)
	}
	return string(project)
}

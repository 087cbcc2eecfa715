package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"studyhub/portal/internal/domain"
	"studyhub/portal/internal/service"

	"github.com/gin-gonic/gin"
)

// ActivityHandler holds the activity service dependency.
type ActivityHandler struct {
	activities service.ActivityService
	opts       HandlerOptions
}

func NewActivityHandler(activities service.ActivityService, opts HandlerOptions) *ActivityHandler {
	return &ActivityHandler{activities: activities, opts: opts}
}

// LogActivityRequest is the JSON body of POST /activity. Course records use
// year, branch and unitNumber in place of exam and chapterNumber.
type LogActivityRequest struct {
	UserID        string             `json:"userId"`
	UserName      string             `json:"userName"`
	Exam          string             `json:"exam"`
	Year          string             `json:"year"`
	Branch        string             `json:"branch"`
	Subject       string             `json:"subject"`
	ChapterNumber int                `json:"chapterNumber"`
	UnitNumber    int                `json:"unitNumber"`
	ActivityType  string             `json:"activityType"`
	QuizResult    *domain.QuizResult `json:"quizResult"`
}

func (r LogActivityRequest) scope() domain.Scope {
	subject := strings.TrimSpace(r.Subject)
	if r.Exam == "" && (r.Year != "" || r.Branch != "") {
		number := r.UnitNumber
		if number == 0 {
			number = r.ChapterNumber
		}
		return domain.CourseKey(r.Year, r.Branch).Scope(subject, number)
	}
	return domain.ExamKey(r.Exam).Scope(subject, r.ChapterNumber)
}

// LogActivity godoc
// @Summary Log a student activity
// @Tags Activity
// @Accept json
// @Produce json
// @Param activity body LogActivityRequest true "Activity"
// @Success 201 {object} domain.Activity
// @Failure 400 {object} gin.H "Missing or invalid fields"
// @Router /activity [post]
func (h *ActivityHandler) LogActivity(c *gin.Context) {
	var req LogActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error", err)
		return
	}
	in := service.LogActivityInput{
		UserID:   req.UserID,
		UserName: req.UserName,
		Scope:    req.scope(),
		Type:     domain.ActivityType(req.ActivityType),
		Result:   req.QuizResult,
	}
	if identity, ok := identityFromContext(c); ok {
		in.UserID, in.UserName = identity.UserID, identity.UserName
	} else if !h.opts.TrustQueryIdentity {
		abortWithError(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	record, err := h.activities.Log(c.Request.Context(), in)
	if err != nil {
		respondServiceError(c, "Failed to log activity", err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// ListActivity godoc
// @Summary List student activity
// @Description Admins see every record; other callers see their own. Newest first.
// @Tags Activity
// @Produce json
// @Param userId query string false "Requesting user"
// @Param isAdmin query bool false "Admin scope"
// @Success 200 {array} domain.Activity
// @Failure 401 {object} gin.H "Neither a user nor admin scope"
// @Router /activity [get]
func (h *ActivityHandler) ListActivity(c *gin.Context) {
	var requesterID string
	var isAdmin bool
	if identity, ok := identityFromContext(c); ok {
		requesterID, isAdmin = identity.UserID, identity.IsAdmin()
	} else if h.opts.TrustQueryIdentity {
		requesterID = c.Query("userId")
		if raw := c.Query("isAdmin"); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				abortWithError(c, http.StatusBadRequest, "Invalid query", fmt.Errorf("isAdmin must be a boolean"))
				return
			}
			isAdmin = parsed
		}
	}

	records, err := h.activities.List(c.Request.Context(), requesterID, isAdmin)
	if err != nil {
		respondServiceError(c, "Failed to fetch activity", err)
		return
	}
	c.JSON(http.StatusOK, records)
}

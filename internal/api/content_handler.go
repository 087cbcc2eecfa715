package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"studyhub/portal/internal/domain"
	"studyhub/portal/internal/service"

	"github.com/gin-gonic/gin"
)

// ContentHandler serves one kind of container. Exams are addressed by
// exam+chapterNumber, courses by year+branch+unitNumber.
type ContentHandler struct {
	content     service.ContentService
	kind        domain.ContainerKind
	numberField string
	opts        HandlerOptions
}

// HandlerOptions carries request limits and the identity policy.
type HandlerOptions struct {
	MaxUploadBytes int64
	// TrustQueryIdentity lets unauthenticated requests name the acting user
	// through userId/userName/isAdmin parameters.
	TrustQueryIdentity bool
}

func NewExamHandler(content service.ContentService, opts HandlerOptions) *ContentHandler {
	return &ContentHandler{content: content, kind: domain.KindExam, numberField: "chapterNumber", opts: opts}
}

func NewCourseHandler(content service.ContentService, opts HandlerOptions) *ContentHandler {
	return &ContentHandler{content: content, kind: domain.KindCourse, numberField: "unitNumber", opts: opts}
}

// --- DTOs ---

// subjectForm is one entry of the JSON "subjects" form field. The file for
// chapter ci of subject si is sent as multipart file "file_<si>_<ci>".
type subjectForm struct {
	Name     string `json:"name"`
	Chapters []struct {
		Number int `json:"number"`
	} `json:"chapters"`
}

// chapterRequest addresses a chapter in JSON bodies. Exams use exam and
// chapterNumber; courses use year, branch and unitNumber.
type chapterRequest struct {
	Exam          string `json:"exam"`
	Year          string `json:"year"`
	Branch        string `json:"branch"`
	Subject       string `json:"subject"`
	ChapterNumber int    `json:"chapterNumber"`
	UnitNumber    int    `json:"unitNumber"`
}

type submitQuizRequest struct {
	chapterRequest
	UserID   string            `json:"userId"`
	UserName string            `json:"userName"`
	Answers  map[string]string `json:"answers"`
}

type deleteChapterResponse struct {
	Message   string            `json:"message"`
	Container *domain.Container `json:"container"`
}

// --- helpers ---

func (h *ContentHandler) keyFrom(get func(string) string) domain.ContainerKey {
	if h.kind == domain.KindCourse {
		return domain.CourseKey(get("year"), get("branch"))
	}
	return domain.ExamKey(get("exam"))
}

func (h *ContentHandler) refFrom(get func(string) string) (service.ChapterRef, error) {
	raw := strings.TrimSpace(get(h.numberField))
	if raw == "" {
		return service.ChapterRef{}, fmt.Errorf("%s is required", h.numberField)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return service.ChapterRef{}, fmt.Errorf("%s must be an integer", h.numberField)
	}
	return service.ChapterRef{Key: h.keyFrom(get), Subject: strings.TrimSpace(get("subject")), Number: n}, nil
}

func (h *ContentHandler) refFromBody(req chapterRequest) service.ChapterRef {
	number := req.ChapterNumber
	if h.kind == domain.KindCourse && req.UnitNumber != 0 {
		number = req.UnitNumber
	}
	var key domain.ContainerKey
	if h.kind == domain.KindCourse {
		key = domain.CourseKey(req.Year, req.Branch)
	} else {
		key = domain.ExamKey(req.Exam)
	}
	return service.ChapterRef{Key: key, Subject: strings.TrimSpace(req.Subject), Number: number}
}

// viewer resolves who is reading: the authenticated caller, or the query
// parameters when they are trusted.
func (h *ContentHandler) viewer(c *gin.Context) domain.Identity {
	if identity, ok := identityFromContext(c); ok {
		return identity
	}
	if h.opts.TrustQueryIdentity {
		return domain.Identity{UserID: strings.TrimSpace(c.Query("userId")), UserName: c.Query("userName")}
	}
	return domain.Identity{}
}

func optionalInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func readUpload(fh *multipart.FileHeader) (service.ChapterUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return service.ChapterUpload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return service.ChapterUpload{}, err
	}
	return service.ChapterUpload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *ContentHandler) limitBody(c *gin.Context) {
	if h.opts.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	}
}

// abortFormError answers 413 when the body hit the upload limit, 400 otherwise.
func abortFormError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		abortWithError(c, http.StatusRequestEntityTooLarge, "Upload too large",
			fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	abortWithError(c, http.StatusBadRequest, "Invalid multipart form", err)
}

// --- Handler Methods ---

// CreateContent godoc
// @Summary Create or extend exam/course content
// @Description Uploads chapter files, generates summaries and quizzes, and merges them into the container.
// @Tags Content
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param subjects formData string true "JSON list of subjects with chapter numbers"
// @Success 201 {object} domain.Container "Container created"
// @Success 200 {object} domain.Container "Merged into existing container"
// @Failure 400 {object} gin.H "Missing or invalid fields"
// @Failure 409 {object} gin.H "Concurrent modification"
// @Failure 500 {object} gin.H "Upload or persistence failure"
// @Router /exams [post]
// @Router /courses [post]
func (h *ContentHandler) CreateContent(c *gin.Context) {
	h.limitBody(c)
	form, err := c.MultipartForm()
	if err != nil {
		abortFormError(c, err)
		return
	}

	rawSubjects := c.PostForm("subjects")
	if rawSubjects == "" {
		abortWithError(c, http.StatusBadRequest, "subjects is required", nil)
		return
	}
	var subjects []subjectForm
	if err := json.Unmarshal([]byte(rawSubjects), &subjects); err != nil {
		abortWithError(c, http.StatusBadRequest, "subjects must be a JSON array", err)
		return
	}

	in := service.CreateContentInput{Key: h.keyFrom(c.PostForm)}
	for si, subj := range subjects {
		upload := service.SubjectUpload{Name: subj.Name}
		for ci, ch := range subj.Chapters {
			chapter := service.ChapterUpload{Number: ch.Number}
			if files := form.File[fmt.Sprintf("file_%d_%d", si, ci)]; len(files) > 0 {
				read, err := readUpload(files[0])
				if err != nil {
					abortWithError(c, http.StatusBadRequest, "Could not read uploaded file", err)
					return
				}
				read.Number = ch.Number
				chapter = read
			}
			upload.Chapters = append(upload.Chapters, chapter)
		}
		in.Subjects = append(in.Subjects, upload)
	}

	container, created, err := h.content.CreateContent(c.Request.Context(), in)
	if err != nil {
		respondServiceError(c, "Failed to save content", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, container)
}

// ListContent godoc
// @Summary Read content
// @Description Returns matching containers, or a flattened quiz list when quizOnly=true.
// @Tags Content
// @Produce json
// @Success 200 {array} domain.Container
// @Failure 400 {object} gin.H "Invalid filters"
// @Router /exams [get]
// @Router /courses [get]
func (h *ContentHandler) ListContent(c *gin.Context) {
	number, err := optionalInt(c.Query(h.numberField), h.numberField)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	skip, err := optionalInt(c.Query("skip"), "skip")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	limit, err := optionalInt(c.Query("limit"), "limit")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	quizOnly, err := strconv.ParseBool(c.DefaultQuery("quizOnly", "false"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid filter", fmt.Errorf("quizOnly must be a boolean"))
		return
	}

	query := service.ContentQuery{
		Key:           h.keyFrom(c.Query),
		Subject:       strings.TrimSpace(c.Query("subject")),
		ChapterNumber: number,
		Skip:          skip,
		Limit:         limit,
	}
	if quizOnly {
		quizzes, err := h.content.GetQuizzes(c.Request.Context(), query)
		if err != nil {
			respondServiceError(c, "Failed to fetch quizzes", err)
			return
		}
		c.JSON(http.StatusOK, quizzes)
		return
	}
	containers, err := h.content.GetContent(c.Request.Context(), query)
	if err != nil {
		respondServiceError(c, "Failed to fetch content", err)
		return
	}
	c.JSON(http.StatusOK, containers)
}

// GetChapter godoc
// @Summary Read one chapter's notes
// @Description Returns the chapter with a temporary download URL and logs a notes-view for the caller.
// @Tags Content
// @Produce json
// @Success 200 {object} service.ChapterView
// @Failure 400 {object} gin.H
// @Failure 404 {object} gin.H
// @Router /exams/chapter [get]
// @Router /courses/unit [get]
func (h *ContentHandler) GetChapter(c *gin.Context) {
	ref, err := h.refFrom(c.Query)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid chapter reference", err)
		return
	}
	view, err := h.content.GetChapter(c.Request.Context(), ref, h.viewer(c))
	if err != nil {
		respondServiceError(c, "Failed to fetch chapter", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// UpdateChapter godoc
// @Summary Update a chapter
// @Description Replaces the chapter file (regenerating its summary) and/or its quiz.
// @Tags Content
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param quiz formData string false "JSON quiz array"
// @Param file formData file false "Replacement document"
// @Success 200 {object} domain.Container
// @Failure 400 {object} gin.H "Invalid quiz format"
// @Failure 404 {object} gin.H "Exam, subject or chapter not found"
// @Router /exams/chapter [put]
// @Router /courses/unit [put]
func (h *ContentHandler) UpdateChapter(c *gin.Context) {
	h.limitBody(c)
	if _, err := c.MultipartForm(); err != nil {
		abortFormError(c, err)
		return
	}
	ref, err := h.refFrom(c.PostForm)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid chapter reference", err)
		return
	}

	in := service.UpdateChapterInput{Ref: ref}
	if quiz, ok := c.GetPostForm("quiz"); ok && strings.TrimSpace(quiz) != "" {
		in.Quiz = &quiz
	}
	if fh, err := c.FormFile("file"); err == nil {
		upload, err := readUpload(fh)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Could not read uploaded file", err)
			return
		}
		upload.Number = ref.Number
		in.File = &upload
	}

	container, err := h.content.UpdateChapter(c.Request.Context(), in)
	if err != nil {
		respondServiceError(c, "Failed to update chapter", err)
		return
	}
	c.JSON(http.StatusOK, container)
}

// DeleteChapter godoc
// @Summary Delete a chapter
// @Tags Content
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} deleteChapterResponse
// @Failure 404 {object} gin.H
// @Router /exams/chapter [delete]
// @Router /courses/unit [delete]
func (h *ContentHandler) DeleteChapter(c *gin.Context) {
	var req chapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error", err)
		return
	}
	container, err := h.content.DeleteChapter(c.Request.Context(), h.refFromBody(req))
	if err != nil {
		respondServiceError(c, "Failed to delete chapter", err)
		return
	}
	c.JSON(http.StatusOK, deleteChapterResponse{Message: "Chapter deleted", Container: container})
}

// SubmitQuiz godoc
// @Summary Submit quiz answers
// @Description Scores the answers against the stored quiz and logs a quiz-submission.
// @Tags Content
// @Accept json
// @Produce json
// @Success 201 {object} domain.Activity
// @Failure 400 {object} gin.H
// @Failure 404 {object} gin.H
// @Router /exams/quiz/submit [post]
// @Router /courses/quiz/submit [post]
func (h *ContentHandler) SubmitQuiz(c *gin.Context) {
	var req submitQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error", err)
		return
	}
	in := service.SubmitQuizInput{
		Ref:      h.refFromBody(req.chapterRequest),
		UserID:   req.UserID,
		UserName: req.UserName,
		Answers:  req.Answers,
	}
	if identity, ok := identityFromContext(c); ok {
		in.UserID, in.UserName = identity.UserID, identity.UserName
	} else if !h.opts.TrustQueryIdentity {
		abortWithError(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	record, err := h.content.SubmitQuiz(c.Request.Context(), in)
	if err != nil {
		respondServiceError(c, "Failed to submit quiz", err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

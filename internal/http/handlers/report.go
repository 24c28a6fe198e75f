package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/geo"
	"github.com/migralert/migralert-backend/internal/http/response"
	"github.com/migralert/migralert-backend/internal/platform/apierr"
	"github.com/migralert/migralert-backend/internal/services"
)

// Multipart overhead allowed on top of the photo itself.
const submitBodySlack = 1 << 20

type ReportHandler struct {
	reportService services.ReportService
}

func NewReportHandler(reportService services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

type submitReportRequest struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	ActivityType string  `json:"activity_type"`
	Description  string  `json:"description"`
	// Photo is base64 in JSON bodies.
	Photo []byte `json:"photo"`
}

// Submit accepts multipart/form-data with an optional "photo" file, or JSON.
func (rh *ReportHandler) Submit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxPhotoBytes+submitBodySlack)

	var in services.SubmitReportInput
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		parsed, ok := rh.parseMultipart(c)
		if !ok {
			return
		}
		in = parsed
	} else {
		var req submitReportRequest
		if !bindJSON(c, &req) {
			return
		}
		in = services.SubmitReportInput{
			Latitude:     req.Latitude,
			Longitude:    req.Longitude,
			ActivityType: req.ActivityType,
			Description:  req.Description,
			Photo:        req.Photo,
		}
	}

	report, err := rh.reportService.Submit(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"report": report})
}

func (rh *ReportHandler) parseMultipart(c *gin.Context) (services.SubmitReportInput, bool) {
	var in services.SubmitReportInput
	lat, err := strconv.ParseFloat(strings.TrimSpace(c.PostForm("latitude")), 64)
	if err != nil {
		response.RespondAPIError(c, apierr.Validation("invalid latitude"))
		return in, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(c.PostForm("longitude")), 64)
	if err != nil {
		response.RespondAPIError(c, apierr.Validation("invalid longitude"))
		return in, false
	}
	in.Latitude = lat
	in.Longitude = lng
	in.ActivityType = c.PostForm("activity_type")
	in.Description = c.PostForm("description")

	fh, err := c.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return in, true
	}
	if err != nil {
		response.RespondAPIError(c, apierr.Validation("invalid photo upload: %v", err))
		return in, false
	}
	if fh.Size > services.MaxPhotoBytes {
		response.RespondAPIError(c, apierr.Validation("photo exceeds %d bytes", services.MaxPhotoBytes))
		return in, false
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondAPIError(c, apierr.Validation("invalid photo upload: %v", err))
		return in, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.RespondAPIError(c, apierr.Validation("invalid photo upload: %v", err))
		return in, false
	}
	in.Photo = data
	return in, true
}

func (rh *ReportHandler) Query(c *gin.Context) {
	if c.Query("lat") == "" || c.Query("lng") == "" {
		response.RespondAPIError(c, apierr.Validation("lat and lng are required"))
		return
	}
	lat, ok := queryFloat(c, "lat", 0)
	if !ok {
		return
	}
	lng, ok := queryFloat(c, "lng", 0)
	if !ok {
		return
	}
	radius, ok := queryFloat(c, "radius", services.DefaultQueryRadiusMiles)
	if !ok {
		return
	}
	views, err := rh.reportService.Query(c.Request.Context(), geo.Point{Lat: lat, Lng: lng}, radius)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"reports": views})
}

func (rh *ReportHandler) ListActive(c *gin.Context) {
	limit, ok := queryInt(c, "limit", services.DefaultActiveLimit)
	if !ok {
		return
	}
	views, err := rh.reportService.ListActive(c.Request.Context(), limit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"reports": views})
}

func (rh *ReportHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	view, err := rh.reportService.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"report": view})
}

func (rh *ReportHandler) Interact(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Type string `json:"type"`
	}
	if !bindJSON(c, &req) {
		return
	}
	t, valid := types.ParseInteractionType(req.Type)
	if !valid {
		response.RespondAPIError(c, apierr.Validation("unknown interaction type %q", req.Type))
		return
	}
	ctx := c.Request.Context()
	report, err := rh.reportService.RecordInteraction(ctx, id, t, services.ActorFromContext(ctx))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"report": report})
}

func (rh *ReportHandler) Moderate(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	status := types.ReportStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	report, err := rh.reportService.Moderate(ctx, id, status, services.ActorFromContext(ctx))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"report": report})
}

package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"salesreport-service/internal/service"
	"salesreport-service/pkg/logger"
	"salesreport-service/pkg/tabular"
	"salesreport-service/prometheus"
)

// CreateReport stores a daily visit report. The multipart form carries a
// "meetings" JSON array and an optional "card" image attached to every
// meeting in the batch.
func CreateReport(c echo.Context) error {
	log := logger.FromContext(c)
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}

	meetingsJSON := c.FormValue("meetings")
	var meetings []service.MeetingInput
	if err := json.Unmarshal([]byte(meetingsJSON), &meetings); err != nil {
		log.Error("Failed to parse meetings payload", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid meetings payload"})
	}

	cardRef, err := saveCardUpload(c)
	if err != nil {
		log.Error("Failed to store card upload", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to store card file"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	report, err := reports.Create(a, meetings, cardRef)
	if err != nil {
		return serviceError(c, err)
	}
	prometheus.ReportCreatedCounter.Inc()
	log.Info("Report created",
		zap.Uint("report_id", report.ID),
		zap.Int("meetings", len(report.Meetings)))
	return c.JSON(http.StatusCreated, report)
}

// GetReport returns one report, readable by its owner, the owner's
// manager, or an admin.
func GetReport(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}
	id, err := uintParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid report id"})
	}
	report, err := reports.GetByID(a, id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// UpdateReport replaces a report's meetings wholesale; a freshly uploaded
// card replaces the reference on every meeting.
func UpdateReport(c echo.Context) error {
	log := logger.FromContext(c)
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}
	id, err := uintParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid report id"})
	}

	var meetings []service.MeetingInput
	if err := json.Unmarshal([]byte(c.FormValue("meetings")), &meetings); err != nil {
		log.Error("Failed to parse meetings payload", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid meetings payload"})
	}

	cardRef, err := saveCardUpload(c)
	if err != nil {
		log.Error("Failed to store card upload", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to store card file"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	report, err := reports.Edit(a, id, meetings, cardRef)
	if err != nil {
		return serviceError(c, err)
	}
	log.Info("Report updated", zap.Uint("report_id", report.ID))
	return c.JSON(http.StatusOK, report)
}

// DeleteReport removes a report and its card files.
func DeleteReport(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}
	id, err := uintParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid report id"})
	}
	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := reports.Delete(a, id); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "report deleted"})
}

// AddReportFollowUp appends a follow-up to one meeting of a report.
func AddReportFollowUp(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}
	id, err := uintParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid report id"})
	}

	var req struct {
		MeetingID string    `json:"meeting_id"`
		Date      time.Time `json:"date"`
		Remark    string    `json:"remark"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	report, err := reports.AddFollowUp(a, id, req.MeetingID, req.Date, req.Remark)
	if err != nil {
		return serviceError(c, err)
	}
	prometheus.FollowUpCounter.WithLabelValues("report").Inc()
	return c.JSON(http.StatusOK, report)
}

// ListReports returns a scoped report page with month and today counts.
func ListReports(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}
	filters, err := reportFilters(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	defer prometheus.TrackDBOperation("query")(time.Now())
	page, err := reports.List(a, filters)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// ExportReports streams the composed listing as a spreadsheet.
func ExportReports(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}
	filters, err := reportFilters(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	rows, err := reports.ExportRows(a, filters)
	if err != nil {
		return serviceError(c, err)
	}
	data, err := tabular.Bytes(service.ExportColumns, rows)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to build export"})
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="reports.csv"`)
	return c.Blob(http.StatusOK, "text/csv", data)
}

// Summary returns per-user report counts grouped by manager.
func Summary(c echo.Context) error {
	if _, ok := actor(c); !ok {
		return missingIdentity(c)
	}
	defer prometheus.TrackDBOperation("query")(time.Now())
	groups, err := summaries.Aggregate()
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"summary": groups})
}

// ExportSummary streams the same aggregation as a spreadsheet.
func ExportSummary(c echo.Context) error {
	if _, ok := actor(c); !ok {
		return missingIdentity(c)
	}
	rows, err := summaries.ExportRows()
	if err != nil {
		return serviceError(c, err)
	}
	data, err := tabular.Bytes(service.SummaryColumns, rows)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to build export"})
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="summary.csv"`)
	return c.Blob(http.StatusOK, "text/csv", data)
}

func reportFilters(c echo.Context) (service.ReportFilters, error) {
	var f service.ReportFilters
	var err error
	if f.UserID, err = optionalUintParam(c, "user_id"); err != nil {
		return f, err
	}
	if f.ManagerID, err = optionalUintParam(c, "manager_id"); err != nil {
		return f, err
	}
	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return f, err
		}
		f.From = &t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return f, err
		}
		f.To = &t
	}
	f.Page, _ = strconv.Atoi(c.QueryParam("page"))
	f.PerPage, _ = strconv.Atoi(c.QueryParam("limit"))
	return f, nil
}

// saveCardUpload stores the optional "card" form file and returns its
// reference, or "" when no file was sent.
func saveCardUpload(c echo.Context) (string, error) {
	fileHeader, err := c.FormFile("card")
	if err != nil {
		return "", nil
	}
	src, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	return files.Save(src, fileHeader.Filename)
}

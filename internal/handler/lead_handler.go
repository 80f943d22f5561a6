package handler

import (
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

// ListLeads returns a scoped, filtered lead page with the derived counts.
func ListLeads(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}

	filters := service.LeadFilters{
		Text:       c.QueryParam("search"),
		Status:     c.QueryParam("status"),
		DateFilter: c.QueryParam("date_filter"),
	}
	if v := c.QueryParam("hot"); v != "" {
		hot, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hot parameter"})
		}
		filters.HotLead = &hot
	}
	var err error
	if filters.UserID, err = optionalUintParam(c, "user_id"); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user_id"})
	}
	if filters.ManagerID, err = optionalUintParam(c, "manager_id"); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid manager_id"})
	}
	filters.Page, _ = strconv.Atoi(c.QueryParam("page"))
	filters.PerPage, _ = strconv.Atoi(c.QueryParam("limit"))

	defer prometheus.TrackDBOperation("query")(time.Now())
	page, err := leads.List(a, filters)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// SearchLeads matches name, email or phone inside the actor's scope.
func SearchLeads(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}
	results, err := leads.Search(a, c.QueryParam("q"))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"leads": results})
}

// CreateLead creates a single lead.
func CreateLead(c echo.Context) error {
	log := logger.FromContext(c)
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}

	var req service.LeadInput
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse lead", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	lead, err := leads.CreateOne(a, req)
	if err != nil {
		return serviceError(c, err)
	}
	prometheus.LeadCreatedCounter.Inc()
	log.Info("Lead created", zap.Uint("lead_id", lead.ID))
	return c.JSON(http.StatusCreated, lead)
}

// ImportLeads ingests a spreadsheet of leads. Row failures are reported
// back but do not abort the batch.
func ImportLeads(c echo.Context) error {
	log := logger.FromContext(c)
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "spreadsheet file is required"})
	}
	src, err := fileHeader.Open()
	if err != nil {
		log.Error("Failed to open upload", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "failed to read spreadsheet"})
	}
	defer src.Close()

	rows, err := tabular.Rows(src)
	if err != nil {
		log.Error("Failed to parse spreadsheet", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "failed to parse spreadsheet"})
	}

	imported := make([]service.ImportRow, len(rows))
	for i, r := range rows {
		imported[i] = service.ImportRow(r)
	}
	result, err := leads.BulkImport(a, imported)
	if err != nil {
		return serviceError(c, err)
	}

	prometheus.LeadImportedCounter.WithLabelValues("ok").Add(float64(result.Imported))
	prometheus.LeadImportedCounter.WithLabelValues("failed").Add(float64(len(result.Failed)))
	log.Info("Leads imported",
		zap.Int("imported", result.Imported),
		zap.Int("failed", len(result.Failed)))
	return c.JSON(http.StatusOK, result)
}

// UpdateLead applies a partial update.
func UpdateLead(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}
	id, err := uintParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lead id"})
	}

	var req service.LeadPatch
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	lead, err := leads.Edit(a, id, req)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, lead)
}

// DeleteLead removes a lead.
func DeleteLead(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}
	id, err := uintParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lead id"})
	}
	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := leads.Delete(a, id); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "lead deleted"})
}

// AddLeadFollowUp appends an interaction and moves the next task date.
func AddLeadFollowUp(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}
	id, err := uintParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lead id"})
	}

	var req struct {
		Remark       string    `json:"remark"`
		NextTaskDate time.Time `json:"next_task_date"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	lead, err := leads.AddFollowUp(a, id, req.Remark, req.NextTaskDate)
	if err != nil {
		return serviceError(c, err)
	}
	prometheus.FollowUpCounter.WithLabelValues("lead").Inc()
	return c.JSON(http.StatusOK, lead)
}

// AssignLead points a lead at a user-role account.
func AssignLead(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}
	id, err := uintParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lead id"})
	}

	var req struct {
		UserID uint `json:"user_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	lead, err := leads.Assign(a, id, req.UserID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, lead)
}

// UnassignLead clears a lead's assignment.
func UnassignLead(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}
	id, err := uintParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lead id"})
	}
	lead, err := leads.Unassign(a, id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, lead)
}

func uintParam(c echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	return uint(v), err
}

func optionalUintParam(c echo.Context, name string) (*uint, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, err
	}
	id := uint(v)
	return &id, nil
}

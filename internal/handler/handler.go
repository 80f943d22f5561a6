package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"salesreport-service/internal/middleware"
	"salesreport-service/internal/scope"
	"salesreport-service/internal/service"
	"salesreport-service/pkg/filestore"
	"salesreport-service/pkg/jwtutil"
)

var (
	directory *service.DirectoryService
	leads     *service.LeadService
	reports   *service.ReportService
	summaries *service.SummaryService
	files     *filestore.Store
	jwtUtil   *jwtutil.JWTUtil
)

// Init wires the handler package to its services. Called once from main.
func Init(db *gorm.DB, store *filestore.Store, jwt *jwtutil.JWTUtil, log *zap.Logger) {
	resolver := scope.NewResolver(db)
	directory = service.NewDirectoryService(db, log)
	leads = service.NewLeadService(db, resolver, log)
	reports = service.NewReportService(db, resolver, store, log)
	summaries = service.NewSummaryService(db)
	files = store
	jwtUtil = jwt
}

// serviceError maps a service failure kind onto an HTTP response.
func serviceError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch service.KindOf(err) {
	case service.KindUnauthenticated:
		status = http.StatusUnauthorized
	case service.KindForbidden:
		status = http.StatusForbidden
	case service.KindValidation:
		status = http.StatusBadRequest
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindConflict:
		status = http.StatusConflict
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

// actor pulls the authenticated identity out of the request context.
func actor(c echo.Context) (scope.Actor, bool) {
	return middleware.ActorFromContext(c)
}

func missingIdentity(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing identity"})
}

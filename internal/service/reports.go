package service

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"salesreport-service/internal/model"
	"salesreport-service/internal/scope"
)

const defaultReportPerPage = 10

// FileStore is the blob-store contract the registry needs: deleting stale
// visiting-card files. Deletion is best-effort; failures are logged here
// and never surfaced.
type FileStore interface {
	Delete(ref string) error
}

// ReportService owns sales-visit reports, their meetings and per-meeting
// follow-up history.
type ReportService struct {
	db       *gorm.DB
	resolver *scope.Resolver
	files    FileStore
	log      *zap.Logger
	now      func() time.Time
}

func NewReportService(db *gorm.DB, resolver *scope.Resolver, files FileStore, log *zap.Logger) *ReportService {
	return &ReportService{db: db, resolver: resolver, files: files, log: log, now: time.Now}
}

// MeetingInput is one submitted field visit.
type MeetingInput struct {
	FirmName      string `json:"firm_name"`
	OwnerName     string `json:"owner_name"`
	ContactNumber string `json:"contact_number"`
	Address       string `json:"address"`
	Status        string `json:"status"`
}

// Create stores a new report for the actor, dated today at midnight. The
// uploaded card reference, when present, is attached to every meeting in
// the batch. Validation is fail-fast: the first invalid meeting rejects
// the whole call and nothing is persisted.
func (s *ReportService) Create(actor scope.Actor, meetings []MeetingInput, cardRef string) (*model.SalesReport, error) {
	built, err := buildMeetings(meetings, cardRef)
	if err != nil {
		return nil, err
	}
	report := &model.SalesReport{
		UserID:   actor.ID,
		Date:     startOfDay(s.now()),
		Meetings: built,
	}
	if err := s.db.Create(report).Error; err != nil {
		return nil, Internal("failed to create report: %v", err)
	}
	return report, nil
}

func buildMeetings(meetings []MeetingInput, cardRef string) ([]model.Meeting, error) {
	if len(meetings) == 0 {
		return nil, Validation("a report requires at least one meeting")
	}
	built := make([]model.Meeting, 0, len(meetings))
	for _, m := range meetings {
		if m.FirmName == "" {
			return nil, Validation("meeting firm name is required")
		}
		if !model.IsValidMeetingStatus(m.Status) {
			return nil, Validation("invalid meeting status %q for firm %s", m.Status, m.FirmName)
		}
		built = append(built, model.Meeting{
			ID:            uuid.New().String(),
			FirmName:      m.FirmName,
			OwnerName:     m.OwnerName,
			ContactNumber: m.ContactNumber,
			Address:       m.Address,
			Status:        m.Status,
			CardFile:      cardRef,
			FollowUps:     []model.FollowUp{},
		})
	}
	return built, nil
}

// GetByID returns a report readable by its owner, the owner's direct
// manager, or an admin.
func (s *ReportService) GetByID(actor scope.Actor, id uint) (*model.SalesReport, error) {
	return s.loadAuthorized(actor, id)
}

// Edit replaces a report's meetings wholesale. A new card reference is
// attached to every meeting and the previous files are scheduled for
// best-effort deletion; without one the existing reference carries over.
func (s *ReportService) Edit(actor scope.Actor, id uint, meetings []MeetingInput, newCardRef string) (*model.SalesReport, error) {
	report, err := s.loadAuthorized(actor, id)
	if err != nil {
		return nil, err
	}

	cardRef := newCardRef
	oldRefs := cardRefs(report.Meetings)
	if cardRef == "" && len(oldRefs) > 0 {
		cardRef = oldRefs[0]
	}

	built, err := buildMeetings(meetings, cardRef)
	if err != nil {
		return nil, err
	}
	report.Meetings = built
	if err := s.db.Save(report).Error; err != nil {
		return nil, Internal("failed to update report: %v", err)
	}

	if newCardRef != "" {
		s.deleteFiles(oldRefs)
	}
	return report, nil
}

// Delete removes a report and schedules deletion of every meeting's card
// file. File-cleanup failures never block the record deletion.
func (s *ReportService) Delete(actor scope.Actor, id uint) error {
	report, err := s.loadAuthorized(actor, id)
	if err != nil {
		return err
	}
	refs := cardRefs(report.Meetings)
	if err := s.db.Delete(report).Error; err != nil {
		return Internal("failed to delete report: %v", err)
	}
	s.deleteFiles(refs)
	return nil
}

// AddFollowUp appends a follow-up to one meeting. Prior entries are never
// mutated or removed.
func (s *ReportService) AddFollowUp(actor scope.Actor, reportID uint, meetingID string, date time.Time, remark string) (*model.SalesReport, error) {
	if remark == "" {
		return nil, Validation("remark is required")
	}
	report, err := s.loadAuthorized(actor, reportID)
	if err != nil {
		return nil, err
	}
	found := false
	for i := range report.Meetings {
		if report.Meetings[i].ID == meetingID {
			report.Meetings[i].FollowUps = append(report.Meetings[i].FollowUps, model.FollowUp{
				Date:      date,
				Remark:    remark,
				CreatedAt: s.now(),
			})
			found = true
			break
		}
	}
	if !found {
		return nil, NotFound("meeting %s not found in report %d", meetingID, reportID)
	}
	if err := s.db.Save(report).Error; err != nil {
		return nil, Internal("failed to add follow-up: %v", err)
	}
	return report, nil
}

// ReportFilters compose a scoped report listing.
type ReportFilters struct {
	From      *time.Time
	To        *time.Time
	UserID    *uint
	ManagerID *uint
	Page      int
	PerPage   int
}

// ReportPage is one page of a scoped report listing plus the window counts
// computed under the same composed filter.
type ReportPage struct {
	Reports    []model.SalesReport `json:"reports"`
	Total      int64               `json:"total"`
	Page       int                 `json:"page"`
	PerPage    int                 `json:"per_page"`
	MonthCount int64               `json:"month_count"`
	TodayCount int64               `json:"today_count"`
}

// List composes date range, manager expansion and user filter on top of
// the actor's role scope.
func (s *ReportService) List(actor scope.Actor, f ReportFilters) (*ReportPage, error) {
	sc, err := s.composedScope(actor, f)
	if err != nil {
		return nil, err
	}

	q := sc.Apply(s.db.Model(&model.SalesReport{}), "user_id")
	if f.From != nil {
		q = q.Where("date >= ?", startOfDay(*f.From))
	}
	if f.To != nil {
		q = q.Where("date <= ?", endOfDay(*f.To))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, Internal("failed to count reports: %v", err)
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	perPage := f.PerPage
	if perPage < 1 {
		perPage = defaultReportPerPage
	}
	var reports []model.SalesReport
	if err := q.Order("date DESC, id DESC").Offset((page - 1) * perPage).Limit(perPage).Find(&reports).Error; err != nil {
		return nil, Internal("failed to list reports: %v", err)
	}

	now := s.now()
	monthStart, monthEnd := monthRange(now)
	window := func(from, to time.Time) (int64, error) {
		var n int64
		err := sc.Apply(s.db.Model(&model.SalesReport{}), "user_id").
			Where("date BETWEEN ? AND ?", from, to).
			Count(&n).Error
		return n, err
	}
	monthCount, err := window(monthStart, monthEnd)
	if err != nil {
		return nil, Internal("failed to count month reports: %v", err)
	}
	todayCount, err := window(startOfDay(now), endOfDay(now))
	if err != nil {
		return nil, Internal("failed to count today reports: %v", err)
	}

	return &ReportPage{
		Reports:    reports,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		MonthCount: monthCount,
		TodayCount: todayCount,
	}, nil
}

// ExportRow is one flattened meeting for the tabular export.
type ExportRow struct {
	Date     string
	UserName string
	Firm     string
	Owner    string
	Contact  string
	Status   string
	Remarks  string
}

// ExportColumns is the header row of the report export.
var ExportColumns = []string{"Date", "User", "Firm", "Owner", "Contact", "Status", "Last Follow Up"}

// ExportRows flattens the composed listing (unpaginated) into spreadsheet
// rows, one per meeting.
func (s *ReportService) ExportRows(actor scope.Actor, f ReportFilters) ([][]string, error) {
	sc, err := s.composedScope(actor, f)
	if err != nil {
		return nil, err
	}
	q := sc.Apply(s.db.Model(&model.SalesReport{}), "user_id")
	if f.From != nil {
		q = q.Where("date >= ?", startOfDay(*f.From))
	}
	if f.To != nil {
		q = q.Where("date <= ?", endOfDay(*f.To))
	}
	var reports []model.SalesReport
	if err := q.Order("date, id").Find(&reports).Error; err != nil {
		return nil, Internal("failed to export reports: %v", err)
	}

	names, err := s.userNames(reports)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		for _, m := range r.Meetings {
			last := ""
			if n := len(m.FollowUps); n > 0 {
				last = m.FollowUps[n-1].Remark
			}
			rows = append(rows, []string{
				r.Date.Format("2006-01-02"),
				names[r.UserID],
				m.FirmName,
				m.OwnerName,
				m.ContactNumber,
				m.Status,
				last,
			})
		}
	}
	return rows, nil
}

func (s *ReportService) composedScope(actor scope.Actor, f ReportFilters) (scope.Scope, error) {
	sc, err := s.resolver.ForActor(actor)
	if err != nil {
		return scope.Scope{}, Internal("failed to resolve scope: %v", err)
	}
	sc, err = s.resolver.Narrow(sc, f.UserID, f.ManagerID)
	if err != nil {
		return scope.Scope{}, translateScopeErr(err)
	}
	return sc, nil
}

func (s *ReportService) userNames(reports []model.SalesReport) (map[uint]string, error) {
	ids := make([]uint, 0, len(reports))
	seen := map[uint]bool{}
	for _, r := range reports {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			ids = append(ids, r.UserID)
		}
	}
	names := map[uint]string{}
	if len(ids) == 0 {
		return names, nil
	}
	var users []model.User
	if err := s.db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, Internal("failed to load report owners: %v", err)
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

// loadAuthorized loads a report and applies the three-way ownership check:
// owner, owner's direct manager, or admin.
func (s *ReportService) loadAuthorized(actor scope.Actor, id uint) (*model.SalesReport, error) {
	var report model.SalesReport
	if err := s.db.First(&report, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("report %d not found", id)
		}
		return nil, Internal("failed to load report: %v", err)
	}
	if actor.Role == model.RoleAdmin || report.UserID == actor.ID {
		return &report, nil
	}
	if actor.Role == model.RoleManager {
		var owner model.User
		if err := s.db.First(&owner, report.UserID).Error; err == nil {
			if owner.ManagerID != nil && *owner.ManagerID == actor.ID {
				return &report, nil
			}
		}
	}
	return nil, Forbidden("report %d is outside your scope", id)
}

func cardRefs(meetings []model.Meeting) []string {
	var refs []string
	seen := map[string]bool{}
	for _, m := range meetings {
		if m.CardFile != "" && !seen[m.CardFile] {
			seen[m.CardFile] = true
			refs = append(refs, m.CardFile)
		}
	}
	return refs
}

func (s *ReportService) deleteFiles(refs []string) {
	for _, ref := range refs {
		if err := s.files.Delete(ref); err != nil {
			s.log.Warn("Failed to delete card file", zap.String("ref", ref), zap.Error(err))
		}
	}
}

package service

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"salesreport-service/internal/model"
	"salesreport-service/internal/scope"
)

// Date-filter presets over a lead's next task date.
const (
	DateFilterToday     = "today"
	DateFilterOverdue   = "overdue"
	DateFilterThisWeek  = "thisWeek"
	DateFilterThisMonth = "thisMonth"
)

const (
	leadSearchLimit    = 20
	defaultLeadPerPage = 50
)

// LeadService owns lead records, their status and assignment.
type LeadService struct {
	db       *gorm.DB
	resolver *scope.Resolver
	log      *zap.Logger
	now      func() time.Time
}

func NewLeadService(db *gorm.DB, resolver *scope.Resolver, log *zap.Logger) *LeadService {
	return &LeadService{db: db, resolver: resolver, log: log, now: time.Now}
}

// LeadInput carries the fields of a single-entry or imported lead.
type LeadInput struct {
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	Address      string     `json:"address"`
	Source       string     `json:"source"`
	Status       string     `json:"status"`
	HotLead      bool       `json:"hot_lead"`
	AssignedTo   *uint      `json:"assigned_to,omitempty"`
	NextTaskDate *time.Time `json:"next_task_date,omitempty"`
	Remark       string     `json:"remark"`
	LeadDated    *time.Time `json:"lead_dated,omitempty"`
}

// CreateOne creates a single lead. An initial remark becomes the first
// Interaction, dated by LeadDated when present.
func (s *LeadService) CreateOne(actor scope.Actor, in LeadInput) (*model.Lead, error) {
	lead, err := s.buildLead(actor, in)
	if err != nil {
		return nil, err
	}
	if err := s.db.Create(lead).Error; err != nil {
		return nil, Internal("failed to create lead: %v", err)
	}
	return lead, nil
}

// ImportRow is one spreadsheet row keyed by its column headers.
type ImportRow map[string]string

// RowError records a single failed import row; the batch continues past it.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Imported int        `json:"imported"`
	Failed   []RowError `json:"failed,omitempty"`
}

// BulkImport maps spreadsheet rows onto leads. Row-level failures are
// collected, never abort the batch, and leave earlier rows persisted.
func (s *LeadService) BulkImport(actor scope.Actor, rows []ImportRow) (*ImportResult, error) {
	result := &ImportResult{}
	for i, row := range rows {
		in, err := inputFromRow(row)
		if err == nil {
			_, err = s.CreateOne(actor, in)
		}
		if err != nil {
			result.Failed = append(result.Failed, RowError{Row: i + 1, Reason: err.Error()})
			continue
		}
		result.Imported++
	}
	s.log.Info("Lead import finished",
		zap.Int("imported", result.Imported),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

func inputFromRow(row ImportRow) (LeadInput, error) {
	in := LeadInput{
		Name:    row["Name"],
		Email:   row["Email"],
		Phone:   row["Phone"],
		Address: row["Address"],
		Source:  row["Source"],
		Status:  row["Status"],
		Remark:  row["Notes"],
	}
	if row["Hot Lead"] != "" {
		in.HotLead = strings.EqualFold(row["Hot Lead"], "yes") || strings.EqualFold(row["Hot Lead"], "true")
	}
	if v := row["Lead Dated"]; v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			return in, Validation("invalid Lead Dated value %q", v)
		}
		in.LeadDated = &d
	}
	if v := row["Next Task Date"]; v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			return in, Validation("invalid Next Task Date value %q", v)
		}
		in.NextTaskDate = &d
	}
	return in, nil
}

func (s *LeadService) buildLead(actor scope.Actor, in LeadInput) (*model.Lead, error) {
	if in.Name == "" {
		return nil, Validation("lead name is required")
	}
	status := in.Status
	if status == "" {
		// Rows that already carry history default to New, bare contact
		// rows stay Unassigned.
		if in.Remark != "" || in.LeadDated != nil {
			status = model.LeadStatusNew
		} else {
			status = model.LeadStatusUnassigned
		}
	} else if !model.IsValidLeadStatus(status) {
		return nil, Validation("invalid lead status %q", status)
	}
	if in.AssignedTo != nil {
		if err := s.requireAssignableUser(*in.AssignedTo); err != nil {
			return nil, err
		}
	}

	lead := &model.Lead{
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		Address:      in.Address,
		Source:       in.Source,
		Status:       status,
		HotLead:      in.HotLead,
		AssignedTo:   in.AssignedTo,
		CreatedBy:    actor.ID,
		NextTaskDate: in.NextTaskDate,
	}
	if in.Remark != "" {
		date := s.now()
		if in.LeadDated != nil {
			date = *in.LeadDated
		}
		lead.Interactions = append(lead.Interactions, model.Interaction{Date: date, Remark: in.Remark})
		lead.LastRemark = in.Remark
	}
	return lead, nil
}

// LeadPatch is a partial update; nil fields are left untouched.
type LeadPatch struct {
	Name         *string    `json:"name,omitempty"`
	Email        *string    `json:"email,omitempty"`
	Phone        *string    `json:"phone,omitempty"`
	Address      *string    `json:"address,omitempty"`
	Source       *string    `json:"source,omitempty"`
	Status       *string    `json:"status,omitempty"`
	HotLead      *bool      `json:"hot_lead,omitempty"`
	NextTaskDate *time.Time `json:"next_task_date,omitempty"`
}

// Edit applies a partial update to a lead inside the actor's scope.
func (s *LeadService) Edit(actor scope.Actor, id uint, patch LeadPatch) (*model.Lead, error) {
	lead, err := s.loadScoped(actor, id)
	if err != nil {
		return nil, err
	}
	if patch.Status != nil {
		if !model.IsValidLeadStatus(*patch.Status) {
			return nil, Validation("invalid lead status %q", *patch.Status)
		}
		lead.Status = *patch.Status
	}
	if patch.Name != nil {
		lead.Name = *patch.Name
	}
	if patch.Email != nil {
		lead.Email = *patch.Email
	}
	if patch.Phone != nil {
		lead.Phone = *patch.Phone
	}
	if patch.Address != nil {
		lead.Address = *patch.Address
	}
	if patch.Source != nil {
		lead.Source = *patch.Source
	}
	if patch.HotLead != nil {
		lead.HotLead = *patch.HotLead
	}
	if patch.NextTaskDate != nil {
		lead.NextTaskDate = patch.NextTaskDate
	}
	if err := s.db.Save(lead).Error; err != nil {
		return nil, Internal("failed to update lead: %v", err)
	}
	return lead, nil
}

// Delete removes a lead inside the actor's scope. Leads own no files, so
// there is nothing to clean up.
func (s *LeadService) Delete(actor scope.Actor, id uint) error {
	lead, err := s.loadScoped(actor, id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(lead).Error; err != nil {
		return Internal("failed to delete lead: %v", err)
	}
	return nil
}

// AddFollowUp appends an Interaction and overwrites the denormalized
// last-touch fields. History is never rewritten.
func (s *LeadService) AddFollowUp(actor scope.Actor, id uint, remark string, nextTaskDate time.Time) (*model.Lead, error) {
	if remark == "" || nextTaskDate.IsZero() {
		return nil, Validation("remark and next_task_date are required")
	}
	lead, err := s.loadScoped(actor, id)
	if err != nil {
		return nil, err
	}
	lead.Interactions = append(lead.Interactions, model.Interaction{Date: s.now(), Remark: remark})
	lead.LastRemark = remark
	next := nextTaskDate
	lead.NextTaskDate = &next
	if err := s.db.Save(lead).Error; err != nil {
		return nil, Internal("failed to add follow-up: %v", err)
	}
	return lead, nil
}

// Assign points a lead at a user-role account inside the actor's scope.
func (s *LeadService) Assign(actor scope.Actor, leadID, userID uint) (*model.Lead, error) {
	lead, err := s.loadScoped(actor, leadID)
	if err != nil {
		return nil, err
	}
	var target model.User
	if err := s.db.First(&target, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("user %d not found", userID)
		}
		return nil, Internal("failed to load user: %v", err)
	}
	if target.Role != model.RoleUser {
		return nil, Validation("leads can only be assigned to user-role accounts")
	}
	sc, err := s.resolver.ForActor(actor)
	if err != nil {
		return nil, Internal("failed to resolve scope: %v", err)
	}
	if !sc.Contains(userID) {
		return nil, Forbidden("user %d is outside your scope", userID)
	}
	lead.AssignedTo = &target.ID
	if err := s.db.Save(lead).Error; err != nil {
		return nil, Internal("failed to assign lead: %v", err)
	}
	return lead, nil
}

// Unassign clears a lead's assignment unconditionally.
func (s *LeadService) Unassign(actor scope.Actor, leadID uint) (*model.Lead, error) {
	lead, err := s.loadScoped(actor, leadID)
	if err != nil {
		return nil, err
	}
	lead.AssignedTo = nil
	if err := s.db.Save(lead).Error; err != nil {
		return nil, Internal("failed to unassign lead: %v", err)
	}
	return lead, nil
}

// Search matches name, email or phone case-insensitively, inside the
// actor's scope, capped at 20 results.
func (s *LeadService) Search(actor scope.Actor, text string) ([]model.Lead, error) {
	if strings.TrimSpace(text) == "" {
		return nil, Validation("search text is required")
	}
	sc, err := s.resolver.ForActor(actor)
	if err != nil {
		return nil, Internal("failed to resolve scope: %v", err)
	}
	var leads []model.Lead
	q := sc.Apply(s.db.Model(&model.Lead{}), "assigned_to")
	if err := applyTextFilter(q, text).Limit(leadSearchLimit).Find(&leads).Error; err != nil {
		return nil, Internal("failed to search leads: %v", err)
	}
	return leads, nil
}

// LeadFilters compose a scoped listing. DateFilter is one of the presets
// and mutually exclusive by construction.
type LeadFilters struct {
	Text       string
	Status     string
	HotLead    *bool
	DateFilter string
	UserID     *uint
	ManagerID  *uint
	Page       int
	PerPage    int
}

// LeadCounts are derived from the filtered set before pagination.
type LeadCounts struct {
	Today    int64            `json:"today"`
	Overdue  int64            `json:"overdue"`
	ThisWeek int64            `json:"this_week"`
	Pravasa  int64            `json:"pravasa_leads"`
	Hot      int64            `json:"hot_leads"`
	ByStatus map[string]int64 `json:"by_status"`
}

// LeadPage is one page of a scoped, filtered lead listing.
type LeadPage struct {
	Leads   []model.Lead `json:"leads"`
	Total   int64        `json:"total"`
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
	Counts  LeadCounts   `json:"counts"`
}

// List applies the scope, then text/status/hot filters, then an optional
// date preset against the next task date. The derived counts and status
// breakdown come from the pre-pagination set.
func (s *LeadService) List(actor scope.Actor, f LeadFilters) (*LeadPage, error) {
	sc, err := s.resolver.ForActor(actor)
	if err != nil {
		return nil, Internal("failed to resolve scope: %v", err)
	}
	sc, err = s.resolver.Narrow(sc, f.UserID, f.ManagerID)
	if err != nil {
		return nil, translateScopeErr(err)
	}

	base := func() *gorm.DB {
		q := sc.Apply(s.db.Model(&model.Lead{}), "assigned_to")
		if f.Text != "" {
			q = applyTextFilter(q, f.Text)
		}
		if f.Status != "" {
			q = q.Where("status = ?", f.Status)
		}
		if f.HotLead != nil {
			q = q.Where("hot_lead = ?", *f.HotLead)
		}
		return q
	}

	now := s.now()
	q := base()
	if f.DateFilter != "" {
		q, err = s.applyDateFilter(q, f.DateFilter, now)
		if err != nil {
			return nil, err
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, Internal("failed to count leads: %v", err)
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	perPage := f.PerPage
	if perPage < 1 {
		perPage = defaultLeadPerPage
	}
	var leads []model.Lead
	if err := q.Order("id DESC").Offset((page - 1) * perPage).Limit(perPage).Find(&leads).Error; err != nil {
		return nil, Internal("failed to list leads: %v", err)
	}

	counts, err := s.deriveCounts(base, now)
	if err != nil {
		return nil, err
	}

	return &LeadPage{Leads: leads, Total: total, Page: page, PerPage: perPage, Counts: *counts}, nil
}

// applyDateFilter narrows q to one next-task-date window. Every preset
// excludes leads already marked Not Interested.
func (s *LeadService) applyDateFilter(q *gorm.DB, preset string, now time.Time) (*gorm.DB, error) {
	q = q.Where("status <> ?", model.LeadStatusNotInterested)
	switch preset {
	case DateFilterToday:
		return q.Where("next_task_date BETWEEN ? AND ?", startOfDay(now), endOfDay(now)), nil
	case DateFilterOverdue:
		return q.Where("next_task_date < ?", startOfDay(now)), nil
	case DateFilterThisWeek:
		start, end := weekRange(now)
		return q.Where("next_task_date BETWEEN ? AND ?", start, end), nil
	case DateFilterThisMonth:
		start, end := monthRange(now)
		return q.Where("next_task_date BETWEEN ? AND ?", start, end), nil
	default:
		return nil, Validation("invalid date filter %q", preset)
	}
}

// deriveCounts computes the date buckets, pravasa and hot counts plus the
// full status breakdown over the filtered set, ignoring the page window.
func (s *LeadService) deriveCounts(base func() *gorm.DB, now time.Time) (*LeadCounts, error) {
	counts := LeadCounts{ByStatus: map[string]int64{}}

	for _, preset := range []struct {
		name string
		dst  *int64
	}{
		{DateFilterToday, &counts.Today},
		{DateFilterOverdue, &counts.Overdue},
		{DateFilterThisWeek, &counts.ThisWeek},
	} {
		q, err := s.applyDateFilter(base(), preset.name, now)
		if err != nil {
			return nil, err
		}
		if err := q.Count(preset.dst).Error; err != nil {
			return nil, Internal("failed to count %s leads: %v", preset.name, err)
		}
	}

	if err := base().Where("status = ?", model.LeadStatusPravasa).Count(&counts.Pravasa).Error; err != nil {
		return nil, Internal("failed to count pravasa leads: %v", err)
	}
	if err := base().Where("hot_lead = ?", true).Count(&counts.Hot).Error; err != nil {
		return nil, Internal("failed to count hot leads: %v", err)
	}

	rows := []struct {
		Status string
		N      int64
	}{}
	if err := base().Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, Internal("failed to count by status: %v", err)
	}
	for _, r := range rows {
		counts.ByStatus[r.Status] = r.N
	}
	return &counts, nil
}

func applyTextFilter(q *gorm.DB, text string) *gorm.DB {
	pattern := "%" + strings.ToLower(text) + "%"
	return q.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(phone) LIKE ?",
		pattern, pattern, pattern)
}

// loadScoped loads a lead and checks the actor may mutate it: admins
// always, others only when the assignee falls inside their scope.
// Unassigned leads are admin-only.
func (s *LeadService) loadScoped(actor scope.Actor, id uint) (*model.Lead, error) {
	var lead model.Lead
	if err := s.db.First(&lead, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("lead %d not found", id)
		}
		return nil, Internal("failed to load lead: %v", err)
	}
	if actor.Role == model.RoleAdmin {
		return &lead, nil
	}
	sc, err := s.resolver.ForActor(actor)
	if err != nil {
		return nil, Internal("failed to resolve scope: %v", err)
	}
	if lead.AssignedTo == nil || !sc.Contains(*lead.AssignedTo) {
		return nil, Forbidden("lead %d is outside your scope", id)
	}
	return &lead, nil
}

func translateScopeErr(err error) error {
	switch {
	case errors.Is(err, scope.ErrOutOfScope):
		return Forbidden("%v", err)
	case errors.Is(err, scope.ErrManagerNotFound):
		return NotFound("%v", err)
	default:
		return Internal("failed to resolve scope: %v", err)
	}
}

func (s *LeadService) requireAssignableUser(id uint) error {
	var user model.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Validation("assignee %d not found", id)
		}
		return Internal("failed to load assignee: %v", err)
	}
	if user.Role != model.RoleUser {
		return Validation("assignee %d is not a user-role account", id)
	}
	return nil
}

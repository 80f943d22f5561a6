package service

import (
	"sort"
	"strconv"
	"time"

	"gorm.io/gorm"

	"salesreport-service/internal/model"
)

// SummaryService computes per-user report counts over fixed day windows,
// grouped by manager. The JSON view and the tabular export both derive
// from the same aggregation so the figures cannot diverge.
type SummaryService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSummaryService(db *gorm.DB) *SummaryService {
	return &SummaryService{db: db, now: time.Now}
}

// UserSummary is one user's report counts.
type UserSummary struct {
	UserID    uint   `json:"user_id"`
	Name      string `json:"name"`
	Total     int64  `json:"total"`
	Today     int64  `json:"today"`
	Yesterday int64  `json:"yesterday"`
}

// ManagerGroup holds the summaries of one manager's users. A nil ManagerID
// is the bucket for orphaned users with no manager.
type ManagerGroup struct {
	ManagerID   *uint         `json:"manager_id"`
	ManagerName string        `json:"manager_name"`
	Users       []UserSummary `json:"users"`
}

// Aggregate computes total/today/yesterday report counts for every
// user-role account and groups them by manager, orphans last.
func (s *SummaryService) Aggregate() ([]ManagerGroup, error) {
	var users []model.User
	if err := s.db.Where("role = ?", model.RoleUser).Order("name").Find(&users).Error; err != nil {
		return nil, Internal("failed to load users: %v", err)
	}

	now := s.now()
	todayStart := startOfDay(now)
	yesterdayStart := todayStart.AddDate(0, 0, -1)

	totals, err := s.countsSince(time.Time{})
	if err != nil {
		return nil, err
	}
	sinceYesterday, err := s.countsSince(yesterdayStart)
	if err != nil {
		return nil, err
	}
	sinceToday, err := s.countsSince(todayStart)
	if err != nil {
		return nil, err
	}

	grouped := map[uint][]UserSummary{}
	var orphaned []UserSummary
	for _, u := range users {
		summary := UserSummary{
			UserID:    u.ID,
			Name:      u.Name,
			Total:     totals[u.ID],
			Today:     sinceToday[u.ID],
			Yesterday: sinceYesterday[u.ID] - sinceToday[u.ID],
		}
		if u.ManagerID == nil {
			orphaned = append(orphaned, summary)
		} else {
			grouped[*u.ManagerID] = append(grouped[*u.ManagerID], summary)
		}
	}

	var managers []model.User
	if err := s.db.Where("role = ?", model.RoleManager).Order("name").Find(&managers).Error; err != nil {
		return nil, Internal("failed to load managers: %v", err)
	}

	groups := make([]ManagerGroup, 0, len(managers)+1)
	for _, m := range managers {
		id := m.ID
		groups = append(groups, ManagerGroup{
			ManagerID:   &id,
			ManagerName: m.Name,
			Users:       grouped[m.ID],
		})
		delete(grouped, m.ID)
	}
	// Users pointing at a vanished or demoted manager land with the orphans.
	for _, left := range grouped {
		orphaned = append(orphaned, left...)
	}
	sort.Slice(orphaned, func(i, j int) bool { return orphaned[i].Name < orphaned[j].Name })
	if len(orphaned) > 0 {
		groups = append(groups, ManagerGroup{ManagerName: "No Manager", Users: orphaned})
	}
	return groups, nil
}

// SummaryColumns is the header row of the summary export.
var SummaryColumns = []string{"Manager", "User", "Total Reports", "Today", "Yesterday"}

// ExportRows flattens the aggregation into spreadsheet rows.
func (s *SummaryService) ExportRows() ([][]string, error) {
	groups, err := s.Aggregate()
	if err != nil {
		return nil, err
	}
	var rows [][]string
	for _, g := range groups {
		for _, u := range g.Users {
			rows = append(rows, []string{
				g.ManagerName,
				u.Name,
				strconv.FormatInt(u.Total, 10),
				strconv.FormatInt(u.Today, 10),
				strconv.FormatInt(u.Yesterday, 10),
			})
		}
	}
	return rows, nil
}

func (s *SummaryService) countsSince(since time.Time) (map[uint]int64, error) {
	rows := []struct {
		UserID uint
		N      int64
	}{}
	q := s.db.Model(&model.SalesReport{}).Select("user_id, COUNT(*) AS n").Group("user_id")
	if !since.IsZero() {
		q = q.Where("date >= ?", since)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, Internal("failed to count reports: %v", err)
	}
	out := make(map[uint]int64, len(rows))
	for _, r := range rows {
		out[r.UserID] = r.N
	}
	return out, nil
}

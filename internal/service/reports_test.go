package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salesreport-service/internal/model"
	"salesreport-service/internal/scope"
)

// fakeStore records deletions so card-file cleanup can be asserted.
type fakeStore struct {
	deleted []string
}

func (f *fakeStore) Delete(ref string) error {
	f.deleted = append(f.deleted, ref)
	return nil
}

func newReports(t *testing.T) (*ReportService, *fakeStore) {
	t.Helper()
	db := openTestDB(t)
	store := &fakeStore{}
	svc := NewReportService(db, scope.NewResolver(db), store, zap.NewNop())
	return svc, store
}

func meeting(firm, status string) MeetingInput {
	return MeetingInput{FirmName: firm, OwnerName: "owner", ContactNumber: "555", Status: status}
}

func TestReportService_Create(t *testing.T) {
	svc, _ := newReports(t)
	mgr := seedUser(t, svc.db, "mgr", model.RoleManager, nil)
	u1 := seedUser(t, svc.db, "u1", model.RoleUser, &mgr.ID)

	now := time.Date(2024, 5, 15, 14, 30, 0, 0, time.Local)
	svc.now = fixedClock(now)

	report, err := svc.Create(asActor(u1), []MeetingInput{
		meeting("Acme", model.MeetingStatusInterested),
		meeting("Globex", model.MeetingStatusNotInterested),
	}, "card-1.jpg")
	require.NoError(t, err)
	assert.Equal(t, u1.ID, report.UserID)
	assert.True(t, report.Date.Equal(time.Date(2024, 5, 15, 0, 0, 0, 0, time.Local)))
	require.Len(t, report.Meetings, 2)
	for _, m := range report.Meetings {
		assert.NotEmpty(t, m.ID)
		assert.Equal(t, "card-1.jpg", m.CardFile)
		assert.NotNil(t, m.FollowUps)
		assert.Empty(t, m.FollowUps)
	}
	assert.NotEqual(t, report.Meetings[0].ID, report.Meetings[1].ID)
}

func TestReportService_Create_FailFast(t *testing.T) {
	svc, _ := newReports(t)
	mgr := seedUser(t, svc.db, "mgr", model.RoleManager, nil)
	u1 := seedUser(t, svc.db, "u1", model.RoleUser, &mgr.ID)

	_, err := svc.Create(asActor(u1), []MeetingInput{
		meeting("Acme", model.MeetingStatusInterested),
		meeting("Globex", "Maybe"),
	}, "")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	// Nothing from the batch is persisted.
	var count int64
	require.NoError(t, svc.db.Model(&model.SalesReport{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)

	_, err = svc.Create(asActor(u1), nil, "")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestReportService_ThreeWayOwnership(t *testing.T) {
	svc, _ := newReports(t)
	admin := seedUser(t, svc.db, "admin", model.RoleAdmin, nil)
	m1 := seedUser(t, svc.db, "m1", model.RoleManager, nil)
	m2 := seedUser(t, svc.db, "m2", model.RoleManager, nil)
	u1 := seedUser(t, svc.db, "u1", model.RoleUser, &m1.ID)
	u2 := seedUser(t, svc.db, "u2", model.RoleUser, &m1.ID)

	report, err := svc.Create(asActor(u1), []MeetingInput{meeting("Acme", model.MeetingStatusInterested)}, "")
	require.NoError(t, err)

	for _, a := range []scope.Actor{asActor(u1), asActor(m1), asActor(admin)} {
		got, err := svc.GetByID(a, report.ID)
		require.NoError(t, err)
		assert.Equal(t, report.ID, got.ID)
	}

	// A sibling user and an unrelated manager are both refused.
	for _, a := range []scope.Actor{asActor(u2), asActor(m2)} {
		_, err := svc.GetByID(a, report.ID)
		require.Error(t, err)
		assert.Equal(t, KindForbidden, KindOf(err))
	}

	_, err = svc.GetByID(asActor(admin), 9999)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestReportService_Edit_CardReplacement(t *testing.T) {
	svc, store := newReports(t)
	mgr := seedUser(t, svc.db, "mgr", model.RoleManager, nil)
	u1 := seedUser(t, svc.db, "u1", model.RoleUser, &mgr.ID)

	report, err := svc.Create(asActor(u1), []MeetingInput{meeting("Acme", model.MeetingStatusInterested)}, "old-card.jpg")
	require.NoError(t, err)

	// Without a new upload the old reference carries over.
	updated, err := svc.Edit(asActor(u1), report.ID, []MeetingInput{meeting("Acme Renamed", model.MeetingStatusInterested)}, "")
	require.NoError(t, err)
	assert.Equal(t, "old-card.jpg", updated.Meetings[0].CardFile)
	assert.Empty(t, store.deleted)

	// A new upload replaces it everywhere and retires the old file.
	updated, err = svc.Edit(asActor(u1), report.ID, []MeetingInput{
		meeting("Acme", model.MeetingStatusInterested),
		meeting("Globex", model.MeetingStatusNotInterested),
	}, "new-card.jpg")
	require.NoError(t, err)
	for _, m := range updated.Meetings {
		assert.Equal(t, "new-card.jpg", m.CardFile)
	}
	assert.Equal(t, []string{"old-card.jpg"}, store.deleted)
}

func TestReportService_Delete_CleansFiles(t *testing.T) {
	svc, store := newReports(t)
	mgr := seedUser(t, svc.db, "mgr", model.RoleManager, nil)
	u1 := seedUser(t, svc.db, "u1", model.RoleUser, &mgr.ID)

	report, err := svc.Create(asActor(u1), []MeetingInput{meeting("Acme", model.MeetingStatusInterested)}, "card.jpg")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(asActor(u1), report.ID))
	assert.Equal(t, []string{"card.jpg"}, store.deleted)

	_, err = svc.GetByID(asActor(u1), report.ID)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestReportService_AddFollowUp_AppendOnly(t *testing.T) {
	svc, _ := newReports(t)
	mgr := seedUser(t, svc.db, "mgr", model.RoleManager, nil)
	u1 := seedUser(t, svc.db, "u1", model.RoleUser, &mgr.ID)

	report, err := svc.Create(asActor(u1), []MeetingInput{meeting("Acme", model.MeetingStatusInterested)}, "")
	require.NoError(t, err)
	meetingID := report.Meetings[0].ID

	d1 := time.Date(2024, 5, 16, 0, 0, 0, 0, time.Local)
	updated, err := svc.AddFollowUp(asActor(mgr), report.ID, meetingID, d1, "first touch")
	require.NoError(t, err)
	require.Len(t, updated.Meetings[0].FollowUps, 1)

	d2 := d1.AddDate(0, 0, 1)
	updated, err = svc.AddFollowUp(asActor(u1), report.ID, meetingID, d2, "second touch")
	require.NoError(t, err)
	require.Len(t, updated.Meetings[0].FollowUps, 2)
	assert.Equal(t, "first touch", updated.Meetings[0].FollowUps[0].Remark)
	assert.Equal(t, "second touch", updated.Meetings[0].FollowUps[1].Remark)

	_, err = svc.AddFollowUp(asActor(u1), report.ID, "no-such-meeting", d2, "x")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = svc.AddFollowUp(asActor(u1), report.ID, meetingID, d2, "")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestReportService_List_ScopeAndWindows(t *testing.T) {
	svc, _ := newReports(t)
	m1 := seedUser(t, svc.db, "m1", model.RoleManager, nil)
	m2 := seedUser(t, svc.db, "m2", model.RoleManager, nil)
	u1 := seedUser(t, svc.db, "u1", model.RoleUser, &m1.ID)
	u2 := seedUser(t, svc.db, "u2", model.RoleUser, &m2.ID)

	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.Local)
	svc.now = fixedClock(now)

	mk := func(owner uint, date time.Time) {
		t.Helper()
		require.NoError(t, svc.db.Create(&model.SalesReport{
			UserID:   owner,
			Date:     startOfDay(date),
			Meetings: []model.Meeting{{ID: "m", FirmName: "Acme", Status: model.MeetingStatusInterested, FollowUps: []model.FollowUp{}}},
		}).Error)
	}
	mk(u1.ID, now)
	mk(u1.ID, now.AddDate(0, 0, -10))
	mk(u1.ID, now.AddDate(0, -2, 0))
	mk(u2.ID, now)

	// A manager sees only their team's reports.
	page, err := svc.List(asActor(m1), ReportFilters{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.EqualValues(t, 2, page.MonthCount)
	assert.EqualValues(t, 1, page.TodayCount)

	// Date range narrows the listing but not the window counts.
	from := now.AddDate(0, 0, -1)
	page, err = svc.List(asActor(m1), ReportFilters{From: &from})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	assert.EqualValues(t, 2, page.MonthCount)

	// Narrowing to a foreign team is refused.
	_, err = svc.List(asActor(m1), ReportFilters{ManagerID: &m2.ID})
	require.Error(t, err)
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestReportService_List_OrderAndPagination(t *testing.T) {
	svc, _ := newReports(t)
	mgr := seedUser(t, svc.db, "mgr", model.RoleManager, nil)
	u1 := seedUser(t, svc.db, "u1", model.RoleUser, &mgr.ID)

	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.Local)
	svc.now = fixedClock(now)
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.db.Create(&model.SalesReport{
			UserID:   u1.ID,
			Date:     startOfDay(now.AddDate(0, 0, -i)),
			Meetings: []model.Meeting{},
		}).Error)
	}

	page, err := svc.List(asActor(u1), ReportFilters{PerPage: 2})
	require.NoError(t, err)
	require.Len(t, page.Reports, 2)
	// Newest first.
	assert.True(t, page.Reports[0].Date.After(page.Reports[1].Date))

	page, err = svc.List(asActor(u1), ReportFilters{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, page.Reports, 1)
}

func TestReportService_ExportRows(t *testing.T) {
	svc, _ := newReports(t)
	mgr := seedUser(t, svc.db, "mgr", model.RoleManager, nil)
	u1 := seedUser(t, svc.db, "u1", model.RoleUser, &mgr.ID)

	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.Local)
	svc.now = fixedClock(now)

	report, err := svc.Create(asActor(u1), []MeetingInput{
		meeting("Acme", model.MeetingStatusInterested),
		meeting("Globex", model.MeetingStatusNotInterested),
	}, "")
	require.NoError(t, err)
	_, err = svc.AddFollowUp(asActor(u1), report.ID, report.Meetings[0].ID, now, "will sign monday")
	require.NoError(t, err)

	rows, err := svc.ExportRows(asActor(mgr), ReportFilters{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-05-15", rows[0][0])
	assert.Equal(t, "u1", rows[0][1])
	assert.Equal(t, "Acme", rows[0][2])
	assert.Equal(t, "will sign monday", rows[0][6])
	assert.Equal(t, "Globex", rows[1][2])
	assert.Equal(t, "", rows[1][6])
}

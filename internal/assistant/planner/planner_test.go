package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"university-assistant/internal/assistant/intent"
	"university-assistant/internal/common/logger"
	"university-assistant/internal/university"
)

type stubStore struct {
	departmentFilter   university.DepartmentFilter
	facultyFilter      university.FacultyFilter
	studentFilter      university.StudentFilter
	programFilter      university.ProgramFilter
	courseFilter       university.CourseFilter
	enrollmentFilter   university.EnrollmentFilter
	buildingFilter     university.BuildingFilter
	roomFilter         university.RoomFilter
	announcementFilter university.AnnouncementFilter

	records []university.Record
	counts  university.Record
	called  string
}

func (s *stubStore) Departments(_ context.Context, f university.DepartmentFilter) ([]university.Record, error) {
	s.called, s.departmentFilter = "departments", f
	return s.records, nil
}

func (s *stubStore) Faculty(_ context.Context, f university.FacultyFilter) ([]university.Record, error) {
	s.called, s.facultyFilter = "faculty", f
	return s.records, nil
}

func (s *stubStore) Students(_ context.Context, f university.StudentFilter) ([]university.Record, error) {
	s.called, s.studentFilter = "students", f
	return s.records, nil
}

func (s *stubStore) Programs(_ context.Context, f university.ProgramFilter) ([]university.Record, error) {
	s.called, s.programFilter = "programs", f
	return s.records, nil
}

func (s *stubStore) Courses(_ context.Context, f university.CourseFilter) ([]university.Record, error) {
	s.called, s.courseFilter = "courses", f
	return s.records, nil
}

func (s *stubStore) Enrollments(_ context.Context, f university.EnrollmentFilter) ([]university.Record, error) {
	s.called, s.enrollmentFilter = "enrollments", f
	return s.records, nil
}

func (s *stubStore) Buildings(_ context.Context, f university.BuildingFilter) ([]university.Record, error) {
	s.called, s.buildingFilter = "buildings", f
	return s.records, nil
}

func (s *stubStore) Rooms(_ context.Context, f university.RoomFilter) ([]university.Record, error) {
	s.called, s.roomFilter = "rooms", f
	return s.records, nil
}

func (s *stubStore) Announcements(_ context.Context, f university.AnnouncementFilter) ([]university.Record, error) {
	s.called, s.announcementFilter = "announcements", f
	return s.records, nil
}

func (s *stubStore) Counts(_ context.Context) (university.Record, error) {
	s.called = "counts"
	return s.counts, nil
}

func fetch(t *testing.T, store *stubStore, in intent.Intent, entities map[string]string) Result {
	t.Helper()
	p := New(store, logger.NewTestLogger(t))
	result, err := p.Fetch(context.Background(), intent.Result{Intent: in, Entities: entities})
	require.NoError(t, err)
	return result
}

func TestFetchDispatchesByIntent(t *testing.T) {
	tests := []struct {
		in   intent.Intent
		want string
	}{
		{intent.DepartmentInfo, "departments"},
		{intent.FacultyInfo, "faculty"},
		{intent.StudentInfo, "students"},
		{intent.ProgramInfo, "programs"},
		{intent.CourseInfo, "courses"},
		{intent.EnrollmentInfo, "enrollments"},
		{intent.BuildingInfo, "buildings"},
		{intent.RoomInfo, "rooms"},
		{intent.Announcement, "announcements"},
		{intent.Other, "counts"},
	}
	for _, tt := range tests {
		store := &stubStore{}
		fetch(t, store, tt.in, map[string]string{})
		assert.Equal(t, tt.want, store.called, string(tt.in))
	}
}

func TestStudentGPAIsParsed(t *testing.T) {
	store := &stubStore{}
	fetch(t, store, intent.StudentInfo, map[string]string{"gpa": "3.5"})

	require.NotNil(t, store.studentFilter.GPA)
	assert.InDelta(t, 3.5, *store.studentFilter.GPA, 0.0001)
}

func TestUnparseableNumericsAreSkipped(t *testing.T) {
	store := &stubStore{}
	fetch(t, store, intent.StudentInfo, map[string]string{"gpa": "high"})
	assert.Nil(t, store.studentFilter.GPA)

	store = &stubStore{}
	fetch(t, store, intent.RoomInfo, map[string]string{"capacity": "lots"})
	assert.Nil(t, store.roomFilter.Capacity)

	store = &stubStore{}
	fetch(t, store, intent.CourseInfo, map[string]string{"credits": "three"})
	assert.Nil(t, store.courseFilter.Credits)
}

func TestCoursesByDepartment(t *testing.T) {
	store := &stubStore{records: []university.Record{
		{"code": "CS101", "title": "Intro to Computing"},
	}}
	result := fetch(t, store, intent.CourseInfo, map[string]string{"department": "computer science"})

	assert.Equal(t, "computer science", store.courseFilter.Department)
	require.Len(t, result.Records, 1)
}

func TestCourseLevelKeepsDigits(t *testing.T) {
	store := &stubStore{}
	fetch(t, store, intent.CourseInfo, map[string]string{"course_level": "300 level"})

	require.NotNil(t, store.courseFilter.Level)
	assert.Equal(t, 300, *store.courseFilter.Level)
}

func TestUnrecognizedEntityKeysAreIgnored(t *testing.T) {
	store := &stubStore{}
	fetch(t, store, intent.DepartmentInfo, map[string]string{
		"department": "computer science",
		"mascot":     "trojan",
	})

	assert.Equal(t, "computer science", store.departmentFilter.Query)
	assert.Empty(t, store.departmentFilter.Head)
}

func TestAnnouncementUrgencyPresenceFlips(t *testing.T) {
	store := &stubStore{}
	fetch(t, store, intent.Announcement, map[string]string{"urgency": "anything"})
	assert.True(t, store.announcementFilter.UrgentOnly)

	store = &stubStore{}
	fetch(t, store, intent.Announcement, map[string]string{})
	assert.False(t, store.announcementFilter.UrgentOnly)
}

func TestEmptyReporting(t *testing.T) {
	assert.True(t, Result{}.Empty())
	assert.False(t, Result{Records: []university.Record{{"name": "CS"}}}.Empty())
	assert.False(t, Result{Aggregate: university.Record{"departments_count": 8}}.Empty())
}

func TestGeneralIntentReturnsAggregate(t *testing.T) {
	store := &stubStore{counts: university.Record{"departments_count": 8}}
	result := fetch(t, store, intent.Other, map[string]string{})

	assert.Empty(t, result.Records)
	assert.Equal(t, 8, result.Aggregate["departments_count"])
}

package planner

import (
	"context"
	"strconv"
	"strings"

	"university-assistant/internal/assistant/intent"
	"university-assistant/internal/common/logger"
	"university-assistant/internal/university"
)

// DataStore is the slice of the university store the planner dispatches to.
type DataStore interface {
	Departments(ctx context.Context, f university.DepartmentFilter) ([]university.Record, error)
	Faculty(ctx context.Context, f university.FacultyFilter) ([]university.Record, error)
	Students(ctx context.Context, f university.StudentFilter) ([]university.Record, error)
	Programs(ctx context.Context, f university.ProgramFilter) ([]university.Record, error)
	Courses(ctx context.Context, f university.CourseFilter) ([]university.Record, error)
	Enrollments(ctx context.Context, f university.EnrollmentFilter) ([]university.Record, error)
	Buildings(ctx context.Context, f university.BuildingFilter) ([]university.Record, error)
	Rooms(ctx context.Context, f university.RoomFilter) ([]university.Record, error)
	Announcements(ctx context.Context, f university.AnnouncementFilter) ([]university.Record, error)
	Counts(ctx context.Context) (university.Record, error)
}

// Result carries what a handler fetched. Exactly one of Records or
// Aggregate is populated; the aggregate form is used for general queries.
type Result struct {
	Records   []university.Record
	Aggregate university.Record
}

// Empty reports whether the fetch produced nothing the formatter could use.
// A populated aggregate always counts as a result.
func (r Result) Empty() bool {
	return len(r.Records) == 0 && len(r.Aggregate) == 0
}

type handlerFunc func(ctx context.Context, entities map[string]string) (Result, error)

// Planner maps a classified query onto store lookups. Entity values it
// cannot interpret are skipped, never errors; unrecognized entity keys are
// ignored.
type Planner struct {
	store    DataStore
	handlers map[intent.Intent]handlerFunc
	logger   logger.Logger
}

func New(store DataStore, log logger.Logger) *Planner {
	p := &Planner{
		store: store,
		logger: log.With(map[string]interface{}{
			"component": "planner",
		}),
	}
	p.handlers = map[intent.Intent]handlerFunc{
		intent.DepartmentInfo: p.departments,
		intent.FacultyInfo:    p.faculty,
		intent.StudentInfo:    p.students,
		intent.ProgramInfo:    p.programs,
		intent.CourseInfo:     p.courses,
		intent.EnrollmentInfo: p.enrollments,
		intent.BuildingInfo:   p.buildings,
		intent.RoomInfo:       p.rooms,
		intent.Announcement:   p.announcements,
	}
	return p
}

// Fetch runs the handler for the classified intent. Intents without a
// dedicated handler produce the aggregate university snapshot.
func (p *Planner) Fetch(ctx context.Context, res intent.Result) (Result, error) {
	if handler, ok := p.handlers[res.Intent]; ok {
		return handler(ctx, res.Entities)
	}
	return p.general(ctx)
}

func (p *Planner) departments(ctx context.Context, entities map[string]string) (Result, error) {
	records, err := p.store.Departments(ctx, university.DepartmentFilter{
		Query: entities["department"],
		Head:  entities["head_of_department"],
	})
	return Result{Records: records}, err
}

func (p *Planner) faculty(ctx context.Context, entities map[string]string) (Result, error) {
	records, err := p.store.Faculty(ctx, university.FacultyFilter{
		Name:       entities["faculty_name"],
		Department: entities["department"],
		Rank:       entities["rank"],
		Research:   entities["research"],
	})
	return Result{Records: records}, err
}

func (p *Planner) students(ctx context.Context, entities map[string]string) (Result, error) {
	records, err := p.store.Students(ctx, university.StudentFilter{
		Name:      entities["student_name"],
		StudentID: entities["student_id"],
		Status:    entities["status"],
		Program:   entities["program"],
		GPA:       floatEntity(entities, "gpa"),
	})
	return Result{Records: records}, err
}

func (p *Planner) programs(ctx context.Context, entities map[string]string) (Result, error) {
	records, err := p.store.Programs(ctx, university.ProgramFilter{
		Type:       entities["program_type"],
		Department: entities["department"],
		Degree:     entities["degree"],
		Credits:    intEntity(entities, "credits"),
	})
	return Result{Records: records}, err
}

func (p *Planner) courses(ctx context.Context, entities map[string]string) (Result, error) {
	records, err := p.store.Courses(ctx, university.CourseFilter{
		Level:      levelEntity(entities, "course_level"),
		Department: entities["department"],
		Code:       entities["course_code"],
		Title:      entities["course_title"],
		Credits:    intEntity(entities, "credits"),
	})
	return Result{Records: records}, err
}

func (p *Planner) enrollments(ctx context.Context, entities map[string]string) (Result, error) {
	records, err := p.store.Enrollments(ctx, university.EnrollmentFilter{
		Student:  entities["student"],
		Course:   entities["course"],
		Semester: entities["semester"],
		Grade:    entities["grade"],
	})
	return Result{Records: records}, err
}

func (p *Planner) buildings(ctx context.Context, entities map[string]string) (Result, error) {
	records, err := p.store.Buildings(ctx, university.BuildingFilter{
		Query: entities["building"],
	})
	return Result{Records: records}, err
}

func (p *Planner) rooms(ctx context.Context, entities map[string]string) (Result, error) {
	records, err := p.store.Rooms(ctx, university.RoomFilter{
		Query:    entities["room"],
		Type:     entities["room_type"],
		Capacity: intEntity(entities, "capacity"),
	})
	return Result{Records: records}, err
}

func (p *Planner) announcements(ctx context.Context, entities map[string]string) (Result, error) {
	_, urgent := entities["urgency"]
	records, err := p.store.Announcements(ctx, university.AnnouncementFilter{
		UrgentOnly: urgent,
		Title:      entities["announcement_title"],
		Target:     entities["target"],
	})
	return Result{Records: records}, err
}

func (p *Planner) general(ctx context.Context) (Result, error) {
	counts, err := p.store.Counts(ctx)
	return Result{Aggregate: counts}, err
}

func floatEntity(entities map[string]string, key string) *float64 {
	raw, ok := entities[key]
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	return &v
}

func intEntity(entities map[string]string, key string) *int {
	raw, ok := entities[key]
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &v
}

// levelEntity accepts values like "300" or "300 level" and keeps the
// numeric part.
func levelEntity(entities map[string]string, key string) *int {
	raw, ok := entities[key]
	if !ok {
		return nil
	}
	digits := strings.Builder{}
	for _, r := range strings.TrimSpace(raw) {
		if r < '0' || r > '9' {
			break
		}
		digits.WriteRune(r)
	}
	if digits.Len() == 0 {
		return nil
	}
	v, err := strconv.Atoi(digits.String())
	if err != nil {
		return nil
	}
	return &v
}

package university

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"university-assistant/internal/common/logger"
)

var ErrQueryFailed = errors.New("UNIVERSITY_QUERY_FAILED")

// Record is a single result row shaped for the response formatter.
type Record map[string]interface{}

// Store reads the university schema. All lookups are case-insensitive
// substring matches unless a filter documents otherwise, and every method
// returns display labels rather than stored codes.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db: db,
		logger: log.With(map[string]interface{}{
			"component": "university-store",
		}),
	}
}

type DepartmentFilter struct {
	Query string
	Head  string
}

type FacultyFilter struct {
	Name       string
	Department string
	Rank       string
	Research   string
}

type StudentFilter struct {
	Name      string
	StudentID string
	Status    string
	Program   string
	GPA       *float64
}

type ProgramFilter struct {
	Type       string
	Department string
	Degree     string
	Credits    *int
}

type CourseFilter struct {
	Level      *int
	Department string
	Code       string
	Title      string
	Credits    *int
}

type EnrollmentFilter struct {
	Student  string
	Course   string
	Semester string
	Grade    string
}

type BuildingFilter struct {
	Query string
}

type RoomFilter struct {
	Query    string
	Type     string
	Capacity *int
}

type AnnouncementFilter struct {
	UrgentOnly bool
	Title      string
	Target     string
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE metacharacters so the value matches literally
// inside an ILIKE pattern.
func EscapeLike(value string) string {
	return likeEscaper.Replace(value)
}

func like(value string) string {
	return "%" + EscapeLike(value) + "%"
}

// codeCond builds a membership condition for a coded column. The query is
// matched against the labels first; when nothing matches it degrades to a
// substring match on the raw column.
func codeCond(column string, labels map[string]string, query string, args *[]interface{}) string {
	codes := codesMatching(labels, query)
	if len(codes) == 0 {
		*args = append(*args, like(query))
		return fmt.Sprintf("%s ILIKE $%d", column, len(*args))
	}

	placeholders := make([]string, 0, len(codes))
	for _, code := range codes {
		*args = append(*args, code)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(*args)))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", "))
}

func nullString(v sql.NullString) interface{} {
	if v.Valid {
		return v.String
	}
	return nil
}

func nullFloat(v sql.NullFloat64) interface{} {
	if v.Valid {
		return v.Float64
	}
	return nil
}

func nullDate(v sql.NullTime) interface{} {
	if v.Valid {
		return v.Time.Format("2006-01-02")
	}
	return nil
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

func nullFullName(first, last sql.NullString) interface{} {
	if !first.Valid && !last.Valid {
		return nil
	}
	return fullName(first.String, last.String)
}

func (s *Store) Departments(ctx context.Context, f DepartmentFilter) ([]Record, error) {
	conds := []string{}
	args := []interface{}{}

	if f.Query != "" {
		p := like(f.Query)
		args = append(args, p)
		conds = append(conds, fmt.Sprintf(
			"(d.name ILIKE $%d OR d.code ILIKE $%d OR d.description ILIKE $%d OR d.location ILIKE $%d)",
			len(args), len(args), len(args), len(args)))
	}
	if f.Head != "" {
		p := like(f.Head)
		args = append(args, p)
		conds = append(conds, fmt.Sprintf(
			"(hu.first_name ILIKE $%d OR hu.last_name ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT d.name, d.code, d.description, d.location, d.contact_email, d.website,
		d.established_date, hu.first_name, hu.last_name
		FROM university_department d
		LEFT JOIN university_faculty hf ON hf.id = d.head_of_department_id
		LEFT JOIN auth_user hu ON hu.id = hf.user_id` +
		whereClause(conds) + " ORDER BY d.name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: departments: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var name, code, description, location, contact, website string
		var established sql.NullTime
		var headFirst, headLast sql.NullString
		if err := rows.Scan(&name, &code, &description, &location, &contact, &website,
			&established, &headFirst, &headLast); err != nil {
			return nil, fmt.Errorf("%w: departments: %v", ErrQueryFailed, err)
		}
		records = append(records, Record{
			"name":             name,
			"code":             code,
			"description":      description,
			"location":         location,
			"contact":          contact,
			"website":          website,
			"head":             nullFullName(headFirst, headLast),
			"established_date": nullDate(established),
		})
	}
	return records, rows.Err()
}

func (s *Store) Faculty(ctx context.Context, f FacultyFilter) ([]Record, error) {
	conds := []string{}
	args := []interface{}{}

	if f.Name != "" {
		p := like(f.Name)
		args = append(args, p)
		conds = append(conds, fmt.Sprintf(
			"(u.first_name ILIKE $%d OR u.last_name ILIKE $%d)", len(args), len(args)))
	}
	if f.Department != "" {
		p := like(f.Department)
		args = append(args, p)
		conds = append(conds, fmt.Sprintf(
			"(d.name ILIKE $%d OR d.code ILIKE $%d)", len(args), len(args)))
	}
	if f.Rank != "" {
		conds = append(conds, codeCond("f.rank", rankLabels, f.Rank, &args))
	}
	if f.Research != "" {
		args = append(args, like(f.Research))
		conds = append(conds, fmt.Sprintf("f.research_interests ILIKE $%d", len(args)))
	}

	query := `SELECT u.first_name, u.last_name, u.email, f.rank, d.name,
		f.office_location, f.phone, f.research_interests, f.office_hours, f.hire_date
		FROM university_faculty f
		JOIN auth_user u ON u.id = f.user_id
		LEFT JOIN university_department d ON d.id = f.department_id` +
		whereClause(conds) + " ORDER BY u.last_name, u.first_name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: faculty: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var first, last, email, rank, office, phone, research, hours string
		var department sql.NullString
		var hireDate time.Time
		if err := rows.Scan(&first, &last, &email, &rank, &department,
			&office, &phone, &research, &hours, &hireDate); err != nil {
			return nil, fmt.Errorf("%w: faculty: %v", ErrQueryFailed, err)
		}
		records = append(records, Record{
			"name":         fullName(first, last),
			"title":        labelFor(rankLabels, rank),
			"department":   nullString(department),
			"office":       office,
			"phone":        phone,
			"email":        email,
			"research":     research,
			"office_hours": hours,
			"hire_date":    hireDate.Format("2006-01-02"),
		})
	}
	return records, rows.Err()
}

func (s *Store) Students(ctx context.Context, f StudentFilter) ([]Record, error) {
	conds := []string{}
	args := []interface{}{}

	if f.Name != "" {
		p := like(f.Name)
		args = append(args, p)
		conds = append(conds, fmt.Sprintf(
			"(u.first_name ILIKE $%d OR u.last_name ILIKE $%d)", len(args), len(args)))
	}
	if f.StudentID != "" {
		args = append(args, like(f.StudentID))
		conds = append(conds, fmt.Sprintf("s.student_id ILIKE $%d", len(args)))
	}
	if f.Status != "" {
		conds = append(conds, codeCond("s.status", studentStatusLabels, f.Status, &args))
	}
	if f.GPA != nil {
		args = append(args, *f.GPA-0.2)
		low := len(args)
		args = append(args, *f.GPA+0.2)
		conds = append(conds, fmt.Sprintf("s.gpa BETWEEN $%d AND $%d", low, len(args)))
	}
	if f.Program != "" {
		p := like(f.Program)
		args = append(args, p)
		conds = append(conds, fmt.Sprintf(
			"(p.name ILIKE $%d OR p.code ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT u.first_name, u.last_name, u.email, s.student_id, s.status, s.gpa,
		s.admission_date, s.expected_graduation, p.name, au.first_name, au.last_name
		FROM university_student s
		JOIN auth_user u ON u.id = s.user_id
		LEFT JOIN university_academicprogram p ON p.id = s.current_program_id
		LEFT JOIN university_faculty af ON af.id = s.advisor_id
		LEFT JOIN auth_user au ON au.id = af.user_id` +
		whereClause(conds) + " ORDER BY u.last_name, u.first_name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: students: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var first, last, email, studentID, status string
		var gpa sql.NullFloat64
		var admission, graduation time.Time
		var program, advFirst, advLast sql.NullString
		if err := rows.Scan(&first, &last, &email, &studentID, &status, &gpa,
			&admission, &graduation, &program, &advFirst, &advLast); err != nil {
			return nil, fmt.Errorf("%w: students: %v", ErrQueryFailed, err)
		}
		records = append(records, Record{
			"name":                fullName(first, last),
			"student_id":          studentID,
			"email":               email,
			"program":             nullString(program),
			"status":              labelFor(studentStatusLabels, status),
			"gpa":                 nullFloat(gpa),
			"advisor":             nullFullName(advFirst, advLast),
			"admission_date":      admission.Format("2006-01-02"),
			"expected_graduation": graduation.Format("2006-01-02"),
		})
	}
	return records, rows.Err()
}

func (s *Store) Programs(ctx context.Context, f ProgramFilter) ([]Record, error) {
	conds := []string{}
	args := []interface{}{}

	if f.Type != "" {
		typeCond := codeCond("p.program_type", programTypeLabels, f.Type, &args)
		degreeCond := codeCond("p.degree", programDegreeLabels, f.Type, &args)
		conds = append(conds, "("+typeCond+" OR "+degreeCond+")")
	}
	if f.Department != "" {
		p := like(f.Department)
		args = append(args, p)
		conds = append(conds, fmt.Sprintf(
			"(d.name ILIKE $%d OR d.code ILIKE $%d)", len(args), len(args)))
	}
	if f.Degree != "" {
		conds = append(conds, codeCond("p.degree", programDegreeLabels, f.Degree, &args))
	}
	if f.Credits != nil {
		args = append(args, *f.Credits)
		conds = append(conds, fmt.Sprintf("p.total_credits_required = $%d", len(args)))
	}

	query := `SELECT p.name, p.code, p.program_type, p.degree, d.name,
		p.total_credits_required, p.duration_years, p.description
		FROM university_academicprogram p
		JOIN university_department d ON d.id = p.department_id` +
		whereClause(conds) + " ORDER BY d.name, p.name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: programs: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var name, code, programType, department, description string
		var degree sql.NullString
		var credits, duration int
		if err := rows.Scan(&name, &code, &programType, &degree, &department,
			&credits, &duration, &description); err != nil {
			return nil, fmt.Errorf("%w: programs: %v", ErrQueryFailed, err)
		}
		var degreeLabel interface{}
		if degree.Valid {
			degreeLabel = labelFor(programDegreeLabels, degree.String)
		}
		records = append(records, Record{
			"name":        name,
			"code":        code,
			"type":        labelFor(programTypeLabels, programType),
			"degree":      degreeLabel,
			"department":  department,
			"credits":     credits,
			"duration":    fmt.Sprintf("%d years", duration),
			"description": description,
		})
	}
	return records, rows.Err()
}

func (s *Store) Courses(ctx context.Context, f CourseFilter) ([]Record, error) {
	conds := []string{}
	args := []interface{}{}

	if f.Level != nil {
		args = append(args, *f.Level)
		conds = append(conds, fmt.Sprintf("c.level = $%d", len(args)))
	}
	if f.Department != "" {
		p := like(f.Department)
		args = append(args, p)
		conds = append(conds, fmt.Sprintf(
			"(d.name ILIKE $%d OR d.code ILIKE $%d)", len(args), len(args)))
	}
	if f.Code != "" {
		args = append(args, like(f.Code))
		conds = append(conds, fmt.Sprintf("c.code ILIKE $%d", len(args)))
	}
	if f.Title != "" {
		args = append(args, like(f.Title))
		conds = append(conds, fmt.Sprintf("c.title ILIKE $%d", len(args)))
	}
	if f.Credits != nil {
		args = append(args, *f.Credits)
		conds = append(conds, fmt.Sprintf("c.credits = $%d", len(args)))
	}

	query := `SELECT c.code, c.title, d.name, c.level, c.credits, c.description, c.is_core,
		(SELECT COALESCE(string_agg(pc.code, ',' ORDER BY pc.code), '')
			FROM university_course_prerequisites cp
			JOIN university_course pc ON pc.id = cp.to_course_id
			WHERE cp.from_course_id = c.id)
		FROM university_course c
		LEFT JOIN university_department d ON d.id = c.department_id` +
		whereClause(conds) + " ORDER BY c.code"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: courses: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var code, title, description, prereqs string
		var department sql.NullString
		var level, credits int
		var isCore bool
		if err := rows.Scan(&code, &title, &department, &level, &credits,
			&description, &isCore, &prereqs); err != nil {
			return nil, fmt.Errorf("%w: courses: %v", ErrQueryFailed, err)
		}
		prereqList := []string{}
		if prereqs != "" {
			prereqList = strings.Split(prereqs, ",")
		}
		records = append(records, Record{
			"code":          code,
			"title":         title,
			"department":    nullString(department),
			"level":         courseLevelLabel(level),
			"credits":       credits,
			"description":   description,
			"is_core":       isCore,
			"prerequisites": prereqList,
		})
	}
	return records, rows.Err()
}

func (s *Store) Enrollments(ctx context.Context, f EnrollmentFilter) ([]Record, error) {
	conds := []string{}
	args := []interface{}{}

	if f.Student != "" {
		p := like(f.Student)
		args = append(args, p)
		conds = append(conds, fmt.Sprintf(
			"(u.first_name ILIKE $%d OR u.last_name ILIKE $%d OR s.student_id ILIKE $%d)",
			len(args), len(args), len(args)))
	}
	if f.Course != "" {
		p := like(f.Course)
		args = append(args, p)
		conds = append(conds, fmt.Sprintf(
			"(c.title ILIKE $%d OR c.code ILIKE $%d)", len(args), len(args)))
	}
	if f.Semester != "" {
		p := like(f.Semester)
		args = append(args, p)
		conds = append(conds, fmt.Sprintf(
			"(sem.name ILIKE $%d OR sem.code ILIKE $%d)", len(args), len(args)))
	}
	if f.Grade != "" {
		// ILIKE with no wildcards is a case-insensitive equality check.
		args = append(args, EscapeLike(f.Grade))
		conds = append(conds, fmt.Sprintf("e.grade ILIKE $%d", len(args)))
	}

	query := `SELECT u.first_name, u.last_name, s.student_id, c.title, c.code,
		sem.name, e.grade, e.status, e.enrollment_date
		FROM university_enrollment e
		JOIN university_student s ON s.id = e.student_id
		JOIN auth_user u ON u.id = s.user_id
		JOIN university_courseoffering o ON o.id = e.course_offering_id
		JOIN university_course c ON c.id = o.course_id
		JOIN university_semester sem ON sem.id = o.semester_id` +
		whereClause(conds) + " ORDER BY c.code, o.section, u.last_name, u.first_name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: enrollments: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var first, last, studentID, courseTitle, courseCode, semester, status string
		var grade sql.NullString
		var enrolled time.Time
		if err := rows.Scan(&first, &last, &studentID, &courseTitle, &courseCode,
			&semester, &grade, &status, &enrolled); err != nil {
			return nil, fmt.Errorf("%w: enrollments: %v", ErrQueryFailed, err)
		}
		var gradeLabel interface{}
		if grade.Valid {
			gradeLabel = labelFor(gradeLabels, grade.String)
		}
		records = append(records, Record{
			"student":         fullName(first, last),
			"student_id":      studentID,
			"course":          courseTitle,
			"course_code":     courseCode,
			"semester":        semester,
			"grade":           gradeLabel,
			"status":          status,
			"enrollment_date": enrolled.Format("2006-01-02"),
		})
	}
	return records, rows.Err()
}

func (s *Store) Buildings(ctx context.Context, f BuildingFilter) ([]Record, error) {
	conds := []string{}
	args := []interface{}{}

	if f.Query != "" {
		p := like(f.Query)
		args = append(args, p)
		conds = append(conds, fmt.Sprintf(
			"(b.name ILIKE $%d OR b.code ILIKE $%d OR b.location ILIKE $%d)",
			len(args), len(args), len(args)))
	}

	query := `SELECT b.name, b.code, b.location, b.description
		FROM university_building b` +
		whereClause(conds) + " ORDER BY b.name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: buildings: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var name, code, location, description string
		if err := rows.Scan(&name, &code, &location, &description); err != nil {
			return nil, fmt.Errorf("%w: buildings: %v", ErrQueryFailed, err)
		}
		records = append(records, Record{
			"name":        name,
			"code":        code,
			"location":    location,
			"description": description,
		})
	}
	return records, rows.Err()
}

func (s *Store) Rooms(ctx context.Context, f RoomFilter) ([]Record, error) {
	conds := []string{}
	args := []interface{}{}

	if f.Query != "" {
		p := like(f.Query)
		args = append(args, p)
		conds = append(conds, fmt.Sprintf(
			"(r.room_number ILIKE $%d OR b.name ILIKE $%d OR b.code ILIKE $%d)",
			len(args), len(args), len(args)))
	}
	if f.Type != "" {
		args = append(args, like(f.Type))
		conds = append(conds, fmt.Sprintf("r.room_type ILIKE $%d", len(args)))
	}
	if f.Capacity != nil {
		args = append(args, *f.Capacity-5)
		low := len(args)
		args = append(args, *f.Capacity+5)
		conds = append(conds, fmt.Sprintf("r.capacity BETWEEN $%d AND $%d", low, len(args)))
	}

	query := `SELECT b.name, b.code, r.room_number, r.room_type, r.capacity, r.features
		FROM university_room r
		JOIN university_building b ON b.id = r.building_id` +
		whereClause(conds) + " ORDER BY b.code, r.room_number"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: rooms: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var building, buildingCode, roomNumber, roomType, features string
		var capacity int
		if err := rows.Scan(&building, &buildingCode, &roomNumber, &roomType,
			&capacity, &features); err != nil {
			return nil, fmt.Errorf("%w: rooms: %v", ErrQueryFailed, err)
		}
		records = append(records, Record{
			"building":      building,
			"building_code": buildingCode,
			"room_number":   roomNumber,
			"type":          roomType,
			"capacity":      capacity,
			"features":      features,
		})
	}
	return records, rows.Err()
}

func (s *Store) Announcements(ctx context.Context, f AnnouncementFilter) ([]Record, error) {
	conds := []string{}
	args := []interface{}{}

	if f.UrgentOnly {
		conds = append(conds, "a.is_urgent = TRUE")
	}
	if f.Title != "" {
		args = append(args, like(f.Title))
		conds = append(conds, fmt.Sprintf("a.title ILIKE $%d", len(args)))
	}
	if f.Target != "" {
		conds = append(conds, codeCond("a.target_audience", audienceLabels, f.Target, &args))
	}

	query := `SELECT a.title, a.content, au.first_name, au.last_name,
		a.publish_date, a.is_urgent, a.target_audience
		FROM university_announcement a
		LEFT JOIN auth_user au ON au.id = a.author_id` +
		whereClause(conds) + " ORDER BY a.publish_date DESC LIMIT 5"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: announcements: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var title, content, target string
		var authorFirst, authorLast sql.NullString
		var published time.Time
		var urgent bool
		if err := rows.Scan(&title, &content, &authorFirst, &authorLast,
			&published, &urgent, &target); err != nil {
			return nil, fmt.Errorf("%w: announcements: %v", ErrQueryFailed, err)
		}
		records = append(records, Record{
			"title":     title,
			"content":   content,
			"author":    nullFullName(authorFirst, authorLast),
			"date":      published.Format("2006-01-02"),
			"is_urgent": urgent,
			"target":    labelFor(audienceLabels, target),
		})
	}
	return records, rows.Err()
}

// Counts returns the aggregate snapshot used when no specific intent was
// recognized.
func (s *Store) Counts(ctx context.Context) (Record, error) {
	query := `SELECT
		(SELECT COUNT(*) FROM university_department),
		(SELECT COUNT(*) FROM university_faculty),
		(SELECT COUNT(*) FROM university_academicprogram),
		(SELECT COUNT(*) FROM university_student WHERE status = 'A'),
		(SELECT COUNT(*) FROM university_course),
		(SELECT COUNT(*) FROM university_building),
		(SELECT sem.season FROM university_semester sem WHERE sem.is_current = TRUE LIMIT 1),
		(SELECT sem.year FROM university_semester sem WHERE sem.is_current = TRUE LIMIT 1)`

	var departments, faculty, programs, activeStudents, courses, buildings int
	var season sql.NullString
	var year sql.NullInt64
	err := s.db.QueryRowContext(ctx, query).Scan(&departments, &faculty, &programs,
		&activeStudents, &courses, &buildings, &season, &year)
	if err != nil {
		return nil, fmt.Errorf("%w: counts: %v", ErrQueryFailed, err)
	}

	var currentSemester interface{}
	if season.Valid && year.Valid {
		currentSemester = fmt.Sprintf("%s %d", labelFor(seasonLabels, season.String), year.Int64)
	}

	return Record{
		"departments_count": departments,
		"faculty_count":     faculty,
		"programs_count":    programs,
		"active_students":   activeStudents,
		"current_semester":  currentSemester,
		"total_courses":     courses,
		"total_buildings":   buildings,
	}, nil
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

package intent

// Intent classifies what a query is asking about. Queries that cannot be
// classified fall through to Other.
type Intent string

const (
	DepartmentInfo Intent = "department_info"
	FacultyInfo    Intent = "faculty_info"
	StudentInfo    Intent = "student_info"
	ProgramInfo    Intent = "program_info"
	CourseInfo     Intent = "course_info"
	EnrollmentInfo Intent = "enrollment_info"
	BuildingInfo   Intent = "building_info"
	RoomInfo       Intent = "room_info"
	Announcement   Intent = "announcement"
	Other          Intent = "other"
)

var known = map[Intent]bool{
	DepartmentInfo: true,
	FacultyInfo:    true,
	StudentInfo:    true,
	ProgramInfo:    true,
	CourseInfo:     true,
	EnrollmentInfo: true,
	BuildingInfo:   true,
	RoomInfo:       true,
	Announcement:   true,
	Other:          true,
}

// Parse normalizes a raw intent string. Anything unrecognized becomes Other.
func Parse(s string) Intent {
	if known[Intent(s)] {
		return Intent(s)
	}
	return Other
}

// Result is the classification of a single query.
type Result struct {
	Intent           Intent            `json:"intent"`
	Entities         map[string]string `json:"entities"`
	RequiresFollowup bool              `json:"requires_followup"`
}

// DefaultResult is the safe classification used whenever the collaborator
// call or its output cannot be trusted.
func DefaultResult() Result {
	return Result{
		Intent:           Other,
		Entities:         map[string]string{},
		RequiresFollowup: false,
	}
}

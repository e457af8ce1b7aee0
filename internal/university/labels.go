package university

import (
	"fmt"
	"sort"
	"strings"
)

// Display labels for the coded columns. The store filters accept either a
// code or a fragment of the human label and always surfaces the label.

var rankLabels = map[string]string{
	"ASST": "Assistant Professor",
	"ASSO": "Associate Professor",
	"PROF": "Professor",
	"LECT": "Lecturer",
	"INST": "Instructor",
}

var studentStatusLabels = map[string]string{
	"A": "Active",
	"G": "Graduated",
	"L": "On Leave",
	"W": "Withdrawn",
}

var programTypeLabels = map[string]string{
	"MAJ":  "Major",
	"MIN":  "Minor",
	"CERT": "Certificate",
	"DIP":  "Diploma",
}

var programDegreeLabels = map[string]string{
	"BA":  "Bachelor of Arts",
	"BS":  "Bachelor of Science",
	"MA":  "Master of Arts",
	"MS":  "Master of Science",
	"MBA": "Master of Business Administration",
	"PHD": "Doctor of Philosophy",
}

var seasonLabels = map[string]string{
	"FA": "Fall",
	"SP": "Spring",
	"SU": "Summer",
	"WI": "Winter",
}

var audienceLabels = map[string]string{
	"ALL": "All",
	"STU": "Students",
	"FAC": "Faculty",
	"STA": "Staff",
}

var courseLevelLabels = map[int]string{
	100: "100 Level",
	200: "200 Level",
	300: "300 Level",
	400: "400 Level",
	500: "500 Level (Graduate)",
	600: "600 Level (Graduate)",
	700: "700 Level (PhD)",
}

func courseLevelLabel(level int) string {
	if label, ok := courseLevelLabels[level]; ok {
		return label
	}
	return fmt.Sprintf("%d Level", level)
}

var gradeLabels = map[string]string{
	"W":  "Withdrawn",
	"I":  "Incomplete",
	"IP": "In Progress",
}

func labelFor(labels map[string]string, code string) string {
	if label, ok := labels[code]; ok {
		return label
	}
	return code
}

// codesMatching returns the codes whose code or label contains the query,
// case-insensitively. An empty result means the caller should fall back to
// a raw substring match on the column.
func codesMatching(labels map[string]string, query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	codes := make([]string, 0, len(labels))
	for code, label := range labels {
		if strings.Contains(strings.ToLower(code), q) || strings.Contains(strings.ToLower(label), q) {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

package export

import "fmt"

// ProgressRow is one user's completion state for a course export.
type ProgressRow struct {
	Email            string
	FullName         string
	CompletedLessons int
	TotalLessons     int
}

// ComplianceRow is one user's standing against a mandatory course.
type ComplianceRow struct {
	Email            string
	FullName         string
	CourseTitle      string
	CompletedLessons int
	TotalLessons     int
}

// Compliant reports whether the row's course is fully completed. A course
// without lessons cannot be complied with.
func (r ComplianceRow) Compliant() bool {
	return r.TotalLessons > 0 && r.CompletedLessons >= r.TotalLessons
}

// Report is the renderable content of one export job. Exactly one of
// Progress or Compliance is populated, matching the job type.
type Report struct {
	Title      string
	Progress   []ProgressRow
	Compliance []ComplianceRow
}

func (r Report) headers() []string {
	if r.Compliance != nil {
		return []string{"Email", "Full Name", "Course", "Completed Lessons", "Total Lessons", "Compliant"}
	}
	return []string{"Email", "Full Name", "Completed Lessons", "Total Lessons", "Percent"}
}

func (r Report) records() [][]string {
	if r.Compliance != nil {
		records := make([][]string, 0, len(r.Compliance))
		for _, row := range r.Compliance {
			compliant := "no"
			if row.Compliant() {
				compliant = "yes"
			}
			records = append(records, []string{
				row.Email,
				row.FullName,
				row.CourseTitle,
				fmt.Sprintf("%d", row.CompletedLessons),
				fmt.Sprintf("%d", row.TotalLessons),
				compliant,
			})
		}
		return records
	}
	records := make([][]string, 0, len(r.Progress))
	for _, row := range r.Progress {
		records = append(records, []string{
			row.Email,
			row.FullName,
			fmt.Sprintf("%d", row.CompletedLessons),
			fmt.Sprintf("%d", row.TotalLessons),
			percentOf(row.CompletedLessons, row.TotalLessons),
		})
	}
	return records
}

func percentOf(completed, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(completed)/float64(total)*100)
}

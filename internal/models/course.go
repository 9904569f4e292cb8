package models

import "time"

// CourseType categorizes how a course runs; only Normal courses carry an
// automatic three-month expiry.
type CourseType string

// Possible course types.
const (
	CourseTypeNormal  CourseType = "Normal"
	CourseTypePrivate CourseType = "Private"
	CourseTypeBaby    CourseType = "Baby"
)

// Course is a catalog entry. The catalog is the static default set overlaid
// by stored rows keyed by the same id: a stored row wins on conflict, defaults
// fill the gaps, store-only rows are appended.
type Course struct {
	ID             string     `db:"id" json:"id"`
	Title          string     `db:"title" json:"title"`
	AgeGroup       string     `db:"age_group" json:"age_group"`
	Type           CourseType `db:"type" json:"type"`
	Sessions       int        `db:"sessions" json:"sessions"`
	Price          int        `db:"price" json:"price"`
	TimeSlot       string     `db:"time_slot" json:"time_slot"`
	Description    string     `db:"description" json:"description"`
	Capacity       int        `db:"capacity" json:"capacity"`
	ImageURL       string     `db:"image_url" json:"image_url"`
	IsOpen         bool       `db:"is_open" json:"is_open"`
	Terms          string     `db:"terms" json:"terms"`
	InstructorName *string    `db:"instructor_name" json:"instructor_name,omitempty"`
	PoolLocation   *string    `db:"pool_location" json:"pool_location,omitempty"`
	UpdatedAt      *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// DefaultCourses is the seed catalog served when no stored override exists.
func DefaultCourses() []Course {
	fluke := "Khru Fluke"
	som := "Khru Som"
	ball := "Khru Ball"
	return []Course{
		{
			ID:             "course-a",
			Title:          "Course A (Ages 4-6, Group)",
			AgeGroup:       "4-6 years",
			Type:           CourseTypeNormal,
			Sessions:       20,
			Price:          3000,
			TimeSlot:       "16:30 - 19:00",
			Description:    "20 one-hour lessons, daily sessions, flexible attendance days",
			Capacity:       20,
			IsOpen:         true,
			Terms:          "Missed lessons due to illness are not deducted",
			InstructorName: &fluke,
		},
		{
			ID:             "course-b",
			Title:          "Course B (Ages 4-6, Private)",
			AgeGroup:       "4-6 years",
			Type:           CourseTypePrivate,
			Sessions:       10,
			Price:          4000,
			TimeSlot:       "10:00 - 20:30 (closed Sunday)",
			Description:    "10 one-hour private lessons, pick your own time",
			Capacity:       5,
			IsOpen:         true,
			Terms:          "Missed lessons due to illness are not deducted",
			InstructorName: &som,
		},
		{
			ID:             "course-c",
			Title:          "Course C (Ages 7+, Group)",
			AgeGroup:       "7+ years",
			Type:           CourseTypeNormal,
			Sessions:       20,
			Price:          2500,
			TimeSlot:       "16:30 - 19:00",
			Description:    "20 one-hour lessons, fundamentals through advanced technique",
			Capacity:       25,
			IsOpen:         true,
			Terms:          "Missed lessons due to illness are not deducted",
			InstructorName: &fluke,
		},
		{
			ID:             "course-d",
			Title:          "Course D (Ages 7+, Private)",
			AgeGroup:       "7+ years",
			Type:           CourseTypePrivate,
			Sessions:       10,
			Price:          3500,
			TimeSlot:       "10:00 - 20:30 (closed Sunday)",
			Description:    "10 one-hour lessons in groups of three",
			Capacity:       15,
			IsOpen:         true,
			Terms:          "Missed lessons due to illness are not deducted",
			InstructorName: &ball,
		},
		{
			ID:             "baby-course",
			Title:          "Baby Swimming Course",
			AgeGroup:       "Toddlers",
			Type:           CourseTypeBaby,
			Sessions:       10,
			Price:          4500,
			TimeSlot:       "09:00 - 15:00 (closed Sunday)",
			Description:    "10 one-hour water-familiarization lessons",
			Capacity:       10,
			IsOpen:         true,
			Terms:          "Missed lessons due to illness are not deducted",
			InstructorName: &som,
		},
	}
}

package service

import (
	"github.com/volatiletech/null/v8"

	"github.com/noah-isme/assign-override-api/internal/models"
)

// NormalizeSchedule nulls every date equal to the assignment default.
func NormalizeSchedule(s, defaults models.Schedule) models.Schedule {
	fields := s.Fields()
	defaultFields := defaults.Fields()
	for i, field := range fields {
		if sameDate(*field, *defaultFields[i]) {
			*field = null.Time{}
		}
	}
	return s
}

// FillSchedule sets every null date of dst from src.
func FillSchedule(dst, src models.Schedule) models.Schedule {
	fields := dst.Fields()
	srcFields := src.Fields()
	for i, field := range fields {
		if !field.Valid {
			*field = *srcFields[i]
		}
	}
	return dst
}

// MergeOverride builds the stored override for an edit. Dates equal to the defaults
// are dropped, then any date still null is taken from the override being replaced.
func MergeOverride(replaced *models.Override, edit models.OverrideEdit, defaults models.Schedule) models.Override {
	schedule := NormalizeSchedule(edit.Schedule, defaults)
	if replaced != nil {
		schedule = FillSchedule(schedule, replaced.Schedule())
	}
	merged := models.Override{
		ID:           edit.OverrideID,
		AssignmentID: edit.AssignmentID,
		UserID:       edit.UserID,
		GroupID:      edit.GroupID,
	}
	merged.SetSchedule(schedule)
	return merged
}

func sameDate(a, b null.Time) bool {
	if !a.Valid || !b.Valid {
		return !a.Valid && !b.Valid
	}
	return a.Time.Equal(b.Time)
}

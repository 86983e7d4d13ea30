package dojo

import (
	"time"

	"dojotap/internal/utils"
)

// BuildProgressPayload shapes the document the ChessDojo progress endpoint
// expects: the previous count resolved from the user's progress for their
// cohort and the new count computed as previous plus the increment. The date
// is the submission instant in UTC with a "Z" suffix.
func BuildProgressPayload(userPayload map[string]any, requirement map[string]any, countIncrement, minutesSpent int, now time.Time) map[string]any {
	cohort := stringifyValue(userPayload["dojoCohort"])
	requirementID := stringifyValue(requirement["id"])
	startCount := utils.ToInt(requirement["startCount"], 0)

	var progressEntry map[string]any
	if progressMap, ok := userPayload["progress"].(map[string]any); ok {
		progressEntry, _ = progressMap[requirementID].(map[string]any)
	}
	previousCount := ResolvePreviousCount(progressEntry, cohort, startCount)

	return map[string]any{
		"cohort":                  cohort,
		"requirementId":           requirementID,
		"previousCount":           previousCount,
		"newCount":                previousCount + countIncrement,
		"incrementalMinutesSpent": minutesSpent,
		"date":                    now.UTC().Format("2006-01-02T15:04:05.000000Z"),
		"notes":                   "",
	}
}

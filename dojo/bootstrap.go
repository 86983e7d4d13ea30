package dojo

import (
	"fmt"
	"sort"
	"strings"

	"dojotap/internal/utils"
)

// UserInfo is the slimmed-down user block of a bootstrap response.
type UserInfo struct {
	DisplayName string `json:"display_name"`
	DojoCohort  string `json:"dojo_cohort"`
}

// TaskItem is one training task, merged from the published requirement list
// and the user's custom requirements, with progress resolved for the user's
// cohort.
type TaskItem struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Category          string         `json:"category"`
	Counts            map[string]int `json:"counts"`
	StartCount        int            `json:"start_count"`
	ProgressBarSuffix string         `json:"progress_bar_suffix"`
	ScoreboardDisplay string         `json:"scoreboard_display"`
	NumberOfCohorts   int            `json:"number_of_cohorts"`
	SortPriority      string         `json:"sort_priority"`
	CurrentCount      int            `json:"current_count"`
	TargetCount       *int           `json:"target_count"`
	IsCustom          bool           `json:"is_custom"`
	TimeOnly          bool           `json:"time_only"`
}

// BootstrapResponse is the single aggregated payload the browser client needs
// to render its task board.
type BootstrapResponse struct {
	User                    UserInfo                  `json:"user"`
	Tasks                   []TaskItem                `json:"tasks"`
	ProgressByRequirementID map[string]map[string]any `json:"progress_by_requirement_id"`
	PinnedTaskIDs           []string                  `json:"pinned_task_ids"`
	AvailableCohorts        []string                  `json:"available_cohorts"`
	DefaultFilters          map[string]string         `json:"default_filters"`
}

// NormalizeCounts coerces an upstream counts document (loosely-typed JSON,
// numbers sometimes strings) into a string-to-int map.
func NormalizeCounts(rawCounts any) map[string]int {
	counts := map[string]int{}
	rawMap, ok := rawCounts.(map[string]any)
	if !ok {
		return counts
	}
	for key, value := range rawMap {
		counts[key] = utils.ToInt(value, 0)
	}
	return counts
}

// ResolvePreviousCount picks the user's current count for a requirement:
// the cohort-specific count, then the ALL_COHORTS count, then the
// requirement's start count.
func ResolvePreviousCount(progressEntry map[string]any, cohort string, startCount int) int {
	var counts map[string]int
	if progressEntry != nil {
		counts = NormalizeCounts(progressEntry["counts"])
	}
	if value, ok := counts[cohort]; ok {
		return value
	}
	if value, ok := counts["ALL_COHORTS"]; ok {
		return value
	}
	return startCount
}

// ResolveTargetCount returns the requirement's target for the cohort, or nil
// when the requirement defines no cohort-specific target.
func ResolveTargetCount(requirement map[string]any, cohort string) *int {
	counts := NormalizeCounts(requirement["counts"])
	if value, ok := counts[cohort]; ok {
		return utils.Ptr(value)
	}
	return nil
}

func firstNonEmptyString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := payload[key]
		if !ok || value == nil {
			continue
		}
		if text := strings.TrimSpace(stringify(value)); text != "" {
			return text
		}
	}
	return ""
}

func stringify(value any) string {
	if text, ok := value.(string); ok {
		return text
	}
	if number, ok := value.(float64); ok && number == float64(int64(number)) {
		return fmt.Sprintf("%d", int64(number))
	}
	return fmt.Sprint(value)
}

func resolveRequirementID(payload map[string]any) string {
	return firstNonEmptyString(payload, "id", "requirementId", "requirement_id")
}

func resolveRequirementName(payload map[string]any) string {
	return firstNonEmptyString(payload, "name", "requirementName", "title", "label")
}

func isExplicitCustomRequirement(payload map[string]any) bool {
	for _, key := range []string{"isCustomRequirement", "isCustomTask", "customRequirement", "customTask"} {
		if parsed := utils.ToBool(payload[key]); parsed != nil && *parsed {
			return true
		}
	}
	return false
}

func looksLikeRequirement(payload map[string]any) bool {
	return resolveRequirementID(payload) != "" && resolveRequirementName(payload) != ""
}

// resolveTimeOnly decides whether a custom requirement tracks only minutes.
// Custom requirement documents have gone through several shapes upstream, so
// explicit flags win, count-enabling flags invert, a tracking-mode string is
// consulted next, and absent all of those a requirement with no positive
// target counts is treated as time-only.
func resolveTimeOnly(raw map[string]any, counts map[string]int) bool {
	for _, key := range []string{"timeOnly", "timerOnly", "isTimeOnly", "isTimerOnly", "minutesOnly"} {
		if parsed := utils.ToBool(raw[key]); parsed != nil {
			return *parsed
		}
	}
	for _, key := range []string{"hasCount", "countEnabled", "countRequired", "requiresCount", "trackCount", "enableCount"} {
		if parsed := utils.ToBool(raw[key]); parsed != nil {
			return !*parsed
		}
	}

	switch strings.ToLower(firstNonEmptyString(raw, "trackingMode", "inputMode", "mode")) {
	case "time_only", "timer_only", "minutes_only":
		return true
	case "count_and_time", "count":
		return false
	}

	for _, value := range counts {
		if value > 0 {
			return false
		}
	}
	return true
}

func buildCustomRequirement(raw map[string]any) map[string]any {
	requirementID := resolveRequirementID(raw)
	requirementName := resolveRequirementName(raw)
	if requirementID == "" || requirementName == "" {
		return nil
	}

	counts := NormalizeCounts(raw["counts"])
	if len(counts) == 0 {
		counts = NormalizeCounts(raw["targetCounts"])
	}

	startCount := utils.ToInt(raw["startCount"], utils.ToInt(raw["start_count"], 0))

	category := firstNonEmptyString(raw, "category", "requirementCategory")
	if category == "" {
		category = "Custom"
	}
	sortPriority := firstNonEmptyString(raw, "sortPriority", "sort_priority")
	if sortPriority == "" {
		sortPriority = "zzz_custom_" + requirementID
	}

	return map[string]any{
		"id":                  requirementID,
		"name":                requirementName,
		"category":            category,
		"counts":              countsToAny(counts),
		"startCount":          startCount,
		"progressBarSuffix":   firstNonEmptyString(raw, "progressBarSuffix", "progress_bar_suffix"),
		"scoreboardDisplay":   firstNonEmptyString(raw, "scoreboardDisplay", "scoreboard_display"),
		"numberOfCohorts":     utils.ToInt(raw["numberOfCohorts"], 0),
		"sortPriority":        sortPriority,
		"isCustomRequirement": true,
		"timeOnly":            resolveTimeOnly(raw, counts),
	}
}

func countsToAny(counts map[string]int) map[string]any {
	out := make(map[string]any, len(counts))
	for key, value := range counts {
		out[key] = value
	}
	return out
}

// ExtractCustomRequirements walks the custom-access payload for anything that
// looks like a requirement and is either flagged custom or reached through a
// "custom" path segment. The payload's shape is not stable, so this is a
// recursive scan rather than a typed decode.
func ExtractCustomRequirements(customAccessPayload any) []map[string]any {
	if customAccessPayload == nil {
		return nil
	}

	byID := map[string]map[string]any{}
	order := []string{}

	var walk func(node any, path string)
	walk = func(node any, path string) {
		switch typed := node.(type) {
		case map[string]any:
			if looksLikeRequirement(typed) &&
				(isExplicitCustomRequirement(typed) || strings.Contains(strings.ToLower(path), "custom")) {
				if built := buildCustomRequirement(typed); built != nil {
					id := built["id"].(string)
					if _, seen := byID[id]; !seen {
						order = append(order, id)
					}
					byID[id] = built
				}
			}
			for _, key := range sortedKeys(typed) {
				walk(typed[key], path+"."+key)
			}
		case []any:
			for index, item := range typed {
				walk(item, fmt.Sprintf("%s[%d]", path, index))
			}
		}
	}
	walk(customAccessPayload, "root")

	requirements := make([]map[string]any, 0, len(order))
	for _, id := range order {
		requirements = append(requirements, byID[id])
	}
	return requirements
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MergeRequirements overlays custom requirements onto the published list,
// keyed by requirement id. A custom document sharing an id with a published
// requirement overrides field-by-field rather than replacing it wholesale.
func MergeRequirements(requirementsPayload []map[string]any, customAccessPayload any) []map[string]any {
	byID := map[string]map[string]any{}
	order := []string{}

	record := func(id string, requirement map[string]any) {
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = requirement
	}

	for _, requirement := range requirementsPayload {
		id := strings.TrimSpace(stringifyValue(requirement["id"]))
		if id != "" {
			record(id, requirement)
		}
	}

	for _, custom := range ExtractCustomRequirements(customAccessPayload) {
		id := strings.TrimSpace(stringifyValue(custom["id"]))
		if id == "" {
			continue
		}
		if existing, ok := byID[id]; ok {
			merged := make(map[string]any, len(existing)+len(custom))
			for key, value := range existing {
				merged[key] = value
			}
			for key, value := range custom {
				merged[key] = value
			}
			byID[id] = merged
			continue
		}
		record(id, custom)
	}

	merged := make([]map[string]any, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	return merged
}

func stringifyValue(value any) string {
	if value == nil {
		return ""
	}
	return stringify(value)
}

// FormatBootstrap aggregates the user document, the merged requirement list,
// and the custom-access payload into the response the browser renders.
func FormatBootstrap(userPayload map[string]any, requirementsPayload []map[string]any, customAccessPayload any) *BootstrapResponse {
	cohort := stringifyValue(userPayload["dojoCohort"])
	progressMap, _ := userPayload["progress"].(map[string]any)

	merged := MergeRequirements(requirementsPayload, customAccessPayload)

	tasks := make([]TaskItem, 0, len(merged))
	cohortSet := map[string]struct{}{}

	for _, requirement := range merged {
		requirementID := stringifyValue(requirement["id"])
		if requirementID == "" {
			continue
		}

		counts := NormalizeCounts(requirement["counts"])
		for key := range counts {
			if key != "ALL_COHORTS" {
				cohortSet[key] = struct{}{}
			}
		}
		startCount := utils.ToInt(requirement["startCount"], 0)
		progressEntry, _ := progressMap[requirementID].(map[string]any)
		isCustom := isExplicitCustomRequirement(requirement)
		timeOnly := false
		if isCustom {
			timeOnly = resolveTimeOnly(requirement, counts)
		}

		tasks = append(tasks, TaskItem{
			ID:                requirementID,
			Name:              stringifyValue(requirement["name"]),
			Category:          stringifyValue(requirement["category"]),
			Counts:            counts,
			StartCount:        startCount,
			ProgressBarSuffix: stringifyValue(requirement["progressBarSuffix"]),
			ScoreboardDisplay: stringifyValue(requirement["scoreboardDisplay"]),
			NumberOfCohorts:   utils.ToInt(requirement["numberOfCohorts"], 0),
			SortPriority:      stringifyValue(requirement["sortPriority"]),
			CurrentCount:      ResolvePreviousCount(progressEntry, cohort, startCount),
			TargetCount:       ResolveTargetCount(requirement, cohort),
			IsCustom:          isCustom,
			TimeOnly:          timeOnly,
		})
	}

	if cohort != "" {
		cohortSet[cohort] = struct{}{}
	}

	sort.Slice(tasks, func(i, j int) bool {
		left, right := tasks[i], tasks[j]
		if left.Category != right.Category {
			return left.Category < right.Category
		}
		if left.SortPriority != right.SortPriority {
			return left.SortPriority < right.SortPriority
		}
		return left.Name < right.Name
	})

	progressByID := map[string]map[string]any{}
	for key, value := range progressMap {
		if entry, ok := value.(map[string]any); ok {
			progressByID[key] = entry
		}
	}

	pinned := []string{}
	if rawPinned, ok := userPayload["pinnedTasks"].([]any); ok {
		for _, item := range rawPinned {
			pinned = append(pinned, stringifyValue(item))
		}
	}

	cohorts := make([]string, 0, len(cohortSet))
	for value := range cohortSet {
		cohorts = append(cohorts, value)
	}
	sortCohorts(cohorts)

	return &BootstrapResponse{
		User: UserInfo{
			DisplayName: stringifyValue(userPayload["displayName"]),
			DojoCohort:  cohort,
		},
		Tasks:                   tasks,
		ProgressByRequirementID: progressByID,
		PinnedTaskIDs:           pinned,
		AvailableCohorts:        cohorts,
		DefaultFilters:          map[string]string{"cohort": cohort, "category": "ALL", "search": ""},
	}
}

// sortCohorts orders cohort labels numerically by their lower rating bound,
// so "900-1000" sorts before "1500-1600" and "2400+" lands last among the
// numeric cohorts; non-numeric labels sort after all numeric ones.
func sortCohorts(cohorts []string) {
	sort.Slice(cohorts, func(i, j int) bool {
		leftBound, leftLabel := cohortSortKey(cohorts[i])
		rightBound, rightLabel := cohortSortKey(cohorts[j])
		if leftBound != rightBound {
			return leftBound < rightBound
		}
		return leftLabel < rightLabel
	})
}

func cohortSortKey(cohort string) (int, string) {
	if strings.HasSuffix(cohort, "+") {
		return utils.ToInt(strings.TrimSuffix(cohort, "+"), 9999), cohort
	}
	if left, _, found := strings.Cut(cohort, "-"); found {
		return utils.ToInt(left, 9999), cohort
	}
	return 9999, cohort
}

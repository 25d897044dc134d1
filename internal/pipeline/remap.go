package pipeline

import "strings"

// exact step-key matches reported by the external framework
var stepKeyTable = map[string]Stage{
	"data_extraction":  StageExtraction,
	"data_arrangement": StageArrangement,
	"excel_generation": StageGeneration,
	"extract_data":     StageExtraction,
	"arrange_data":     StageArrangement,
	"generate_excel":   StageGeneration,
	"generate_code":    StageGeneration,
}

// CanonicalStage remaps an event step key to one of the three
// canonical stages. The external framework may report finer-grained
// labels; consumers must never fail on an unrecognized key, so
// anything that cannot be matched falls back to StageExtraction.
func CanonicalStage(key string) Stage {
	if stage, ok := stepKeyTable[key]; ok {
		return stage
	}

	lower := strings.ToLower(key)
	switch {
	case strings.Contains(lower, "extract"):
		return StageExtraction
	case strings.Contains(lower, "arrang"):
		return StageArrangement
	case strings.Contains(lower, "excel"),
		strings.Contains(lower, "generat"),
		strings.Contains(lower, "code"):
		return StageGeneration
	}

	return StageExtraction
}

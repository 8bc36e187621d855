package progress

import "github.com/CybrosysAssista/Assista-IDE/models"

// band is the slice of stage completion a phase covers.
type band struct {
	low, high int
}

// bands roughly follow where a shallow clone of a large repository spends its time:
// most of it receiving objects.
var bands = map[models.Phase]band{
	models.PhaseEnumerate:     {5, 10},
	models.PhaseCount:         {10, 20},
	models.PhaseCompress:      {20, 35},
	models.PhaseReceive:       {35, 80},
	models.PhaseResolveDeltas: {80, 90},
	models.PhaseUpdatingFiles: {90, 99},
}

// StageCompletion maps a phase-local event to the completion of its whole stage, 0..100.
// Init maps to its fixed percent and Done to 100.
func StageCompletion(event models.ProgressEvent) int {
	switch event.Phase {
	case models.PhaseInit:
		return initPercent
	case models.PhaseDone:
		return 100
	}
	phaseBand, ok := bands[event.Phase]
	if !ok {
		return 0
	}
	percent := min(max(event.Percent, 0), 100)
	return phaseBand.low + (phaseBand.high-phaseBand.low)*percent/100
}

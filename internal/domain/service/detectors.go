package service

import (
	"FinansLab/internal/domain/models"
)

// BiasDetector derives trend direction and bias strength from the EMA stack.
type BiasDetector interface {
	Detect(snap *models.IndicatorSnapshot, bars []models.Bar) models.BiasResult
}

// FVGDetector scans bar triples for unfilled gaps and maintains their
// age/fill state across cycles.
type FVGDetector interface {
	Detect(instrument string, bars []models.Bar, atr float64) []models.FVG
}

// ScalpDetector finds the RSI-pullback / MACD-crossover micro-signal.
type ScalpDetector interface {
	Detect(snap *models.IndicatorSnapshot, bars []models.Bar, bias models.BiasResult) models.ScalpSetup
}

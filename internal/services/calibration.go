package services

import (
	"context"
	"errors"
	"time"

	"github.com/lingopair/backend/internal/models"
	"gorm.io/gorm"
)

// CalibrationService accumulates per-phrase AI-vs-human score deltas and
// serves the read side for the calibration dashboard.
type CalibrationService struct {
	db *gorm.DB
}

func NewCalibrationService(db *gorm.DB) *CalibrationService {
	return &CalibrationService{db: db}
}

// recordComparison folds one (AI, human) score pair into the phrase's
// running sums. Delta is AI minus human, so a positive mean bias means the
// AI scores too generously. Runs inside the caller's transaction.
func (s *CalibrationService) recordComparison(tx *gorm.DB, phraseID uint, ai, human Scores, now time.Time) error {
	var cal models.AICalibration
	err := tx.Where("phrase_id = ?", phraseID).First(&cal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cal = models.AICalibration{PhraseID: phraseID}
	} else if err != nil {
		return err
	}

	cal.ComparisonCount++
	cal.SumDeltaSoundAccuracy += ai.SoundAccuracy - human.SoundAccuracy
	cal.SumDeltaRhythmIntonation += ai.RhythmIntonation - human.RhythmIntonation
	cal.SumDeltaPhraseAccuracy += ai.PhraseAccuracy - human.PhraseAccuracy
	cal.SumAbsDeltaSoundAccuracy += absDelta(ai.SoundAccuracy, human.SoundAccuracy)
	cal.SumAbsDeltaRhythmIntonation += absDelta(ai.RhythmIntonation, human.RhythmIntonation)
	cal.SumAbsDeltaPhraseAccuracy += absDelta(ai.PhraseAccuracy, human.PhraseAccuracy)
	cal.LastUpdatedAt = now

	return tx.Save(&cal).Error
}

// DimensionCalibration is one score dimension's aggregate stats.
type DimensionCalibration struct {
	MeanBias     float64 `json:"mean_bias"`
	MeanAbsError float64 `json:"mean_abs_error"`
}

// PhraseCalibration summarizes how well AI scores track human scores for one
// phrase.
type PhraseCalibration struct {
	PhraseID         uint                 `json:"phrase_id"`
	ComparisonCount  int                  `json:"comparison_count"`
	SoundAccuracy    DimensionCalibration `json:"sound_accuracy"`
	RhythmIntonation DimensionCalibration `json:"rhythm_intonation"`
	PhraseAccuracy   DimensionCalibration `json:"phrase_accuracy"`
	LastUpdatedAt    time.Time            `json:"last_updated_at"`
}

// Report returns calibration rows ordered by sample size, largest first.
func (s *CalibrationService) Report(ctx context.Context, limit int) ([]PhraseCalibration, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	var rows []models.AICalibration
	if err := s.db.WithContext(ctx).
		Order("comparison_count desc, phrase_id asc").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	report := make([]PhraseCalibration, 0, len(rows))
	for _, cal := range rows {
		n := float64(cal.ComparisonCount)
		if n == 0 {
			continue
		}
		report = append(report, PhraseCalibration{
			PhraseID:        cal.PhraseID,
			ComparisonCount: cal.ComparisonCount,
			SoundAccuracy: DimensionCalibration{
				MeanBias:     float64(cal.SumDeltaSoundAccuracy) / n,
				MeanAbsError: float64(cal.SumAbsDeltaSoundAccuracy) / n,
			},
			RhythmIntonation: DimensionCalibration{
				MeanBias:     float64(cal.SumDeltaRhythmIntonation) / n,
				MeanAbsError: float64(cal.SumAbsDeltaRhythmIntonation) / n,
			},
			PhraseAccuracy: DimensionCalibration{
				MeanBias:     float64(cal.SumDeltaPhraseAccuracy) / n,
				MeanAbsError: float64(cal.SumAbsDeltaPhraseAccuracy) / n,
			},
			LastUpdatedAt: cal.LastUpdatedAt,
		})
	}
	return report, nil
}

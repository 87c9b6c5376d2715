package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quorum/internal/decision"
	"quorum/internal/store"
	storemodel "quorum/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore implements store.Store on Gorm + SQLite.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// New opens (and migrates) the decision database at path.
func New(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&storemodel.DecisionModel{}, &storemodel.ShadowTradeModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep the pool small, the refresh pass and HTTP reads are
	// the only concurrent users.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --------------------- decisions -------------------------

func (s *GormStore) SaveDecision(ctx context.Context, rec *store.DecisionRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if rec == nil {
		return nil
	}
	m, err := decisionToModel(rec)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	rec.ID = m.ID
	return nil
}

func (s *GormStore) ListDecisions(ctx context.Context, q store.DecisionQuery) ([]store.DecisionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	tx := s.db.WithContext(ctx).Model(&storemodel.DecisionModel{})
	if q.Instrument != "" {
		tx = tx.Where("instrument = ?", q.Instrument)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("created_at >= ?", q.Since.UnixMilli())
	}
	if !q.Until.IsZero() {
		tx = tx.Where("created_at < ?", q.Until.UnixMilli())
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var models []storemodel.DecisionModel
	if err := tx.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.DecisionRecord, 0, len(models))
	for i := range models {
		rec, err := decisionFromModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func decisionToModel(rec *store.DecisionRecord) (*storemodel.DecisionModel, error) {
	scores, err := json.Marshal(rec.WeightedScores)
	if err != nil {
		return nil, fmt.Errorf("marshal weighted scores: %w", err)
	}
	votes, err := json.Marshal(rec.Votes)
	if err != nil {
		return nil, fmt.Errorf("marshal votes: %w", err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return &storemodel.DecisionModel{
		ID:                rec.ID,
		Instrument:        rec.Instrument,
		Action:            string(rec.Action),
		Confidence:        rec.Confidence,
		WeightedScores:    datatypes.JSON(scores),
		DisagreementScore: rec.DisagreementScore,
		ConsensusLevel:    string(rec.ConsensusLevel),
		BypassAI:          rec.BypassAI,
		Reasoning:         rec.Reasoning,
		VotesJSON:         datatypes.JSON(votes),
		CreatedAt:         created.UnixMilli(),
	}, nil
}

func decisionFromModel(m *storemodel.DecisionModel) (*store.DecisionRecord, error) {
	rec := &store.DecisionRecord{
		ID:                m.ID,
		Instrument:        m.Instrument,
		Action:            decision.Action(m.Action),
		Confidence:        m.Confidence,
		DisagreementScore: m.DisagreementScore,
		ConsensusLevel:    decision.ConsensusLevel(m.ConsensusLevel),
		BypassAI:          m.BypassAI,
		Reasoning:         m.Reasoning,
		CreatedAt:         time.UnixMilli(m.CreatedAt),
	}
	if len(m.WeightedScores) > 0 {
		if err := json.Unmarshal(m.WeightedScores, &rec.WeightedScores); err != nil {
			return nil, fmt.Errorf("unmarshal weighted scores: %w", err)
		}
	}
	if len(m.VotesJSON) > 0 {
		if err := json.Unmarshal(m.VotesJSON, &rec.Votes); err != nil {
			return nil, fmt.Errorf("unmarshal votes: %w", err)
		}
	}
	return rec, nil
}

// --------------------- shadow trades -------------------------

func (s *GormStore) CreateShadowTrade(ctx context.Context, rec *store.ShadowTradeRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if rec == nil {
		return nil
	}
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("shadow trade id required")
	}
	return s.db.WithContext(ctx).Create(shadowToModel(rec)).Error
}

// UpdateShadowTracking only touches TRACKING rows; the WHERE clause is the
// terminal-state guard.
func (s *GormStore) UpdateShadowTracking(ctx context.Context, id string, exitPrice, pnl, pnlPct float64, at time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("gorm store not initialized")
	}
	res := s.db.WithContext(ctx).Model(&storemodel.ShadowTradeModel{}).
		Where("id = ? AND status = ?", id, storemodel.ShadowStatusTracking).
		Updates(map[string]any{
			"exit_price":      exitPrice,
			"virtual_pnl":     pnl,
			"virtual_pnl_pct": pnlPct,
			"last_refresh_at": at.UnixMilli(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CloseShadowTrade is the single-writer transition to CLOSED. The conditional
// update makes it write-once: the second closer sees zero rows affected.
func (s *GormStore) CloseShadowTrade(ctx context.Context, id string, exitPrice, pnl, pnlPct float64, at time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("gorm store not initialized")
	}
	closedAt := at.UnixMilli()
	res := s.db.WithContext(ctx).Model(&storemodel.ShadowTradeModel{}).
		Where("id = ? AND status = ?", id, storemodel.ShadowStatusTracking).
		Updates(map[string]any{
			"status":          storemodel.ShadowStatusClosed,
			"exit_price":      exitPrice,
			"virtual_pnl":     pnl,
			"virtual_pnl_pct": pnlPct,
			"last_refresh_at": closedAt,
			"closed_at":       closedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) GetShadowTrade(ctx context.Context, id string) (*store.ShadowTradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var m storemodel.ShadowTradeModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rec := shadowFromModel(&m)
	return &rec, nil
}

func (s *GormStore) ListShadowTrades(ctx context.Context, q store.ShadowQuery) ([]store.ShadowTradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	tx := s.db.WithContext(ctx).Model(&storemodel.ShadowTradeModel{})
	if q.Instrument != "" {
		tx = tx.Where("instrument = ?", q.Instrument)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("created_at >= ?", q.Since.UnixMilli())
	}
	if !q.Until.IsZero() {
		tx = tx.Where("created_at < ?", q.Until.UnixMilli())
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var models []storemodel.ShadowTradeModel
	if err := tx.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.ShadowTradeRecord, 0, len(models))
	for i := range models {
		out = append(out, shadowFromModel(&models[i]))
	}
	return out, nil
}

func shadowToModel(rec *store.ShadowTradeRecord) *storemodel.ShadowTradeModel {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	status := rec.Status
	if status == "" {
		status = storemodel.ShadowStatusTracking
	}
	m := &storemodel.ShadowTradeModel{
		ID:                rec.ID,
		Instrument:        rec.Instrument,
		Action:            string(rec.Action),
		EntryPrice:        rec.EntryPrice,
		Quantity:          rec.Quantity,
		RejectionReason:   rec.RejectionReason,
		RejectionCode:     rec.RejectionCode,
		TrackingWindowSec: int64(rec.TrackingWindow / time.Second),
		Status:            status,
		ExitPrice:         rec.ExitPrice,
		VirtualPnL:        rec.VirtualPnL,
		VirtualPnLPct:     rec.VirtualPnLPct,
		CreatedAt:         created.UnixMilli(),
	}
	if !rec.LastRefreshAt.IsZero() {
		m.LastRefreshAt = rec.LastRefreshAt.UnixMilli()
	}
	if rec.ClosedAt != nil {
		ts := rec.ClosedAt.UnixMilli()
		m.ClosedAt = &ts
	}
	return m
}

func shadowFromModel(m *storemodel.ShadowTradeModel) store.ShadowTradeRecord {
	rec := store.ShadowTradeRecord{
		ID:              m.ID,
		Instrument:      m.Instrument,
		Action:          decision.Action(m.Action),
		EntryPrice:      m.EntryPrice,
		Quantity:        m.Quantity,
		RejectionReason: m.RejectionReason,
		RejectionCode:   m.RejectionCode,
		TrackingWindow:  time.Duration(m.TrackingWindowSec) * time.Second,
		Status:          m.Status,
		ExitPrice:       m.ExitPrice,
		VirtualPnL:      m.VirtualPnL,
		VirtualPnLPct:   m.VirtualPnLPct,
		CreatedAt:       time.UnixMilli(m.CreatedAt),
	}
	if m.LastRefreshAt > 0 {
		rec.LastRefreshAt = time.UnixMilli(m.LastRefreshAt)
	}
	if m.ClosedAt != nil {
		ts := time.UnixMilli(*m.ClosedAt)
		rec.ClosedAt = &ts
	}
	return rec
}

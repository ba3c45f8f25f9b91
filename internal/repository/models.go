package repository

import (
	"time"

	"github.com/kursadbilgin/kitchen-engine/internal/domain"
)

// ProcessTypeModel is the persistence model for the process_types table.
type ProcessTypeModel struct {
	ID                      string  `gorm:"type:uuid;primaryKey"`
	Name                    string  `gorm:"type:varchar(120);not null;uniqueIndex"`
	StandardDurationMinutes float64 `gorm:"type:numeric(10,3);not null"`
	VarianceBufferMinutes   float64 `gorm:"type:numeric(10,3);not null;default:0"`
	Position                int     `gorm:"not null;default:0"`
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (ProcessTypeModel) TableName() string {
	return "process_types"
}

// BatchModel is the persistence model for batches.
type BatchModel struct {
	ID                   string             `gorm:"type:uuid;primaryKey"`
	ProductID            string             `gorm:"type:varchar(120);not null"`
	InputQuantity        float64            `gorm:"type:numeric(12,3);not null"`
	Status               domain.BatchStatus `gorm:"type:varchar(20);not null"`
	StartTime            *time.Time         `gorm:"type:timestamptz"`
	EndTime              *time.Time         `gorm:"type:timestamptz"`
	TotalDurationMinutes *float64           `gorm:"type:double precision"`
	ValidationStatus     *domain.Verdict    `gorm:"type:varchar(20)"`
	ActiveInstanceID     *string            `gorm:"type:uuid"`
	ValidatedBy          *domain.Role       `gorm:"type:varchar(20)"`
	ValidatedAt          *time.Time         `gorm:"type:timestamptz"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (BatchModel) TableName() string {
	return "batches"
}

// ProcessInstanceModel is the persistence model for process_instances.
type ProcessInstanceModel struct {
	ID            string     `gorm:"type:uuid;primaryKey"`
	BatchID       string     `gorm:"type:uuid;not null"`
	ProcessTypeID string     `gorm:"type:uuid;not null"`
	Sequence      int        `gorm:"not null"`
	StartTime     *time.Time `gorm:"type:timestamptz"`
	EndTime       *time.Time `gorm:"type:timestamptz"`
	Remarks       *string    `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (ProcessInstanceModel) TableName() string {
	return "process_instances"
}

// BatchEventModel is the persistence model for batch_events.
type BatchEventModel struct {
	ID            string           `gorm:"type:uuid;primaryKey"`
	BatchID       string           `gorm:"type:uuid;not null"`
	InstanceID    *string          `gorm:"type:uuid"`
	Type          domain.EventType `gorm:"type:varchar(30);not null"`
	CorrelationID string           `gorm:"type:varchar(64);not null;default:''"`
	Verdict       *domain.Verdict  `gorm:"type:varchar(20)"`
	OccurredAt    time.Time        `gorm:"type:timestamptz;not null"`
	CreatedAt     time.Time
}

func (BatchEventModel) TableName() string {
	return "batch_events"
}

func processTypeModelFromDomain(p *domain.ProcessType) *ProcessTypeModel {
	if p == nil {
		return nil
	}

	return &ProcessTypeModel{
		ID:                      p.ID,
		Name:                    p.Name,
		StandardDurationMinutes: p.StandardDurationMinutes,
		VarianceBufferMinutes:   p.VarianceBufferMinutes,
		Position:                p.Position,
		CreatedAt:               p.CreatedAt,
		UpdatedAt:               p.UpdatedAt,
	}
}

func processTypeModelToDomain(m *ProcessTypeModel) *domain.ProcessType {
	if m == nil {
		return nil
	}

	return &domain.ProcessType{
		ID:                      m.ID,
		Name:                    m.Name,
		StandardDurationMinutes: m.StandardDurationMinutes,
		VarianceBufferMinutes:   m.VarianceBufferMinutes,
		Position:                m.Position,
		CreatedAt:               m.CreatedAt,
		UpdatedAt:               m.UpdatedAt,
	}
}

func batchModelFromDomain(b *domain.Batch) *BatchModel {
	if b == nil {
		return nil
	}

	return &BatchModel{
		ID:                   b.ID,
		ProductID:            b.ProductID,
		InputQuantity:        b.InputQuantity,
		Status:               b.Status,
		StartTime:            b.StartTime,
		EndTime:              b.EndTime,
		TotalDurationMinutes: b.TotalDurationMinutes,
		ValidationStatus:     b.ValidationStatus,
		ActiveInstanceID:     b.ActiveInstanceID,
		ValidatedBy:          b.ValidatedBy,
		ValidatedAt:          b.ValidatedAt,
		CreatedAt:            b.CreatedAt,
		UpdatedAt:            b.UpdatedAt,
	}
}

func batchModelToDomain(m *BatchModel) *domain.Batch {
	if m == nil {
		return nil
	}

	return &domain.Batch{
		ID:                   m.ID,
		ProductID:            m.ProductID,
		InputQuantity:        m.InputQuantity,
		Status:               m.Status,
		StartTime:            m.StartTime,
		EndTime:              m.EndTime,
		TotalDurationMinutes: m.TotalDurationMinutes,
		ValidationStatus:     m.ValidationStatus,
		ActiveInstanceID:     m.ActiveInstanceID,
		ValidatedBy:          m.ValidatedBy,
		ValidatedAt:          m.ValidatedAt,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func instanceModelFromDomain(p *domain.ProcessInstance) *ProcessInstanceModel {
	if p == nil {
		return nil
	}

	return &ProcessInstanceModel{
		ID:            p.ID,
		BatchID:       p.BatchID,
		ProcessTypeID: p.ProcessTypeID,
		Sequence:      p.Sequence,
		StartTime:     p.StartTime,
		EndTime:       p.EndTime,
		Remarks:       p.Remarks,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func instanceModelToDomain(m *ProcessInstanceModel) *domain.ProcessInstance {
	if m == nil {
		return nil
	}

	return &domain.ProcessInstance{
		ID:            m.ID,
		BatchID:       m.BatchID,
		ProcessTypeID: m.ProcessTypeID,
		Sequence:      m.Sequence,
		StartTime:     m.StartTime,
		EndTime:       m.EndTime,
		Remarks:       m.Remarks,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func eventModelFromDomain(e *domain.BatchEvent) *BatchEventModel {
	if e == nil {
		return nil
	}

	return &BatchEventModel{
		ID:            e.ID,
		BatchID:       e.BatchID,
		InstanceID:    e.InstanceID,
		Type:          e.Type,
		CorrelationID: e.CorrelationID,
		Verdict:       e.Verdict,
		OccurredAt:    e.OccurredAt,
		CreatedAt:     e.CreatedAt,
	}
}

func eventModelToDomain(m *BatchEventModel) *domain.BatchEvent {
	if m == nil {
		return nil
	}

	return &domain.BatchEvent{
		ID:            m.ID,
		BatchID:       m.BatchID,
		InstanceID:    m.InstanceID,
		Type:          m.Type,
		CorrelationID: m.CorrelationID,
		Verdict:       m.Verdict,
		OccurredAt:    m.OccurredAt,
		CreatedAt:     m.CreatedAt,
	}
}

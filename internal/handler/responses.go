package handler

import (
	"time"

	"github.com/kursadbilgin/kitchen-engine/internal/classifier"
	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"github.com/kursadbilgin/kitchen-engine/internal/service"
)

type processTypeResponse struct {
	ID                      string  `json:"id"`
	Name                    string  `json:"name"`
	StandardDurationMinutes float64 `json:"standardDurationMinutes"`
	VarianceBufferMinutes   float64 `json:"varianceBufferMinutes"`
	Position                int     `json:"position"`
}

type batchResponse struct {
	ID                   string     `json:"id"`
	ProductID            string     `json:"productId"`
	InputQuantity        float64    `json:"inputQuantity"`
	Status               string     `json:"status"`
	StartTime            *time.Time `json:"startTime,omitempty"`
	EndTime              *time.Time `json:"endTime,omitempty"`
	TotalDurationMinutes *float64   `json:"totalDurationMinutes,omitempty"`
	ValidationStatus     *string    `json:"validationStatus,omitempty"`
	ActiveInstanceID     *string    `json:"activeInstanceId,omitempty"`
	ValidatedBy          *string    `json:"validatedBy,omitempty"`
	ValidatedAt          *time.Time `json:"validatedAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt,omitempty"`
	UpdatedAt            time.Time  `json:"updatedAt,omitempty"`
}

type instanceResponse struct {
	ID            string     `json:"id"`
	BatchID       string     `json:"batchId"`
	ProcessTypeID string     `json:"processTypeId"`
	Sequence      int        `json:"sequence"`
	State         string     `json:"state"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	Remarks       *string    `json:"remarks,omitempty"`
}

type batchDetailResponse struct {
	Batch        batchResponse      `json:"batch"`
	Timeline     []instanceResponse `json:"timeline"`
	CurrentIndex int                `json:"currentIndex"`
}

type listBatchesResponse struct {
	Data []batchResponse `json:"data"`
	Meta listMeta        `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type stepResponse struct {
	Step           instanceResponse `json:"step"`
	BatchComplete  bool             `json:"batchComplete"`
	NextInstanceID string           `json:"nextInstanceId,omitempty"`
}

type assessmentResponse struct {
	InstanceID       string  `json:"instanceId"`
	ProcessTypeID    string  `json:"processTypeId"`
	ActualMinutes    float64 `json:"actualMinutes"`
	LowerMinutes     float64 `json:"lowerMinutes"`
	UpperMinutes     float64 `json:"upperMinutes"`
	DeviationMinutes float64 `json:"deviationMinutes"`
	Deviant          bool    `json:"deviant"`
	Gross            bool    `json:"gross"`
}

type validationResponse struct {
	Batch   batchResponse        `json:"batch"`
	Verdict string               `json:"verdict"`
	Steps   []assessmentResponse `json:"steps"`
}

type clockResponse struct {
	BatchID          string     `json:"batchId"`
	InstanceID       string     `json:"instanceId"`
	ProcessTypeID    string     `json:"processTypeId"`
	Sequence         int        `json:"sequence"`
	State            string     `json:"state"`
	StartTime        *time.Time `json:"startTime,omitempty"`
	ElapsedSeconds   float64    `json:"elapsedSeconds"`
	StandardMinutes  float64    `json:"standardMinutes"`
	RemainingMinutes float64    `json:"remainingMinutes"`
	ReadAt           time.Time  `json:"readAt"`
}

func toProcessTypeResponses(types []domain.ProcessType) []processTypeResponse {
	out := make([]processTypeResponse, 0, len(types))
	for _, pt := range types {
		out = append(out, processTypeResponse{
			ID:                      pt.ID,
			Name:                    pt.Name,
			StandardDurationMinutes: pt.StandardDurationMinutes,
			VarianceBufferMinutes:   pt.VarianceBufferMinutes,
			Position:                pt.Position,
		})
	}
	return out
}

func toBatchResponse(b *domain.Batch) batchResponse {
	if b == nil {
		return batchResponse{}
	}

	resp := batchResponse{
		ID:                   b.ID,
		ProductID:            b.ProductID,
		InputQuantity:        b.InputQuantity,
		Status:               b.Status.String(),
		StartTime:            b.StartTime,
		EndTime:              b.EndTime,
		TotalDurationMinutes: b.TotalDurationMinutes,
		ActiveInstanceID:     b.ActiveInstanceID,
		ValidatedAt:          b.ValidatedAt,
		CreatedAt:            b.CreatedAt,
		UpdatedAt:            b.UpdatedAt,
	}
	if b.ValidationStatus != nil {
		verdict := b.ValidationStatus.String()
		resp.ValidationStatus = &verdict
	}
	if b.ValidatedBy != nil {
		role := b.ValidatedBy.String()
		resp.ValidatedBy = &role
	}
	return resp
}

func toBatchResponses(batches []domain.Batch) []batchResponse {
	out := make([]batchResponse, 0, len(batches))
	for i := range batches {
		out = append(out, toBatchResponse(&batches[i]))
	}
	return out
}

func toInstanceResponse(p *domain.ProcessInstance) instanceResponse {
	if p == nil {
		return instanceResponse{}
	}
	return instanceResponse{
		ID:            p.ID,
		BatchID:       p.BatchID,
		ProcessTypeID: p.ProcessTypeID,
		Sequence:      p.Sequence,
		State:         p.State().String(),
		StartTime:     p.StartTime,
		EndTime:       p.EndTime,
		Remarks:       p.Remarks,
	}
}

func toBatchDetailResponse(d *service.BatchDetail) batchDetailResponse {
	timeline := make([]instanceResponse, 0, len(d.Timeline))
	for i := range d.Timeline {
		timeline = append(timeline, toInstanceResponse(&d.Timeline[i]))
	}
	return batchDetailResponse{
		Batch:        toBatchResponse(&d.Batch),
		Timeline:     timeline,
		CurrentIndex: d.CurrentIndex,
	}
}

func toValidationResponse(o *service.ValidationOutcome) validationResponse {
	return validationResponse{
		Batch:   toBatchResponse(&o.Batch),
		Verdict: o.Result.Verdict.String(),
		Steps:   toAssessmentResponses(o.Result.Steps),
	}
}

func toAssessmentResponses(steps []classifier.StepAssessment) []assessmentResponse {
	out := make([]assessmentResponse, 0, len(steps))
	for _, s := range steps {
		out = append(out, assessmentResponse{
			InstanceID:       s.InstanceID,
			ProcessTypeID:    s.ProcessTypeID,
			ActualMinutes:    s.ActualMinutes,
			LowerMinutes:     s.LowerMinutes,
			UpperMinutes:     s.UpperMinutes,
			DeviationMinutes: s.DeviationMinutes,
			Deviant:          s.Deviant,
			Gross:            s.Gross,
		})
	}
	return out
}

func toClockResponse(r domain.ClockReading) clockResponse {
	return clockResponse{
		BatchID:          r.BatchID,
		InstanceID:       r.InstanceID,
		ProcessTypeID:    r.ProcessTypeID,
		Sequence:         r.Sequence,
		State:            r.State.String(),
		StartTime:        r.StartTime,
		ElapsedSeconds:   r.Elapsed.Seconds(),
		StandardMinutes:  r.StandardMinutes,
		RemainingMinutes: r.RemainingMinutes,
		ReadAt:           r.ReadAt,
	}
}

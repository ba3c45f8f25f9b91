package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kursadbilgin/kitchen-engine/internal/batchlock"
	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"github.com/kursadbilgin/kitchen-engine/internal/queue"
	"github.com/kursadbilgin/kitchen-engine/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres repositories. Start,
// End and the batch status updates mirror the conditional updates of the
// gorm implementations.
type memStore struct {
	mu        sync.Mutex
	types     []domain.ProcessType
	batches   map[string]domain.Batch
	instances map[string]domain.ProcessInstance
	failures  map[string][]error
	calls     map[string]int
}

func newMemStore(types ...domain.ProcessType) *memStore {
	return &memStore{
		types:     types,
		batches:   make(map[string]domain.Batch),
		instances: make(map[string]domain.ProcessInstance),
		failures:  make(map[string][]error),
		calls:     make(map[string]int),
	}
}

// failNext queues errs to be returned by the next calls to op.
func (s *memStore) failNext(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], errs...)
}

func (s *memStore) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// enter must be called with s.mu held.
func (s *memStore) enter(op string) error {
	s.calls[op]++
	if queued := s.failures[op]; len(queued) > 0 {
		s.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (s *memStore) batch(id string) domain.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[id]
}

func (s *memStore) instance(id string) domain.ProcessInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instances[id]
}

func (s *memStore) activeCount(batchID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, inst := range s.instances {
		if inst.BatchID == batchID && inst.IsActive() {
			n++
		}
	}
	return n
}

func (s *memStore) timelineLocked(batchID string) []domain.ProcessInstance {
	out := make([]domain.ProcessInstance, 0)
	for _, inst := range s.instances {
		if inst.BatchID == batchID {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

type memTypes struct{ *memStore }

var _ repository.ProcessTypeRepository = memTypes{}

func (s memTypes) List(ctx context.Context) ([]domain.ProcessType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("types.List"); err != nil {
		return nil, err
	}
	out := append([]domain.ProcessType(nil), s.types...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s memTypes) Upsert(ctx context.Context, p *domain.ProcessType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("types.Upsert"); err != nil {
		return err
	}
	for i := range s.types {
		if s.types[i].Name == p.Name {
			id := s.types[i].ID
			s.types[i] = *p
			s.types[i].ID = id
			p.ID = id
			return nil
		}
	}
	s.types = append(s.types, *p)
	return nil
}

type memBatches struct{ *memStore }

var _ repository.BatchRepository = memBatches{}

func (s memBatches) Create(ctx context.Context, b *domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("batches.Create"); err != nil {
		return err
	}
	s.batches[b.ID] = *b
	return nil
}

func (s memBatches) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("batches.GetByID"); err != nil {
		return nil, err
	}
	b, ok := s.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, id)
	}
	return &b, nil
}

func (s memBatches) List(ctx context.Context, params repository.BatchListParams) ([]domain.Batch, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("batches.List"); err != nil {
		return nil, 0, err
	}
	all := make([]domain.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		if params.Status == nil || b.Status == *params.Status {
			all = append(all, b)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start := (params.Page - 1) * params.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + params.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (s memBatches) MarkCompleted(ctx context.Context, id string, endTime time.Time, totalMinutes float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("batches.MarkCompleted"); err != nil {
		return err
	}
	b, ok := s.batches[id]
	if !ok {
		return fmt.Errorf("%w: batch %s", domain.ErrNotFound, id)
	}
	if b.Status != domain.BatchStatusInProgress || b.ActiveInstanceID != nil {
		return fmt.Errorf("%w: batch %s is %s", domain.ErrInvalidStatusTransition, id, b.Status)
	}
	b.Status = domain.BatchStatusCompleted
	b.EndTime = &endTime
	b.TotalDurationMinutes = &totalMinutes
	s.batches[id] = b
	return nil
}

func (s memBatches) MarkValidated(ctx context.Context, id string, from domain.BatchStatus, verdict domain.Verdict, by domain.Role, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("batches.MarkValidated"); err != nil {
		return err
	}
	b, ok := s.batches[id]
	if !ok {
		return fmt.Errorf("%w: batch %s", domain.ErrNotFound, id)
	}
	if b.Status != from {
		return fmt.Errorf("%w: batch %s is %s", domain.ErrInvalidStatusTransition, id, b.Status)
	}
	b.Status = domain.BatchStatusValidated
	b.ValidationStatus = &verdict
	b.ValidatedBy = &by
	b.ValidatedAt = &at
	s.batches[id] = b
	return nil
}

type memInstances struct{ *memStore }

var _ repository.InstanceRepository = memInstances{}

func (s memInstances) ListByBatch(ctx context.Context, batchID string) ([]domain.ProcessInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("instances.ListByBatch"); err != nil {
		return nil, err
	}
	return s.timelineLocked(batchID), nil
}

func (s memInstances) GetByID(ctx context.Context, id string) (*domain.ProcessInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("instances.GetByID"); err != nil {
		return nil, err
	}
	inst, ok := s.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: step %s", domain.ErrNotFound, id)
	}
	return &inst, nil
}

func (s memInstances) CreateSequence(ctx context.Context, batchID string, instances []*domain.ProcessInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("instances.CreateSequence"); err != nil {
		return err
	}
	if len(s.timelineLocked(batchID)) > 0 {
		return fmt.Errorf("%w: batch %s", domain.ErrAlreadyInitialized, batchID)
	}
	for _, inst := range instances {
		s.instances[inst.ID] = *inst
	}
	return nil
}

func (s memInstances) Persist(ctx context.Context, instance *domain.ProcessInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("instances.Persist"); err != nil {
		return err
	}
	stored, ok := s.instances[instance.ID]
	if !ok {
		return fmt.Errorf("%w: step %s", domain.ErrNotFound, instance.ID)
	}
	apply, err := domain.ReconcileUpdate(&stored, instance)
	if err != nil {
		return err
	}
	if apply {
		stored.Remarks = instance.Remarks
		s.instances[instance.ID] = stored
	}
	*instance = stored
	return nil
}

func (s memInstances) Start(ctx context.Context, batchID string, instanceID string, startedAt time.Time, remarks *string) (*domain.ProcessInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("instances.Start"); err != nil {
		return nil, err
	}
	b := s.batches[batchID]
	if b.Status != domain.BatchStatusInProgress || b.ActiveInstanceID != nil {
		return nil, fmt.Errorf("%w: batch %s already has an active step", domain.ErrAlreadyActive, batchID)
	}
	inst, ok := s.instances[instanceID]
	if !ok || inst.BatchID != batchID || inst.StartTime != nil {
		return nil, fmt.Errorf("%w: step %s was already started", domain.ErrAlreadyActive, instanceID)
	}
	id := instanceID
	b.ActiveInstanceID = &id
	s.batches[batchID] = b
	inst.StartTime = &startedAt
	inst.Remarks = remarks
	s.instances[instanceID] = inst
	return &inst, nil
}

func (s memInstances) End(ctx context.Context, batchID string, instanceID string, endedAt time.Time, remarks *string) (*domain.ProcessInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("instances.End"); err != nil {
		return nil, err
	}
	inst, ok := s.instances[instanceID]
	if !ok || inst.BatchID != batchID || !inst.IsActive() {
		return nil, fmt.Errorf("%w: step %s", domain.ErrNotActive, instanceID)
	}
	inst.EndTime = &endedAt
	inst.Remarks = remarks
	s.instances[instanceID] = inst
	if b := s.batches[batchID]; b.ActiveInstanceID != nil && *b.ActiveInstanceID == instanceID {
		b.ActiveInstanceID = nil
		s.batches[batchID] = b
	}
	return &inst, nil
}

type fakeEventRepo struct {
	createFn      func(ctx context.Context, e *domain.BatchEvent) error
	listByBatchFn func(ctx context.Context, batchID string) ([]domain.BatchEvent, error)
}

func (f *fakeEventRepo) Create(ctx context.Context, e *domain.BatchEvent) error {
	if f.createFn != nil {
		return f.createFn(ctx, e)
	}
	return nil
}

func (f *fakeEventRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.BatchEvent, error) {
	if f.listByBatchFn != nil {
		return f.listByBatchFn(ctx, batchID)
	}
	return nil, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []queue.BatchEvent
	publishFn func(ctx context.Context, queueName string, msg queue.BatchEvent) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.BatchEvent) error {
	f.mu.Lock()
	f.published = append(f.published, msg)
	f.mu.Unlock()
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) types() []domain.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.EventType, 0, len(f.published))
	for _, msg := range f.published {
		out = append(out, msg.Type)
	}
	return out
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queue string, handler queue.MessageHandler) error
	closeFn   func() error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	return nil
}

func (f *fakeConsumer) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

type fakeRoles struct {
	currentRoleFn func(ctx context.Context) (domain.Role, error)
}

func (f *fakeRoles) CurrentRole(ctx context.Context) (domain.Role, error) {
	if f.currentRoleFn != nil {
		return f.currentRoleFn(ctx)
	}
	return domain.RoleNone, nil
}

// noopLocker lets every caller through so tests can race the store's
// compare-and-set directly.
type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string) (batchlock.Unlock, error) {
	return func(context.Context) error { return nil }, nil
}

type fakeLocker struct {
	acquireFn func(ctx context.Context, batchID string) (batchlock.Unlock, error)
}

func (f *fakeLocker) Acquire(ctx context.Context, batchID string) (batchlock.Unlock, error) {
	return f.acquireFn(ctx, batchID)
}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func noSleep(context.Context, time.Duration) error { return nil }

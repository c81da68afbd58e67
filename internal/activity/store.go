package activity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	CreateInstance(ctx context.Context, in Instance) (Instance, error)
	GetInstance(ctx context.Context, id int64) (Instance, error)
	SetAssignment(ctx context.Context, instanceID, courseID int64, filename *string) error

	SetQuestions(ctx context.Context, instanceID int64, qs []Question) error
	ListQuestions(ctx context.Context, instanceID int64) ([]Question, error)
	GetQuestion(ctx context.Context, instanceID int64, nr int) (Question, error)

	// UpsertPoints writes one row per entry of pts (only QuestionNr and Points
	// are read). Existing rows keep their position; new rows are appended in
	// the order given.
	UpsertPoints(ctx context.Context, instanceID int64, user string, pts []Points) error
	// ListPoints returns the rows of (instance, user) in insertion order.
	ListPoints(ctx context.Context, instanceID int64, user string) ([]Points, error)
}

type memoryStore struct {
	mu        sync.RWMutex
	seq       int64
	instances map[int64]Instance
	questions map[int64]map[int]Question
	points    []Points
}

func NewInMemoryStore() Store {
	return &memoryStore{
		instances: map[int64]Instance{},
		questions: map[int64]map[int]Question{},
	}
}

func (m *memoryStore) CreateInstance(_ context.Context, in Instance) (Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	in.ID = m.seq
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	m.instances[in.ID] = in
	return in, nil
}

func (m *memoryStore) GetInstance(_ context.Context, id int64) (Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.instances[id]
	if !ok {
		return Instance{}, ErrNotFound
	}
	return in, nil
}

func (m *memoryStore) SetAssignment(_ context.Context, instanceID, courseID int64, filename *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.instances[instanceID]
	if !ok || in.CourseID != courseID {
		return ErrNotFound
	}
	in.Assignment = filename
	m.instances[instanceID] = in
	return nil
}

func (m *memoryStore) SetQuestions(_ context.Context, instanceID int64, qs []Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byNr := make(map[int]Question, len(qs))
	for _, q := range qs {
		q.InstanceID = instanceID
		byNr[q.QuestionNr] = q
	}
	m.questions[instanceID] = byNr
	return nil
}

func (m *memoryStore) ListQuestions(_ context.Context, instanceID int64) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Question, 0, len(m.questions[instanceID]))
	for _, q := range m.questions[instanceID] {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionNr < out[j].QuestionNr })
	return out, nil
}

func (m *memoryStore) GetQuestion(_ context.Context, instanceID int64, nr int) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[instanceID][nr]
	if !ok {
		return Question{}, ErrNotFound
	}
	return q, nil
}

func (m *memoryStore) UpsertPoints(_ context.Context, instanceID int64, user string, pts []Points) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, in := range pts {
		found := false
		for i := range m.points {
			p := &m.points[i]
			if p.InstanceID == instanceID && p.User == user && p.QuestionNr == in.QuestionNr {
				p.Points = in.Points
				found = true
				break
			}
		}
		if !found {
			m.seq++
			m.points = append(m.points, Points{ID: m.seq, InstanceID: instanceID, User: user, QuestionNr: in.QuestionNr, Points: in.Points})
		}
	}
	return nil
}

func (m *memoryStore) ListPoints(_ context.Context, instanceID int64, user string) ([]Points, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Points
	for _, p := range m.points {
		if p.InstanceID == instanceID && p.User == user {
			out = append(out, p)
		}
	}
	return out, nil
}

package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/dsmolchanov/clinic-scheduler/internal/compaction"
)

// ErrClinicNotFound is returned by ClinicStore implementations when no
// profile exists for the requested clinic id.
var ErrClinicNotFound = errors.New("pipeline: clinic not found")

// MemoryClinicStore is an in-process ClinicStore for single-node
// deployments and local development, seeded once at startup from
// configuration rather than a relational clinic directory.
type MemoryClinicStore struct {
	mu      sync.RWMutex
	clinics map[string]ClinicProfile
}

// NewMemoryClinicStore builds a MemoryClinicStore pre-seeded with profiles.
func NewMemoryClinicStore(profiles ...ClinicProfile) *MemoryClinicStore {
	s := &MemoryClinicStore{clinics: make(map[string]ClinicProfile, len(profiles))}
	for _, p := range profiles {
		s.clinics[p.ClinicID] = p
	}
	return s
}

// Put adds or replaces a clinic profile.
func (s *MemoryClinicStore) Put(profile ClinicProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clinics[profile.ClinicID] = profile
}

func (s *MemoryClinicStore) Clinic(ctx context.Context, clinicID string) (ClinicProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.clinics[clinicID]
	if !ok {
		return ClinicProfile{}, ErrClinicNotFound
	}
	return profile, nil
}

// MemoryPatientStore is an in-process PatientStore, keyed by (clinic,
// phone). Unknown patients resolve to a blank profile rather than an
// error: a first-time caller is a normal case, not a lookup failure.
type MemoryPatientStore struct {
	mu       sync.RWMutex
	patients map[string]PatientProfile
}

// NewMemoryPatientStore builds an empty MemoryPatientStore.
func NewMemoryPatientStore() *MemoryPatientStore {
	return &MemoryPatientStore{patients: make(map[string]PatientProfile)}
}

// Upsert records a patient profile under (clinicID, phone).
func (s *MemoryPatientStore) Upsert(clinicID, phone string, profile PatientProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[patientKey(clinicID, phone)] = profile
}

func (s *MemoryPatientStore) Patient(ctx context.Context, clinicID, phone string) (PatientProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.patients[patientKey(clinicID, phone)]
	if !ok {
		return PatientProfile{Phone: phone}, nil
	}
	return profile, nil
}

func patientKey(clinicID, phone string) string { return clinicID + "|" + phone }

// MemoryConversationStore is an in-process HistoryStore, and doubles as the
// append-only log the pipeline's post-processing step writes to so the
// next turn's hydration sees this turn's exchange.
type MemoryConversationStore struct {
	mu       sync.Mutex
	messages map[string][]HistoryMessage
}

// NewMemoryConversationStore builds an empty MemoryConversationStore.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{messages: make(map[string][]HistoryMessage)}
}

// Append records one turn's worth of messages for a session.
func (s *MemoryConversationStore) Append(sessionID string, msgs ...HistoryMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[sessionID] = append(s.messages[sessionID], msgs...)
}

// History returns the most recent messages for a session whose estimated
// token cost (4 characters per token, matching the teacher's provider
// adapters' estimator) fits within tokenBudget.
func (s *MemoryConversationStore) History(ctx context.Context, sessionID string, tokenBudget int) ([]HistoryMessage, error) {
	s.mu.Lock()
	all := append([]HistoryMessage(nil), s.messages[sessionID]...)
	s.mu.Unlock()

	if tokenBudget <= 0 || len(all) == 0 {
		return all, nil
	}

	budget := tokenBudget
	cut := len(all)
	for i := len(all) - 1; i >= 0; i-- {
		cost := len(all[i].Content) / 4
		if cost > budget {
			cut = i + 1
			break
		}
		budget -= cost
		cut = i
	}
	return all[cut:], nil
}

// All returns every recorded message for a session, for callers (the
// summarizer) that want the full transcript rather than a bounded window.
func (s *MemoryConversationStore) All(sessionID string) []HistoryMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryMessage(nil), s.messages[sessionID]...)
}

// FullHistory implements summarizer.HistoryStore by converting a session's
// full transcript into compaction.Message, the shape the summarizer's
// chunking and merging passes operate on.
func (s *MemoryConversationStore) FullHistory(ctx context.Context, sessionID string) ([]compaction.Message, error) {
	msgs := s.All(sessionID)
	out := make([]compaction.Message, len(msgs))
	for i, m := range msgs {
		out[i] = compaction.Message{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp.Unix(),
		}
	}
	return out, nil
}

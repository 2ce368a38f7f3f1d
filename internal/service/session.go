package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/clinicathon/patientsim/internal/ai"
	"github.com/clinicathon/patientsim/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SessionService owns the practice-session state machine. It mediates
// between callers, the dialogue registry, the transcript store and the
// AI gateway.
type SessionService struct {
	sessions    domain.SessionRepository
	transcripts domain.TranscriptRepository
	registry    domain.DialogueRegistry
	catalog     domain.CatalogRepository
	engines     *ai.Router
	evaluations *EvaluationService

	// relays holds the ids of sessions with a relay in flight. One
	// in-flight relay per session; a second call fails fast instead of
	// interleaving transcripts.
	relays sync.Map
}

// NewSessionService creates a new session service
func NewSessionService(
	sessions domain.SessionRepository,
	transcripts domain.TranscriptRepository,
	registry domain.DialogueRegistry,
	catalog domain.CatalogRepository,
	engines *ai.Router,
	evaluations *EvaluationService,
) *SessionService {
	return &SessionService{
		sessions:    sessions,
		transcripts: transcripts,
		registry:    registry,
		catalog:     catalog,
		engines:     engines,
		evaluations: evaluations,
	}
}

// Start opens a new practice session: any other active session of the
// owner is abandoned, the engine produces the patient's opening turn,
// and both the session and the turn are persisted before returning.
func (s *SessionService) Start(ctx context.Context, ownerID, scenarioID uuid.UUID, personaID *uuid.UUID, mode domain.SessionMode, examID *uuid.UUID) (*domain.Session, *domain.Turn, error) {
	scenario, err := s.catalog.GetScenario(ctx, scenarioID)
	if err != nil {
		return nil, nil, err
	}

	pid := scenario.DefaultPersonaID
	if personaID != nil {
		pid = *personaID
	}
	persona, err := s.catalog.GetPersona(ctx, pid)
	if err != nil {
		return nil, nil, err
	}

	// Supersede, not reject: a new start force-abandons whatever the
	// owner had active.
	if err := s.abandonActive(ctx, ownerID); err != nil {
		return nil, nil, err
	}

	provider, err := s.engines.Default()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
	}

	script := ai.ComposeScript(scenario.Script, persona.Script)
	opening, err := provider.OpenSession(ctx, script)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
	}

	now := time.Now()
	session := &domain.Session{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		ScenarioID: scenarioID,
		PersonaID:  pid,
		Mode:       mode,
		State:      domain.SessionActive,
		ExamID:     examID,
		StartedAt:  now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		// The store's one-active-per-owner index rejects the insert when
		// a concurrent start activated a session after our supersede
		// pass. Abandon the racer and retry once.
		if !errors.Is(err, domain.ErrSessionConflict) {
			return nil, nil, err
		}
		if err := s.abandonActive(ctx, ownerID); err != nil {
			return nil, nil, err
		}
		if err := s.sessions.Create(ctx, session); err != nil {
			return nil, nil, err
		}
	}

	turn := &domain.Turn{
		ID:        uuid.New(),
		SessionID: session.ID,
		Speaker:   domain.SpeakerAgent,
		Content:   opening,
		CreatedAt: now,
	}
	if err := s.transcripts.Append(ctx, turn); err != nil {
		return nil, nil, err
	}

	dc := &domain.DialogueContext{SessionID: session.ID}
	dc.Append(domain.SpeakerAgent, opening)
	if err := s.registry.Put(ctx, dc); err != nil {
		// Cache only; the next relay rehydrates from the transcript.
		log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("failed to seed dialogue context")
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("scenario_id", scenarioID.String()).
		Str("mode", string(mode)).
		Msg("session started")

	return session, turn, nil
}

// Relay persists the caller's message, streams the patient's reply
// fragment by fragment through emit, and persists the accumulated reply
// as one agent turn. If the upstream stream dies partway the partial
// text is still persisted and ErrUpstreamInterrupted is returned.
func (s *SessionService) Relay(ctx context.Context, sessionID, ownerID uuid.UUID, message string, emit func(fragment string) error) error {
	if _, inFlight := s.relays.LoadOrStore(sessionID, struct{}{}); inFlight {
		return fmt.Errorf("%w: %s", domain.ErrSessionBusy, sessionID)
	}
	defer s.relays.Delete(sessionID)

	session, err := s.getOwned(ctx, sessionID, ownerID)
	if err != nil {
		return err
	}
	if session.State != domain.SessionActive {
		// A non-active session is not relayable; callers see the same
		// error as for a missing one.
		return fmt.Errorf("%w: %s is %s", domain.ErrSessionNotFound, sessionID, session.State)
	}

	scenario, err := s.catalog.GetScenario(ctx, session.ScenarioID)
	if err != nil {
		return err
	}
	persona, err := s.catalog.GetPersona(ctx, session.PersonaID)
	if err != nil {
		return err
	}

	dc, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("registry read failed; rehydrating")
		dc = nil
	}
	if dc == nil {
		turns, err := s.transcripts.ListBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		dc = domain.ContextFromTurns(sessionID, turns)
	}

	// The caller's turn goes to storage before any streaming starts, so
	// a crash mid-stream never loses it.
	callerTurn := &domain.Turn{
		ID:        uuid.New(),
		SessionID: sessionID,
		Speaker:   domain.SpeakerCaller,
		Content:   message,
		CreatedAt: time.Now(),
	}
	if err := s.transcripts.Append(ctx, callerTurn); err != nil {
		return err
	}

	provider, err := s.engines.Default()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
	}

	script := ai.ComposeScript(scenario.Script, persona.Script)
	stream, err := provider.StreamReply(ctx, script, fragmentsToMessages(dc.Fragments), message)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
	}
	defer stream.Close()

	var reply strings.Builder
	var streamErr, emitErr error
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			streamErr = err
			break
		}
		if fragment == "" {
			continue
		}
		reply.WriteString(fragment)
		if emitErr == nil && emit != nil {
			if err := emit(fragment); err != nil {
				// Caller went away. Stop forwarding but keep what we
				// have for persistence.
				emitErr = err
				break
			}
		}
	}

	// Persist whatever arrived even if the request context is gone.
	pctx := context.WithoutCancel(ctx)
	dc.Append(domain.SpeakerCaller, message)
	if reply.Len() > 0 {
		agentTurn := &domain.Turn{
			ID:        uuid.New(),
			SessionID: sessionID,
			Speaker:   domain.SpeakerAgent,
			Content:   reply.String(),
			CreatedAt: time.Now(),
		}
		if err := s.transcripts.Append(pctx, agentTurn); err != nil {
			return err
		}
		dc.Append(domain.SpeakerAgent, reply.String())
	}
	if err := s.registry.Put(pctx, dc); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to update dialogue context")
	}

	if streamErr != nil {
		log.Error().Err(streamErr).
			Str("session_id", sessionID.String()).
			Int("partial_len", reply.Len()).
			Msg("reply stream interrupted")
		return fmt.Errorf("%w: %v", domain.ErrUpstreamInterrupted, streamErr)
	}
	if emitErr != nil {
		return fmt.Errorf("relay delivery aborted: %w", emitErr)
	}
	return nil
}

// Complete moves an active session to completing, drops its dialogue
// context and fires the evaluation in the background. It returns as soon
// as grading has been handed off.
func (s *SessionService) Complete(ctx context.Context, sessionID, ownerID uuid.UUID) error {
	session, err := s.getOwned(ctx, sessionID, ownerID)
	if err != nil {
		return err
	}
	if session.State != domain.SessionActive {
		return fmt.Errorf("%w: %s is %s", domain.ErrSessionNotActive, sessionID, session.State)
	}

	if err := s.sessions.MarkCompleting(ctx, sessionID, time.Now()); err != nil {
		return err
	}
	if err := s.registry.Remove(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to evict dialogue context")
	}

	s.evaluations.Launch(sessionID)

	log.Info().Str("session_id", sessionID.String()).Msg("session completing, evaluation launched")
	return nil
}

// Get returns a session owned by the caller.
func (s *SessionService) Get(ctx context.Context, sessionID, ownerID uuid.UUID) (*domain.Session, error) {
	return s.getOwned(ctx, sessionID, ownerID)
}

// History returns the stored transcript of an owned session.
func (s *SessionService) History(ctx context.Context, sessionID, ownerID uuid.UUID) ([]domain.Turn, error) {
	if _, err := s.getOwned(ctx, sessionID, ownerID); err != nil {
		return nil, err
	}
	return s.transcripts.ListBySession(ctx, sessionID)
}

// abandonActive marks every active session of the owner abandoned and
// evicts its dialogue context.
func (s *SessionService) abandonActive(ctx context.Context, ownerID uuid.UUID) error {
	active, err := s.sessions.FindActiveByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, prev := range active {
		if err := s.sessions.UpdateState(ctx, prev.ID, domain.SessionAbandoned); err != nil {
			return err
		}
		if err := s.registry.Remove(ctx, prev.ID); err != nil {
			log.Warn().Err(err).Str("session_id", prev.ID.String()).Msg("failed to evict abandoned session context")
		}
		log.Info().
			Str("session_id", prev.ID.String()).
			Str("owner_id", ownerID.String()).
			Msg("abandoned superseded session")
	}
	return nil
}

func (s *SessionService) getOwned(ctx context.Context, sessionID, ownerID uuid.UUID) (*domain.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != ownerID {
		// Not owned reads the same as not found.
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return session, nil
}

func fragmentsToMessages(fragments []domain.Fragment) []ai.Message {
	msgs := make([]ai.Message, 0, len(fragments))
	for _, f := range fragments {
		role := ai.RoleUser
		if f.Speaker == domain.SpeakerAgent {
			role = ai.RoleAgent
		}
		msgs = append(msgs, ai.Message{Role: role, Content: f.Content})
	}
	return msgs
}

// Package consult orchestrates a paid consultation turn: access check,
// credit metering, context assembly, grounded answer generation, and
// durable recording of both sides of the exchange.
package consult

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/minseokoh/myeongshim/internal/brain"
	"github.com/minseokoh/myeongshim/internal/compactor"
	"github.com/minseokoh/myeongshim/internal/engine"
	"github.com/minseokoh/myeongshim/internal/gate"
	"github.com/minseokoh/myeongshim/internal/ledger"
	"github.com/minseokoh/myeongshim/internal/observability"
	"github.com/minseokoh/myeongshim/internal/policy"
	"github.com/minseokoh/myeongshim/internal/saju"
	"github.com/minseokoh/myeongshim/internal/store"
)

// blockedReply answers screened-out input. No credit is consumed and
// nothing is recorded.
const blockedReply = "부적절한 요청으로 판단되어 답변을 드릴 수 없습니다. 상담과 관련된 질문을 부탁드립니다."

// ChatRequest is one user question against an access key.
type ChatRequest struct {
	AccessKey string
	Input     string
	// Facts is the client's saju profile, optional. It augments generation
	// but never the retrieval query.
	Facts *saju.Facts
	TopK  int
}

// ChatResult is the completed turn.
type ChatResult struct {
	SessionID string
	Reply     string
	Sources   []string
	// Blocked marks a screened-out question answered with the fixed warning.
	Blocked bool
	// Balance is the credit balance after this turn.
	Balance int
	// Remaining is the time left in the usage window; zero when open-ended.
	Remaining time.Duration
}

// VerifyResult reports key status without activating anything.
type VerifyResult struct {
	Valid     bool
	Master    bool
	OpenEnded bool
	Remaining time.Duration
	Balance   int
}

type Service struct {
	store     store.Store
	gate      *gate.Gate
	ledger    *ledger.Ledger
	compactor *compactor.Compactor
	engine    *engine.Engine
	metrics   *observability.Metrics
	now       func() time.Time
}

func New(s store.Store, g *gate.Gate, l *ledger.Ledger, c *compactor.Compactor, e *engine.Engine, m *observability.Metrics) *Service {
	return &Service{
		store:     s,
		gate:      g,
		ledger:    l,
		compactor: c,
		engine:    e,
		metrics:   m,
		now:       time.Now,
	}
}

// Verify checks an access key without side effects: no window starts, no
// credit moves. An unknown key returns gate.ErrInvalidKey; an expired one
// returns gate.ErrWindowExpired.
func (s *Service) Verify(ctx context.Context, accessKey string) (VerifyResult, error) {
	grant, err := s.gate.Authorize(ctx, accessKey, s.now())
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{
		Valid:     true,
		Master:    grant.Master(),
		OpenEnded: grant.OpenEnded,
		Remaining: grant.Remaining,
		Balance:   grant.Account.CreditBalance,
	}, nil
}

// Chat runs one full consultation turn, streaming answer deltas through
// onDelta as they arrive. The user turn is recorded before generation and
// the assistant turn after; if generation dies mid-stream, whatever text
// already reached the client is persisted so the transcript matches what
// was seen. Credit is consumed only after the assistant turn is durable.
func (s *Service) Chat(ctx context.Context, req ChatRequest, onDelta brain.DeltaHandler) (ChatResult, error) {
	turnStart := s.now()
	result, err := s.chat(ctx, req, onDelta, turnStart)
	s.observeStage(observability.StageTurnTotal, turnStart)
	s.countTurn(result, err)
	return result, err
}

func (s *Service) chat(ctx context.Context, req ChatRequest, onDelta brain.DeltaHandler, turnStart time.Time) (ChatResult, error) {
	if decision := policy.ScreenInput(req.Input); decision.Blocked {
		log.Printf("consult: blocked input: %s", decision.Reason)
		if onDelta != nil {
			if err := onDelta(blockedReply); err != nil {
				return ChatResult{}, err
			}
		}
		return ChatResult{Reply: blockedReply, Blocked: true}, nil
	}

	grant, err := s.gate.Authorize(ctx, req.AccessKey, turnStart)
	if err != nil {
		return ChatResult{}, err
	}
	if err := s.ledger.Check(grant.Account); err != nil {
		return ChatResult{}, err
	}
	s.observeStage(observability.StageAuthorize, turnStart)

	// The clock starts on the first question, not on verification.
	if _, err := s.gate.StartWindow(ctx, grant.Account, turnStart); err != nil {
		return ChatResult{}, err
	}

	session, err := s.store.EnsureSession(ctx, grant.Account.ID)
	if err != nil {
		return ChatResult{}, fmt.Errorf("ensure session: %w", err)
	}

	if _, err := s.store.AppendTurn(ctx, store.Turn{
		SessionID: session.ID,
		Role:      store.RoleUser,
		Content:   req.Input,
	}); err != nil {
		return ChatResult{}, fmt.Errorf("record question: %w", err)
	}

	retrieveStart := s.now()
	history, err := s.compactor.Context(ctx, session.ID)
	if err != nil {
		return ChatResult{}, fmt.Errorf("assemble context: %w", err)
	}
	s.observeStage(observability.StageRetrieve, retrieveStart)

	var streamed strings.Builder
	capture := func(delta string) error {
		streamed.WriteString(delta)
		if onDelta != nil {
			return onDelta(delta)
		}
		return nil
	}

	s.streamStarted()
	generateStart := s.now()
	answer, genErr := s.engine.Answer(ctx, engine.Request{
		SessionID: session.ID,
		Context:   history,
		Input:     req.Input,
		Facts:     req.Facts,
		TopK:      req.TopK,
	}, capture)
	s.streamFinished(generateStart)

	if genErr != nil {
		// Keep the transcript honest: record what the client already saw.
		if partial := streamed.String(); partial != "" {
			if _, err := s.store.AppendTurn(ctx, store.Turn{
				SessionID: session.ID,
				Role:      store.RoleAssistant,
				Content:   partial,
			}); err != nil {
				log.Printf("consult: session %s: record partial answer: %v", session.ID, err)
			}
		}
		return ChatResult{}, fmt.Errorf("generate answer: %w", genErr)
	}

	persistStart := s.now()
	if _, err := s.store.AppendTurn(ctx, store.Turn{
		SessionID: session.ID,
		Role:      store.RoleAssistant,
		Content:   answer.Text,
	}); err != nil {
		return ChatResult{}, fmt.Errorf("record answer: %w", err)
	}
	s.observeStage(observability.StagePersist, persistStart)

	balance := grant.Account.CreditBalance
	if !grant.Master() {
		balance, err = s.ledger.Consume(ctx, grant.Account.ID)
		if err != nil {
			return ChatResult{}, err
		}
		s.creditSpent()
	}

	// Resummarization is best-effort: a failure never costs the client the
	// answer they already received.
	if ran, err := s.compactor.MaybeResummarize(ctx, session.ID); err != nil {
		log.Printf("consult: session %s: resummarize: %v", session.ID, err)
		s.countSummary("error")
	} else if ran {
		s.countSummary("ok")
	}

	return ChatResult{
		SessionID: session.ID,
		Reply:     answer.Text,
		Sources:   answer.Sources,
		Balance:   balance,
		Remaining: grant.Remaining,
	}, nil
}

func (s *Service) countTurn(result ChatResult, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ChatTurns.WithLabelValues(turnOutcome(result, err)).Inc()
}

func turnOutcome(result ChatResult, err error) string {
	switch {
	case err == nil && result.Blocked:
		return "blocked"
	case err == nil:
		return "answered"
	case errors.Is(err, gate.ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, gate.ErrWindowExpired):
		return "window_expired"
	case errors.Is(err, ledger.ErrInsufficientCredit):
		return "insufficient_credit"
	default:
		return "error"
	}
}

func (s *Service) observeStage(stage string, since time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveStage(stage, s.now().Sub(since))
}

func (s *Service) streamStarted() {
	if s.metrics == nil {
		return
	}
	s.metrics.ActiveStreams.Inc()
}

func (s *Service) streamFinished(start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ActiveStreams.Dec()
	s.metrics.ObserveModelLatency(s.now().Sub(start))
	s.metrics.ObserveStage(observability.StageGenerate, s.now().Sub(start))
}

func (s *Service) creditSpent() {
	if s.metrics == nil {
		return
	}
	s.metrics.CreditsSpent.Inc()
}

func (s *Service) countSummary(result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SummaryRuns.WithLabelValues(result).Inc()
}

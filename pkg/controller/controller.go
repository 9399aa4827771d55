package controller

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/go-go-golems/parley/pkg/providers/factory"
	"github.com/go-go-golems/parley/pkg/store"
	"github.com/go-go-golems/parley/pkg/streaming"
	"github.com/go-go-golems/parley/pkg/tools"
)

// ServiceFactory resolves the backend adapter for a provider.
type ServiceFactory func(p *chat.Provider) (providers.Service, error)

// Input is one user submission.
type Input struct {
	Text  string
	Files []chat.TypedData
}

type run struct {
	cancel  context.CancelFunc
	done    chan struct{}
	handler *streaming.Handler
}

// Controller owns the lifecycle of generation runs. It enforces one active
// run per session, mediates destructive operations while a run is live, and
// persists sessions after each run.
type Controller struct {
	store         store.Store
	sinks         []events.EventSink
	services      ServiceFactory
	registry      *tools.Registry
	flushInterval time.Duration
	clock         streaming.Clock

	mu      sync.Mutex
	runs    map[uuid.UUID]*run
	editing map[uuid.UUID]*chat.ConversationGroup
}

type Option func(*Controller)

func WithStore(s store.Store) Option {
	return func(c *Controller) {
		c.store = s
	}
}

func WithSinks(sinks ...events.EventSink) Option {
	return func(c *Controller) {
		c.sinks = append(c.sinks, sinks...)
	}
}

func WithServiceFactory(f ServiceFactory) Option {
	return func(c *Controller) {
		c.services = f
	}
}

func WithToolRegistry(r *tools.Registry) Option {
	return func(c *Controller) {
		c.registry = r
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.flushInterval = d
	}
}

func WithClock(clock streaming.Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

func New(options ...Option) *Controller {
	ret := &Controller{
		store:         store.NewMemoryStore(),
		services:      factory.ForProvider,
		flushInterval: streaming.DefaultFlushInterval,
		clock:         streaming.SystemClock(),
		runs:          make(map[uuid.UUID]*run),
		editing:       make(map[uuid.UUID]*chat.ConversationGroup),
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// NewSession creates and persists a fresh session.
func (c *Controller) NewSession(ctx context.Context, config *chat.SessionConfig, options ...chat.SessionOption) (*chat.Session, error) {
	s := chat.NewSession(config, options...)
	if err := c.store.SaveSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// IsStreaming reports whether the session has an active run.
func (c *Controller) IsStreaming(s *chat.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.runs[s.ID]
	return ok
}

// Wait blocks until the session's active run finishes. Returns immediately
// when no run is active.
func (c *Controller) Wait(s *chat.Session) {
	c.mu.Lock()
	r, ok := c.runs[s.ID]
	c.mu.Unlock()
	if !ok {
		return
	}
	<-r.done
}

// Stop cancels the session's active run. The partial content flushed so far
// is retained.
func (c *Controller) Stop(s *chat.Session) {
	c.mu.Lock()
	var cancel context.CancelFunc
	if r, ok := c.runs[s.ID]; ok {
		cancel = r.cancel
	}
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// reserveRun claims the session's run slot. The slot is claimed before any
// tree mutation so concurrent submissions cannot interleave their edits.
func (c *Controller) reserveRun(s *chat.Session) (*run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.runs[s.ID]; ok {
		return nil, ErrGenerationActive
	}
	r := &run{done: make(chan struct{})}
	c.runs[s.ID] = r
	return r, nil
}

// releaseRun abandons a reserved slot that never became a live run.
func (c *Controller) releaseRun(s *chat.Session, r *run) {
	c.mu.Lock()
	if c.runs[s.ID] == r {
		delete(c.runs, s.ID)
	}
	c.mu.Unlock()
	close(r.done)
}

// Send submits user input and starts a generation run. When an edit is in
// progress the targeted user group is rewritten and everything after it is
// discarded before regenerating.
func (c *Controller) Send(ctx context.Context, s *chat.Session, input Input) error {
	r, err := c.reserveRun(s)
	if err != nil {
		return err
	}

	c.mu.Lock()
	target, isEdit := c.editing[s.ID]
	delete(c.editing, s.ID)
	c.mu.Unlock()

	s.ErrorMessage = ""

	var conversations []*chat.Conversation
	if isEdit {
		idx := s.GroupIndex(target)
		if idx < 0 {
			c.releaseRun(s, r)
			return &InvalidStateError{Op: "send", Reason: "edited message no longer exists"}
		}
		s.TruncateAfter(idx)
		if conv := target.ActiveConversation(); conv != nil {
			conv.Content = input.Text
			conv.DataFiles = input.Files
		}
		conversations = chat.ContextFor(s)
	} else {
		user := chat.NewConversation(chat.RoleUser, input.Text,
			chat.WithDataFiles(input.Files))
		s.AddGroup(user)
		conversations = chat.ContextFor(s)
	}

	return c.startRun(ctx, s, conversations, nil, r)
}

// Regenerate replaces an assistant response: everything after the group is
// discarded and a new variant is generated alongside the existing ones.
func (c *Controller) Regenerate(ctx context.Context, s *chat.Session, g *chat.ConversationGroup) error {
	r, err := c.reserveRun(s)
	if err != nil {
		return err
	}

	if g.Role() != chat.RoleAssistant {
		c.releaseRun(s, r)
		return &InvalidStateError{Op: "regenerate", Reason: "only assistant responses can be regenerated"}
	}
	idx := s.GroupIndex(g)
	if idx < 0 {
		c.releaseRun(s, r)
		return &InvalidStateError{Op: "regenerate", Reason: "group does not belong to this session"}
	}

	s.ErrorMessage = ""
	s.TruncateAfter(idx)

	// substitute the last user text and drop the trailing assistant group,
	// keeping the user attachments
	conversations := chat.ContextFor(s, chat.WithoutTrailingGroup())
	if text, ok := lastUserText(s); ok {
		conversations = chat.ContextFor(s, chat.WithRegenContent(text))
	}

	cfg := s.Config.Snapshot()
	variant := chat.NewConversation(chat.RoleAssistant, "",
		chat.WithModel(cfg.Model.Code), chat.WithReplying())
	g.AddConversation(variant)

	return c.startRunWith(ctx, s, conversations, variant, cfg, r)
}

func lastUserText(s *chat.Session) (string, bool) {
	groups := s.AdjustedGroups()
	for i := len(groups) - 1; i >= 0; i-- {
		if groups[i].Role() != chat.RoleUser {
			continue
		}
		if conv := groups[i].ActiveConversation(); conv != nil {
			return conv.Content, true
		}
	}
	return "", false
}

// startRun creates the assistant placeholder group and launches the handler.
// The context selection must happen before the placeholder exists, which is
// why callers pass conversations in.
func (c *Controller) startRun(ctx context.Context, s *chat.Session, conversations []*chat.Conversation, cfg *chat.SessionConfig, r *run) error {
	if cfg == nil {
		cfg = s.Config.Snapshot()
	}

	assistant := chat.NewConversation(chat.RoleAssistant, "",
		chat.WithModel(cfg.Model.Code), chat.WithReplying())
	s.AddGroup(assistant)

	return c.startRunWith(ctx, s, conversations, assistant, cfg, r)
}

func (c *Controller) startRunWith(ctx context.Context, s *chat.Session, conversations []*chat.Conversation, assistant *chat.Conversation, cfg *chat.SessionConfig, r *run) error {
	service, err := c.services(cfg.Provider)
	if err != nil {
		c.releaseRun(s, r)
		return err
	}

	var executor *tools.Executor
	if c.registry != nil {
		executor = tools.NewExecutor(c.registry)
	}

	handler, err := streaming.NewHandler(
		streaming.WithSession(s),
		streaming.WithService(service),
		streaming.WithConversations(conversations),
		streaming.WithAssistant(assistant),
		streaming.WithConfig(cfg),
		streaming.WithExecutor(executor),
		streaming.WithSinks(c.sinks...),
		streaming.WithFlushInterval(c.flushInterval),
		streaming.WithClock(c.clock),
	)
	if err != nil {
		c.releaseRun(s, r)
		return err
	}

	// runs outlive the caller's context
	runCtx, cancel := context.WithCancel(events.WithEventSinks(context.Background(), events.GetEventSinks(ctx)...))

	c.mu.Lock()
	r.cancel = cancel
	r.handler = handler
	c.mu.Unlock()

	go func() {
		defer cancel()
		err := handler.Run(runCtx)
		c.finishRun(s, handler, service, err)
		close(r.done)
	}()

	return nil
}

func (c *Controller) finishRun(s *chat.Session, h *streaming.Handler, service providers.Service, runErr error) {
	c.mu.Lock()
	delete(c.runs, s.ID)
	c.mu.Unlock()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		s.ErrorMessage = runErr.Error()
	}

	a := h.Assistant()
	a.IsReplying = false

	// a placeholder that never received content is removed, for cancel and
	// error alike
	if a.Content == "" && len(a.DataFiles) == 0 && len(a.ToolCalls) == 0 {
		if g := a.Group(); g != nil {
			if emptied := g.DeleteConversation(a); emptied {
				s.RemoveGroup(g)
			}
		}
	}

	s.RefreshTokens()

	if err := c.store.SaveSession(context.Background(), s); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID.String()).Msg("failed to save session")
	}

	if runErr == nil && !s.Quick && s.Title == chat.DefaultSessionTitle {
		go c.generateTitle(s, service)
	}
}

func (c *Controller) generateTitle(s *chat.Session, service providers.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	title, err := streaming.GenerateTitle(ctx, s, service)
	if err != nil {
		// errors are swallowed, the default title stays
		log.Debug().Err(err).Str("session_id", s.ID.String()).Msg("title generation failed")
		return
	}

	s.Title = title
	if err := c.store.SaveSession(context.Background(), s); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID.String()).Msg("failed to save session title")
	}
}

// ResetContext toggles the context reset marker at the given group.
func (c *Controller) ResetContext(s *chat.Session, g *chat.ConversationGroup) {
	s.ResetContextAt(g)
	s.RefreshTokens()
}

// DeleteGroup removes a group, cascading over the rest of its exchange for
// assistant groups. Refused while a run is active.
func (c *Controller) DeleteGroup(s *chat.Session, g *chat.ConversationGroup) error {
	if c.IsStreaming(s) {
		return ErrGenerationActive
	}
	s.DeleteGroup(g)
	s.RefreshTokens()
	return c.store.SaveSession(context.Background(), s)
}

// Fork copies the session up to the given group into a new session.
func (c *Controller) Fork(ctx context.Context, s *chat.Session, g *chat.ConversationGroup, purpose chat.Purpose) (*chat.Session, error) {
	copied := s.Copy(g, purpose)
	if err := c.store.SaveSession(ctx, copied); err != nil {
		return nil, err
	}
	return copied, nil
}

// BeginEdit marks a user group as the target of the next Send. The send then
// rewrites that message and discards everything after it.
func (c *Controller) BeginEdit(s *chat.Session, g *chat.ConversationGroup) error {
	if c.IsStreaming(s) {
		return ErrGenerationActive
	}
	if g.Role() != chat.RoleUser {
		return &InvalidStateError{Op: "edit", Reason: "only user messages can be edited"}
	}
	if s.GroupIndex(g) < 0 {
		return &InvalidStateError{Op: "edit", Reason: "group does not belong to this session"}
	}

	c.mu.Lock()
	c.editing[s.ID] = g
	c.mu.Unlock()
	return nil
}

// CancelEdit clears a pending edit target.
func (c *Controller) CancelEdit(s *chat.Session) {
	c.mu.Lock()
	delete(c.editing, s.ID)
	c.mu.Unlock()
}

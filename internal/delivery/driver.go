package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/idlesign/sitemessage/internal/models"
	"gorm.io/gorm"
)

// SendOpts holds optional parameters for a send pass.
type SendOpts struct {
	// Priority limits the pass to messages with this exact priority.
	Priority *int

	// Messengers limits the pass to these messenger aliases.
	Messengers []string

	// IgnoreUnknownMessengers skips dispatches addressed to unregistered
	// messengers instead of failing the pass.
	IgnoreUnknownMessengers bool

	// IgnoreUnknownMessageTypes skips dispatches of unregistered message
	// types instead of failing the pass.
	IgnoreUnknownMessageTypes bool
}

// Report summarizes a send pass.
type Report struct {
	Sent     int // delivered
	Failed   int // permanently failed (retry limit reached)
	Errored  int // transient errors, eligible for a later pass
	Requeued int // returned to pending (retriable failures and pre-pass resets)
	Skipped  int // released due to ignored configuration problems
}

func (r *Report) add(other Report) {
	r.Sent += other.Sent
	r.Failed += other.Failed
	r.Errored += other.Errored
	r.Requeued += other.Requeued
	r.Skipped += other.Skipped
}

// SendScheduled runs one send pass: re-queues re-eligible errored
// dispatches, claims pending ones and drives each messenger's batch
// through the send lifecycle. Distinct messengers are processed
// concurrently. Delivery-level errors are only reflected in dispatch
// status; the returned error covers configuration problems and backend
// panics.
func SendScheduled(ctx context.Context, db *gorm.DB, opts SendOpts) (Report, error) {
	var report Report

	subset := make([]string, 0, len(opts.Messengers))
	for _, alias := range opts.Messengers {
		if _, err := MessengerByAlias(alias); err != nil {
			if opts.IgnoreUnknownMessengers {
				continue
			}
			return report, err
		}
		subset = append(subset, alias)
	}
	if len(opts.Messengers) > 0 && len(subset) == 0 {
		return report, nil
	}

	requeued, err := requeueErrored(db)
	if err != nil {
		return report, err
	}
	report.Requeued += requeued

	batches, err := SelectPending(db, SelectOpts{Priority: opts.Priority, Messengers: subset})
	if err != nil {
		return report, err
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs []error
	)

	for _, batch := range batches {
		m, err := MessengerByAlias(batch.Messenger)
		if err != nil {
			if relErr := releaseDispatches(db, batch.Dispatches); relErr != nil {
				errs = append(errs, relErr)
			}
			if opts.IgnoreUnknownMessengers {
				report.Skipped += len(batch.Dispatches)
				continue
			}
			errs = append(errs, err)
			continue
		}

		wg.Add(1)
		go func(batch Batch, m Messenger) {
			defer wg.Done()
			rep, err := processMessenger(ctx, db, m, batch, opts)
			mu.Lock()
			report.add(rep)
			if err != nil {
				errs = append(errs, err)
			}
			mu.Unlock()
		}(batch, m)
	}
	wg.Wait()

	return report, errors.Join(errs...)
}

// messageGroup is one message's share of a messenger batch.
type messageGroup struct {
	message    *models.Message
	mtype      *MessageType
	dispatches []*models.Dispatch
}

// processMessenger drives one messenger through the send lifecycle for its
// claimed batch: resolve types, compile bodies, warm up, send inside a
// fault barrier, cool down, persist outcomes.
func processMessenger(ctx context.Context, db *gorm.DB, m Messenger, batch Batch, opts SendOpts) (Report, error) {
	var report Report

	groups, unknown := groupByMessage(batch.Dispatches)
	if len(unknown) > 0 {
		if !opts.IgnoreUnknownMessageTypes {
			if err := releaseDispatches(db, batch.Dispatches); err != nil {
				return report, err
			}
			return report, &UnknownMessageTypeError{Alias: unknown[0].Message.Cls}
		}
		if err := releaseDispatches(db, unknown); err != nil {
			return report, err
		}
		report.Skipped += len(unknown)
	}
	if len(groups) == 0 {
		return report, nil
	}

	sink := newStatusSink(groups)

	for _, g := range groups {
		compileGroup(m, g, sink)
	}

	if err := m.WarmUp(ctx); err != nil {
		// Connection failures are not attributed to the message itself:
		// no retry increment.
		sink.markWarmUpError(fmt.Sprintf("warm up: %v", err))
		report.add(sink.report())
		return report, persistOutcomes(db, sink)
	}

	var fault error
	func() {
		defer func() {
			if r := recover(); r != nil {
				fault = fmt.Errorf("delivery: messenger %q panic: %v", m.Alias(), r)
			}
		}()
		for _, g := range groups {
			pending := sink.unresolved(g.dispatches)
			if len(pending) == 0 {
				continue
			}
			if err := m.Send(ctx, g.mtype, g.message, pending, sink); err != nil {
				for _, d := range sink.unresolved(g.dispatches) {
					sink.MarkError(d, err.Error())
				}
			}
		}
	}()
	if fault != nil {
		for _, d := range sink.unresolved(batch.Dispatches) {
			sink.MarkError(d, fault.Error())
		}
	}

	// Cool-down runs on every exit path of the send above, including the
	// recovered fault, before outcomes are persisted and the fault is
	// reported.
	if err := m.CoolDown(ctx); err != nil {
		log.Printf("delivery: %s: cool down: %v", m.Alias(), err)
	}

	for _, d := range sink.unresolved(batch.Dispatches) {
		log.Printf("delivery: %s: dispatch %d left unresolved, still processing", m.Alias(), d.ID)
	}

	report.add(sink.report())
	if err := persistOutcomes(db, sink); err != nil {
		return report, err
	}
	return report, fault
}

// groupByMessage splits a batch into per-message groups with resolved
// types, keeping batch order. Dispatches of unregistered types are
// returned separately.
func groupByMessage(dispatches []*models.Dispatch) ([]*messageGroup, []*models.Dispatch) {
	index := map[uint]*messageGroup{}
	var groups []*messageGroup
	var unknown []*models.Dispatch

	for _, d := range dispatches {
		g, ok := index[d.MessageID]
		if !ok {
			mt, err := MessageTypeByAlias(d.Message.Cls)
			if err != nil {
				unknown = append(unknown, d)
				continue
			}
			g = &messageGroup{message: &d.Message, mtype: mt}
			index[d.MessageID] = g
			groups = append(groups, g)
		}
		g.dispatches = append(g.dispatches, d)
	}

	// A later dispatch of an already indexed message still belongs to its
	// group even if an unknown-type dispatch interleaved.
	return groups, unknown
}

// compileGroup resolves message bodies into dispatch caches. Composition
// failures are delivery errors for the affected dispatch only.
func compileGroup(m Messenger, g *messageGroup, sink *statusSink) {
	var cached string

	for _, d := range g.dispatches {
		if d.MessageCache != "" {
			continue
		}
		if !g.mtype.HasDynamicContext && cached != "" {
			d.MessageCache = cached
			continue
		}

		body, err := g.mtype.compile(g.message, m.Alias(), d)
		if err != nil {
			sink.MarkError(d, fmt.Sprintf("compose: %v", err))
			continue
		}
		d.MessageCache = body
		if !g.mtype.HasDynamicContext {
			cached = body
		}
	}
}

// outcome is a resolved delivery result awaiting persistence.
type outcome struct {
	status    int
	errText   string
	increment bool
	timestamp bool
}

// statusSink collects per-dispatch outcomes during a send. The first mark
// for a dispatch wins; the retry limit of the owning message type turns
// exhausted retries into permanent failures at mark time.
type statusSink struct {
	mu         sync.Mutex
	limits     map[uint]int
	dispatches map[uint]*models.Dispatch
	order      []uint
	resolved   map[uint]outcome
}

func newStatusSink(groups []*messageGroup) *statusSink {
	s := &statusSink{
		limits:     map[uint]int{},
		dispatches: map[uint]*models.Dispatch{},
		resolved:   map[uint]outcome{},
	}
	for _, g := range groups {
		limit := g.mtype.retryLimit()
		for _, d := range g.dispatches {
			s.limits[d.ID] = limit
			s.dispatches[d.ID] = d
			s.order = append(s.order, d.ID)
		}
	}
	return s
}

func (s *statusSink) set(d *models.Dispatch, o outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.resolved[d.ID]; done {
		return
	}
	s.resolved[d.ID] = o
}

func (s *statusSink) MarkSent(d *models.Dispatch) {
	s.set(d, outcome{status: models.DispatchStatusSent, timestamp: true})
}

func (s *statusSink) MarkFailed(d *models.Dispatch, reason string) {
	status := models.DispatchStatusPending
	if d.RetryCount+1 >= s.limitFor(d) {
		status = models.DispatchStatusFailed
	}
	s.set(d, outcome{status: status, errText: reason, increment: true})
}

func (s *statusSink) MarkError(d *models.Dispatch, reason string) {
	status := models.DispatchStatusError
	if d.RetryCount+1 >= s.limitFor(d) {
		status = models.DispatchStatusFailed
	}
	s.set(d, outcome{status: status, errText: reason, increment: true})
}

func (s *statusSink) limitFor(d *models.Dispatch) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit, ok := s.limits[d.ID]
	if !ok {
		return DefaultRetryLimit
	}
	return limit
}

// markWarmUpError resolves every unresolved dispatch as errored without
// touching its retry count.
func (s *statusSink) markWarmUpError(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if _, done := s.resolved[id]; done {
			continue
		}
		s.resolved[id] = outcome{status: models.DispatchStatusError, errText: reason}
	}
}

// unresolved filters the given dispatches down to those without an
// outcome yet.
func (s *statusSink) unresolved(dispatches []*models.Dispatch) []*models.Dispatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Dispatch
	for _, d := range dispatches {
		if _, done := s.resolved[d.ID]; done {
			continue
		}
		if _, tracked := s.dispatches[d.ID]; !tracked {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (s *statusSink) report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	var r Report
	for _, o := range s.resolved {
		switch o.status {
		case models.DispatchStatusSent:
			r.Sent++
		case models.DispatchStatusFailed:
			r.Failed++
		case models.DispatchStatusError:
			r.Errored++
		case models.DispatchStatusPending:
			r.Requeued++
		}
	}
	return r
}

// persistOutcomes writes resolved statuses, retry counts and body caches
// back to the store, and appends error log entries.
func persistOutcomes(db *gorm.DB, s *statusSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var errorLogs []models.DispatchError

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, id := range s.order {
			o, done := s.resolved[id]
			if !done {
				continue
			}
			d := s.dispatches[id]

			updates := map[string]interface{}{
				"dispatch_status": o.status,
				"message_cache":   d.MessageCache,
			}
			if o.increment {
				updates["retry_count"] = d.RetryCount + 1
			}
			if o.errText != "" {
				updates["last_error"] = o.errText
			}
			if o.timestamp {
				updates["time_dispatched"] = now
			}

			if err := tx.Model(&models.Dispatch{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return fmt.Errorf("persist dispatch %d: %w", id, err)
			}

			if o.errText != "" {
				errorLogs = append(errorLogs, models.DispatchError{
					DispatchID:  id,
					Error:       o.errText,
					TimeCreated: now,
				})
			}
		}

		if len(errorLogs) > 0 {
			if err := tx.Create(&errorLogs).Error; err != nil {
				return fmt.Errorf("log dispatch errors: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delivery: %w", err)
	}
	return nil
}

// SendTestMessage delivers a throwaway plain text message through the
// given messenger without persisting anything.
func SendTestMessage(ctx context.Context, messengerAlias, to, text string) error {
	m, err := MessengerByAlias(messengerAlias)
	if err != nil {
		return err
	}

	mt := &MessageType{Alias: "plain"}
	msg := &models.Message{Cls: mt.Alias, Context: models.Context{SimpleTextKey: text}}
	d := &models.Dispatch{
		ID:             1,
		Messenger:      messengerAlias,
		Address:        m.ResolveAddress(to),
		MessageCache:   text,
		DispatchStatus: models.DispatchStatusProcessing,
	}

	sink := newStatusSink([]*messageGroup{{message: msg, mtype: mt, dispatches: []*models.Dispatch{d}}})

	if err := m.WarmUp(ctx); err != nil {
		return fmt.Errorf("delivery: %s: warm up: %w", messengerAlias, err)
	}

	var fault error
	func() {
		defer func() {
			if r := recover(); r != nil {
				fault = fmt.Errorf("delivery: messenger %q panic: %v", messengerAlias, r)
			}
		}()
		if err := m.Send(ctx, mt, msg, []*models.Dispatch{d}, sink); err != nil {
			fault = err
		}
	}()

	if err := m.CoolDown(ctx); err != nil {
		log.Printf("delivery: %s: cool down: %v", messengerAlias, err)
	}
	if fault != nil {
		return fmt.Errorf("delivery: test message via %s: %w", messengerAlias, fault)
	}

	o, done := sink.resolved[d.ID]
	if !done {
		return fmt.Errorf("delivery: test message via %s left unresolved", messengerAlias)
	}
	if o.status != models.DispatchStatusSent {
		return fmt.Errorf("delivery: test message via %s: %s", messengerAlias, o.errText)
	}
	return nil
}

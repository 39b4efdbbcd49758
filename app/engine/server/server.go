package server

import (
	"context"
	"sync"
	"time"

	"pctasks/app/objects"
	"pctasks/app/queue"
	"pctasks/app/store"
	"pctasks/app/workflow"
	"pctasks/app/workflow/states"
	"pctasks/pkg/contextx"
	"pctasks/pkg/log"

	"github.com/robfig/cron/v3"
)

// EngineServer consumes the workflow queues and drives the submitted runs.
type EngineServer struct {
	components *Components
	runner     *workflow.Runner

	sem    chan struct{}
	mu     sync.Mutex
	active map[string]bool
	wg     sync.WaitGroup

	cron   *cron.Cron
	cancel context.CancelFunc
	done   chan struct{}
}

func NewEngineServer(components *Components, runner *workflow.Runner) *EngineServer {
	concurrency := components.Config.Engine.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &EngineServer{
		components: components,
		runner:     runner,
		sem:        make(chan struct{}, concurrency),
		active:     map[string]bool{},
		done:       make(chan struct{}),
	}
}

func (e *EngineServer) consumerOptions() queue.ConsumerOptions {
	cfg := e.components.Config.Queue
	return queue.ConsumerOptions{
		Visibility:    cfg.VisibilityTimeout,
		MaxDeliveries: cfg.MaxDeliveries,
		PollInterval:  cfg.PollInterval,
	}
}

// submitOptions caps a submit batch to the free driver slots.
func (e *EngineServer) submitOptions() queue.ConsumerOptions {
	opts := e.consumerOptions()
	opts.Capacity = func() int { return cap(e.sem) - len(e.sem) }
	return opts
}

func (e *EngineServer) submitDispatcher() *queue.Dispatcher {
	d := queue.NewDispatcher()
	queue.Handle(d, objects.MessageTypeWorkflowSubmit, e.HandleSubmit)
	return d
}

// Start runs the queue consumers and the recovery schedule until Stop is
// called or ctx is done.
func (e *EngineServer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer close(e.done)
	ctx = contextx.WithFields(ctx, contextx.RequestID, "engine-"+e.components.Config.Engine.Host)

	e.cron = cron.New()
	if _, err := e.cron.AddFunc(e.components.Config.Engine.RecoverySchedule, func() {
		if n, err := e.Recover(ctx); err != nil {
			log.Warnf(ctx, "recovery sweep failed: %s", err)
		} else if n > 0 {
			log.Infof(ctx, "recovery sweep re-enqueued %d runs", n)
		}
	}); err != nil {
		return err
	}
	e.cron.Start()

	signals := queue.NewDispatcher()
	e.components.Signals.Register(signals)
	events := queue.NewDispatcher()
	queue.Handle(events, objects.MessageTypeEventGrid, e.HandleStorageEvent)

	var consumers sync.WaitGroup
	for name, d := range map[string]*queue.Dispatcher{
		queue.WorkflowSubmitQueue: e.submitDispatcher(),
		queue.TaskSignalQueue:     signals,
		queue.StorageEventsQueue:  events,
	} {
		name, d := name, d
		opts := e.consumerOptions()
		if name == queue.WorkflowSubmitQueue {
			opts = e.submitOptions()
		}
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			log.Infof(ctx, "consuming queue %s", name)
			queue.Consume(ctx, e.components.Queues, name, d, opts)
		}()
	}
	consumers.Add(1)
	go func() {
		defer consumers.Done()
		e.components.Signals.Watch(ctx, e.components.Records, e.components.Config.Engine.SignalWatch)
	}()
	consumers.Wait()

	<-e.cron.Stop().Done()
	e.wg.Wait()
	return nil
}

// Stop ends the consumers and waits for the runs in flight to stop.
func (e *EngineServer) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-e.done
}

func (e *EngineServer) started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

// HandleSubmit starts driving the submitted run once a slot is free. Runs
// already driven by this process are ignored.
func (e *EngineServer) HandleSubmit(ctx context.Context, messageID string, msg *objects.WorkflowSubmitMessage) error {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if msg.RunID == "" {
		msg.RunID = messageID
	}
	e.mu.Lock()
	if e.active[msg.RunID] {
		e.mu.Unlock()
		<-e.sem
		log.Infof(ctx, "run %s is already being driven", msg.RunID)
		return nil
	}
	e.active[msg.RunID] = true
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.active, msg.RunID)
			e.mu.Unlock()
			<-e.sem
		}()
		run, err := e.runner.Run(ctx, msg)
		switch {
		case objects.IsUserError(err):
			log.Warnf(ctx, "rejected run %s: %s", msg.RunID, err)
		case err != nil:
			log.Errorf(ctx, "run %s stopped: %s", msg.RunID, err)
		default:
			log.Infof(ctx, "run %s left the driver as %s", run.RunID, run.Status)
		}
	}()
	return nil
}

func (e *EngineServer) isActive(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active[runID]
}

// HandleStorageEvent stores a storage event once per event id.
func (e *EngineServer) HandleStorageEvent(ctx context.Context, messageID string, msg *objects.EventGridMessage) error {
	event := msg.Event
	if event.ID == "" {
		event.ID = messageID
	}
	if _, err := e.components.Records.StorageEvents.Get(ctx, event.ID, event.ID); err == nil {
		return nil
	} else if !objects.IsNotFoundError(err) {
		return err
	}
	return e.components.Records.StorageEvents.Put(ctx, &objects.StorageEventRecord{Event: event})
}

// Recover re-enqueues runs left running by a driver that stopped updating
// them, and returns how many were sent.
func (e *EngineServer) Recover(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-e.components.Config.Engine.StaleAfter)
	records := e.components.Records
	runs, err := records.WorkflowRuns.QueryAcrossPartitions(ctx, store.Filter{
		Statuses:      []string{states.RECEIVED, states.RUNNING},
		UpdatedBefore: cutoff,
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, run := range runs {
		if e.isActive(run.RunID) {
			continue
		}
		recent, err := records.JobPartitionRuns.Query(ctx, run.RunID, store.Filter{UpdatedAfter: cutoff, Limit: 1})
		if err != nil {
			return sent, err
		}
		if len(recent) > 0 {
			continue
		}
		def, err := workflow.LoadRunDefinition(ctx, e.components.Blobs, run.RunID)
		if err != nil {
			log.Warnf(ctx, "cannot recover run %s: %s", run.RunID, err)
			continue
		}
		msg := &objects.WorkflowSubmitMessage{
			Workflow:     objects.WorkflowRef{ID: run.WorkflowID, Definition: def},
			RunID:        run.RunID,
			Args:         run.Args,
			TriggerEvent: run.Trigger,
		}
		if _, err := e.components.Queues.Send(ctx, queue.WorkflowSubmitQueue, objects.MessageTypeWorkflowSubmit, msg); err != nil {
			return sent, err
		}
		log.Infof(ctx, "re-enqueued stale run %s", run.RunID)
		sent++
	}
	return sent, nil
}

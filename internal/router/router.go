// Package router implements the ROUTER/REQ broker described in
// section 4.1: a front-end socket facing clients, a back-end socket
// facing workers, dynamic worker spawning, and (client, scheme)
// affinity routing.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/biometria-se/async-messaged/internal/message"
	"github.com/biometria-se/async-messaged/internal/telemetry"
	"github.com/biometria-se/async-messaged/internal/transform"
	"github.com/biometria-se/async-messaged/internal/worker"
)

const (
	frontendAddress = "tcp://127.0.0.1:5554"
	backendAddress  = "inproc://workers"
	pollTimeout     = time.Second
	heartbeatTicks  = 10
	minReadyWorkers = 2
)

// Router owns the front-end/back-end socket pair and the affinity
// table described in invariant 3.
type Router struct {
	logger       *slog.Logger
	transformers *transform.Registry
	metrics      *telemetry.RouterMetrics

	frontend *zmq4.Socket
	backend  *zmq4.Socket

	mu             sync.Mutex
	readyQueue     []string
	clientWorkerMap map[string]string
	abort          chan struct{}
	workerAbort    chan struct{}
	wg             sync.WaitGroup
}

// New binds the front-end and back-end sockets. Both sockets use
// LINGER=0 and the back-end additionally enables ROUTER_HANDOVER so a
// reconnecting worker with the same identity replaces the old one
// instead of erroring, per section 4.1.
func New(logger *slog.Logger, transformers *transform.Registry, metrics *telemetry.RouterMetrics) (*Router, error) {
	frontend, err := zmq4.NewSocket(zmq4.ROUTER)
	if err != nil {
		return nil, fmt.Errorf("creating frontend socket: %w", err)
	}
	if err := frontend.SetLinger(0); err != nil {
		return nil, fmt.Errorf("setting frontend linger: %w", err)
	}
	if err := frontend.Bind(frontendAddress); err != nil {
		return nil, fmt.Errorf("binding frontend to %s: %w", frontendAddress, err)
	}

	backend, err := zmq4.NewSocket(zmq4.ROUTER)
	if err != nil {
		return nil, fmt.Errorf("creating backend socket: %w", err)
	}
	if err := backend.SetLinger(0); err != nil {
		return nil, fmt.Errorf("setting backend linger: %w", err)
	}
	if err := backend.SetRouterHandover(true); err != nil {
		return nil, fmt.Errorf("setting backend router handover: %w", err)
	}
	if err := backend.Bind(backendAddress); err != nil {
		return nil, fmt.Errorf("binding backend to %s: %w", backendAddress, err)
	}

	return &Router{
		logger:          logger.With(slog.String("component", "router")),
		transformers:    transformers,
		metrics:         metrics,
		frontend:        frontend,
		backend:         backend,
		clientWorkerMap: make(map[string]string),
		abort:           make(chan struct{}),
		workerAbort:     make(chan struct{}),
	}, nil
}

// Abort fires the process-wide abort event exactly once.
func (r *Router) Abort() {
	select {
	case <-r.abort:
	default:
		close(r.abort)
	}
}

// Run executes the poll loop until Abort is called. It always destroys
// both sockets with LINGER=0 before returning.
func (r *Router) Run(ctx context.Context) error {
	defer r.shutdown()

	poller := zmq4.NewPoller()
	poller.Add(r.frontend, zmq4.POLLIN)
	poller.Add(r.backend, zmq4.POLLIN)

	var emptyTicks int

	for {
		select {
		case <-r.abort:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		sockets, err := poller.Poll(pollTimeout)
		if err != nil {
			r.logger.Warn("poll failed", "error", err)
			continue
		}

		if len(sockets) == 0 {
			emptyTicks++
			if emptyTicks >= heartbeatTicks {
				r.logger.Debug("heartbeat")
				emptyTicks = 0
			}
			continue
		}
		emptyTicks = 0

		for _, polled := range sockets {
			switch polled.Socket {
			case r.backend:
				r.handleBackendReadable()
			case r.frontend:
				r.handleFrontendReadable(ctx)
			}
		}
	}
}

func (r *Router) handleBackendReadable() {
	frames, err := r.backend.RecvMessageBytes(0)
	if err != nil {
		r.logger.Warn("backend receive failed", "error", err)
		return
	}
	if len(frames) < 2 {
		return
	}

	workerID := string(frames[0])
	reply := frames[len(frames)-1]

	if string(reply) == "\x01" {
		r.mu.Lock()
		r.readyQueue = append(r.readyQueue, workerID)
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.WorkersReady.Set(float64(len(r.readyQueue)))
		}
		r.logger.Debug("worker available", slog.String("worker", workerID))
		return
	}

	var resp message.Response
	if err := json.Unmarshal(reply, &resp); err == nil {
		if resp.Action == "DISC" || resp.Action == "DISCONNECT" {
			r.evictWorker(workerID)
		}
		if r.metrics != nil {
			r.metrics.ObserveHandled(resp.Action, time.Duration(resp.ResponseTime)*time.Millisecond, resp.Success)
		}
	}

	if _, err := r.frontend.SendMessage(frames[2:]); err != nil {
		r.logger.Warn("forwarding reply to frontend failed", "error", err)
	}
}

func (r *Router) evictWorker(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, id := range r.clientWorkerMap {
		if id == workerID {
			delete(r.clientWorkerMap, key)
		}
	}
	if r.metrics != nil {
		r.metrics.WorkersActive.Set(float64(len(r.clientWorkerMap)))
	}
}

func (r *Router) handleFrontendReadable(ctx context.Context) {
	frames, err := r.frontend.RecvMessageBytes(0)
	if err != nil {
		r.logger.Warn("frontend receive failed", "error", err)
		return
	}
	if len(frames) < 2 {
		return
	}

	requestID := frames[0]
	payload := frames[len(frames)-1]

	var req message.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		r.logger.Warn("malformed request payload", "error", err)
		return
	}

	scheme := schemeOf(&req)
	affinityKey := fmt.Sprintf("%d::%s", req.Client, scheme)

	workerID, err := r.resolveWorker(ctx, &req, affinityKey)
	if err != nil {
		r.logger.Warn("failed to resolve worker", "error", err)
		return
	}

	if req.Worker == "" {
		req.Worker = workerID
		payload, err = json.Marshal(req)
		if err != nil {
			r.logger.Warn("failed to re-marshal stamped request", "error", err)
			return
		}
	}

	if _, err := r.backend.SendMessage(workerID, "", requestID, "", payload); err != nil {
		r.logger.Warn("forwarding request to backend failed", "error", err)
	}
}

func schemeOf(req *message.Request) string {
	url, _ := req.Context.URL()
	idx := strings.Index(url, "://")
	if idx < 0 {
		return ""
	}
	return url[:idx]
}

// resolveWorker implements the affinity resolution order from section
// 4.1: the request's own worker field, then the affinity map, then a
// fresh pop from the ready queue (spawning ahead of time when fewer
// than two workers are ready).
func (r *Router) resolveWorker(ctx context.Context, req *message.Request, affinityKey string) (string, error) {
	if req.Worker != "" {
		return req.Worker, nil
	}

	r.mu.Lock()
	if id, ok := r.clientWorkerMap[affinityKey]; ok {
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	r.ensureReadyWorkers(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.readyQueue) == 0 {
		return "", fmt.Errorf("no workers available")
	}
	id := r.readyQueue[0]
	r.readyQueue = r.readyQueue[1:]
	r.clientWorkerMap[affinityKey] = id
	if r.metrics != nil {
		r.metrics.WorkersActive.Set(float64(len(r.clientWorkerMap)))
	}
	return id, nil
}

// ensureReadyWorkers spawns a new worker whenever fewer than
// minReadyWorkers are idle, regardless of whether a matching affinity
// already exists. Section 9's open questions note this can over-spawn
// under bursty load; the spec leaves that as an acceptable tradeoff.
func (r *Router) ensureReadyWorkers(ctx context.Context) {
	r.mu.Lock()
	needsSpawn := len(r.readyQueue) < minReadyWorkers
	r.mu.Unlock()

	if !needsSpawn {
		return
	}

	r.spawnWorker(ctx)
}

func (r *Router) spawnWorker(ctx context.Context) {
	w, err := worker.New(r.logger, r.transformers, r.workerAbort)
	if err != nil {
		r.logger.Warn("failed to spawn worker", "error", err)
		return
	}

	if r.metrics != nil {
		r.metrics.WorkersSpawned.Inc()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		w.Run(ctx)
	}()
}

// shutdown closes the worker abort channel, so every worker stops and
// closes its integration and socket, waits up to 3 seconds for the
// workers to exit, then closes both sockets (LINGER=0). It sends no
// abort response to clients: a client with a request in flight gets
// no reply.
func (r *Router) shutdown() {
	close(r.workerAbort)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		r.logger.Warn("timed out waiting for workers to exit")
	}

	_ = r.frontend.Close()
	_ = r.backend.Close()
}

// AffinityCount reports the number of live (client, scheme) bindings,
// exposed for tests and operational introspection.
func (r *Router) AffinityCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clientWorkerMap)
}

package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tobiasvance/crewdesk/internal/actor"
	"github.com/tobiasvance/crewdesk/internal/backup"
	"github.com/tobiasvance/crewdesk/internal/handler"
	"github.com/tobiasvance/crewdesk/internal/middleware"
	"github.com/tobiasvance/crewdesk/internal/push"
	"github.com/tobiasvance/crewdesk/internal/scheduling"
	"github.com/tobiasvance/crewdesk/internal/store"
	ws "github.com/tobiasvance/crewdesk/internal/websocket"
)

// feedBuffer is the event-bus buffer for the websocket relay.
const feedBuffer = 64

type Server struct {
	db  *sql.DB
	bus *scheduling.Bus
	hub *ws.Hub

	service *scheduling.Service

	schedulingH *handler.SchedulingHandler
	crewH       *handler.CrewHandler
	shiftH      *handler.ShiftHandler
	volunteerH  *handler.VolunteerHandler
	pushH       *handler.PushHandler
	backupH     *handler.BackupHandler

	rateLimiter    *middleware.RateLimiter
	backupManager  *backup.Manager
	pushDispatcher *push.Dispatcher
	logger         *slog.Logger

	relayCancel context.CancelFunc
	relayDone   chan struct{}
}

func New(db *sql.DB, backupCfg backup.Config, pushCfg push.Config, logger *slog.Logger) *Server {
	bus := scheduling.NewBus(logger.With("component", "bus"))
	hub := ws.NewHub(logger.With("component", "websocket"))
	service := scheduling.NewService(db, bus, logger.With("component", "scheduling"))

	crewStore := store.NewCrewStore(db)
	shiftStore := store.NewShiftStore(db)
	volunteerStore := store.NewVolunteerStore(db)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)

	backupMgr := backup.NewManager(backupCfg, db, backupStore, logger.With("component", "backup"), func(s backup.Status) {
		hub.Broadcast(ws.Message{
			Type:   "backup_status",
			Entity: "backup",
			Action: string(s.State),
			Extra: map[string]any{
				"in_progress": s.InProgress,
				"error":       s.Error,
			},
		})
	})

	var pushSvc *push.Service
	var pushDisp *push.Dispatcher
	var pushH *handler.PushHandler
	if pushCfg.VAPIDPublicKey != "" && pushCfg.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(pushCfg.VAPIDPublicKey, pushCfg.VAPIDPrivateKey)
		pushDisp = push.NewDispatcher(pushSvc, pushStore, shiftStore, bus, logger.With("component", "push"))
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
	}

	return &Server{
		db:             db,
		bus:            bus,
		hub:            hub,
		service:        service,
		schedulingH:    handler.NewSchedulingHandler(service, logger.With("component", "scheduling_handler")),
		crewH:          handler.NewCrewHandler(crewStore, logger.With("component", "crew")),
		shiftH:         handler.NewShiftHandler(shiftStore, logger.With("component", "shift")),
		volunteerH:     handler.NewVolunteerHandler(volunteerStore, logger.With("component", "volunteer")),
		pushH:          pushH,
		backupH:        handler.NewBackupHandler(backupMgr, backupStore, logger.With("component", "backup_handler")),
		rateLimiter:    middleware.NewRateLimiter(),
		backupManager:  backupMgr,
		pushDispatcher: pushDisp,
		logger:         logger,
	}
}

// Service exposes the scheduling façade for startup reconciliation.
func (s *Server) Service() *scheduling.Service {
	return s.service
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// Start launches the background consumers: the websocket relay, the push
// dispatcher, and the backup schedule.
func (s *Server) Start(ctx context.Context) {
	relayCtx, cancel := context.WithCancel(ctx)
	s.relayCancel = cancel
	s.relayDone = make(chan struct{})
	go func() {
		defer close(s.relayDone)
		ws.Relay(relayCtx, s.hub, s.bus, feedBuffer)
	}()

	if s.pushDispatcher != nil {
		s.pushDispatcher.Start(ctx)
	}
	s.backupManager.Start(ctx)
}

// Stop shuts the background consumers down in reverse order and closes the
// event bus.
func (s *Server) Stop() {
	s.backupManager.Stop()
	if s.pushDispatcher != nil {
		s.pushDispatcher.Stop()
	}
	if s.relayCancel != nil {
		s.relayCancel()
		<-s.relayDone
	}
	s.bus.Close()
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Crews
	mux.HandleFunc("POST /api/crews", s.coordinatorOnly(s.crewH.Create))
	mux.HandleFunc("GET /api/crews", s.crewH.List)
	mux.HandleFunc("GET /api/crews/{id}", s.crewH.Get)
	mux.HandleFunc("PUT /api/crews/{id}", s.coordinatorOnly(s.crewH.Update))
	mux.HandleFunc("DELETE /api/crews/{id}", s.coordinatorOnly(s.crewH.Delete))
	mux.HandleFunc("GET /api/crews/{id}/shifts", s.shiftH.ListByCrew)

	// Shifts
	mux.HandleFunc("POST /api/shifts", s.coordinatorOnly(s.shiftH.Create))
	mux.HandleFunc("GET /api/shifts", s.shiftH.List)
	mux.HandleFunc("GET /api/shifts/{id}", s.shiftH.Get)
	mux.HandleFunc("PUT /api/shifts/{id}", s.coordinatorOnly(s.shiftH.Update))
	mux.HandleFunc("PUT /api/shifts/{id}/status", s.coordinatorOnly(s.shiftH.SetStatus))
	mux.HandleFunc("DELETE /api/shifts/{id}", s.coordinatorOnly(s.shiftH.Delete))
	mux.HandleFunc("GET /api/shifts/{id}/assignments", s.schedulingH.ListForShift)

	// Volunteers
	mux.HandleFunc("POST /api/volunteers", s.coordinatorOnly(s.volunteerH.Create))
	mux.HandleFunc("GET /api/volunteers", s.volunteerH.List)
	mux.HandleFunc("GET /api/volunteers/{id}", s.volunteerH.Get)
	mux.HandleFunc("PUT /api/volunteers/{id}", s.coordinatorOnly(s.volunteerH.Update))
	mux.HandleFunc("DELETE /api/volunteers/{id}", s.coordinatorOnly(s.volunteerH.Delete))
	mux.HandleFunc("PUT /api/volunteers/{id}/availability", s.actorOnly(s.volunteerH.SetAvailability))
	mux.HandleFunc("GET /api/volunteers/{id}/availability", s.volunteerH.ListAvailability)
	mux.HandleFunc("GET /api/volunteers/{id}/assignments", s.schedulingH.ListForVolunteer)

	// Assignments
	mux.HandleFunc("POST /api/assignments", s.rateLimited(s.actorOnly(s.schedulingH.Assign)))
	mux.HandleFunc("GET /api/assignments/{id}", s.schedulingH.Get)
	mux.HandleFunc("DELETE /api/assignments/{id}", s.actorOnly(s.schedulingH.Cancel))
	mux.HandleFunc("POST /api/assignments/{id}/check-in", s.actorOnly(s.schedulingH.CheckIn))
	mux.HandleFunc("POST /api/assignments/{id}/complete", s.actorOnly(s.schedulingH.Complete))
	mux.HandleFunc("POST /api/assignments/{id}/miss", s.coordinatorOnly(s.schedulingH.MarkMissed))

	// Swap requests
	mux.HandleFunc("POST /api/swaps", s.rateLimited(s.actorOnly(s.schedulingH.RequestSwap)))
	mux.HandleFunc("GET /api/swaps", s.schedulingH.ListSwaps)
	mux.HandleFunc("GET /api/swaps/{id}", s.schedulingH.GetSwap)
	mux.HandleFunc("POST /api/swaps/{id}/resolve", s.coordinatorOnly(s.schedulingH.ResolveSwap))
	mux.HandleFunc("POST /api/swaps/{id}/withdraw", s.actorOnly(s.schedulingH.WithdrawSwap))

	// Push notifications
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.actorOnly(s.pushH.Subscribe))
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.actorOnly(s.pushH.Unsubscribe))
		mux.HandleFunc("GET /api/push/subscriptions", s.actorOnly(s.pushH.ListSubscriptions))
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	}

	// Backups
	mux.HandleFunc("GET /api/backups", s.coordinatorOnly(s.backupH.List))
	mux.HandleFunc("GET /api/backups/status", s.coordinatorOnly(s.backupH.Status))
	mux.HandleFunc("POST /api/backups", s.coordinatorOnly(s.backupH.RunNow))
	mux.HandleFunc("GET /api/backups/{id}/download", s.coordinatorOnly(s.backupH.Download))

	// Live schedule feed
	mux.HandleFunc("GET /ws", ws.Handler(s.hub))

	// WithActor sits outside the request logger so log lines carry the
	// caller identity.
	logged := middleware.RequestLogger(s.logger.With("component", "http"))(mux)
	return middleware.WithActor(logged)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		if id, ok := actor.FromContext(r.Context()); ok {
			return "actor:" + strconv.FormatInt(id.VolunteerID, 10)
		}
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 60, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) actorOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.RequireActor(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) coordinatorOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.RequireCoordinator(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

package actions

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/relloyd/taxipipe/config"
	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/helper"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/pipeline"
	"github.com/robfig/cron/v3"
)

const (
	urlContext4Launch = "/launch"
)

type ListenConfig struct {
	Scheme string `errorTxt:"scheme" mandatory:"yes"`
	Addr   string `errorTxt:"address" mandatory:"yes"`
	Port   int    `errorTxt:"port" mandatory:"yes"`
}

type WebServerConfig struct {
	Config    config.Config
	Connector Connector
	Listen    ListenConfig
	Schedule  bool // also launch runs on Config.Schedule.Spec.
}

func RunWebServer(web *WebServerConfig) error {
	if web == nil {
		return errors.New("nil pointer to web server config supplied")
	}
	if err := helper.ValidateStructIsPopulated(web.Listen); err != nil {
		return err
	}
	s := newWebServer(web)
	log := logger.NewWebLogger(constants.ServiceName, web.Config.Log.Level, web.Config.Log.StackDump, s.stopRuns)
	s.log = log
	var c *cron.Cron
	if web.Schedule {
		var err error
		if c, err = newScheduler(log, web.Config.Schedule.Spec, func(logicalDate time.Time) {
			if _, err := s.startScheduledRun(logicalDate); err != nil {
				log.Error("scheduled run failed to start: ", err)
			}
		}); err != nil {
			return err
		}
		c.Start()
	}
	srv := runServer(log, web, s)
	err := waitForServer(log, srv, s)
	if c != nil {
		<-c.Stop().Done()
	}
	return err
}

// webServer launches runs and tracks them in a registry.
type webServer struct {
	log      logger.Logger
	cfg      *WebServerConfig
	registry *pipeline.SafeMapRunInfo
	launch   func(ctx context.Context, rc *RunConfig) error
	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	wg       sync.WaitGroup
	chanStop chan string
}

func newWebServer(web *WebServerConfig) *webServer {
	s := &webServer{
		cfg:      web,
		registry: pipeline.NewSafeMapRunInfo(),
		cancels:  make(map[string]context.CancelFunc),
		chanStop: make(chan string, 1),
	}
	s.launch = func(ctx context.Context, rc *RunConfig) error {
		_, err := RunPipeline(ctx, rc, s.registry)
		return err
	}
	return s
}

func (s *webServer) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/stop", GetHandlerStopServer(s.log, s.chanStop))
	r.Path("/health").HandlerFunc(GetHandlerHealth(s.log))
	r.Path("/runs").Methods(http.MethodGet).HandlerFunc(GetHandlerRunList(s.log, s.registry))
	r.Path("/runs/{runId}").Methods(http.MethodGet).HandlerFunc(GetHandlerRunStatus(s.log, s.registry))
	r.Path("/runs/{runId}/stop").HandlerFunc(GetHandlerRunStop(s.log, s.registry, s.cancelRun))
	r.Path(urlContext4Launch).Methods(http.MethodPost).Headers("Content-Type", "application/json").HandlerFunc(
		GetHandlerRunLaunch(s.log, s.startRun))
	return r
}

// startRun validates the request, records the run as pending and runs it in the background.
func (s *webServer) startRun(logicalDate string, from string) (string, error) {
	if from != "" {
		valid := false
		for _, stage := range pipeline.Stages {
			valid = valid || stage == from
		}
		if !valid {
			return "", fmt.Errorf("unknown stage %q (expected one of %v)", from, pipeline.Stages)
		}
	}
	rc := &RunConfig{
		Config:      s.cfg.Config,
		Connector:   s.cfg.Connector,
		Log:         s.log,
		LogicalDate: logicalDate,
		From:        from,
	}
	run, err := rc.runContext(time.Now())
	if err != nil {
		return "", err
	}
	rc.RunID = run.RunID
	rc.LogicalDate = run.LogicalDate.Format(constants.TimeFormatLogicalDate)
	s.registry.Store(run.RunID, pipeline.RunInfo{Run: run, State: pipeline.StatePending, From: from, StartTime: time.Now()})
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[run.RunID] = cancel
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.cancels, run.RunID)
			s.mu.Unlock()
			cancel()
		}()
		if err := s.launch(ctx, rc); err != nil {
			s.log.Error("run ", run.RunID, " failed: ", err)
			if info, ok := s.registry.Load(run.RunID); ok && !info.State.Finished() {
				// The run failed before the pipeline could record it.
				info.State = pipeline.StateFailed
				info.Error = err.Error()
				info.EndTime = time.Now()
				s.registry.Store(run.RunID, info)
			}
		}
	}()
	return run.RunID, nil
}

// startScheduledRun starts a run for a schedule firing.
// The firing is skipped, returning an empty run id, while any run is still in progress.
func (s *webServer) startScheduledRun(logicalDate time.Time) (string, error) {
	s.mu.Lock()
	busy := len(s.cancels)
	s.mu.Unlock()
	if busy > 0 {
		s.log.Warn("skipping scheduled run for ", logicalDate.Format(constants.TimeFormatLogicalDate), ": ", busy, " run(s) still in progress")
		return "", nil
	}
	return s.startRun(logicalDate.Format(constants.TimeFormatLogicalDate), "")
}

// cancelRun returns false if the run is not in progress.
func (s *webServer) cancelRun(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.cancels[runID]
	if ok {
		cancel()
	}
	return ok
}

// stopRuns cancels all runs in progress and waits for them to end.
func (s *webServer) stopRuns() {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// runServer starts the web server in the background and returns it.
func runServer(log logger.Logger, web *WebServerConfig, s *webServer) *http.Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%v:%v", web.Listen.Addr, web.Listen.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      s.router(),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				log.Info(err)
			} else {
				log.Panic(err)
			}
		}
	}()
	log.Info(fmt.Sprintf("Listening on %v://%v:%v", strings.ToLower(web.Listen.Scheme), web.Listen.Addr, web.Listen.Port))
	return srv
}

func waitForServer(log logger.Logger, srv *http.Server, s *webServer) error {
	// Accept graceful shutdowns when quit via SIGINT (Ctrl+C) or the /stop endpoint.
	chanOS := make(chan os.Signal, 1)
	signal.Notify(chanOS, os.Interrupt)
	defer signal.Stop(chanOS)
	select {
	case <-s.chanStop:
	case <-chanOS:
	}
	log.Info("Shutting down web server...")
	s.stopRuns()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

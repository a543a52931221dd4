package actions

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/pipeline"
)

type WebServerResponse uint32

const (
	Okay WebServerResponse = iota + 1
	Error
)

func (w WebServerResponse) MarshalJSON() ([]byte, error) {
	var retval string
	switch w {
	case Okay:
		retval = "ok"
	case Error:
		retval = "error"
	default:
		err := fmt.Errorf("unhandled WebServerResponse value in MarshalJSON() conversion")
		return nil, err
	}
	return json.Marshal(retval)
}

func (w *WebServerResponse) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "ok":
		*w = Okay
	case "error":
		*w = Error
	default:
		return fmt.Errorf("unexpected status %q", s)
	}
	return nil
}

type ResponseSimple struct {
	ServerStatus WebServerResponse `json:"status"`
}

type ResponseRunList struct {
	Status  WebServerResponse `json:"status"`
	RunList []RunListItem     `json:"runs"`
}

type RunListItem struct {
	RunID              string         `json:"runId"`
	LogicalDate        string         `json:"logicalDate"`
	Period             string         `json:"period"`
	State              pipeline.State `json:"state"`
	LastCompletedStage string         `json:"lastCompletedStage"`
	Error              string         `json:"error,omitempty"`
}

type ResponseRunStatus struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message"`
	Run     *pipeline.RunInfo `json:"run,omitempty"`
}

type ResponseRunStop struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message"`
	RunID   string            `json:"runId"`
}

type ResponseRunLaunch struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message"`
	RunID   string            `json:"runId"`
}

// RequestRunLaunch is the body accepted by the launch endpoint.
type RequestRunLaunch struct {
	LogicalDate string `json:"logicalDate"` // YYYY-MM-DD; defaults to today.
	From        string `json:"from"`        // stage to resume from.
}

func GetHandlerHealth(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseSimple{ServerStatus: Okay})
	}
}

func GetHandlerStopServer(log logger.Logger, chanStop chan string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case chanStop <- "stop":
			log.Info("Stop signal sent")
		default: // a stop is already pending.
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseSimple{ServerStatus: Okay})
	}
}

func GetHandlerRunLaunch(log logger.Logger, launch func(logicalDate string, from string) (string, error)) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		b, _ := ioutil.ReadAll(r.Body)
		req := RequestRunLaunch{}
		if len(b) > 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				logAndRespond(log, err, w,
					ResponseRunLaunch{Status: Error, Message: fmt.Sprintf("error unmarshalling JSON: %v", err)})
				return
			}
		}
		id, err := launch(req.LogicalDate, req.From)
		if err != nil {
			logAndRespond(log, err, w,
				ResponseRunLaunch{Status: Error, Message: fmt.Sprintf("unable to launch run: %v", err)})
			return
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseRunLaunch{Status: Okay, Message: "run launched", RunID: id})
	}
}

func GetHandlerRunStop(log logger.Logger, registry *pipeline.SafeMapRunInfo, cancelRun func(runID string) bool) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["runId"]
		if _, ok := registry.Load(id); !ok {
			w.WriteHeader(http.StatusNotFound)
			log.Info("HTTP request to stop run ", id, " that doesn't exist.")
			respond(log, w, ResponseRunStop{Status: Error, Message: "run does not exist", RunID: id})
			return
		}
		w.WriteHeader(http.StatusOK)
		if !cancelRun(id) {
			log.Info("HTTP request to stop run ", id, " that has already finished.")
			respond(log, w, ResponseRunStop{Status: Error, Message: "run already ended", RunID: id})
			return
		}
		log.Info("Stopping run ", id)
		respond(log, w, ResponseRunStop{Status: Okay, Message: "cancelling", RunID: id})
	}
}

func GetHandlerRunList(log logger.Logger, registry *pipeline.SafeMapRunInfo) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		runs := registry.List()
		items := make([]RunListItem, 0, len(runs))
		for _, ri := range runs {
			items = append(items, RunListItem{
				RunID:              ri.Run.RunID,
				LogicalDate:        ri.Run.LogicalDate.Format(constants.TimeFormatLogicalDate),
				Period:             ri.Run.Period.String(),
				State:              ri.State,
				LastCompletedStage: ri.LastCompletedStage,
				Error:              ri.Error,
			})
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseRunList{Status: Okay, RunList: items})
	}
}

func GetHandlerRunStatus(log logger.Logger, registry *pipeline.SafeMapRunInfo) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["runId"]
		ri, ok := registry.Load(id)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			log.Info("HTTP request for status of run ", id, " that doesn't exist.")
			respond(log, w, ResponseRunStatus{Status: Error, Message: fmt.Sprintf("run %v does not exist", id)})
			return
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseRunStatus{Status: Okay, Run: &ri})
	}
}

// logAndRespond will log the error, write a http.StatusBadRequest and r to w.
func logAndRespond(log logger.Logger, err error, w http.ResponseWriter, r interface{}) {
	log.Error(err)
	w.WriteHeader(http.StatusBadRequest)
	respond(log, w, r)
}

// respond will marshal i to a string and write it to w.
func respond(log logger.Logger, w http.ResponseWriter, i interface{}) {
	j, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		log.Error(err)
		return
	}
	if _, err = fmt.Fprint(w, string(j)); err != nil {
		log.Error(err)
	}
}

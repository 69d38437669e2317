package kpisvc

import (
	"context"
	"encoding/json"
	"fmt"
	logger "log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/railmetrics/railmatch/business/kpi"
)

//defaultHttpHandler simple default http handler for default route
type defaultHttpHandler struct {
}

//ServeHTTP implements defaultHttpHandler http.Handler interface
func (h *defaultHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Application-Status", "OK")
}

//kpiQueryHandler holds data needed to respond to aggregate queries
type kpiQueryHandler struct {
	log        *logger.Logger
	aggregator *kpi.Aggregator
}

//ServeHTTP implements kpiQueryHandler's http.Handler interface. Query parameters:
//grouping (global|route|stop), dimension (route or stop id), window (day|week|range),
//date (yyyy-mm-dd) for day and week windows, start and end for range windows, and
//threshold to override the on-time threshold in seconds
func (h *kpiQueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	grouping, err := kpi.ParseGrouping(r.FormValue("grouping"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	window, err := parseWindow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	threshold := 0
	if thresholdString := r.FormValue("threshold"); thresholdString != "" {
		threshold, err = strconv.Atoi(thresholdString)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid threshold %q", thresholdString), http.StatusBadRequest)
			return
		}
	}

	aggregate := h.aggregator.Query(grouping, r.FormValue("dimension"), window, threshold)
	h.writeJSON(w, aggregate)
}

//parseWindow builds the aggregation window from request parameters, defaulting to
//the current day
func parseWindow(r *http.Request) (kpi.Window, error) {
	date := time.Now()
	if dateString := r.FormValue("date"); dateString != "" {
		parsed, err := time.ParseInLocation("2006-01-02", dateString, time.Local)
		if err != nil {
			return kpi.Window{}, fmt.Errorf("invalid date %q", dateString)
		}
		date = parsed
	}
	switch r.FormValue("window") {
	case "", "day":
		return kpi.DayWindow(date), nil
	case "week":
		return kpi.WeekWindow(date), nil
	case "range":
		start, err := time.ParseInLocation("2006-01-02", r.FormValue("start"), time.Local)
		if err != nil {
			return kpi.Window{}, fmt.Errorf("invalid start %q", r.FormValue("start"))
		}
		end, err := time.ParseInLocation("2006-01-02", r.FormValue("end"), time.Local)
		if err != nil {
			return kpi.Window{}, fmt.Errorf("invalid end %q", r.FormValue("end"))
		}
		if end.Before(start) {
			return kpi.Window{}, fmt.Errorf("end %s before start %s", r.FormValue("end"), r.FormValue("start"))
		}
		return kpi.RangeWindow(start, end), nil
	}
	return kpi.Window{}, fmt.Errorf("unknown window %q", r.FormValue("window"))
}

func (h *kpiQueryHandler) writeJSON(w http.ResponseWriter, payload interface{}) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		h.log.Printf("Error marshaling response to json: error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(jsonData)
	if err != nil {
		h.log.Printf("Error writing json response: %s", err)
	}
}

//coverageHttpHandler serves the latest resolution coverage snapshot
type coverageHttpHandler struct {
	log      *logger.Logger
	coverage *coverageStore
}

//ServeHTTP implements coverageHttpHandler's http.Handler interface
func (h *coverageHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.coverage.get()
	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		h.log.Printf("Error marshaling coverage to json: error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(jsonData)
	if err != nil {
		h.log.Printf("Error writing json response: %s", err)
	}
}

//createServer creates configured http.Server for responding to kpi queries
func createServer(log *logger.Logger,
	aggregator *kpi.Aggregator,
	coverage *coverageStore,
	httpPort int) *http.Server {

	r := mux.NewRouter()
	r.Handle("/", &defaultHttpHandler{})
	r.Handle("/kpi", &kpiQueryHandler{log: log, aggregator: aggregator})
	r.Handle("/coverage", &coverageHttpHandler{log: log, coverage: coverage})
	srv := &http.Server{
		Addr: strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
	return srv
}

//runWebService starts up the kpi web service, and terminates on shutdown signal
func runWebService(log *logger.Logger,
	wg *sync.WaitGroup,
	aggregator *kpi.Aggregator,
	coverage *coverageStore,
	httpPort int,
	shutdownSignal chan bool,
) {
	wg.Add(1)
	defer wg.Done()
	srv := createServer(log, aggregator, coverage, httpPort)
	log.Printf("Starting server on port %d", httpPort)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("server ListenAndServe ended. %s", err)
		}
	}()
	shutdownCtx, serverCancelFunc := context.WithTimeout(context.Background(), time.Duration(5)*time.Second)
	defer serverCancelFunc()

	select {
	case <-shutdownSignal:
		log.Printf("ending webservice on shutdown signal")
		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			log.Printf("error shutting down webservice, error:%s", err)
		}
	}
}

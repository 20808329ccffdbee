package web

import (
	"net/http"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strconv"
	"sync"
	"time"
)

const (
	defaultProfileDuration = 30 * time.Second
	maxProfileDuration     = 5 * time.Minute
)

// traceProfiler runs one profile at a time, streaming it into the response.
type traceProfiler struct {
	mutex sync.Mutex
}

// profileDuration reads the optional seconds query parameter.
func profileDuration(r *http.Request) (time.Duration, bool) {
	s := r.URL.Query().Get("seconds")
	if s == "" {
		return defaultProfileDuration, true
	}
	seconds, err := strconv.Atoi(s)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	d := time.Duration(seconds) * time.Second
	if d > maxProfileDuration {
		d = maxProfileDuration
	}
	return d, true
}

func sleepOrDone(r *http.Request, d time.Duration) {
	select {
	case <-r.Context().Done():
	case <-time.After(d):
	}
}

func (tp *traceProfiler) Trace(w http.ResponseWriter, r *http.Request) {
	d, ok := profileDuration(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	tp.mutex.Lock()
	defer tp.mutex.Unlock()
	if err := trace.Start(w); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer trace.Stop()
	sleepOrDone(r, d)
}

func (tp *traceProfiler) PProf(w http.ResponseWriter, r *http.Request) {
	d, ok := profileDuration(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	tp.mutex.Lock()
	defer tp.mutex.Unlock()
	if err := pprof.StartCPUProfile(w); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer pprof.StopCPUProfile()
	sleepOrDone(r, d)
}

func (tp *traceProfiler) MemProf(w http.ResponseWriter, r *http.Request) {
	tp.mutex.Lock()
	defer tp.mutex.Unlock()
	runtime.GC()
	_ = pprof.Lookup("heap").WriteTo(w, 0)
}

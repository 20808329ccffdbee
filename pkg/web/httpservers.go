package web

import (
	"context"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/statsrelay"
	"github.com/atlassian/statsrelay/internal/util"
	"github.com/atlassian/statsrelay/pkg/aggregation"
	"github.com/atlassian/statsrelay/pkg/cluster/ring"
	"github.com/atlassian/statsrelay/pkg/healthcheck"
)

// ParamHttpServers is the name of parameter with the names of the admin servers to start. Each
// server is configured under http.<name>.
const ParamHttpServers = "http-servers"

// Relay is the part of the relay exposed over HTTP.
type Relay struct {
	Handler      statsrelay.LineHandler
	Ring         *ring.Ring
	Rules        []*aggregation.Rule
	HealthChecks []healthcheck.HealthcheckFunc
	DeepChecks   []healthcheck.HealthcheckFunc
}

type httpServer struct {
	logger   logrus.FieldLogger
	address  string
	Router   *mux.Router // should be private, but project layout is not great.
	rawLines *rawLinesHandler
}

type route struct {
	path    string
	handler http.HandlerFunc
	method  string
	name    string
}

var done = struct{}{}

func NewHttpServersFromViper(v *viper.Viper, logger logrus.FieldLogger, relay Relay) ([]*httpServer, error) {
	httpServerNames := v.GetStringSlice(ParamHttpServers)
	servers := make([]*httpServer, 0, len(httpServerNames))
	for _, httpServerName := range httpServerNames {
		server, err := newHttpServerFromViper(logger, v, httpServerName, relay)
		if err != nil {
			return nil, fmt.Errorf("failed to make http-server %s: %v", httpServerName, err)
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func newHttpServerFromViper(
	logger logrus.FieldLogger,
	vMain *viper.Viper,
	serverName string,
	relay Relay,
) (*httpServer, error) {
	vSub := util.GetSubViper(vMain, "http."+serverName)
	vSub.SetDefault("address", "127.0.0.1:8080")
	vSub.SetDefault("enable-prof", false)
	vSub.SetDefault("enable-expvar", false)
	vSub.SetDefault("enable-ingestion", false)
	vSub.SetDefault("enable-healthcheck", true)
	vSub.SetDefault("enable-status", true)

	return NewHttpServer(
		logger.WithField("http-server", serverName),
		relay,
		serverName,
		vSub.GetString("address"),
		vSub.GetBool("enable-prof"),
		vSub.GetBool("enable-expvar"),
		vSub.GetBool("enable-ingestion"),
		vSub.GetBool("enable-healthcheck"),
		vSub.GetBool("enable-status"),
	)
}

func NewHttpServer(
	logger logrus.FieldLogger,
	relay Relay,
	serverName, address string,
	enableProf,
	enableExpVar,
	enableIngestion,
	enableHealthcheck,
	enableStatus bool,
) (*httpServer, error) {
	var routes []route

	server := &httpServer{
		logger:  logger,
		address: address,
	}

	if enableProf {
		profiler := &traceProfiler{}
		routes = append(routes,
			route{path: "/memprof", handler: profiler.MemProf, method: "POST", name: "profmem_post"},
			route{path: "/pprof", handler: profiler.PProf, method: "POST", name: "profpprof_post"},
			route{path: "/trace", handler: profiler.Trace, method: "POST", name: "proftrace_post"},
		)
	}

	if enableExpVar {
		routes = append(routes,
			route{path: "/expvar", handler: expvar.Handler().ServeHTTP, method: "GET", name: "expvar_get"},
		)
	}

	if enableIngestion {
		if relay.Handler == nil {
			return nil, fmt.Errorf("ingestion requires a line handler")
		}
		server.rawLines = newRawLinesHandler(logger, serverName, relay.Handler)
		routes = append(routes,
			route{path: "/v1/lines", handler: server.rawLines.LinesHandler, method: "POST", name: "lines_post"},
		)
	}

	if enableHealthcheck {
		hc := &healthChecker{
			logger:       logger,
			healthChecks: relay.HealthChecks,
			deepChecks:   relay.DeepChecks,
		}
		routes = append(routes,
			route{path: "/healthcheck", handler: hc.healthCheck, method: "GET", name: "healthcheck_get"},
			route{path: "/deepcheck", handler: hc.deepCheck, method: "GET", name: "deepcheck_get"},
		)
	}

	if enableStatus {
		st := &status{ring: relay.Ring, rules: relay.Rules}
		routes = append(routes,
			route{path: "/shards", handler: st.shardsHandler, method: "GET", name: "shards_get"},
			route{path: "/rules", handler: st.rulesHandler, method: "GET", name: "rules_get"},
		)
	}

	if len(routes) == 0 {
		return nil, fmt.Errorf("must enable at least one of prof, expvar, ingestion, healthcheck or status")
	}

	router, err := createRoutes(routes)
	if err != nil {
		return nil, err
	}
	router.NotFoundHandler = server.logRequest(http.HandlerFunc(server.notFound))
	router.Use(server.logRequest)
	server.Router = router

	logger.WithFields(logrus.Fields{
		"address":            address,
		"enable-pprof":       enableProf,
		"enable-expvar":      enableExpVar,
		"enable-ingestion":   enableIngestion,
		"enable-healthcheck": enableHealthcheck,
		"enable-status":      enableStatus,
	}).Info("Created server")

	return server, nil
}

func (hs *httpServer) notFound(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(404)
	_, _ = w.Write([]byte("not found"))
}

func createRoutes(routes []route) (*mux.Router, error) {
	router := mux.NewRouter()

	for _, route := range routes {
		r := router.HandleFunc(route.path, route.handler).Methods(route.method).Name(route.name)
		if err := r.GetError(); err != nil {
			return nil, fmt.Errorf("error creating route %s: %v", route.name, err)
		}
	}

	return router, nil
}

func (hs *httpServer) logRequest(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		srcIP, _, err := net.SplitHostPort(req.RemoteAddr)
		if err != nil {
			srcIP = req.RemoteAddr
		}
		route := mux.CurrentRoute(req)
		logFields := logrus.Fields{
			"srcip": srcIP,
			"path":  req.URL.Path,
		}
		if route == nil {
			logFields["path"] = req.URL.Path
			logFields["method"] = req.Method
		} else {
			logFields["route"] = route.GetName()
		}
		source := req.Header.Get("X-Forwarded-For")
		if source != "" {
			logFields["forwarded_for"] = source
		}

		start := time.Now()
		handler.ServeHTTP(w, req)
		dur := time.Since(start)

		logFields["duration"] = float64(dur) / float64(time.Millisecond)
		hs.logger.WithFields(logFields).Debug("request")
	})
}

func (hs *httpServer) Run(ctx context.Context) {
	if hs.rawLines != nil {
		var wg wait.Group
		defer wg.Wait()
		wg.StartWithContext(ctx, hs.rawLines.RunMetricsContext)
	}

	server := &http.Server{
		Addr:    hs.address,
		Handler: hs.Router,
	}

	chStopped := make(chan struct{}, 1)
	go hs.waitAndStop(ctx, server, chStopped)

	hs.logger.WithField("address", server.Addr).Info("listening")

	err := server.ListenAndServe()
	if err != http.ErrServerClosed {
		hs.logger.WithError(err).Error("web server failed")
		return
	}

	// Wait for graceful shutdown of existing connections

	select {
	case <-chStopped:
		// happy
	case <-time.After(6 * time.Second):
		hs.logger.Info("timeout waiting for webserver to stop")
	}
}

// waitAndStop will gracefully shut down the Server when the Context passed is cancelled.  It signals
// on chStopped when it is done.  There is no guarantee that it will actually signal, if the server
// does not shutdown.
func (hs *httpServer) waitAndStop(ctx context.Context, server *http.Server, chStopped chan<- struct{}) {
	<-ctx.Done()

	hs.logger.Info("shutting down web server")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(timeoutCtx)
	if err != nil {
		hs.logger.WithError(err).Warn("failed to stop web server")
	}
	chStopped <- done
}

package web

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/atlassian/statsrelay"
	"github.com/atlassian/statsrelay/pkg/stats"
)

// maxBodySize bounds the size of a request body, after decompression.
const maxBodySize = 16 << 20

// rawLinesHandler accepts newline separated wire lines in a request body.
type rawLinesHandler struct {
	requestSuccess           uint64 // atomic
	requestFailureRead       uint64 // atomic
	requestFailureDecompress uint64 // atomic
	requestFailureEncoding   uint64 // atomic
	linesProcessed           uint64 // atomic

	logger     logrus.FieldLogger
	handler    statsrelay.LineHandler
	serverName string
}

func newRawLinesHandler(logger logrus.FieldLogger, serverName string, handler statsrelay.LineHandler) *rawLinesHandler {
	return &rawLinesHandler{
		logger:     logger,
		handler:    handler,
		serverName: serverName,
	}
}

func (rlh *rawLinesHandler) RunMetricsContext(ctx context.Context) {
	statser := stats.FromContext(ctx).WithPrefix("http." + rlh.serverName)

	notify, cancel := statser.RegisterFlush()
	defer cancel()

	for {
		select {
		case <-notify:
			rlh.emitMetrics(statser)
		case <-ctx.Done():
			return
		}
	}
}

func (rlh *rawLinesHandler) emitMetrics(statser stats.Statser) {
	statser.Count("incoming.success", float64(atomic.SwapUint64(&rlh.requestSuccess, 0)))
	statser.Count("incoming.failure.read", float64(atomic.SwapUint64(&rlh.requestFailureRead, 0)))
	statser.Count("incoming.failure.decompress", float64(atomic.SwapUint64(&rlh.requestFailureDecompress, 0)))
	statser.Count("incoming.failure.encoding", float64(atomic.SwapUint64(&rlh.requestFailureEncoding, 0)))
	statser.Count("incoming.lines", float64(atomic.SwapUint64(&rlh.linesProcessed, 0)))
}

func (rlh *rawLinesHandler) readBody(w http.ResponseWriter, req *http.Request) ([]byte, int) {
	b, err := ioutil.ReadAll(http.MaxBytesReader(w, req.Body, maxBodySize))
	if err != nil {
		atomic.AddUint64(&rlh.requestFailureRead, 1)
		rlh.logger.WithError(err).Info("failed reading body")
		return nil, http.StatusBadRequest
	}
	_ = req.Body.Close()

	encoding := req.Header.Get("Content-Encoding")
	switch encoding {
	case "deflate":
		b, err = decompress(b, maxBodySize)
		if err != nil {
			atomic.AddUint64(&rlh.requestFailureDecompress, 1)
			rlh.logger.WithError(err).Info("failed decompressing body")
			return nil, http.StatusBadRequest
		}
	case "identity", "":
		// no action
	default:
		atomic.AddUint64(&rlh.requestFailureEncoding, 1)
		if len(encoding) > 64 {
			encoding = encoding[0:64]
		}
		rlh.logger.WithField("encoding", encoding).Info("invalid encoding")
		return nil, http.StatusBadRequest
	}

	return b, 0
}

// LinesHandler hands every line of the body to the LineHandler. A final line does not need a
// trailing newline.
func (rlh *rawLinesHandler) LinesHandler(w http.ResponseWriter, req *http.Request) {
	b, errCode := rlh.readBody(w, req)
	if errCode != 0 {
		w.WriteHeader(errCode)
		return
	}

	var lines uint64
	for len(b) > 0 {
		var line []byte
		if idx := bytes.IndexByte(b, '\n'); idx == -1 {
			line, b = b, nil
		} else {
			line, b = b[:idx], b[idx+1:]
		}
		rlh.handler.HandleLine(line)
		lines++
	}

	atomic.AddUint64(&rlh.linesProcessed, lines)
	atomic.AddUint64(&rlh.requestSuccess, 1)
	w.WriteHeader(http.StatusAccepted)
}

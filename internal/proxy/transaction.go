package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/delta10/wfs-proxy/internal/config"
	"github.com/delta10/wfs-proxy/internal/inspect"
	"github.com/delta10/wfs-proxy/internal/ows"
	"github.com/delta10/wfs-proxy/internal/utils"
	"github.com/delta10/wfs-proxy/internal/wfs"
	"github.com/delta10/wfs-proxy/internal/xmlstream"
)

func (s *Server) handle(path config.Path, w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	logger := s.logger.With(
		zap.String("request_id", requestID),
		zap.String("path", path.Path),
		zap.String("ip", utils.ReadUserIP(r)))

	subject, err := s.subject(r)
	if err != nil {
		logger.Info("rejected bearer token", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "invalid bearer token")
		return
	}

	utils.DelHopHeaders(r.Header)

	switch r.Method {
	case http.MethodGet:
		s.handleGet(path, w, r, logger)
	case http.MethodPost:
		s.handleTransaction(path, w, r, logger.With(zap.String("subject", subject)), requestID, subject)
	default:
		writeError(w, http.StatusMethodNotAllowed, "request method is not allowed")
	}
}

// handleGet forwards KVP requests. Transactions must be posted as XML.
func (s *Server) handleGet(path config.Path, w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	if utils.QueryParamsContainMultipleKeys(r.URL.Query()) {
		writeError(w, http.StatusBadRequest, "query parameters contain multiple keys")
		return
	}

	params := utils.QueryParamsToLower(r.URL.Query())
	if strings.EqualFold(params.Get("request"), "Transaction") {
		version := params.Get("version")
		if version != string(wfs.Version100) {
			version = string(wfs.Version200)
		}
		s.fault(w, version, ows.NotSupported("request", "Transaction requests must be sent with POST"), logger)
		return
	}

	if path.Mode == config.ModeInspect {
		writeError(w, http.StatusBadRequest, "only Transaction requests can be inspected")
		return
	}
	s.forward(path, w, r, nil, logger)
}

// handleTransaction decodes and inspects the posted document while spooling
// it to disk, and forwards the spooled copy once it is known to be valid.
func (s *Server) handleTransaction(path config.Path, w http.ResponseWriter, r *http.Request, logger *zap.Logger, requestID, subject string) {
	spool, err := os.CreateTemp("", "wfs-transaction-*.xml")
	if err != nil {
		logger.Error("could not create spool file", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not buffer request")
		return
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	body := io.TeeReader(http.MaxBytesReader(w, r.Body, s.config.MaxBodySize), spool)
	version, summary, err := s.inspect(r.Context(), path, body, logger)
	if err != nil {
		s.metrics.Transaction(version, "rejected")
		s.fault(w, version, err, logger)
		return
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	s.metrics.Transaction(version, "accepted")
	for _, action := range summary.Actions {
		s.metrics.Action(version, action.Kind)
	}

	var rewritten any = summary
	if path.SummaryRewrite != "" {
		if rewritten, err = summary.Rewrite(path.SummaryRewrite); err != nil {
			logger.Error("could not rewrite summary", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not rewrite summary")
			return
		}
	}
	s.audit(r.Context(), path, summary, rewritten, requestID, subject, logger)

	if path.Mode == config.ModeInspect {
		response, err := json.MarshalIndent(rewritten, "", "    ")
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not marshal json")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(response)
		return
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		writeError(w, http.StatusInternalServerError, "could not rewind request")
		return
	}
	s.forward(path, w, r, spool, logger)
}

func (s *Server) inspect(ctx context.Context, path config.Path, body io.Reader, logger *zap.Logger) (string, *inspect.Summary, error) {
	version := string(wfs.Version200)

	c, err := xmlstream.Open(body)
	if err != nil {
		return version, nil, err
	}
	if c.Name().Space == wfs.Namespace100 {
		version = string(wfs.Version100)
	}

	req, err := s.decoder.Decode(c)
	if err != nil {
		return version, nil, err
	}

	summary, err := inspect.Summarize(ctx, req, inspect.Options{
		Schema:      s.schema,
		MaxFeatures: path.MaxFeatures,
		Constraint:  s.constraints[path.Path],
		Logger:      logger,
	})
	return version, summary, err
}

func (s *Server) fault(w http.ResponseWriter, version string, err error, logger *zap.Logger) {
	code := ows.CodeOf(err)
	s.metrics.Fault(code)

	status := http.StatusBadRequest
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
		logger.Info("transaction too large", zap.Int64("limit", tooLarge.Limit))
	} else if code == "NoApplicableCode" {
		status = http.StatusInternalServerError
		logger.Error("transaction failed", zap.Error(err))
	} else {
		logger.Info("transaction rejected", zap.String("code", code), zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(status)
	if err := ows.WriteReport(w, version, err); err != nil {
		logger.Warn("could not write exception report", zap.Error(err))
	}
}

func (s *Server) audit(ctx context.Context, path config.Path, summary *inspect.Summary, rewritten any, requestID, subject string, logger *zap.Logger) {
	backend, ok := s.logBackends[path.LogBackend]
	if !ok {
		return
	}

	typeName, count := utils.GetTransactionMetadata(summary)
	labels := map[string]string{
		"service":   "wfs-proxy",
		"path":      path.Path,
		"operation": "Transaction",
	}
	line := map[string]any{
		"request_id": requestID,
		"subject":    subject,
		"type_name":  typeName,
		"actions":    count,
		"summary":    rewritten,
	}
	if err := backend.WriteLog(ctx, labels, line); err != nil {
		logger.Warn("could not write audit log", zap.String("log_backend", path.LogBackend), zap.Error(err))
	}
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"scorecast/db"
	"scorecast/ml"
	"scorecast/monitoring"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// Deps are the collaborators the API serves from. Store, Recorder and
// Metrics may be nil; CacheSize 0 disables the prediction cache.
type Deps struct {
	Predictor ml.ScorePredictor
	Store     *db.Store
	Recorder  *db.PredictionRecorder
	Metrics   *monitoring.MetricsCollector
	CacheSize int
	Logger    *zap.Logger
}

// API holds the request handlers.
type API struct {
	predictor ml.ScorePredictor
	store     *db.Store
	recorder  *db.PredictionRecorder
	cache     *lru.Cache[ml.FeatureRecord, ml.TargetVector]
	metrics   *monitoring.MetricsCollector
	logger    *zap.Logger
}

// NewAPI requires a predictor; the store, recorder and metrics are optional.
func NewAPI(deps Deps) (*API, error) {
	if deps.Predictor == nil {
		return nil, errors.New("predictor is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	api := &API{
		predictor: deps.Predictor,
		store:     deps.Store,
		recorder:  deps.Recorder,
		metrics:   deps.Metrics,
		logger:    logger,
	}
	if api.metrics == nil {
		api.metrics = monitoring.NewMetricsCollector()
	}
	if deps.CacheSize > 0 {
		cache, err := lru.New[ml.FeatureRecord, ml.TargetVector](deps.CacheSize)
		if err != nil {
			return nil, err
		}
		api.cache = cache
	}
	return api, nil
}

// RegisterHandlers mounts every API route and the static page on mux.
func (a *API) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("POST /api/predict", a.handlePredict)
	mux.HandleFunc("POST /predict", a.handlePredict)
	mux.HandleFunc("GET /api/model", a.handleModel)
	mux.HandleFunc("GET /api/metrics", a.handleMetrics)
	mux.HandleFunc("GET /api/predictions", a.handleRecentPredictions)
	mux.HandleFunc("GET /api/training/runs", a.handleTrainingRuns)
	mux.HandleFunc("GET /api/ws/predict", a.handlePredictStream)
	mux.Handle("GET /", staticHandler())
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	model := "ready"
	if !a.predictor.Ready() {
		model = "unavailable"
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "model": model})
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	if !isJSONContent(r) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content type must be application/json", ml.InvalidInput.String())
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large", ml.InvalidInput.String())
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read request body", ml.InvalidInput.String())
		return
	}

	scores, err := a.predict(r.Context(), GetRequestID(r.Context()), raw)
	if err != nil {
		a.writePredictError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, scores)
}

// predict parses raw and answers from the cache when possible. Successful
// predictions are queued for the history store.
func (a *API) predict(ctx context.Context, requestID string, raw []byte) (ml.TargetVector, error) {
	start := time.Now()
	p, err := a.lookup(raw)
	if err != nil {
		a.metrics.IncrCounter(monitoring.PredictionErrors, ml.PredictKind(err).String())
		return ml.TargetVector{}, err
	}
	a.metrics.IncrCounter(monitoring.PredictionsTotal)
	a.metrics.ObserveLatency(time.Since(start))

	if a.recorder != nil && ctx.Err() == nil {
		a.recorder.Record(db.PredictionRecord{RequestID: requestID, Input: p.input, Output: p.output})
	}
	return p.output, nil
}

type prediction struct {
	input  ml.FeatureRecord
	output ml.TargetVector
}

func (a *API) lookup(raw []byte) (prediction, error) {
	if !a.predictor.Ready() {
		return prediction{}, &ml.PredictError{Kind: ml.ModelUnavailable}
	}
	rec, err := ml.ParseRecord(raw, a.predictor.Sentinel())
	if err != nil {
		return prediction{}, err
	}

	if a.cache != nil {
		if scores, ok := a.cache.Get(rec); ok {
			a.metrics.IncrCounter(monitoring.CacheHits)
			return prediction{rec, scores}, nil
		}
		a.metrics.IncrCounter(monitoring.CacheMisses)
	}
	scores, err := a.predictor.Predict(rec)
	if err != nil {
		return prediction{}, err
	}
	if a.cache != nil {
		a.cache.Add(rec, scores)
	}
	return prediction{rec, scores}, nil
}

func (a *API) handleModel(w http.ResponseWriter, r *http.Request) {
	info, err := a.predictor.Info()
	if err != nil {
		a.writePredictError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "prometheus" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		io.WriteString(w, a.metrics.ExportPrometheus())
		return
	}
	respondJSON(w, http.StatusOK, a.metrics.Snapshot())
}

func (a *API) handleRecentPredictions(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "history store not configured", "unavailable")
		return
	}
	records, err := a.store.RecentPredictions(r.Context(), parseLimit(r))
	if err != nil {
		a.logger.Error("query predictions failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to query predictions", ml.Unexpected.String())
		return
	}
	if records == nil {
		records = []db.PredictionRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"predictions": records, "count": len(records)})
}

func (a *API) writePredictError(w http.ResponseWriter, r *http.Request, err error) {
	kind := ml.PredictKind(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		a.logger.Error("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(errors.Unwrap(err)),
		)
		writeJSONError(w, status, "internal error while computing prediction", ml.Unexpected.String())
		return
	}
	writeJSONError(w, status, err.Error(), kind.String())
}

func statusForKind(kind ml.PredictErrorKind) int {
	switch kind {
	case ml.ModelUnavailable:
		return http.StatusServiceUnavailable
	case ml.MissingField, ml.InvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseLimit(r *http.Request) int {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 {
			limit = l
		}
	}
	return min(limit, maxListLimit)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSONError(w http.ResponseWriter, status int, msg, kind string) {
	respondJSON(w, status, errorBody{Error: msg, Kind: kind})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

package agent

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/infodancer/mailstatsd/internal/logging"
	"github.com/infodancer/mailstatsd/internal/mailstats"
	"github.com/infodancer/mailstatsd/internal/metrics"
	"github.com/infodancer/mailstatsd/internal/server"
)

// PingKey is answered with 1 without touching the statistics file.
const PingKey = "agent.ping"

// Result labels recorded besides the mailstats error kinds.
const (
	resultOK          = "ok"
	resultMalformed   = "malformed_key"
	resultUnsupported = "unsupported_key"
	resultProtocol    = "protocol_error"

	otherKey = "other"
)

// Resolver resolves a metric key to a counter value.
type Resolver interface {
	Resolve(key string, params []string) (uint64, error)
}

// Config holds the settings for a Handler.
type Config struct {
	Resolver Resolver
	// KeyPrefix is stripped from every requested key. Keys without it are
	// not supported. An empty prefix accepts the bare vocabulary.
	KeyPrefix string
	// StatisticsFile replaces an empty path parameter.
	StatisticsFile string
	Collector      metrics.Collector
}

// Handler answers passive checks against a statistics file.
type Handler struct {
	resolver    Resolver
	prefix      string
	defaultPath string
	collector   metrics.Collector
	known       map[string]bool
}

// NewHandler creates a Handler from cfg.
func NewHandler(cfg Config) *Handler {
	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	known := make(map[string]bool, len(mailstats.Keys)+1)
	for _, k := range mailstats.Keys {
		known[k] = true
	}
	known[PingKey] = true

	return &Handler{
		resolver:    cfg.Resolver,
		prefix:      cfg.KeyPrefix,
		defaultPath: cfg.StatisticsFile,
		collector:   collector,
		known:       known,
	}
}

// Serve reads one request from conn and writes the answer. It has the
// signature of server.ConnectionHandler.
func (h *Handler) Serve(ctx context.Context, conn *server.Connection) {
	logger := logging.FromContext(ctx)

	if err := conn.StartRead(); err != nil {
		logger.Error("failed to set read deadline", slog.String("error", err.Error()))
		return
	}

	request, err := ReadRequest(conn.Reader())
	if err != nil {
		if !errors.Is(err, ErrRequestTooLarge) && !errors.Is(err, ErrUnsupportedFlags) {
			logger.Debug("reading request failed", slog.String("error", err.Error()))
			return
		}
		logger.Warn("rejecting request", slog.String("error", err.Error()))
		h.collector.RequestProcessed(otherKey, resultProtocol)
		h.reply(logger, conn, NotSupported(capitalize(err.Error())+"."))
		return
	}

	logger = logging.WithRequest(logger, request)
	payload, label, result := h.Answer(request)
	h.collector.RequestProcessed(label, result)

	if result == resultOK {
		logger.Debug("request answered", slog.String("value", payload))
	} else {
		logger.Info("request not supported", slog.String("result", result))
	}

	h.reply(logger, conn, payload)
}

func (h *Handler) reply(logger *slog.Logger, conn *server.Connection, payload string) {
	if err := WriteResponse(conn.Writer(), payload); err != nil {
		logger.Debug("writing response failed", slog.String("error", err.Error()))
		return
	}
	if err := conn.Flush(); err != nil {
		logger.Debug("flushing response failed", slog.String("error", err.Error()))
	}
}

// Answer computes the response payload for a request. It also returns the
// key and result labels to record; unknown keys are labelled "other".
func (h *Handler) Answer(request string) (payload, key, result string) {
	name, params, err := ParseItemKey(request)
	if err != nil {
		return NotSupported("Invalid item key format."), otherKey, resultMalformed
	}

	if name == PingKey {
		return "1", PingKey, resultOK
	}

	metric, ok := strings.CutPrefix(name, h.prefix)
	if !ok {
		return NotSupported("Unsupported item key."), otherKey, resultUnsupported
	}
	key = otherKey
	if h.known[metric] {
		key = metric
	}

	if len(params) > 0 && params[0] == "" {
		params[0] = h.defaultPath
	}

	value, err := h.resolver.Resolve(metric, params)
	if err != nil {
		kind := mailstats.KindOf(err)
		result = kind.String()
		if kind == mailstats.KindNone {
			result = "error"
		}
		return NotSupported(capitalize(err.Error()) + "."), key, result
	}
	return strconv.FormatUint(value, 10), key, resultOK
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

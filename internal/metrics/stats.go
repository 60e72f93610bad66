package metrics

import (
	"log/slog"
	"maps"
	"slices"
	"strconv"

	"github.com/infodancer/mailstatsd/internal/mailstats"
	"github.com/prometheus/client_golang/prometheus"
)

// RecordLoader loads a validated statistics record.
type RecordLoader interface {
	Load(path string) (mailstats.Record, error)
}

// StatsExporter is a prometheus.Collector that reads the statistics file on
// every scrape and reports its counters. Nothing is cached between scrapes.
type StatsExporter struct {
	loader  RecordLoader
	path    string
	logger  *slog.Logger
	mailers [mailstats.MaxMailers]string

	up          *prometheus.Desc
	initTime    *prometheus.Desc
	connections *prometheus.Desc
	messages    *prometheus.Desc
	kilobytes   *prometheus.Desc
	rejected    *prometheus.Desc
	discarded   *prometheus.Desc
	quarantined *prometheus.Desc
}

// NewStatsExporter creates an exporter for the statistics file at path.
// names maps mailer slot indices to label values; slots without a name
// are labelled with their index.
func NewStatsExporter(loader RecordLoader, path string, names map[string]string, logger *slog.Logger) *StatsExporter {
	if logger == nil {
		logger = slog.Default()
	}

	e := &StatsExporter{
		loader: loader,
		path:   path,
		logger: logger,

		up: prometheus.NewDesc("sendmail_stats_up",
			"Whether the last read of the statistics file succeeded.", nil, nil),
		initTime: prometheus.NewDesc("sendmail_stats_init_timestamp_seconds",
			"Time the statistics file was initialized.", nil, nil),
		connections: prometheus.NewDesc("sendmail_connections_total",
			"Connections handled by sendmail.", []string{"direction"}, nil),
		messages: prometheus.NewDesc("sendmail_mailer_messages_total",
			"Messages handled per mailer.", []string{"mailer", "direction"}, nil),
		kilobytes: prometheus.NewDesc("sendmail_mailer_kilobytes_total",
			"Kilobytes handled per mailer.", []string{"mailer", "direction"}, nil),
		rejected: prometheus.NewDesc("sendmail_mailer_messages_rejected_total",
			"Messages rejected per mailer.", []string{"mailer"}, nil),
		discarded: prometheus.NewDesc("sendmail_mailer_messages_discarded_total",
			"Messages discarded per mailer.", []string{"mailer"}, nil),
		quarantined: prometheus.NewDesc("sendmail_mailer_messages_quarantined_total",
			"Messages quarantined per mailer.", []string{"mailer"}, nil),
	}

	e.mailers = mailerLabels(names, logger)
	return e
}

// mailerLabels builds the label for every slot. Names that would clash with
// another slot's label are dropped; slots are applied in sorted order so the
// outcome does not depend on map iteration.
func mailerLabels(names map[string]string, logger *slog.Logger) [mailstats.MaxMailers]string {
	var labels [mailstats.MaxMailers]string
	owner := make(map[string]int, mailstats.MaxMailers)
	for i := range labels {
		labels[i] = strconv.Itoa(i)
		owner[labels[i]] = i
	}

	named := make(map[int]bool, len(names))
	for _, slot := range slices.Sorted(maps.Keys(names)) {
		name := names[slot]
		i, err := mailstats.ParseMailerIndex(slot)
		if err == nil && !named[i] && name != "" {
			if j, taken := owner[name]; !taken || j == i {
				delete(owner, labels[i])
				labels[i] = name
				owner[name] = i
				named[i] = true
				continue
			}
		}
		logger.Warn("ignoring mailer name", slog.String("slot", slot), slog.String("name", name))
	}
	return labels
}

// Describe implements prometheus.Collector.
func (e *StatsExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.up
	ch <- e.initTime
	ch <- e.connections
	ch <- e.messages
	ch <- e.kilobytes
	ch <- e.rejected
	ch <- e.discarded
	ch <- e.quarantined
}

// Collect implements prometheus.Collector.
func (e *StatsExporter) Collect(ch chan<- prometheus.Metric) {
	rec, err := e.loader.Load(e.path)
	if err != nil {
		e.logger.Warn("statistics file unavailable",
			slog.String("path", e.path),
			slog.String("kind", mailstats.KindOf(err).String()),
			slog.String("error", err.Error()),
		)
		ch <- prometheus.MustNewConstMetric(e.up, prometheus.GaugeValue, 0)
		return
	}

	ch <- prometheus.MustNewConstMetric(e.up, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(e.initTime, prometheus.GaugeValue, float64(rec.InitTime))

	counter := func(desc *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}

	counter(e.connections, rec.ConnectionsFrom, "from")
	counter(e.connections, rec.ConnectionsTo, "to")
	counter(e.connections, rec.ConnectionsRejected, "rejected")

	for i, name := range e.mailers {
		counter(e.messages, rec.Mailer(mailstats.MessagesFrom, i), name, "from")
		counter(e.messages, rec.Mailer(mailstats.MessagesTo, i), name, "to")
		counter(e.kilobytes, rec.Mailer(mailstats.KilobytesFrom, i), name, "from")
		counter(e.kilobytes, rec.Mailer(mailstats.KilobytesTo, i), name, "to")
		counter(e.rejected, rec.Mailer(mailstats.MessagesRejected, i), name)
		counter(e.discarded, rec.Mailer(mailstats.MessagesDiscarded, i), name)
		counter(e.quarantined, rec.Mailer(mailstats.MessagesQuarantined, i), name)
	}
}

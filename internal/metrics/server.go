package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/betbot/traderelay/pkg/logger"
)

// Summary is the relay's view of the counters, served on /debug/relay.
type Summary struct {
	Events          int64            `json:"events"`
	Outcomes        map[string]int64 `json:"outcomes"`
	Failures        map[string]int64 `json:"failures"`
	Notifications   int64            `json:"notifications"`
	StoreWrites     int64            `json:"storeWrites"`
	NotifyAvgMs     float64          `json:"notifyAvgMs"`
	NotifyLastMs    int64            `json:"notifyLastMs"`
	KafkaMessages   int64            `json:"kafkaMessages"`
	KafkaDeadLetter int64            `json:"kafkaDeadLetter"`
}

func Snapshot() Summary {
	s := Summary{
		Events:          RelayEvents.Value(),
		Outcomes:        mapValues(RelayOutcomes),
		Failures:        mapValues(RelayFailures),
		Notifications:   RelayNotifications.Value(),
		StoreWrites:     RelayStoreWrites.Value(),
		NotifyLastMs:    NotifyLatencyLastMs.Value(),
		KafkaMessages:   KafkaMessages.Value(),
		KafkaDeadLetter: KafkaDLQ.Value(),
	}
	if n := NotifyLatencySamples.Value(); n > 0 {
		s.NotifyAvgMs = float64(NotifyLatencyTotalMs.Value()) / float64(n)
	}
	return s
}

func mapValues(m *expvar.Map) map[string]int64 {
	out := make(map[string]int64)
	m.Do(func(kv expvar.KeyValue) {
		if v, err := strconv.ParseInt(kv.Value.String(), 10, 64); err == nil {
			out[kv.Key] = v
		}
	})
	return out
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/debug/relay", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Snapshot())
	})

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// StartAsync serves the debug endpoints on listenAddr until ctx is done and
// returns the bound address. Keep it on localhost or an internal interface.
func StartAsync(ctx context.Context, listenAddr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: newMux(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server stopped: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(stopCtx)
	}()
	return ln.Addr(), nil
}

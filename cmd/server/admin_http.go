package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"verdant.ai/internal/persistence/indexdb"
	"verdant.ai/internal/sim/sector"
	"verdant.ai/internal/sim/terrain/store"
	"verdant.ai/internal/sim/vegetation"
	"verdant.ai/internal/transport/ws"
)

// app bundles what the HTTP surface needs. Streamer, index and ws may be
// nil.
type app struct {
	queue    *vegetation.Queue
	streamer *store.Streamer
	index    *indexdb.SQLiteIndex
	ws       *ws.Server
}

// requestVisible queues vegetation for s and prefetches its heightmap.
func (rt *app) requestVisible(s sector.Sector) bool {
	ok := rt.queue.Request(s)
	if ok && rt.streamer != nil {
		rt.streamer.Request(s)
	}
	return ok
}

func (rt *app) registerAdmin(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/visible", rt.sectorHandler(rt.requestVisible))
	mux.HandleFunc("/admin/v1/release", rt.sectorHandler(rt.queue.Release))
	mux.HandleFunc("/admin/v1/pending", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		pending := rt.queue.Pending()
		if pending == nil {
			pending = []sector.Sector{}
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"pending": pending, "totals": rt.queue.Totals()})
	})
}

func (rt *app) sectorHandler(apply func(sector.Sector) bool) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		x, errX := strconv.Atoi(r.URL.Query().Get("x"))
		y, errY := strconv.Atoi(r.URL.Query().Get("y"))
		if errX != nil || errY != nil {
			http.Error(rw, "x and y must be integers", http.StatusBadRequest)
			return
		}
		s := sector.New(x, y)
		changed := apply(s)
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "sector": s, "changed": changed})
	}
}

func (rt *app) metricsHandler(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	tot := rt.queue.Totals()
	fmt.Fprintf(rw, "# HELP verdant_tick Latest vegetation tick.\n")
	fmt.Fprintf(rw, "# TYPE verdant_tick counter\n")
	fmt.Fprintf(rw, "verdant_tick %d\n", tot.Tick)
	fmt.Fprintf(rw, "# HELP verdant_pending_requests Sector requests waiting for vegetation.\n")
	fmt.Fprintf(rw, "# TYPE verdant_pending_requests gauge\n")
	fmt.Fprintf(rw, "verdant_pending_requests %d\n", rt.queue.Len())
	fmt.Fprintf(rw, "verdant_sectors_consumed_total %d\n", tot.Consumed)
	fmt.Fprintf(rw, "verdant_sectors_deferred_total %d\n", tot.Deferred)
	fmt.Fprintf(rw, "verdant_sectors_failed_total %d\n", tot.Failed)
	fmt.Fprintf(rw, "verdant_placements_total %d\n", tot.Placements)

	if rt.streamer != nil {
		st := rt.streamer.Stats()
		fmt.Fprintf(rw, "verdant_stream_loaded_total %d\n", st.Loaded)
		fmt.Fprintf(rw, "verdant_stream_missing_total %d\n", st.Missing)
		fmt.Fprintf(rw, "verdant_stream_failed_total %d\n", st.Failed)
		fmt.Fprintf(rw, "verdant_stream_dropped_total %d\n", st.Dropped)
	}
	if rt.index != nil {
		st := rt.index.Stats()
		fmt.Fprintf(rw, "verdant_index_queue_depth %d\n", st.QueueDepth)
		fmt.Fprintf(rw, "verdant_index_dropped_total %d\n", st.DropTotal)
	}
	if rt.ws != nil {
		sent, dropped := rt.ws.Stats()
		fmt.Fprintf(rw, "verdant_ws_clients %d\n", rt.ws.Clients())
		fmt.Fprintf(rw, "verdant_ws_sent_total %d\n", sent)
		fmt.Fprintf(rw, "verdant_ws_dropped_total %d\n", dropped)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dreamware/replwatch/internal/cluster"
	"github.com/dreamware/replwatch/internal/config"
	"github.com/dreamware/replwatch/internal/routing"
	"github.com/dreamware/replwatch/internal/topology"
	"github.com/dreamware/replwatch/internal/transport"
)

func main() {
	slog.SetDefault(newLogger(os.Stderr, getenv("REPLWATCH_LOG_LEVEL", "info")))
	addr := getenv("REPLWATCH_ADDR", ":8080")

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ConnectTimeout)*time.Millisecond+5*time.Second)
	srv, err := newServer(ctx, cfg, slog.Default())
	cancel()
	if err != nil {
		log.Fatalf("start manager: %v", err)
	}
	defer srv.close()

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("replwatch listening on %s, master %s", addr, srv.mgr.CurrentMaster())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Println("replwatch stopped")
}

// loadConfig reads the optional YAML file named by REPLWATCH_CONFIG, then
// applies environment overrides and validates the result.
func loadConfig(getenv func(string) string) (config.Config, error) {
	cfg := config.Default()
	if path := getenv("REPLWATCH_CONFIG"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

type server struct {
	pool  *transport.Pool
	table *routing.Table
	mgr   *topology.Manager
}

// newServer connects to the configured nodes and starts watching them.
func newServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*server, error) {
	opts, err := topology.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool := transport.NewPool(cfg.TransportOptions())
	table := routing.NewTable(pool.Ping)

	opts.Connector = topology.NewPoolConnector(pool)
	opts.Routing = table
	opts.Logger = logger

	mgr, err := topology.NewManager(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &server{pool: pool, table: table, mgr: mgr}, nil
}

func (s *server) close() {
	s.mgr.Shutdown()
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/topology", s.handleTopology)
	mux.HandleFunc("/slaves/freeze", s.handleFreeze)
	mux.HandleFunc("/slaves/unfreeze", s.handleUnfreeze)
	mux.HandleFunc("/route/", s.handleRoute)
	return mux
}

type topologyResponse struct {
	LastCycle      *topology.CycleReport   `json:"last_cycle,omitempty"`
	ManagerID      string                  `json:"manager_id"`
	Master         cluster.NodeAddress     `json:"master"`
	Entries        []routing.EntrySnapshot `json:"entries"`
	ScanIntervalMS int64                   `json:"scan_interval_ms"`
	SkipSlavesInit bool                    `json:"skip_slaves_init"`
}

// handleTopology reports the manager's view of the group.
func (s *server) handleTopology(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := topologyResponse{
		ManagerID:      s.mgr.ID().String(),
		Master:         s.mgr.CurrentMaster(),
		Entries:        s.table.Snapshot(),
		ScanIntervalMS: s.mgr.ScanInterval().Milliseconds(),
		SkipSlavesInit: s.mgr.SkipSlavesInit(),
	}
	if report, ok := s.mgr.LastCycle(); ok {
		resp.LastCycle = &report
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type slaveRequest struct {
	Addr string `json:"addr"`
}

// decodeSlave parses the request body and checks the address belongs to a
// known slave. It writes the error response itself and returns false on
// failure.
func (s *server) decodeSlave(w http.ResponseWriter, r *http.Request) (cluster.NodeAddress, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return cluster.NodeAddress{}, false
	}

	var req slaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return cluster.NodeAddress{}, false
	}
	addr, err := cluster.ParseNodeAddress(req.Addr)
	if err != nil {
		http.Error(w, fmt.Sprintf("bad addr: %v", err), http.StatusBadRequest)
		return cluster.NodeAddress{}, false
	}

	e := s.table.Entry(routing.SingleSlotRange.Start)
	if e == nil || !e.HasSlave(addr) {
		http.Error(w, fmt.Sprintf("%v: %s", routing.ErrSlaveNotFound, addr), http.StatusNotFound)
		return cluster.NodeAddress{}, false
	}
	return addr, true
}

// handleFreeze takes a slave out of read rotation until an operator
// unfreezes it.
func (s *server) handleFreeze(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.decodeSlave(w, r)
	if !ok {
		return
	}
	if !s.table.SlaveDown(routing.SingleSlotRange.Start, addr, routing.FreezeSystem) {
		http.Error(w, "already frozen", http.StatusConflict)
		return
	}
	slog.Info("slave frozen by operator", "addr", addr)
	w.WriteHeader(http.StatusNoContent)
}

// handleUnfreeze lifts an operator freeze.
func (s *server) handleUnfreeze(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.decodeSlave(w, r)
	if !ok {
		return
	}
	if !s.table.SlaveUp(routing.SingleSlotRange.Start, addr, routing.FreezeSystem) {
		http.Error(w, "not frozen", http.StatusConflict)
		return
	}
	slog.Info("slave unfrozen by operator", "addr", addr)
	w.WriteHeader(http.StatusNoContent)
}

// handleRoute reports which node serves a key
func (s *server) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Extract key from path: /route/{key}
	key := strings.TrimPrefix(r.URL.Path, "/route/")
	if key == "" {
		http.Error(w, "key required", http.StatusBadRequest)
		return
	}

	master, slot, err := s.table.MasterForKey(key)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, routing.ErrUnknownSlotRange) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	var readers []cluster.NodeAddress
	if e := s.table.EntryForSlot(slot); e != nil {
		readers = e.UpSlaves()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Key    string                `json:"key"`
		Master cluster.NodeAddress   `json:"master"`
		Slaves []cluster.NodeAddress `json:"slaves"`
		Slot   int                   `json:"slot"`
	}{Key: key, Slot: slot, Master: master, Slaves: readers})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

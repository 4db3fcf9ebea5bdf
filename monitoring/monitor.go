// Package monitoring serves the state of a running experiment over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

const defaultFlipHistory = 1024

// FlipView is the JSON form of a detected flip.
type FlipView struct {
	Trial       uint64 `json:"trial"`
	AggressorVA string `json:"aggressor_va"`
	AggressorPA string `json:"aggressor_pa"`
	VA          string `json:"va"`
	PA          string `json:"pa"`
	Expected    string `json:"expected"`
	Actual      string `json:"actual"`
	Bit         int    `json:"bit"`
	Direction   string `json:"direction"`
}

// Monitor turns an experiment into a server that can be watched while it
// runs.
type Monitor struct {
	portNumber int
	config     any
	gatherer   prometheus.Gatherer

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	flipsLock   sync.Mutex
	flips       []FlipView
	flipHistory int
	flipsSeen   uint64
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		flipHistory: defaultFlipHistory,
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithGatherer sets where /metrics collects its metrics from.
func (m *Monitor) WithGatherer(g prometheus.Gatherer) *Monitor {
	m.gatherer = g
	return m
}

// WithFlipHistory sets how many recent flips /api/flips keeps.
func (m *Monitor) WithFlipHistory(n int) *Monitor {
	m.flipHistory = n
	return m
}

// RegisterConfig sets the value served by /api/config.
func (m *Monitor) RegisterConfig(config any) {
	m.config = config
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// RecordFlip remembers a flip. Only the most recent flips are kept.
func (m *Monitor) RecordFlip(f FlipView) {
	m.flipsLock.Lock()
	defer m.flipsLock.Unlock()

	m.flipsSeen++
	m.flips = append(m.flips, f)

	if len(m.flips) > m.flipHistory {
		m.flips = m.flips[len(m.flips)-m.flipHistory:]
	}
}

// Router returns the handler of all the endpoints.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/flips", m.listFlips)
	r.HandleFunc("/api/config", m.showConfig)
	r.HandleFunc("/api/config/{field}", m.showConfigField)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	if m.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// StartServer starts serving in the background and returns the port.
func (m *Monitor) StartServer() (int, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return 0, fmt.Errorf("starting monitoring server: %w", err)
	}

	port := listener.Addr().(*net.TCPAddr).Port

	fmt.Fprintf(os.Stderr,
		"Monitoring experiment with http://localhost:%d\n", port)

	go func() {
		err := http.Serve(listener, m.Router())
		dieOnErr(err)
	}()

	return port, nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	views := make([]ProgressView, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		views = append(views, b.View())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, views)
}

type flipsRsp struct {
	Total uint64     `json:"total"`
	Flips []FlipView `json:"flips"`
}

func (m *Monitor) listFlips(w http.ResponseWriter, _ *http.Request) {
	m.flipsLock.Lock()
	rsp := flipsRsp{
		Total: m.flipsSeen,
		Flips: append([]FlipView{}, m.flips...),
	}
	m.flipsLock.Unlock()

	writeJSON(w, rsp)
}

func (m *Monitor) showConfig(w http.ResponseWriter, _ *http.Request) {
	m.serializeConfig(w, nil)
}

func (m *Monitor) showConfigField(w http.ResponseWriter, r *http.Request) {
	fields := strings.Split(mux.Vars(r)["field"], ".")
	m.serializeConfig(w, fields)
}

func (m *Monitor) serializeConfig(w http.ResponseWriter, fields []string) {
	if m.config == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("No configuration registered"))
		dieOnErr(err)

		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(m.config)
	serializer.SetMaxDepth(2)

	if fields != nil {
		err := serializer.SetEntryPoint(fields)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "Error: %s", err)

			return
		}
	}

	err := serializer.Serialize(w)
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}

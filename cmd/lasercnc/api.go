package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"github.com/mastercactapus/lasergrbl/gcode"
	"github.com/mastercactapus/lasergrbl/ledger"
	"github.com/mastercactapus/lasergrbl/machine"
	"github.com/mastercactapus/lasergrbl/machine/grbl"
)

type api struct {
	http.Handler
	app *app
	c   *controller
	log *zap.Logger

	dataDir string
	sse     *sse.Server
	cancel  []func()

	mx  sync.Mutex
	job *jobStatus
}

// jobStatus is published on /events/job while a file is streamed.
type jobStatus struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	State   string    `json:"state"`
	Sent    int       `json:"sent"`
	Total   int       `json:"total"`
	Started time.Time `json:"started"`
	Error   string    `json:"error,omitempty"`
}

func newAPI(a *app, c *controller) *api {
	r := mux.NewRouter()

	srv := &api{
		Handler: r,
		app:     a,
		c:       c,
		log:     a.log.Named("api"),
		dataDir: a.cfg.Server.DataDir,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(io.Discard, "", 0),
		}),
	}

	fs := http.FileServer(http.Dir(srv.dataDir))
	r.PathPrefix("/data/").Handler(http.StripPrefix("/data", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			fs.ServeHTTP(w, req)
		case http.MethodPut:
			srv.putFile(w, req)
		case http.MethodDelete:
			srv.deleteFile(w, req)
		default:
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})))

	v1 := r.PathPrefix("/api").Subrouter()
	v1.HandleFunc("/connect", srv.connect).Methods(http.MethodPost)
	v1.HandleFunc("/disconnect", srv.disconnect).Methods(http.MethodPost)
	v1.HandleFunc("/send", srv.send).Methods(http.MethodPost)
	v1.HandleFunc("/run/{name}", srv.run).Methods(http.MethodPost)
	v1.HandleFunc("/stop", srv.stop).Methods(http.MethodPost)
	v1.HandleFunc("/reset", srv.reset).Methods(http.MethodPost)
	v1.HandleFunc("/realtime/{cmd}", srv.realtime).Methods(http.MethodPost)
	v1.HandleFunc("/override/{kind}/{step}", srv.override).Methods(http.MethodPost)
	v1.HandleFunc("/jog", srv.jog).Methods(http.MethodPost)
	v1.HandleFunc("/machine/{action}", srv.action).Methods(http.MethodPost)
	v1.HandleFunc("/lines", srv.lines).Methods(http.MethodGet)
	v1.HandleFunc("/state", srv.state).Methods(http.MethodGet)
	v1.HandleFunc("/preview/{name}", srv.preview).Methods(http.MethodGet)
	v1.HandleFunc("/ports", srv.ports).Methods(http.MethodGet)

	r.PathPrefix("/events/").Handler(srv.sse)
	r.HandleFunc("/ws", srv.console)

	srv.cancel = append(srv.cancel,
		c.model.Subscribe(func(u machine.Update) { srv.publish("/events/state", u) }),
		c.ledger.Subscribe(func(ch ledger.Change) { srv.publish("/events/lines", ch) }),
	)

	r.Use(srv.logRequests)
	return srv
}

func (a *api) Close() {
	for _, cancel := range a.cancel {
		cancel()
	}
	a.sse.Shutdown()
}

func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		a.log.Debug("request", zap.String("method", req.Method), zap.String("path", req.URL.Path), zap.String("remote", req.RemoteAddr))
		next.ServeHTTP(w, req)
	})
}

func (a *api) publish(channel string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		a.log.Error("marshal event", zap.String("channel", channel), zap.Error(err))
		return
	}
	a.sse.SendMessage(channel, sse.SimpleMessage(string(data)))
}

func (a *api) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Warn("encode response", zap.Error(err))
	}
}

func (a *api) fail(w http.ResponseWriter, msg string, err error) {
	a.log.Error(msg, zap.Error(err))
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, grbl.ErrNotConnected):
		code = http.StatusServiceUnavailable
	case errors.Is(err, machine.ErrJobActive), errors.Is(err, machine.ErrNotAtZero):
		code = http.StatusConflict
	case errors.Is(err, os.ErrNotExist):
		code = http.StatusNotFound
	}
	http.Error(w, err.Error(), code)
}

func safePath(base, name string) (bool, string) {
	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		return false, ""
	}
	dir := base
	if dir == "" {
		dir = "."
	}
	fullName := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+name)))
	return true, fullName
}

func (a *api) putFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	os.MkdirAll(filepath.Dir(name), 0755)
	f, err := os.Create(name)
	if err != nil {
		a.fail(w, "create file", err)
		return
	}
	defer f.Close()
	_, err = io.Copy(f, req.Body)
	if err != nil {
		a.fail(w, "write file", err)
		return
	}
}

func (a *api) deleteFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := os.Remove(name)
	if err != nil {
		a.fail(w, "delete file", err)
		return
	}
}

func (a *api) connect(w http.ResponseWriter, req *http.Request) {
	port := req.FormValue("port")
	if port == "" {
		port = a.app.cfg.Grbl.Port
	}
	baud := a.app.cfg.Grbl.BaudRate
	if s := req.FormValue("baud"); s != "" {
		var err error
		baud, err = strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid baud rate", http.StatusBadRequest)
			return
		}
	}

	if err := a.app.connect(req.Context(), a.c, port, baud); err != nil {
		a.fail(w, "connect", err)
		return
	}
	a.state(w, req)
}

func (a *api) disconnect(w http.ResponseWriter, req *http.Request) {
	if err := a.c.link.Disconnect(); err != nil {
		a.fail(w, "disconnect", err)
	}
}

// send queues every non-empty line of the body.
func (a *api) send(w http.ResponseWriter, req *http.Request) {
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := a.c.link.Send(req.Context(), line, machine.SendOptions{}); err != nil {
			a.fail(w, "send", err)
			return
		}
	}
}

func (a *api) run(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, mux.Vars(req)["name"])
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if !a.c.link.Connected() {
		a.fail(w, "run", grbl.ErrNotConnected)
		return
	}

	opt := a.app.cfg.Job.Options()
	opt.Force = req.FormValue("force") == "1"
	if s := req.FormValue("repeat"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			http.Error(w, "invalid repeat count", http.StatusBadRequest)
			return
		}
		opt.Repeat = n
	}
	if !opt.Force && !a.c.model.State().AtWorkZero(machine.ZeroTolerance) {
		a.fail(w, "run", machine.ErrNotAtZero)
		return
	}

	f, err := os.Open(name)
	if err != nil {
		a.fail(w, "open job", err)
		return
	}

	a.mx.Lock()
	if a.c.m.Running() {
		a.mx.Unlock()
		f.Close()
		a.fail(w, "run", machine.ErrJobActive)
		return
	}
	job := &jobStatus{
		ID:      uuid.New(),
		Name:    filepath.Base(name),
		State:   "running",
		Started: time.Now(),
	}
	a.job = job
	a.mx.Unlock()

	opt.Progress = func(sent, total int) {
		a.updateJob(job, func(j *jobStatus) {
			j.Sent, j.Total = sent, total
		})
	}

	go func() {
		defer f.Close()
		// the job outlives the request
		err := a.c.m.Run(a.app.baseContext(), f, opt)
		a.updateJob(job, func(j *jobStatus) {
			switch {
			case errors.Is(err, machine.ErrStopped):
				j.State = "stopped"
			case err != nil:
				j.State = "failed"
				j.Error = err.Error()
			default:
				j.State = "finished"
			}
		})
		if err != nil && !errors.Is(err, machine.ErrStopped) {
			a.log.Error("job failed", zap.String("job", job.ID.String()), zap.Error(err))
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	a.writeJSON(w, job)
}

func (a *api) updateJob(job *jobStatus, fn func(*jobStatus)) {
	a.mx.Lock()
	fn(job)
	cp := *job
	a.mx.Unlock()
	a.publish("/events/job", cp)
}

func (a *api) stop(w http.ResponseWriter, req *http.Request) {
	if err := a.c.m.Stop(req.Context()); err != nil {
		a.fail(w, "stop", err)
	}
}

func (a *api) reset(w http.ResponseWriter, req *http.Request) {
	if err := a.c.m.Reset(); err != nil {
		a.fail(w, "reset", err)
	}
}

var realtimeCommands = map[string]byte{
	"status":     machine.CmdStatus,
	"hold":       machine.CmdFeedHold,
	"resume":     machine.CmdCycleStart,
	"door":       machine.CmdSafetyDoor,
	"jog-cancel": machine.CmdJogCancel,
}

func (a *api) realtime(w http.ResponseWriter, req *http.Request) {
	b, ok := realtimeCommands[mux.Vars(req)["cmd"]]
	if !ok {
		http.NotFound(w, req)
		return
	}
	if err := a.c.m.WriteByte(b); err != nil {
		a.fail(w, "realtime", err)
	}
}

func (a *api) override(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	step, err := machine.ParseOverrideStep(vars["step"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch vars["kind"] {
	case "feed":
		err = a.c.m.FeedOverride(step)
	case "power":
		err = a.c.m.PowerOverride(step)
	default:
		http.NotFound(w, req)
		return
	}
	if err != nil {
		a.fail(w, "override", err)
	}
}

func (a *api) jog(w http.ResponseWriter, req *http.Request) {
	var err error
	parse := func(param string) (val float64) {
		if err != nil {
			return 0
		}
		s := req.FormValue(param)
		if s == "" {
			return 0
		}
		val, err = strconv.ParseFloat(s, 64)
		return val
	}
	dx := parse("dx")
	dy := parse("dy")
	feed := parse("feed")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if feed <= 0 {
		feed = a.app.cfg.GCode.DefaultFeed
	}

	if err := a.c.m.Jog(req.Context(), dx, dy, feed); err != nil {
		a.fail(w, "jog", err)
	}
}

func (a *api) action(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	feed := a.app.cfg.GCode.DefaultFeed

	var err error
	switch mux.Vars(req)["action"] {
	case "home":
		err = a.c.m.Home(ctx)
	case "unlock":
		err = a.c.m.Unlock(ctx)
	case "set-zero":
		err = a.c.m.SetZero(ctx)
	case "go-to-zero":
		err = a.c.m.GoToZero(ctx, feed)
	case "pulse":
		err = a.c.m.PulseLaser(ctx, 1000, feed, 100*time.Millisecond)
	default:
		http.NotFound(w, req)
		return
	}
	if err != nil {
		a.fail(w, "machine action", err)
	}
}

func (a *api) lines(w http.ResponseWriter, req *http.Request) {
	a.writeJSON(w, a.c.ledger.GetAllLines(req.FormValue("verbose") == "1"))
}

type stateResponse struct {
	Connected bool          `json:"connected"`
	Port      string        `json:"port,omitempty"`
	Queued    int           `json:"queued"`
	InFlight  int           `json:"in_flight"`
	Buffered  int           `json:"buffered_chars"`
	Machine   machine.State `json:"machine"`
	Job       *jobStatus    `json:"job,omitempty"`
}

func (a *api) state(w http.ResponseWriter, req *http.Request) {
	var res stateResponse
	res.Connected = a.c.link.Connected()
	res.Port = a.c.link.Port()
	res.Queued, res.InFlight, res.Buffered = a.c.link.Buffered()
	res.Machine = a.c.model.State()

	a.mx.Lock()
	if a.job != nil {
		cp := *a.job
		res.Job = &cp
	}
	a.mx.Unlock()

	a.writeJSON(w, res)
}

type previewResponse struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Segments []gcode.Segment `json:"segments"`
	Min      [2]float64      `json:"min"`
	Max      [2]float64      `json:"max"`
	Minutes  float64         `json:"minutes"`
	Commands int             `json:"commands"`
}

func (a *api) preview(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, mux.Vars(req)["name"])
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res := <-gcode.Load(req.Context(), name, a.app.cfg.GCode.Options(), a.log)
	if res.Err != nil {
		var derr *gcode.DecodeError
		if errors.As(res.Err, &derr) {
			http.Error(w, res.Err.Error(), http.StatusUnprocessableEntity)
			return
		}
		a.fail(w, "preview", res.Err)
		return
	}

	job := res.Job
	a.writeJSON(w, previewResponse{
		ID:       uuid.New(),
		Name:     filepath.Base(name),
		Segments: job.Segments,
		Min:      [2]float64{job.Bounds.Min.X, job.Bounds.Min.Y},
		Max:      [2]float64{job.Bounds.Max.X, job.Bounds.Max.Y},
		Minutes:  job.Duration,
		Commands: job.Commands,
	})
}

func (a *api) ports(w http.ResponseWriter, req *http.Request) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		a.fail(w, "list ports", fmt.Errorf("list ports: %w", err))
		return
	}
	a.writeJSON(w, ports)
}

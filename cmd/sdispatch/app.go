package main

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Suhaibinator/SDispatch/internal/config"
	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/metadata"
	"github.com/Suhaibinator/SDispatch/pkg/middleware"
	"github.com/Suhaibinator/SDispatch/pkg/router"
	"github.com/Suhaibinator/SDispatch/pkg/transform"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// note is the resource served by the demo routes.
type note struct {
	ID      uuid.UUID `json:"id"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Author  string    `json:"author"`
	Created time.Time `json:"created"`
}

type noteInput struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// app wires the demo actions and hooks. Routes come either from the
// built-in table below or from a manifest naming the same actions and hooks.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	token  string

	mu    sync.RWMutex
	notes map[uuid.UUID]note
}

func newApp(cfg *config.Config, logger *zap.Logger, token string) *app {
	return &app{
		cfg:    cfg,
		logger: logger,
		token:  token,
		notes:  make(map[uuid.UUID]note),
	}
}

func (a *app) actions() metadata.ActionTable {
	return metadata.ActionTable{
		"health":       a.health,
		"notes.list":   a.listNotes,
		"notes.get":    a.getNote,
		"notes.create": a.createNote,
		"notes.delete": a.deleteNote,
		"prefs":        a.prefs,
	}
}

func (a *app) hooks() metadata.HookTable {
	hooks := metadata.HookTable{
		"timing": middleware.NewTiming(a.logger, time.Second),
		"auth": middleware.NewAuth(&middleware.BearerTokenProvider{
			Tokens: map[string]string{a.token: "admin"},
		}, `Bearer realm="sdispatch"`, a.logger),
	}
	if a.cfg.RateLimit > 0 {
		hooks["ratelimit"] = middleware.NewRateLimit(middleware.RateLimitConfig{
			BucketName: "demo",
			Limit:      a.cfg.RateLimit,
			Window:     a.cfg.RateWindow,
			Strategy:   middleware.StrategyIP,
		}, middleware.NewWindowLimiter(), a.logger)
	}
	return hooks
}

// transforms extends the builtins with the demo body decoder.
func (a *app) transforms() transform.ConfigMap {
	cfg := transform.DefaultConfig()
	cfg[common.KindBody].(*transform.Set).Register("note", transform.Struct[noteInput]())
	return cfg
}

// store loads the manifest when configured, the built-in routes otherwise.
func (a *app) store() (*metadata.Store, error) {
	if a.cfg.Manifest != "" {
		return metadata.LoadManifest(a.cfg.Manifest, a.actions(), a.hooks())
	}

	actions := a.actions()
	hooks := a.hooks()
	b := metadata.NewBuilder().
		Route(metadata.RouteMetadata{
			Controller: "health", Action: "check",
			Method: http.MethodGet, Path: "/health",
			Handler: actions["health"],
		}).
		Route(metadata.RouteMetadata{
			Controller: "notes", Action: "list",
			Method: http.MethodGet, Path: "/notes",
			Params: []metadata.ActionParam{
				{Index: 0, Source: metadata.Query{Name: "limit"}},
			},
			Handler: actions["notes.list"],
		}).
		Route(metadata.RouteMetadata{
			Controller: "notes", Action: "get",
			Method: http.MethodGet, Path: "/notes/:id",
			Params: []metadata.ActionParam{
				{Index: 0, Source: metadata.RouteParam{Name: "id"}},
			},
			Handler: actions["notes.get"],
		}).
		Route(metadata.RouteMetadata{
			Area: "admin", Controller: "notes", Action: "create",
			Method: http.MethodPost, Path: "/admin/notes",
			Params: []metadata.ActionParam{
				{Index: 0, Source: metadata.Body{}, Transform: metadata.TransformID("note")},
				{Index: 1, Source: metadata.Response{}},
			},
			Handler: actions["notes.create"],
		}).
		Route(metadata.RouteMetadata{
			Area: "admin", Controller: "notes", Action: "delete",
			Method: http.MethodDelete, Path: "/admin/notes/:id",
			Params: []metadata.ActionParam{
				{Index: 0, Source: metadata.RouteParam{Name: "id"}},
			},
			Handler: actions["notes.delete"],
		}).
		Route(metadata.RouteMetadata{
			Controller: "prefs", Action: "get",
			Method: http.MethodGet, Path: "/prefs",
			Params: []metadata.ActionParam{
				{Index: 0, Source: metadata.Cookie{Name: "theme"}},
			},
			Handler: actions["prefs"],
		}).
		Use("timing", "^/", hooks["timing"]).
		Hook(metadata.HookMetadata{
			Name:     "auth",
			Scope:    metadata.Scope{Area: "admin"},
			Instance: hooks["auth"],
		})
	if limiter, ok := hooks["ratelimit"]; ok {
		b = b.Use("ratelimit", "^/(notes|admin)", limiter)
	}
	return b.Build()
}

// router builds the HTTP router for store from the process configuration.
func (a *app) router(store *metadata.Store) (*router.Router, error) {
	policy, err := a.cfg.PostHookPolicy()
	if err != nil {
		return nil, err
	}
	return router.NewRouter(router.RouterConfig{
		Logger:            a.logger,
		GlobalTimeout:     a.cfg.Timeout,
		GlobalMaxBodySize: a.cfg.MaxBodySize,
		Transforms:        a.transforms(),
		PostHooks:         policy,
		EnableMetrics:     a.cfg.EnableMetrics,
		MetricsPath:       a.cfg.MetricsPath,
		EnableTraceID:     a.cfg.EnableTraceID,
	}, store)
}

func (a *app) health(*common.Context, common.Args) (any, error) {
	return map[string]string{"status": "ok"}, nil
}

func (a *app) listNotes(_ *common.Context, args common.Args) (any, error) {
	a.mu.RLock()
	notes := make([]note, 0, len(a.notes))
	for _, n := range a.notes {
		notes = append(notes, n)
	}
	a.mu.RUnlock()

	sort.Slice(notes, func(i, j int) bool {
		return notes[i].Created.Before(notes[j].Created)
	})
	if raw, ok := args.String(0); ok {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return nil, router.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		if limit < len(notes) {
			notes = notes[:limit]
		}
	}
	return notes, nil
}

func (a *app) getNote(_ *common.Context, args common.Args) (any, error) {
	id, err := noteID(args)
	if err != nil {
		return nil, err
	}
	a.mu.RLock()
	n, ok := a.notes[id]
	a.mu.RUnlock()
	if !ok {
		return nil, router.NewHTTPError(http.StatusNotFound, "note not found")
	}
	return n, nil
}

func (a *app) createNote(ctx *common.Context, args common.Args) (any, error) {
	in, ok := args.Value(0).(noteInput)
	if !ok || in.Title == "" {
		return nil, router.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	author, _ := middleware.Principal(ctx)
	n := note{
		ID:      uuid.New(),
		Title:   in.Title,
		Body:    in.Body,
		Author:  author,
		Created: time.Now().UTC(),
	}

	a.mu.Lock()
	a.notes[n.ID] = n
	a.mu.Unlock()

	if res, ok := args.Response(1); ok {
		res.Status = http.StatusCreated
		res.Header.Set("Location", "/notes/"+n.ID.String())
	}
	return n, nil
}

func (a *app) deleteNote(_ *common.Context, args common.Args) (any, error) {
	id, err := noteID(args)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.notes[id]; !ok {
		return nil, router.NewHTTPError(http.StatusNotFound, "note not found")
	}
	delete(a.notes, id)
	return nil, nil
}

func (a *app) prefs(_ *common.Context, args common.Args) (any, error) {
	theme, ok := args.String(0)
	if !ok || theme == "" {
		theme = "light"
	}
	theme = strings.ToLower(theme)
	return map[string]string{"theme": theme}, nil
}

// noteID parses the id route segment. Malformed ids cannot name a note.
func noteID(args common.Args) (uuid.UUID, error) {
	raw, _ := args.String(0)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, router.NewHTTPError(http.StatusNotFound, "note not found")
	}
	return id, nil
}

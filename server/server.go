// Package server exposes the schedule service over HTTP: occurrence
// windows, period views, feeds and occurrence edits.
package server

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cyp0633/libschedule/feed"
	"github.com/cyp0633/libschedule/period"
	"github.com/cyp0633/libschedule/schedule"
	"github.com/cyp0633/libschedule/service"
	"github.com/cyp0633/libschedule/storage"
)

const (
	// HeaderUser carries the caller's identity. An absent header is an
	// anonymous caller.
	HeaderUser = "X-User"

	userContextKey = "schedule.user"

	mimeTypeCalendar = "text/calendar; charset=utf-8"
	mimeTypeXCal     = "application/calendar+xml; charset=utf-8"
	mimeTypeAtom     = "application/atom+xml; charset=utf-8"
)

// Server routes HTTP requests to a schedule service.
type Server struct {
	svc     *service.Service
	logger  zerolog.Logger
	baseURL string
	origins []string
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBaseURL prefixes links written into feeds.
func WithBaseURL(baseURL string) Option {
	return func(s *Server) {
		s.baseURL = baseURL
	}
}

// WithCORSOrigins restricts cross-origin callers. With none every origin
// is allowed.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

func New(svc *service.Service, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), cors.New(s.corsConfig()), resolveUser())

	calendars := r.Group("/calendars/:slug")
	calendars.GET("/occurrences", ResolveEndpoint(s.listOccurrences))
	calendars.GET("/periods/:kind", ResolveEndpoint(s.getPeriod))
	calendars.GET("/upcoming", s.upcoming)
	calendars.GET("/ical", ResolveDocument(s.exportICal))
	calendars.GET("/xcal", ResolveDocument(s.exportXCal))

	occurrences := r.Group("/events/:id/occurrences/:start")
	occurrences.GET("", ResolveEndpoint(s.getOccurrence))
	occurrences.POST("/move", ResolveEndpoint(s.moveOccurrence))
	occurrences.POST("/cancel", ResolveEndpoint(s.cancelOccurrence))
	occurrences.POST("/uncancel", ResolveEndpoint(s.uncancelOccurrence))

	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS", "HEAD"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", HeaderUser},
		ExposeHeaders: []string{"Content-Length"},
	}
	if len(s.origins) == 0 {
		cfg.AllowOriginFunc = func(origin string) bool { return true }
	} else {
		cfg.AllowOrigins = s.origins
	}
	return cfg
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		started := time.Now()
		ctx.Next()

		status := ctx.Writer.Status()
		event := s.logger.Debug()
		if status >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Int("status", status).
			Dur("elapsed", time.Since(started)).
			Msg("request handled")
	}
}

// resolveUser stores the caller named by HeaderUser in the request
// context. Anyone naming themselves is treated as authenticated; real
// authentication sits in front of this.
func resolveUser() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if id := strings.TrimSpace(ctx.GetHeader(HeaderUser)); id != "" {
			ctx.Set(userContextKey, &schedule.User{ID: id, Authenticated: true})
		}
		ctx.Next()
	}
}

// user returns the caller stored by resolveUser, nil when anonymous.
func user(ctx *gin.Context) *schedule.User {
	if u, ok := ctx.Get(userContextKey); ok {
		if u, ok := u.(*schedule.User); ok {
			return u
		}
	}
	return nil
}

func parseInstant(name, value string) (time.Time, *Error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, badRequest("invalid " + name + ": " + value)
	}
	return t, nil
}

func (s *Server) fail(ctx *gin.Context, err error) *Error {
	apiErr := errorFrom(err)
	if apiErr.Code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", ctx.Request.URL.Path).Msg("request failed")
	}
	return apiErr
}

// Calendar views

func (s *Server) listOccurrences(ctx *gin.Context) (any, *Error) {
	start, apiErr := parseInstant("start", ctx.Query("start"))
	if apiErr != nil {
		return nil, apiErr
	}
	end, apiErr := parseInstant("end", ctx.Query("end"))
	if apiErr != nil {
		return nil, apiErr
	}
	if !end.After(start) {
		return nil, badRequest("end must be after start")
	}

	occs, err := s.svc.OccurrencesInWindow(ctx.Request.Context(), ctx.Param("slug"), start, end)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return newOccurrenceList(occs), nil
}

// getPeriod answers an empty mapping when the date is absent or invalid,
// leaving the caller to pick a default.
func (s *Server) getPeriod(ctx *gin.Context) (any, *Error) {
	kind, err := period.ParseKind(ctx.Param("kind"))
	if err != nil {
		return nil, &Error{Code: http.StatusNotFound, Message: err.Error()}
	}

	query := map[string]string{}
	for _, field := range []string{"year", "month", "day", "hour", "minute", "second"} {
		if v, ok := ctx.GetQuery(field); ok {
			query[field] = v
		}
	}
	dict, err := schedule.CoerceDateDict(query)
	if err != nil || len(dict) == 0 {
		return gin.H{}, nil
	}
	loc := s.svc.Options().Location
	if loc == nil {
		loc = time.UTC
	}
	date, err := schedule.DateFromDict(dict, loc)
	if err != nil {
		return gin.H{}, nil
	}

	p, err := s.svc.Period(ctx.Request.Context(), ctx.Param("slug"), kind, date)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return newPeriodResponse(p), nil
}

// upcoming renders JSON by default and Atom for ?format=atom.
func (s *Server) upcoming(ctx *gin.Context) {
	slug := ctx.Param("slug")
	cal, err := s.svc.Calendar(ctx.Request.Context(), slug)
	if err != nil {
		apiErr := s.fail(ctx, err)
		ctx.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
		return
	}
	occs, err := s.svc.Upcoming(ctx.Request.Context(), slug, 0)
	if err != nil {
		apiErr := s.fail(ctx, err)
		ctx.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
		return
	}

	upcoming := feed.UpcomingFeed(cal, occs, s.baseURL, s.svc.Options().Clock())
	if ctx.Query("format") != "atom" {
		ctx.JSON(http.StatusOK, upcoming)
		return
	}

	var buf bytes.Buffer
	doc := upcoming.Atom()
	doc.Indent(2)
	if _, err := doc.WriteTo(&buf); err != nil {
		apiErr := s.fail(ctx, err)
		ctx.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
		return
	}
	ctx.Data(http.StatusOK, mimeTypeAtom, buf.Bytes())
}

func (s *Server) exporter() *feed.Exporter {
	opts := s.svc.Options()
	exporterOpts := []feed.Option{feed.WithClock(opts.Clock)}
	if opts.Location != nil {
		exporterOpts = append(exporterOpts, feed.WithLocation(opts.Location))
	}
	return feed.NewExporter(exporterOpts...)
}

func (s *Server) exportICal(ctx *gin.Context) (string, []byte, *Error) {
	data, err := s.svc.CalendarData(ctx.Request.Context(), ctx.Param("slug"), storage.Window{})
	if err != nil {
		return "", nil, s.fail(ctx, err)
	}
	var buf bytes.Buffer
	if err := s.exporter().Encode(&buf, data.Calendar, data.Events, data.Persisted); err != nil {
		return "", nil, s.fail(ctx, err)
	}
	return mimeTypeCalendar, buf.Bytes(), nil
}

func (s *Server) exportXCal(ctx *gin.Context) (string, []byte, *Error) {
	data, err := s.svc.CalendarData(ctx.Request.Context(), ctx.Param("slug"), storage.Window{})
	if err != nil {
		return "", nil, s.fail(ctx, err)
	}
	var buf bytes.Buffer
	if err := s.exporter().EncodeXCal(&buf, data.Calendar, data.Events, data.Persisted); err != nil {
		return "", nil, s.fail(ctx, err)
	}
	return mimeTypeXCal, buf.Bytes(), nil
}

// Occurrences

func (s *Server) getOccurrence(ctx *gin.Context) (any, *Error) {
	at, apiErr := parseInstant("start", ctx.Param("start"))
	if apiErr != nil {
		return nil, apiErr
	}
	occ, err := s.svc.GetOccurrence(ctx.Request.Context(), ctx.Param("id"), at)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return newOccurrenceResponse(occ), nil
}

func (s *Server) moveOccurrence(ctx *gin.Context) (any, *Error) {
	at, apiErr := parseInstant("start", ctx.Param("start"))
	if apiErr != nil {
		return nil, apiErr
	}
	var request MoveRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, badRequest(err.Error())
	}
	if request.Start.IsZero() || request.End.IsZero() {
		return nil, badRequest("start and end are required")
	}

	occ, err := s.svc.MoveOccurrence(ctx.Request.Context(), ctx.Param("id"), at, request.Start, request.End, user(ctx))
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return newOccurrenceResponse(occ), nil
}

func (s *Server) cancelOccurrence(ctx *gin.Context) (any, *Error) {
	at, apiErr := parseInstant("start", ctx.Param("start"))
	if apiErr != nil {
		return nil, apiErr
	}
	occ, err := s.svc.CancelOccurrence(ctx.Request.Context(), ctx.Param("id"), at, user(ctx))
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return newOccurrenceResponse(occ), nil
}

func (s *Server) uncancelOccurrence(ctx *gin.Context) (any, *Error) {
	at, apiErr := parseInstant("start", ctx.Param("start"))
	if apiErr != nil {
		return nil, apiErr
	}
	occ, err := s.svc.UncancelOccurrence(ctx.Request.Context(), ctx.Param("id"), at, user(ctx))
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return newOccurrenceResponse(occ), nil
}

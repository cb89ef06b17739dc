// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

var formTemplate = template.Must(template.New("form").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Systematic Literature Review</title></head>
<body>
<h1>Systematic Literature Review</h1>
<form method="post" action="/runs" enctype="multipart/form-data">
<p><label>Research subject<br><textarea name="subject" rows="3" cols="60" required></textarea></label></p>
<p><label>Start year <input type="number" name="start_year" value="{{.StartYear}}"></label>
<label>End year <input type="number" name="end_year" value="{{.EndYear}}"></label></p>
<p><label>Papers per search <input type="number" name="papers_per_iteration" value="{{.Fetch.PapersPerIteration}}"></label>
<label>Search iterations <input type="number" name="search_iterations" value="{{.Fetch.SearchIterations}}"></label></p>
<p><label>Minimum relevant papers <input type="number" name="min_relevant_target" value="{{.Supplementary.MinRelevantTarget}}"></label>
<label>Refinement cycles <input type="number" name="refinement_cycles" value="{{.Refinement.Cycles}}"></label></p>
<p><label><input type="checkbox" name="snowball" value="true"{{if .Snowball.Enabled}} checked{{end}}> Snowball references</label></p>
<p><label>Your own papers (PDF) <input type="file" name="papers" accept="application/pdf" multiple></label></p>
<p><button type="submit">Start review</button></p>
</form>
</body>
</html>
`))

// formHandler renders the submission form prefilled from the base config.
func (s *Server) formHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := formTemplate.Execute(w, s.base); err != nil {
		s.logger.Error().Err(err).Msg("rendering form")
	}
}

// requestLogger logs one line per request at debug level.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}

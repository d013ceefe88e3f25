package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ai-planner/internal/common/config"
	apperrors "ai-planner/internal/common/errors"
	"ai-planner/internal/models"
	generateplan "ai-planner/internal/workers/planning/generate-plan"
)

const successNotice = "✅ Plan generated successfully!"

// basePage fills the parts of the page every response shares. sess may be nil.
func (s *Server) basePage(sess *models.Session, err *apperrors.StandardError) PageData {
	d := PageData{
		AppName:              s.config.App.Name,
		CredentialConfigured: s.config.LLM.HasCredential(),
		CredentialEnvVar:     config.CredentialEnvVar,
		Examples:             s.examples.Examples,
		MaxUploadBytes:       s.config.Upload.MaxBytes,
		Error:                err,
	}
	if d.AppName == "" {
		d.AppName = "AI Planner Agent"
	}
	if sess == nil {
		return d
	}

	d.Brief = sess.Brief
	if sess.Plan != nil {
		s.attachPlan(&d, sess.Plan)
	}
	return d
}

func (s *Server) attachPlan(d *PageData, plan *models.Plan) {
	html, err := renderMarkdown(plan.ToMarkdown())
	if err != nil {
		s.logger.Error("markdown render failed", map[string]interface{}{"error": err.Error()})
		html = ""
	}
	js, err := plan.ToJSON()
	if err != nil {
		s.logger.Error("plan encode failed", map[string]interface{}{"error": err.Error()})
	}
	d.Plan = plan
	d.PlanHTML = html
	d.PlanJSON = string(js)
}

func (s *Server) errorPage(r *http.Request, sess *models.Session, err error, fields map[string]interface{}) *ComponentResponse {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["path"] = r.URL.Path
	se := s.errors.Handle(err, fields)
	return &ComponentResponse{
		Code:      se.HTTPStatus(),
		Component: Page(s.basePage(sess, se)),
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) *ComponentResponse {
	id := s.sessionID(w, r)
	sess, err := s.loadSession(r.Context(), id)
	if err != nil {
		return s.errorPage(r, nil, apperrors.NewSessionStoreFailedError("load", err), nil)
	}
	return &ComponentResponse{Component: Page(s.basePage(sess, nil))}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) *ComponentResponse {
	client := clientAddress(r, s.proxies)
	if !s.limiter.Allow(client) {
		return s.errorPage(r, nil, apperrors.NewRateLimitedError(client), nil)
	}

	ctx := r.Context()
	id := s.sessionID(w, r)

	brief, typed, err := readBrief(w, r, s.config.Upload.MaxBytes)
	if err != nil {
		return s.errorPage(r, s.viewSession(ctx, id, typed), err, nil)
	}
	submitted := typed
	if brief.Source == models.BriefSourceUpload {
		submitted = brief.Text
	}

	token, acquired, err := s.sessions.Acquire(ctx, id)
	if err != nil {
		return s.errorPage(r, s.viewSession(ctx, id, submitted), apperrors.NewSessionStoreFailedError("acquire", err), nil)
	}
	if !acquired {
		return s.errorPage(r, s.viewSession(ctx, id, submitted), apperrors.NewGenerationInProgressError(), map[string]interface{}{"session": id})
	}
	defer func() {
		// The request context may already be cancelled.
		if err := s.sessions.Release(context.WithoutCancel(ctx), id, token); err != nil {
			s.logger.Warn("release session lock failed", map[string]interface{}{
				"session": id,
				"error":   err.Error(),
			})
		}
	}()

	// Loaded under the lock so the brief lands on the latest stored state.
	sess, err := s.loadSession(ctx, id)
	if err != nil {
		return s.errorPage(r, nil, apperrors.NewSessionStoreFailedError("load", err), nil)
	}
	sess.Brief = submitted
	s.saveSession(ctx, sess)

	output, genErr := s.generator.Execute(ctx, &generateplan.Input{Brief: brief.Text})

	// Example loads do not take the lock, so reload before storing the plan
	// rather than writing back the copy read before generation.
	if latest, err := s.sessions.Load(context.WithoutCancel(ctx), id); err == nil {
		sess = latest
	}
	if genErr == nil {
		sess.Plan = output.Plan
		s.saveSession(ctx, sess)
	}

	if genErr != nil {
		fields := map[string]interface{}{
			"session":     id,
			"briefSource": string(brief.Source),
			"briefBytes":  len(brief.Text),
		}
		if brief.FileName != "" {
			fields["fileName"] = brief.FileName
		}
		return s.errorPage(r, sess, genErr, fields)
	}

	s.logger.Info("plan served", map[string]interface{}{
		"session":    id,
		"project":    output.Plan.ProjectName,
		"totalWeeks": output.Plan.TotalWeeks,
		"durationMs": output.Duration.Milliseconds(),
	})

	d := s.basePage(sess, nil)
	d.Notice = successNotice
	d.FileName = brief.FileName
	d.Model = output.Model
	d.TokensUsed = output.TokensUsed
	return &ComponentResponse{Component: Page(d)}
}

// viewSession loads the session for rendering an error page with brief in the
// form. Nothing is saved.
func (s *Server) viewSession(ctx context.Context, id, brief string) *models.Session {
	sess, err := s.loadSession(ctx, id)
	if err != nil {
		sess = models.NewSession(id, config.GetDuration(s.config.Session.TTL))
	}
	sess.Brief = brief
	return sess
}

func (s *Server) saveSession(ctx context.Context, sess *models.Session) {
	if err := s.sessions.Save(context.WithoutCancel(ctx), sess); err != nil {
		s.logger.Warn("save session failed", map[string]interface{}{
			"session": sess.ID,
			"error":   err.Error(),
		})
	}
}

func (s *Server) handleExample(w http.ResponseWriter, r *http.Request) {
	ex, ok := s.examples.Get(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	id := s.sessionID(w, r)
	sess, err := s.loadSession(ctx, id)
	if err == nil {
		sess.Brief = ex.Brief
		err = s.sessions.Save(ctx, sess)
	}
	if err != nil {
		s.component(func(http.ResponseWriter, *http.Request) *ComponentResponse {
			return s.errorPage(r, nil, apperrors.NewSessionStoreFailedError("save", err), nil)
		}).ServeHTTP(w, r)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDownloadMarkdown(w http.ResponseWriter, r *http.Request) {
	s.download(w, r, ".md", "text/markdown; charset=utf-8", func(p *models.Plan) ([]byte, error) {
		return []byte(p.ToMarkdown()), nil
	})
}

func (s *Server) handleDownloadJSON(w http.ResponseWriter, r *http.Request) {
	s.download(w, r, ".json", "application/json", (*models.Plan).ToJSON)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request, ext, contentType string, encode func(*models.Plan) ([]byte, error)) {
	id := s.sessionID(w, r)
	sess, err := s.sessions.Load(r.Context(), id)
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		err = apperrors.NewPlanNotFoundError()
	case err != nil:
		err = apperrors.NewSessionStoreFailedError("load", err)
	case sess.Plan == nil:
		err = apperrors.NewPlanNotFoundError()
	}

	var body []byte
	if err == nil {
		body, err = encode(sess.Plan)
	}
	if err != nil {
		s.component(func(http.ResponseWriter, *http.Request) *ComponentResponse {
			return s.errorPage(r, sess, err, nil)
		}).ServeHTTP(w, r)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sess.Plan.FileBaseName()+ext))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

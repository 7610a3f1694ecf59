package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/nugget/helloclaw/internal/workspace"
)

// ConfigInfo is one entry of the config listing.
type ConfigInfo struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
}

type configWriteRequest struct {
	Content string `json:"content"`
}

func wantHTML(r *http.Request) bool {
	return r.URL.Query().Get("format") == "html"
}

func (s *Server) writeHTML(w http.ResponseWriter, markdown string) {
	out, err := workspace.RenderHTML(markdown)
	if err != nil {
		s.fail(w, err, "render markdown")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(out)); err != nil {
		s.logger.Debug("failed to write HTML response", "error", err)
	}
}

func (s *Server) handleConfigList(w http.ResponseWriter, r *http.Request) {
	present := s.ws.ListConfigs()
	configs := make([]ConfigInfo, 0, len(workspace.ConfigNames())+1)
	for _, name := range workspace.ConfigNames() {
		configs = append(configs, ConfigInfo{Name: name, Exists: slices.Contains(present, name)})
	}
	settings, err := s.ws.LoadSettings()
	configs = append(configs, ConfigInfo{Name: workspace.ConfigSettings, Exists: err == nil && settings != ""})

	writeJSON(w, map[string]any{
		"configs":              configs,
		"identity_established": s.ws.IdentityEstablished(),
		"onboarding_completed": s.ws.OnboardingCompleted(),
	}, s.logger)
}

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	name := strings.ToUpper(r.PathValue("name"))

	var content string
	var err error
	if name == workspace.ConfigSettings {
		content, err = s.ws.LoadSettings()
	} else {
		content, err = s.ws.LoadConfig(name)
	}
	if err != nil {
		s.fail(w, err, "load config")
		return
	}

	if wantHTML(r) && name != workspace.ConfigSettings {
		s.writeHTML(w, content)
		return
	}
	writeJSON(w, map[string]string{
		"name":    name,
		"content": content,
	}, s.logger)
}

func (s *Server) handleConfigPut(w http.ResponseWriter, r *http.Request) {
	name := strings.ToUpper(r.PathValue("name"))

	var req configWriteRequest
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	if name == workspace.ConfigSettings {
		err = s.ws.SaveSettings(req.Content)
	} else {
		err = s.ws.SaveConfig(name, req.Content)
	}
	if err != nil {
		s.fail(w, err, "save config")
		return
	}

	s.logger.Info("config updated", "name", name, "bytes", len(req.Content))
	writeJSON(w, map[string]string{
		"status": "ok",
		"name":   name,
	}, s.logger)
}

package handler

import (
	"strings"

	"ai-video-cutter/internal/service"

	"github.com/samber/lo"
)

type Handler struct {
	Service        *service.Service
	MaxUploadBytes int64
	allowedExts    map[string]struct{}
}

// NewHandler builds the HTTP adapter. allowedExts is a comma separated list
// such as ".mp4,.mov"; empty accepts any extension.
func NewHandler(svc *service.Service, maxUploadBytes int64, allowedExts string) Handler {
	exts := lo.FilterMap(strings.Split(allowedExts, ","), func(ext string, _ int) (string, bool) {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			return "", false
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		return ext, true
	})
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		set[ext] = struct{}{}
	}
	return Handler{Service: svc, MaxUploadBytes: maxUploadBytes, allowedExts: set}
}

func (h Handler) extAllowed(ext string) bool {
	if len(h.allowedExts) == 0 {
		return true
	}
	_, ok := h.allowedExts[strings.ToLower(ext)]
	return ok
}

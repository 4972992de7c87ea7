package web

import (
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/static"
)

func (s *Server) setupRoutes() {
	framesHandler := handlers.NewFramesHandler(s.svc)
	studentsHandler := handlers.NewStudentsHandler(s.svc)
	attendanceHandler := handlers.NewAttendanceHandler(s.svc)
	healthHandler := handlers.NewHealthHandler(s.svc)

	// Page endpoints, kept at the root for the bundled UI.
	s.router.Post("/process_frame", framesHandler.Process)
	s.router.Post("/register_student", studentsHandler.Register)
	s.router.Get("/pending_face", studentsHandler.PendingFace)
	s.router.Get("/attendance_data", attendanceHandler.List)
	s.router.Post("/clear_attendance", attendanceHandler.Clear)
	s.router.Post("/save_attendance", attendanceHandler.Save)

	s.router.Get("/api/v1/health", healthHandler.Get)
	s.router.Get("/api/v1/attendance/history", attendanceHandler.History)

	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Get("/*", s.serveUI)
}

// serveUI serves the embedded page and its assets.
func (s *Server) serveUI(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path
	if name == "/" {
		name = "/index.html"
	}

	f, err := static.GetFileSystem().Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		http.NotFound(w, r)
		return
	}

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

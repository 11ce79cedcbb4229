package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/results/internal/results"
)

func (h *Handler) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

func (h *Handler) handleAddStudent(w http.ResponseWriter, r *http.Request) {
	var in results.AddInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadSize)
		if err := r.ParseMultipartForm(h.config.MaxUploadSize); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "File too large")
				return
			}
			writeError(w, http.StatusBadRequest, "Invalid form data")
			return
		}
		defer r.MultipartForm.RemoveAll()

		in = results.AddInput{
			StudentName: r.FormValue("student_name"),
			IDNumber:    r.FormValue("id_number"),
			ExamNumber:  r.FormValue("exam_number"),
			ExamType:    r.FormValue("exam_type"),
			PhotoURL:    r.FormValue("photo_url"),
			ExamDate:    r.FormValue("exam_date"),
		}
		if raw := strings.TrimSpace(r.FormValue("subjects")); raw != "" {
			if err := json.Unmarshal([]byte(raw), &in.Subjects); err != nil {
				writeError(w, http.StatusBadRequest, "Invalid subjects data")
				return
			}
		}

		file, header, err := r.FormFile("photo")
		switch {
		case err == nil:
			defer file.Close()
			in.Photo = &results.Upload{Filename: header.Filename, Content: file}
		case !errors.Is(err, http.ErrMissingFile):
			writeError(w, http.StatusBadRequest, "Invalid photo upload")
			return
		}
	} else if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	st, err := h.svc.Add(r.Context(), in, h.baseURL(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.metrics.Mutation("add")
	slog.Info("student added", "exam_number", st.ExamNumber)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Student added successfully",
		"student": st,
	})
}

func (h *Handler) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	id, err := studentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid student ID")
		return
	}
	var in results.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	st, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.metrics.Mutation("update")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Student updated successfully",
		"student": st,
	})
}

func (h *Handler) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	id, err := studentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid student ID")
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	h.metrics.Mutation("delete")
	slog.Info("student deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Student deleted successfully"})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	n, err := h.svc.ExportCSV(r.Context(), &buf)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	slog.Info("exported students", "rows", n)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(results.ExportFilename(h.now())))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleStudentQR(w http.ResponseWriter, r *http.Request) {
	id, err := studentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid student ID")
		return
	}
	tok, err := h.svc.Token(r.Context(), id, h.baseURL(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"qr_url":       tok.URL,
		"qr_code_data": tok.DataURL,
	})
}

func (h *Handler) handleStudentQRDownload(w http.ResponseWriter, r *http.Request) {
	id, err := studentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid student ID")
		return
	}
	png, examNumber, err := h.svc.TokenPNG(r.Context(), id, h.baseURL(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", attachment(examNumber+".png"))
	_, _ = w.Write(png)
}

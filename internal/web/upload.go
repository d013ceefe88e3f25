package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	apperrors "ai-planner/internal/common/errors"
	"ai-planner/internal/models"
)

var allowedUploadExts = map[string]bool{
	".txt": true,
	".md":  true,
}

// readBrief takes the brief from the brief_file upload when one was sent and
// from the brief textarea otherwise. The text field value is returned as well
// so the form can be re-rendered with it.
func readBrief(w http.ResponseWriter, r *http.Request, maxBytes int64) (models.Brief, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(maxBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return models.Brief{}, "", apperrors.NewBriefInvalidError(
				fmt.Sprintf("request exceeds the %d byte upload limit", maxBytes))
		}
		return models.Brief{}, "", apperrors.NewBriefInvalidError("could not read the form: " + err.Error())
	}

	typed := r.FormValue("brief")

	// A urlencoded form has no file part and FormFile reports ErrNotMultipart.
	file, header, err := r.FormFile("brief_file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) ||
		(err == nil && header.Filename == "" && header.Size == 0) {
		if file != nil {
			file.Close()
		}
		return models.NewBrief(typed, models.BriefSourcePaste), typed, nil
	}
	if err != nil {
		return models.Brief{}, typed, apperrors.NewBriefInvalidError("could not read the uploaded file")
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedUploadExts[ext] {
		return models.Brief{}, typed, apperrors.NewBriefInvalidError(
			fmt.Sprintf("%q is not a .txt or .md file", header.Filename))
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return models.Brief{}, typed, apperrors.NewBriefInvalidError("could not read the uploaded file")
	}
	if int64(len(data)) > maxBytes {
		return models.Brief{}, typed, apperrors.NewBriefInvalidError(
			fmt.Sprintf("%q exceeds the %d byte upload limit", header.Filename, maxBytes))
	}
	if !utf8.Valid(data) {
		return models.Brief{}, typed, apperrors.NewBriefInvalidError(
			fmt.Sprintf("%q is not UTF-8 text", header.Filename))
	}

	brief := models.NewBrief(string(data), models.BriefSourceUpload)
	brief.FileName = header.Filename
	return brief, typed, nil
}

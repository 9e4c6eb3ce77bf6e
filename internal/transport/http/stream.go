package http

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
)

// streamAttachment writes file as a download. Once headers are sent a copy error
// can only be reported to the caller, not to the client.
func streamAttachment(w http.ResponseWriter, file *os.File, filename, contentType string) error {
	info, err := file.Stat()
	if err != nil {
		http.Error(w, "could not read file", http.StatusInternalServerError)
		return err
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)

	_, err = io.Copy(w, file)
	return err
}

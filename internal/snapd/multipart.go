package snapd

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
)

const snapPackageType = "application/vnd.snap"

type formFile struct {
	field, filename, contentType string
	data                         io.Reader
}

// multipartBody encodes fields, in order, followed by an optional file part
// as multipart/form-data. It returns the body and its Content-Type.
func multipartBody(fields []param, file *formFile) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		if err := w.WriteField(f.key, f.value); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", f.key, err)
		}
	}

	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.filename))
		h.Set("Content-Type", file.contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create %s part: %w", file.field, err)
		}
		if _, err := io.Copy(part, file.data); err != nil {
			return nil, "", fmt.Errorf("copy %s part: %w", file.field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

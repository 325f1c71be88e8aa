package signedupload

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// signedForm is a multipart body whose file part is streamed from the
// caller's reader rather than buffered.
type signedForm struct {
	contentType string
	length      int64 // -1 when the file size is unknown
	body        io.Reader
}

// newSignedForm lays out the fields in protocol order: access id, policy,
// signature, key, then the file.
func newSignedForm(fields SignedFields, file File, fileBody io.Reader) (*signedForm, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, f := range [][2]string{
		{FieldAccessID, fields.AccessID},
		{FieldPolicy, fields.PolicyBase64},
		{FieldSignature, fields.Signature},
		{FieldKey, fields.ObjectKey},
	} {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		FieldFile, quoteEscaper.Replace(file.Name)))
	h.Set("Content-Type", DetectContentType(file.Name, file.ContentType))
	if _, err := mw.CreatePart(h); err != nil {
		return nil, fmt.Errorf("failed to write file part header: %w", err)
	}
	head := append([]byte(nil), buf.Bytes()...)

	buf.Reset()
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}
	tail := append([]byte(nil), buf.Bytes()...)

	length := int64(-1)
	if file.Size >= 0 {
		length = int64(len(head)) + file.Size + int64(len(tail))
	}

	return &signedForm{
		contentType: mw.FormDataContentType(),
		length:      length,
		body:        io.MultiReader(bytes.NewReader(head), fileBody, bytes.NewReader(tail)),
	}, nil
}

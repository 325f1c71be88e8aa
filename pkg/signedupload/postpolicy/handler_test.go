package postpolicy_test

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/signed-upload/pkg/signedupload"
	"github.com/tendant/signed-upload/pkg/signedupload/ledger"
	ledgermemory "github.com/tendant/signed-upload/pkg/signedupload/ledger/memory"
	"github.com/tendant/signed-upload/pkg/signedupload/postpolicy"
	"github.com/tendant/signed-upload/pkg/signedupload/storage"
	"github.com/tendant/signed-upload/pkg/signedupload/storage/memory"
)

var testNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type receiver struct {
	srv    *httptest.Server
	store  *memory.Backend
	ledger *ledgermemory.Ledger
}

func newReceiver(t *testing.T) *receiver {
	t.Helper()
	rc := &receiver{store: memory.New(), ledger: ledgermemory.New()}

	verifier := postpolicy.NewVerifier(postpolicy.Credentials{"test-id": "secret"},
		postpolicy.WithClock(func() time.Time { return testNow }))
	h := postpolicy.NewHandler(verifier, rc.store, postpolicy.WithLedger(rc.ledger))

	r := chi.NewRouter()
	r.Mount("/", h.Routes())
	rc.srv = httptest.NewServer(r)
	t.Cleanup(rc.srv.Close)
	return rc
}

func testDocument(conds ...signedupload.Condition) signedupload.PolicyDocument {
	return signedupload.PolicyDocument{
		Expiration: testNow.Add(time.Hour),
		Conditions: conds,
	}
}

func newBuilder(t *testing.T, host, secret string, doc signedupload.PolicyDocument) *signedupload.Builder {
	t.Helper()
	policy, err := signedupload.NewUploadPolicy("test-id", secret, doc, host)
	require.NoError(t, err)
	b, err := signedupload.New(policy)
	require.NoError(t, err)
	return b
}

// postForm sends fields in order followed by the file part
func postForm(t *testing.T, url string, fields [][2]string, fileName, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range fields {
		require.NoError(t, mw.WriteField(f[0], f[1]))
	}
	if fileName != "" {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
		hdr.Set("Content-Type", signedupload.DetectContentType(fileName, ""))
		fw, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func signedFields(t *testing.T, doc signedupload.PolicyDocument, key string) [][2]string {
	t.Helper()
	policy, sig, err := signedupload.BuildSignature(doc, "secret")
	require.NoError(t, err)
	return [][2]string{
		{signedupload.FieldAccessID, "test-id"},
		{signedupload.FieldPolicy, policy},
		{signedupload.FieldSignature, sig},
		{signedupload.FieldKey, key},
	}
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Code string `xml:"Code"`
	}
	require.NoError(t, xml.NewDecoder(resp.Body).Decode(&body))
	return body.Code
}

func TestHandler_BuilderRoundTrip(t *testing.T) {
	rc := newReceiver(t)
	b := newBuilder(t, rc.srv.URL, "secret", testDocument(
		signedupload.ContentLengthRange(0, 1<<20),
		signedupload.StartsWith("key", "test/"),
	))

	outcome, err := b.Upload(context.Background(), signedupload.File{
		Name: "a.png",
		Size: 9,
		Body: strings.NewReader("png-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, outcome.StatusCode)
	assert.Equal(t, rc.srv.URL+"/test/a.png", outcome.ObjectURL)

	resp, err := http.Get(outcome.ObjectURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	rec, err := rc.ledger.Get(context.Background(), "test/a.png")
	require.NoError(t, err)
	assert.Equal(t, "test-id", rec.AccessID)
	assert.Equal(t, "a.png", rec.FileName)
	assert.Equal(t, "image", rec.Media)
	assert.Equal(t, int64(9), rec.Size)
	assert.Equal(t, outcome.ObjectURL, rec.ObjectURL)
	assert.NotEmpty(t, rec.ETag)
}

func TestHandler_WrongSecretFailsUpload(t *testing.T) {
	rc := newReceiver(t)
	b := newBuilder(t, rc.srv.URL, "not-the-secret", testDocument())

	_, err := b.Upload(context.Background(), signedupload.File{
		Name: "a.png",
		Size: 4,
		Body: strings.NewReader("data"),
	})
	require.Error(t, err)
	assert.True(t, signedupload.IsNetworkError(err))

	var uerr *signedupload.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, http.StatusForbidden, uerr.StatusCode)
	assert.Contains(t, uerr.Body, "SignatureDoesNotMatch")

	_, err = rc.store.GetObjectMeta(context.Background(), "test/a.png")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestHandler_SuccessActionStatus(t *testing.T) {
	rc := newReceiver(t)
	doc := testDocument()

	resp := postForm(t, rc.srv.URL, append(signedFields(t, doc, "test/b.txt"),
		[2]string{"success_action_status", "201"}), "b.txt", "hello")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Location string `xml:"Location"`
		Key      string `xml:"Key"`
		ETag     string `xml:"ETag"`
	}
	require.NoError(t, xml.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "test/b.txt", body.Key)
	assert.Equal(t, rc.srv.URL+"/test/b.txt", body.Location)
	assert.NotEmpty(t, body.ETag)

	resp = postForm(t, rc.srv.URL, append(signedFields(t, doc, "test/c.txt"),
		[2]string{"success_action_status", "200"}), "c.txt", "hello")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandler_FilenameVariable(t *testing.T) {
	rc := newReceiver(t)

	resp := postForm(t, rc.srv.URL,
		signedFields(t, testDocument(signedupload.StartsWith("key", "uploads/")), "uploads/${filename}"),
		"report.pdf", "%PDF")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	meta, err := rc.store.GetObjectMeta(context.Background(), "uploads/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", meta.ContentType)
}

func TestHandler_EntityTooLarge(t *testing.T) {
	rc := newReceiver(t)

	resp := postForm(t, rc.srv.URL,
		signedFields(t, testDocument(signedupload.ContentLengthRange(0, 4)), "test/big.bin"),
		"big.bin", "0123456789")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "EntityTooLarge", errorCode(t, resp))

	_, err := rc.store.GetObjectMeta(context.Background(), "test/big.bin")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	_, err = rc.ledger.Get(context.Background(), "test/big.bin")
	assert.ErrorIs(t, err, ledger.ErrRecordNotFound)
}

func TestHandler_RejectedUploadKeepsExistingObject(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    string
	}{
		{name: "too large", content: "this file is too large", code: "EntityTooLarge"},
		{name: "too small", content: "x", code: "EntityTooSmall"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := newReceiver(t)
			ctx := context.Background()
			require.NoError(t, rc.store.UploadWithParams(ctx, strings.NewReader("good"), storage.UploadParams{
				ObjectKey: "test/a.png",
				MimeType:  "image/png",
			}))

			resp := postForm(t, rc.srv.URL,
				signedFields(t, testDocument(signedupload.ContentLengthRange(2, 5)), "test/a.png"),
				"a.png", tt.content)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, errorCode(t, resp))

			get, err := http.Get(rc.srv.URL + "/test/a.png")
			require.NoError(t, err)
			defer get.Body.Close()
			body, err := io.ReadAll(get.Body)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, get.StatusCode)
			assert.Equal(t, "good", string(body))
		})
	}
}

func TestHandler_ConditionFailure(t *testing.T) {
	rc := newReceiver(t)

	resp := postForm(t, rc.srv.URL,
		signedFields(t, testDocument(signedupload.StartsWith("key", "private/")), "test/a.png"),
		"a.png", "data")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "AccessDenied", errorCode(t, resp))
	assert.NotEmpty(t, resp.Header.Get("x-oss-request-id"))
}

func TestHandler_MissingFile(t *testing.T) {
	rc := newReceiver(t)

	resp := postForm(t, rc.srv.URL, signedFields(t, testDocument(), "test/a.png"), "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "InvalidArgument", errorCode(t, resp))
}

func TestHandler_NotMultipart(t *testing.T) {
	rc := newReceiver(t)

	resp, err := http.Post(rc.srv.URL, "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "MalformedPOSTRequest", errorCode(t, resp))
}

func TestHandler_GetMissingObject(t *testing.T) {
	rc := newReceiver(t)

	resp, err := http.Get(rc.srv.URL + "/test/none.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NoSuchKey", errorCode(t, resp))
}

func TestHandler_Head(t *testing.T) {
	rc := newReceiver(t)
	require.NoError(t, rc.store.UploadWithParams(context.Background(), strings.NewReader("hello"),
		storage.UploadParams{ObjectKey: "test/h.txt", MimeType: "text/plain"}))

	req, err := http.NewRequest(http.MethodHead, rc.srv.URL+"/test/h.txt", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, int64(5), resp.ContentLength)
	assert.NotEmpty(t, resp.Header.Get("ETag"))
}

// Package signedupload builds and submits signed POST uploads to
// object storage.
//
// The storage provider authorises a browser-style form upload by checking an
// HMAC-SHA1 signature over a base64-encoded policy document. The long-lived
// access key never leaves the process; only the access id, the encoded
// policy and its signature are sent alongside the object key and the file.
//
// # Basic Usage
//
//	policy, err := signedupload.NewUploadPolicy(accessID, accessKey, doc, "https://bucket.oss.example.com")
//	builder, err := signedupload.New(policy, signedupload.WithKeyPrefix("test/"))
//
//	attempt := builder.Submit(ctx, signedupload.File{
//	    Name: "a.png",
//	    Size: size,
//	    Body: f,
//	})
//	outcome, err := attempt.Wait()
//	// outcome.ObjectURL == "https://bucket.oss.example.com/test/a.png"
//
// # Outcomes
//
// Every attempt moves Idle -> InFlight -> Completed, Failed or Aborted and
// never returns to Idle. A non-2xx status or a transport error fails the
// attempt with ErrNetwork. Calling Cancel, or cancelling the context passed to
// Submit, aborts it with ErrAborted. Nothing is retried automatically.
//
// # Object keys
//
// Keys are prefix + file name with no escaping. Use WithStrictKeys when file
// names are not trusted.
package signedupload

package server

import (
	"net/http"
	"strings"

	"github.com/harukado/kura/internal/api"
	"github.com/harukado/kura/internal/auth"
)

// Router dispatches S3 API requests by method, path shape, and
// subresource query parameter.
type Router struct {
	handler    *api.Handler
	authMiddle auth.Authenticator
}

// NewRouter creates a new Router.
func NewRouter(handler *api.Handler, authMiddle auth.Authenticator) *Router {
	return &Router{
		handler:    handler,
		authMiddle: authMiddle,
	}
}

// ServeHTTP handles HTTP requests.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var handler http.Handler = r.routeRequest()
	handler = r.authMiddle.Wrap(handler)
	handler = LoggingMiddleware(handler)
	handler = RecoveryMiddleware(handler)

	handler.ServeHTTP(w, req)
}

// routeRequest returns a handler that routes requests based on S3 API
// patterns.
func (r *Router) routeRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		path := req.URL.Path
		query := req.URL.Query()

		// S3 path-style: /{bucket} or /{bucket}/{key}
		parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)

		bucket := ""
		key := ""
		if len(parts) > 0 {
			bucket = parts[0]
		}
		if len(parts) > 1 {
			key = parts[1]
		}

		req = api.WithBucket(req, bucket)
		req = api.WithKey(req, key)

		switch req.Method {
		case http.MethodGet:
			if bucket == "" {
				// GET / - ListBuckets
				r.handler.ListBuckets(w, req)
			} else if key == "" {
				switch {
				case query.Has("uploads"):
					r.handler.ListMultipartUploads(w, req)
				case query.Has("location"):
					r.handler.GetBucketLocation(w, req)
				case query.Has("tagging"):
					r.handler.GetBucketTagging(w, req)
				case query.Has("versioning"):
					r.handler.GetBucketVersioning(w, req)
				case query.Has("versions"):
					r.handler.ListObjectVersions(w, req)
				case query.Has("policy"):
					r.handler.GetBucketPolicy(w, req)
				case query.Has("ownershipControls"):
					r.handler.GetBucketOwnershipControls(w, req)
				case query.Has("acl"):
					r.handler.GetBucketAcl(w, req)
				case query.Has("object-lock"):
					r.handler.GetObjectLockConfiguration(w, req)
				case query.Get("list-type") == "2":
					r.handler.ListObjectsV2(w, req)
				default:
					// GET /{bucket} - ListObjects (v1)
					r.handler.ListObjects(w, req)
				}
			} else {
				switch {
				case query.Has("uploadId"):
					r.handler.ListParts(w, req)
				case query.Has("attributes"):
					r.handler.GetObjectAttributes(w, req)
				case query.Has("tagging"):
					r.handler.GetObjectTagging(w, req)
				case query.Has("acl"):
					r.handler.GetObjectAcl(w, req)
				case query.Has("retention"):
					r.handler.GetObjectRetention(w, req)
				case query.Has("legal-hold"):
					r.handler.GetObjectLegalHold(w, req)
				default:
					r.handler.GetObject(w, req)
				}
			}

		case http.MethodPut:
			if bucket != "" && key == "" {
				switch {
				case query.Has("tagging"):
					r.handler.PutBucketTagging(w, req)
				case query.Has("versioning"):
					r.handler.PutBucketVersioning(w, req)
				case query.Has("policy"):
					r.handler.PutBucketPolicy(w, req)
				case query.Has("ownershipControls"):
					r.handler.PutBucketOwnershipControls(w, req)
				case query.Has("acl"):
					r.handler.PutBucketAcl(w, req)
				case query.Has("object-lock"):
					r.handler.PutObjectLockConfiguration(w, req)
				default:
					// PUT /{bucket} - CreateBucket
					r.handler.CreateBucket(w, req)
				}
			} else if bucket != "" && key != "" {
				switch {
				case query.Has("partNumber") && query.Has("uploadId"):
					if req.Header.Get("x-amz-copy-source") != "" {
						r.handler.UploadPartCopy(w, req)
					} else {
						r.handler.UploadPart(w, req)
					}
				case query.Has("tagging"):
					r.handler.PutObjectTagging(w, req)
				case query.Has("acl"):
					r.handler.PutObjectAcl(w, req)
				case query.Has("retention"):
					r.handler.PutObjectRetention(w, req)
				case query.Has("legal-hold"):
					r.handler.PutObjectLegalHold(w, req)
				case req.Header.Get("x-amz-copy-source") != "":
					r.handler.CopyObject(w, req)
				default:
					r.handler.PutObject(w, req)
				}
			} else {
				api.WriteError(w, api.ErrInvalidRequest)
			}

		case http.MethodPost:
			if bucket != "" && key != "" {
				switch {
				case query.Has("uploads"):
					r.handler.CreateMultipartUpload(w, req)
				case query.Has("uploadId"):
					r.handler.CompleteMultipartUpload(w, req)
				default:
					api.WriteError(w, api.ErrInvalidRequest)
				}
			} else if bucket != "" && key == "" {
				if query.Has("delete") {
					r.handler.DeleteObjects(w, req)
				} else {
					api.WriteError(w, api.ErrInvalidRequest)
				}
			} else {
				api.WriteError(w, api.ErrInvalidRequest)
			}

		case http.MethodDelete:
			if bucket != "" && key == "" {
				switch {
				case query.Has("tagging"):
					r.handler.DeleteBucketTagging(w, req)
				case query.Has("policy"):
					r.handler.DeleteBucketPolicy(w, req)
				case query.Has("ownershipControls"):
					r.handler.DeleteBucketOwnershipControls(w, req)
				default:
					// DELETE /{bucket} - DeleteBucket
					r.handler.DeleteBucket(w, req)
				}
			} else if bucket != "" && key != "" {
				switch {
				case query.Has("uploadId"):
					r.handler.AbortMultipartUpload(w, req)
				case query.Has("tagging"):
					r.handler.DeleteObjectTagging(w, req)
				default:
					r.handler.DeleteObject(w, req)
				}
			} else {
				api.WriteError(w, api.ErrInvalidRequest)
			}

		case http.MethodHead:
			if bucket != "" && key == "" {
				r.handler.HeadBucket(w, req)
			} else if bucket != "" && key != "" {
				r.handler.HeadObject(w, req)
			} else {
				api.WriteError(w, api.ErrInvalidRequest)
			}

		default:
			api.WriteError(w, api.ErrMethodNotAllowed)
		}
	}
}

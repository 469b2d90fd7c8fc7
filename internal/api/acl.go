package api

import (
	"encoding/xml"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/harukado/kura/internal/storage"
)

// AccessControlPolicy is the request and response body for ACL
// operations.
type AccessControlPolicy struct {
	XMLName           xml.Name          `xml:"AccessControlPolicy"`
	Xmlns             string            `xml:"xmlns,attr,omitempty"`
	Owner             Owner             `xml:"Owner"`
	AccessControlList AccessControlList `xml:"AccessControlList"`
}

// AccessControlList is a container for grants.
type AccessControlList struct {
	Grants []Grant `xml:"Grant"`
}

// Grant is a single ACL grant.
type Grant struct {
	Grantee    Grantee `xml:"Grantee"`
	Permission string  `xml:"Permission"`
}

// Grantee identifies who a grant applies to.
type Grantee struct {
	XMLName     xml.Name `xml:"Grantee"`
	XmlnsXsi    string   `xml:"xmlns:xsi,attr"`
	Type        string   `xml:"xsi:type,attr"`
	ID          string   `xml:"ID,omitempty"`
	DisplayName string   `xml:"DisplayName,omitempty"`
	URI         string   `xml:"URI,omitempty"`
}

const xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"

func aclToPolicy(acl *storage.ACL) AccessControlPolicy {
	policy := AccessControlPolicy{
		Xmlns: xmlns,
		Owner: Owner{ID: acl.OwnerID, DisplayName: acl.OwnerDisplay},
	}
	for _, g := range acl.Grants {
		grant := Grant{
			Grantee: Grantee{
				XmlnsXsi: xsiNamespace,
				Type:     g.GranteeType,
				ID:       g.GranteeID,
				URI:      g.GranteeURI,
			},
			Permission: g.Permission,
		}
		if g.GranteeType == "CanonicalUser" && g.GranteeID == acl.OwnerID {
			grant.Grantee.DisplayName = acl.OwnerDisplay
		}
		policy.AccessControlList.Grants = append(policy.AccessControlList.Grants, grant)
	}
	return policy
}

// requestedACL resolves the ACL a put-ACL request asks for, from the
// canned x-amz-acl header or the XML body.
func (h *Handler) requestedACL(r *http.Request) (*storage.ACL, *S3Error) {
	if canned := r.Header.Get("x-amz-acl"); canned != "" {
		return storage.CannedACLToACL(storage.CannedACL(canned), h.engine.Owner(), "kura"), nil
	}

	var body AccessControlPolicy
	if err := xml.NewDecoder(requestBody(r)).Decode(&body); err != nil {
		return nil, ErrMalformedXML
	}
	acl := &storage.ACL{
		OwnerID:      body.Owner.ID,
		OwnerDisplay: body.Owner.DisplayName,
	}
	for _, g := range body.AccessControlList.Grants {
		acl.Grants = append(acl.Grants, storage.ACLGrant{
			Permission:  g.Permission,
			GranteeType: g.Grantee.Type,
			GranteeID:   g.Grantee.ID,
			GranteeURI:  g.Grantee.URI,
		})
	}
	return acl, nil
}

// isPrivateACL reports whether an ACL grants nothing beyond owner
// full control.
func isPrivateACL(acl *storage.ACL) bool {
	for _, g := range acl.Grants {
		if g.GranteeType != "CanonicalUser" || g.Permission != storage.ACLPermissionFullControl {
			return false
		}
	}
	return true
}

// effectiveOwnership returns the bucket's ownership rule, falling back
// to the BucketOwnerEnforced default.
func (h *Handler) effectiveOwnership(r *http.Request, bucket string) (storage.OwnershipRule, error) {
	rule, err := h.engine.GetOwnershipControls(r.Context(), bucket)
	if errors.Is(err, storage.ErrNoOwnershipControls) {
		return storage.OwnershipBucketOwnerEnforced, nil
	}
	return rule, err
}

// PutBucketAcl handles PUT /{bucket}?acl.
func (h *Handler) PutBucketAcl(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	acl, s3err := h.requestedACL(r)
	if s3err != nil {
		WriteError(w, s3err)
		return
	}

	rule, err := h.effectiveOwnership(r, bucket)
	if err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}
	if rule == storage.OwnershipBucketOwnerEnforced && !isPrivateACL(acl) {
		WriteErrorWithResource(w, ErrInvalidBucketAclWithObjectOwnership, "/"+bucket)
		return
	}

	if err := h.engine.PutBucketACL(r.Context(), bucket, acl); err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetBucketAcl handles GET /{bucket}?acl.
func (h *Handler) GetBucketAcl(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	if _, err := h.engine.HeadBucket(r.Context(), bucket); err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	acl, err := h.engine.GetBucketACL(r.Context(), bucket)
	if err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(aclToPolicy(acl)); err != nil {
		log.Error().Err(err).Msg("Failed to encode GetBucketAcl response")
	}
}

// PutObjectAcl handles PUT /{bucket}/{key}?acl. With the default
// BucketOwnerEnforced ownership, only owner-full-control ACLs are
// accepted; per-grant object ACLs are disabled.
func (h *Handler) PutObjectAcl(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)
	versionID := r.URL.Query().Get("versionId")

	if _, err := h.engine.HeadObject(r.Context(), bucket, key, versionID); err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	acl, s3err := h.requestedACL(r)
	if s3err != nil {
		WriteError(w, s3err)
		return
	}

	rule, err := h.effectiveOwnership(r, bucket)
	if err != nil {
		writeStorageError(w, err, "/"+bucket)
		return
	}
	if rule == storage.OwnershipBucketOwnerEnforced && !isPrivateACL(acl) {
		WriteErrorWithResource(w, ErrAccessControlListNotSupported, "/"+bucket+"/"+key)
		return
	}

	// Objects are owned by the single deployment owner; an
	// owner-full-control ACL is already in effect.
	w.WriteHeader(http.StatusOK)
}

// GetObjectAcl handles GET /{bucket}/{key}?acl.
func (h *Handler) GetObjectAcl(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)
	versionID := r.URL.Query().Get("versionId")

	info, err := h.engine.HeadObject(r.Context(), bucket, key, versionID)
	if err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	if info.VersionID != "" {
		w.Header().Set("x-amz-version-id", info.VersionID)
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(aclToPolicy(storage.DefaultACL())); err != nil {
		log.Error().Err(err).Msg("Failed to encode GetObjectAcl response")
	}
}

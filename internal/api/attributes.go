package api

import (
	"encoding/xml"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/harukado/kura/internal/storage"
)

// GetObjectAttributesResponse is the response for GetObjectAttributes.
// Only the attributes named in the request appear.
type GetObjectAttributesResponse struct {
	XMLName      xml.Name           `xml:"GetObjectAttributesResponse"`
	Xmlns        string             `xml:"xmlns,attr"`
	ETag         string             `xml:"ETag,omitempty"`
	Checksum     *ChecksumAttribute `xml:"Checksum,omitempty"`
	ObjectParts  *ObjectParts       `xml:"ObjectParts,omitempty"`
	StorageClass string             `xml:"StorageClass,omitempty"`
	ObjectSize   *int64             `xml:"ObjectSize,omitempty"`
}

// ChecksumAttribute carries the stored checksum of the object.
type ChecksumAttribute struct {
	ChecksumCRC32  string `xml:"ChecksumCRC32,omitempty"`
	ChecksumCRC32C string `xml:"ChecksumCRC32C,omitempty"`
	ChecksumSHA1   string `xml:"ChecksumSHA1,omitempty"`
	ChecksumSHA256 string `xml:"ChecksumSHA256,omitempty"`
}

// ObjectParts describes the parts of a multipart-assembled object.
type ObjectParts struct {
	TotalPartsCount      int32           `xml:"TotalPartsCount"`
	PartNumberMarker     int32           `xml:"PartNumberMarker"`
	NextPartNumberMarker int32           `xml:"NextPartNumberMarker,omitempty"`
	MaxParts             int32           `xml:"MaxParts"`
	IsTruncated          bool            `xml:"IsTruncated"`
	Parts                []ObjectPartRef `xml:"Part"`
}

// ObjectPartRef is one part of an assembled object.
type ObjectPartRef struct {
	PartNumber int32 `xml:"PartNumber"`
	Size       int64 `xml:"Size"`
}

// GetObjectAttributes handles GET /{bucket}/{key}?attributes.
func (h *Handler) GetObjectAttributes(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)
	versionID := r.URL.Query().Get("versionId")

	requested := map[string]bool{}
	for _, attr := range strings.Split(r.Header.Get("x-amz-object-attributes"), ",") {
		if attr = strings.TrimSpace(attr); attr != "" {
			switch attr {
			case "ETag", "Checksum", "ObjectParts", "StorageClass", "ObjectSize":
				requested[attr] = true
			default:
				// Empty and unrecognized attribute names are both invalid
				WriteError(w, ErrInvalidArgument)
				return
			}
		}
	}
	if len(requested) == 0 {
		WriteError(w, ErrInvalidArgument)
		return
	}

	info, err := h.engine.HeadObject(r.Context(), bucket, key, versionID)
	if err != nil {
		writeStorageError(w, err, "/"+bucket+"/"+key)
		return
	}

	result := GetObjectAttributesResponse{Xmlns: xmlns}
	if requested["ETag"] {
		// Unquoted, unlike the ETag response header.
		result.ETag = info.ETag
	}
	if requested["StorageClass"] {
		result.StorageClass = info.StorageClass
	}
	if requested["ObjectSize"] {
		size := info.Size
		result.ObjectSize = &size
	}
	if requested["Checksum"] && info.ChecksumValue != "" {
		checksum := &ChecksumAttribute{}
		switch info.ChecksumAlgorithm {
		case storage.ChecksumCRC32:
			checksum.ChecksumCRC32 = info.ChecksumValue
		case storage.ChecksumCRC32C:
			checksum.ChecksumCRC32C = info.ChecksumValue
		case storage.ChecksumSHA1:
			checksum.ChecksumSHA1 = info.ChecksumValue
		case storage.ChecksumSHA256:
			checksum.ChecksumSHA256 = info.ChecksumValue
		}
		result.Checksum = checksum
	}
	if requested["ObjectParts"] && info.PartCount() > 0 {
		result.ObjectParts = objectPartsPage(r, info)
	}

	w.Header().Set("Last-Modified", info.LastModified.Format(http.TimeFormat))
	if info.VersionID != "" {
		w.Header().Set("x-amz-version-id", info.VersionID)
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(result); err != nil {
		log.Error().Err(err).Msg("Failed to encode GetObjectAttributes response")
	}
}

// objectPartsPage pages through the part sizes recorded at completion.
func objectPartsPage(r *http.Request, info *storage.ObjectInfo) *ObjectParts {
	maxParts := int32(1000)
	if s := r.Header.Get("x-amz-max-parts"); s != "" {
		if mp, err := strconv.ParseInt(s, 10, 32); err == nil && mp >= 0 {
			maxParts = int32(mp)
		}
	}
	var marker int32
	if s := r.Header.Get("x-amz-part-number-marker"); s != "" {
		if pnm, err := strconv.ParseInt(s, 10, 32); err == nil {
			marker = int32(pnm)
		}
	}

	parts := &ObjectParts{
		TotalPartsCount:  info.PartCount(),
		PartNumberMarker: marker,
		MaxParts:         maxParts,
	}
	for i, size := range info.PartSizes {
		number := int32(i + 1)
		if number <= marker {
			continue
		}
		if int32(len(parts.Parts)) == maxParts {
			parts.IsTruncated = true
			parts.NextPartNumberMarker = number - 1
			break
		}
		parts.Parts = append(parts.Parts, ObjectPartRef{PartNumber: number, Size: size})
	}
	return parts
}

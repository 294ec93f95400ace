package domain

import (
	"errors"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// ReferenceKind tells the reference manager how to obtain a usable handle.
type ReferenceKind int

const (
	// ReferenceLocalPath is an object path in the application's bucket. It
	// is downloaded and uploaded to the provider fresh for every attempt.
	ReferenceLocalPath ReferenceKind = iota + 1
	// ReferenceRemoteURI is a provider Files API URI that already exists
	// remotely and is never re-uploaded.
	ReferenceRemoteURI
)

func (k ReferenceKind) String() string {
	switch k {
	case ReferenceLocalPath:
		return "local_path"
	case ReferenceRemoteURI:
		return "remote_uri"
	default:
		return "unknown"
	}
}

// FilesAPIHost is the provider host that serves Files API URIs.
const FilesAPIHost = "generativelanguage.googleapis.com"

var fileIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// Reference is a parsed reference identifier.
type Reference struct {
	Raw  string
	Kind ReferenceKind
	// Path is set for ReferenceLocalPath.
	Path string
	// URI and FileName are set for ReferenceRemoteURI. FileName is the
	// provider resource name ("files/<id>") used for status and deletion.
	URI      string
	FileName string
}

// ParseReference classifies raw into a local storage path or a remote Files
// API URI. Any other URL is rejected.
func ParseReference(raw string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reference{}, errors.New("reference is empty")
	}

	if strings.HasPrefix(raw, "files/") {
		id := strings.TrimPrefix(raw, "files/")
		if !fileIDPattern.MatchString(id) {
			return Reference{}, errors.New("invalid provider file name")
		}
		return Reference{Raw: raw, Kind: ReferenceRemoteURI, URI: "https://" + FilesAPIHost + "/v1beta/" + raw, FileName: raw}, nil
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return Reference{}, errors.New("invalid reference URI")
		}
		if u.Scheme != "https" || u.Host != FilesAPIHost {
			return Reference{}, errors.New("only provider file URIs or storage paths are accepted")
		}
		dir, id := path.Split(strings.TrimSuffix(u.Path, "/"))
		if !strings.HasSuffix(dir, "/files/") || !fileIDPattern.MatchString(id) {
			return Reference{}, errors.New("invalid provider file URI")
		}
		return Reference{Raw: raw, Kind: ReferenceRemoteURI, URI: raw, FileName: "files/" + id}, nil
	}

	clean := strings.TrimLeft(strings.ReplaceAll(raw, "\\", "/"), "/")
	clean = path.Clean(clean)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return Reference{}, errors.New("invalid storage path")
	}
	return Reference{Raw: raw, Kind: ReferenceLocalPath, Path: clean}, nil
}

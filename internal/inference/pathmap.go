package inference

import (
	"path"
	"strings"

	"github.com/mtiwari1/gophermedia/internal/media"
)

// PathMapper translates between storage paths ("public/image/a.jpg") and the
// paths the inference service sees on its shared volume
// ("/shared/images/a.jpg").
type PathMapper struct {
	LocalPrefix string
	SharedRoot  string
}

func isCategory(seg string) bool {
	return media.ParseCategory(seg) != media.CategoryOther
}

// ToShared maps a storage path onto the shared volume. Paths outside the
// local prefix are returned unchanged.
func (m PathMapper) ToShared(p string) string {
	clean := path.Clean(strings.TrimPrefix(p, "./"))
	rest, ok := cutDir(clean, m.LocalPrefix)
	if !ok {
		return p
	}
	seg, tail, _ := strings.Cut(rest, "/")
	if isCategory(seg) {
		seg += "s"
	}
	return path.Join(m.SharedRoot, seg, tail)
}

// FromShared maps a shared-volume path back to a storage path. Paths outside
// the shared root are returned unchanged.
func (m PathMapper) FromShared(p string) string {
	rest, ok := cutDir(path.Clean(p), m.SharedRoot)
	if !ok {
		return p
	}
	seg, tail, _ := strings.Cut(rest, "/")
	if s := strings.TrimSuffix(seg, "s"); s != seg && isCategory(s) {
		seg = s
	}
	return path.Join(m.LocalPrefix, seg, tail)
}

func (m PathMapper) fromSharedPtr(p *string) *string {
	if p == nil || *p == "" {
		return p
	}
	s := m.FromShared(*p)
	return &s
}

// cutDir strips dir and the following slash from p.
func cutDir(p, dir string) (string, bool) {
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		return p, true
	}
	rest, ok := strings.CutPrefix(p, dir+"/")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

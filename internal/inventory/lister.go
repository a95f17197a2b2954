package inventory

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"interview-analyzer/internal/shared/storage/object"
)

// ErrUnitNotFound is returned by Locate when a unit has no media object.
var ErrUnitNotFound = errors.New("unit not found in content store")

var mediaExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".m4v":  true,
}

// Lister enumerates units available in the content store.
type Lister interface {
	// ListUnits returns owner id -> sorted unit ids.
	ListUnits(ctx context.Context, bucket string) (map[string][]string, error)
	// Locate returns the media object for one unit.
	Locate(ctx context.Context, bucket, ownerID, unitID string) (object.Object, error)
}

// StoreLister reads the <owner>/<unit>/<file> layout from an object store.
type StoreLister struct {
	Store object.Store
}

// ListUnits implements Lister.
func (l StoreLister) ListUnits(ctx context.Context, bucket string) (map[string][]string, error) {
	objects, err := l.Store.List(ctx, bucket, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]map[string]struct{})
	for _, obj := range objects {
		owner, unit, ok := ParseKey(obj.Key)
		if !ok {
			continue
		}
		if seen[owner] == nil {
			seen[owner] = make(map[string]struct{})
		}
		seen[owner][unit] = struct{}{}
	}
	out := make(map[string][]string, len(seen))
	for owner, units := range seen {
		list := make([]string, 0, len(units))
		for unit := range units {
			list = append(list, unit)
		}
		sort.Strings(list)
		out[owner] = list
	}
	return out, nil
}

// Locate implements Lister. When a unit holds several media files the
// lexicographically last key wins.
func (l StoreLister) Locate(ctx context.Context, bucket, ownerID, unitID string) (object.Object, error) {
	if !validID(ownerID) || !validID(unitID) {
		return object.Object{}, ErrUnitNotFound
	}
	objects, err := l.Store.List(ctx, bucket, UnitPrefix(ownerID, unitID))
	if err != nil {
		return object.Object{}, err
	}
	var best object.Object
	found := false
	for _, obj := range objects {
		owner, unit, ok := ParseKey(obj.Key)
		if !ok || owner != ownerID || unit != unitID {
			continue
		}
		if !found || obj.Key > best.Key {
			best = obj
			found = true
		}
	}
	if !found {
		return object.Object{}, ErrUnitNotFound
	}
	return best, nil
}

// ParseKey extracts owner and unit from a store key. Keys with fewer than
// three segments or a non-media extension are rejected.
func ParseKey(key string) (owner, unit string, ok bool) {
	parts := strings.Split(strings.Trim(key, "/"), "/")
	if len(parts) < 3 {
		return "", "", false
	}
	for _, p := range parts {
		if p == "" {
			return "", "", false
		}
	}
	file := parts[len(parts)-1]
	if strings.HasPrefix(file, ".") || !mediaExtensions[strings.ToLower(path.Ext(file))] {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// UnitPrefix is the store key prefix holding a unit's media.
func UnitPrefix(ownerID, unitID string) string {
	return fmt.Sprintf("%s/%s/", ownerID, unitID)
}

func validID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, "/\\")
}

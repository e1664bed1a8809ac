package blueprint

import "github.com/RoaringBitmap/roaring/roaring64"

// Offline drops offline pages.
func Offline(n *Node) bool {
	return !n.IsOnline
}

// NavigationHidden drops the pages a navigation menu never shows:
// offline, excluded from navigation, or addressed by a pattern.
func NavigationHidden(n *Node) bool {
	return !n.IsOnline || n.IsNavigationExcluded || n.Pattern != ""
}

// OutsideTrail builds the filter of a navigation branch: visible pages
// that are on the trail or whose parent is on the trail.
func OutsideTrail(trail *roaring64.Bitmap) FilterFunc {
	return func(n *Node) bool {
		if !n.IsOnline || n.IsNavigationExcluded {
			return true
		}
		return !trail.Contains(uint64(n.ID)) && !trail.Contains(uint64(n.ParentID))
	}
}

// Collapsed keeps root pages and the children of expanded pages, which
// is how a management tree hides collapsed branches.
func Collapsed(expanded *roaring64.Bitmap) FilterFunc {
	return func(n *Node) bool {
		return n.ParentID != 0 && !expanded.Contains(uint64(n.ParentID))
	}
}

// ExcludeIDs drops the listed pages and, with them, their branches.
func ExcludeIDs(ids *roaring64.Bitmap) FilterFunc {
	return func(n *Node) bool {
		return ids.Contains(uint64(n.ID))
	}
}

// AnyOf drops a node when any of the filters drops it.
func AnyOf(filters ...FilterFunc) FilterFunc {
	return func(n *Node) bool {
		for _, f := range filters {
			if f(n) {
				return true
			}
		}
		return false
	}
}

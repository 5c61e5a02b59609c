package cachestore

import (
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// LibraryFingerprint hashes an inventory's id set together with its size. The
// result changes whenever an item is added, removed, or replaced, independent
// of the order ids are listed in.
func LibraryFingerprint(ids []string) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)

	digest := xxhash.New()
	_, _ = digest.WriteString(strconv.Itoa(len(sorted)))
	_, _ = digest.WriteString("|")
	_, _ = digest.WriteString(strings.Join(sorted, ","))

	return strconv.Itoa(len(sorted)) + ":" + strconv.FormatUint(digest.Sum64(), 16)
}

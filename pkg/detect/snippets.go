package detect

import (
	"os"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/rundir"
)

// WriteSnippets writes one <node id>.html per DOM index plus index.json.
// Keys of byIndex are decimal DOM indices.
func WriteSnippets(dir rundir.Dir, byIndex map[string]string) error {
	if err := os.MkdirAll(dir.Path(rundir.SnippetsDir), 0o755); err != nil {
		return errors.Wrap(err, "failed to create snippets directory")
	}
	keys := make([]int, 0, len(byIndex))
	for k := range byIndex {
		if n, err := strconv.Atoi(k); err == nil {
			keys = append(keys, n)
		}
	}
	sort.Ints(keys)

	idx := rundir.SnippetIndex{Items: make([]rundir.SnippetItem, 0, len(keys))}
	for _, n := range keys {
		id := NodeID(n)
		file := id + ".html"
		if err := os.WriteFile(dir.Path(rundir.SnippetsDir, file), []byte(byIndex[strconv.Itoa(n)]), 0o644); err != nil {
			return errors.Wrapf(err, "failed to write snippet %s", id)
		}
		idx.Items = append(idx.Items, rundir.SnippetItem{ID: id, File: file})
	}
	return rundir.WriteJSON(dir.Path(rundir.SnippetsDir, rundir.SnippetsIndex), idx)
}

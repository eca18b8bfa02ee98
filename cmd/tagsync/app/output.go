package app

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/olekukonko/tablewriter"

	"github.com/cognicore/tagsync/pkg/tagsync/cas"
	"github.com/cognicore/tagsync/pkg/tagsync/store"
)

// documentWriter prints documents one at a time from concurrent workers.
type documentWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newDocumentWriter(w io.Writer) *documentWriter {
	return &documentWriter{w: w}
}

// Write prints a header line for doc followed by one row per annotation:
// begin, end, type, covered text and the set feature values.
func (dw *documentWriter) Write(doc *cas.Document) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if _, err := fmt.Fprintf(dw.w, "# %s %s\n", doc.ID(), doc.Name()); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(dw.w, 0, 4, 1, ' ', 0)
	for _, a := range doc.Annotations() {
		var feats []string
		for _, f := range a.Type().Features() {
			if v, ok := a.StringValue(f); ok {
				feats = append(feats, f.Name()+"="+v)
			}
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n",
			a.Begin(), a.End(), a.Type().Name(), a.CoveredText(), strings.Join(feats, " "))
	}
	return tw.Flush()
}

func writeDocInfos(w io.Writer, infos []store.DocInfo) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"ID", "NAME", "LENGTH", "ANNOTATIONS", "UPDATED"})
	for _, info := range infos {
		if err := table.Append([]string{
			info.ID,
			info.Name,
			strconv.Itoa(info.Length),
			strconv.Itoa(info.Annotations),
			info.UpdatedAt.Format("2006-01-02 15:04:05"),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

package aggregate

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/rotisserie/eris"

	"github.com/sells-group/firmenradar/internal/model"
)

// WriteMarkdownReport renders the merged record and the run audit as a
// Markdown document for sharing outside the CLI.
func WriteMarkdownReport(w io.Writer, record *model.CanonicalCompanyRecord, report *model.AggregationReport) error {
	md := markdown.NewMarkdown(w)

	title := record.Identity.CompanyName
	if title == "" {
		title = record.Fingerprint
	}
	md.H1("Company Report: " + title)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + report.RunID + "`"},
			{"Fingerprint", "`" + record.Fingerprint + "`"},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", report.Elapsed.String()},
			{"Fields populated", strconv.Itoa(len(record.Fields))},
		},
	})
	md.PlainText("")

	md.H2("Fields")
	fieldRows := make([][]string, 0, len(record.Fields))
	for _, key := range model.CanonicalFieldKeys {
		fv, ok := record.Fields[key]
		if !ok {
			continue
		}
		fieldRows = append(fieldRows, []string{
			key,
			fmt.Sprintf("%v", fv.Value),
			fv.Source,
			fv.FetchedAt.Format("2006-01-02 15:04"),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Field", "Value", "Source", "Fetched"},
		Rows:   fieldRows,
	})
	md.PlainText("")

	md.H2("Sources")
	sourceRows := make([][]string, 0, len(report.Sources))
	for _, id := range sortedSourceIDs(report) {
		sr := report.Sources[id]
		failure := string(sr.FailureKind)
		if failure == "" {
			failure = "-"
		}
		sourceRows = append(sourceRows, []string{
			id,
			string(sr.Status),
			strconv.Itoa(len(sr.Attempts)),
			failure,
			sr.Elapsed.Round(10 * time.Millisecond).String(),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Source", "Status", "Attempts", "Failure", "Elapsed"},
		Rows:   sourceRows,
	})
	md.PlainText("")

	if len(report.Conflicts) > 0 {
		md.H2("Conflicts")
		conflictRows := make([][]string, 0, len(report.Conflicts))
		for _, c := range report.Conflicts {
			conflictRows = append(conflictRows, []string{
				c.Key,
				fmt.Sprintf("%v (%s)", c.Winner.Value, c.Winner.Source),
				fmt.Sprintf("%v (%s)", c.Discarded.Value, c.Discarded.Source),
				c.Reason,
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Field", "Kept", "Discarded", "Reason"},
			Rows:   conflictRows,
		})
		md.PlainText("")
	}

	if len(report.Missing) > 0 {
		md.H2("Missing Fields")
		md.PlainText(strings.Join(report.Missing, ", "))
		md.PlainText("")
	}

	if err := md.Build(); err != nil {
		return eris.Wrap(err, "aggregate: render markdown report")
	}
	return nil
}

func sortedSourceIDs(report *model.AggregationReport) []string {
	ids := make([]string, 0, len(report.Sources))
	for id := range report.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/qualtrack/qualtrack/collector/internal/config"
	"github.com/qualtrack/qualtrack/pkg/model"
)

// robotCollector measures failed tests from a Robot Framework output.xml
// report. The value is the failed count from the report's "All Tests"
// statistics row; the total is that row's pass + fail sum. One entity is
// reported per failed test.
type robotCollector struct {
	src    config.Source
	client *http.Client
}

type robotOutput struct {
	XMLName    xml.Name   `xml:"robot"`
	Generated  string     `xml:"generated,attr"`
	Suite      robotSuite `xml:"suite"`
	Statistics struct {
		Total struct {
			Stats []robotStat `xml:"stat"`
		} `xml:"total"`
	} `xml:"statistics"`
}

type robotStat struct {
	Pass  int    `xml:"pass,attr"`
	Fail  int    `xml:"fail,attr"`
	Label string `xml:",chardata"`
}

type robotSuite struct {
	Name   string       `xml:"name,attr"`
	Suites []robotSuite `xml:"suite"`
	Tests  []robotTest  `xml:"test"`
}

type robotTest struct {
	ID     string `xml:"id,attr"`
	Name   string `xml:"name,attr"`
	Status struct {
		Status string `xml:"status,attr"`
	} `xml:"status"`
}

func (c *robotCollector) Collect(ctx context.Context) *model.SourceResult {
	res := newResult(c.src.SourceUUID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.src.Endpoint, nil)
	if err != nil {
		res.ConnectionError = err.Error()
		return res
	}
	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("source: robot framework fetch failed", "source", c.src.SourceUUID, "err", err)
		res.ConnectionError = err.Error()
		return res
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		res.ConnectionError = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return res
	}

	var output robotOutput
	if err := xml.NewDecoder(resp.Body).Decode(&output); err != nil {
		slog.Warn("source: robot framework parse failed", "source", c.src.SourceUUID, "err", err)
		res.ParseError = err.Error()
		return res
	}

	// The last total statistics row covers all tests; earlier rows cover
	// subsets such as critical tests.
	stats := output.Statistics.Total.Stats
	if len(stats) == 0 {
		res.ParseError = "no total statistics in report"
		return res
	}
	all := stats[len(stats)-1]
	res.Value = strconv.Itoa(all.Fail)
	res.Total = strconv.Itoa(all.Pass + all.Fail)

	for _, test := range failedTests(output.Suite) {
		res.Entities = append(res.Entities, &model.Entity{
			Key: test.ID,
			Attributes: map[string]string{
				"name":         test.Name,
				"failure_type": "fail",
			},
		})
	}
	return res
}

// failedTests walks the suite tree and returns every test whose status is
// FAIL, in document order.
func failedTests(root robotSuite) []robotTest {
	var failed []robotTest

	stack := []robotSuite{root}
	for len(stack) > 0 {
		suite := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, test := range suite.Tests {
			if test.Status.Status == "FAIL" {
				failed = append(failed, test)
			}
		}
		for i := len(suite.Suites) - 1; i >= 0; i-- {
			stack = append(stack, suite.Suites[i])
		}
	}
	return failed
}

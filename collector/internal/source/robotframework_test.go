package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/qualtrack/qualtrack/collector/internal/config"
)

// robotReport is a trimmed output.xml with one nested suite. The statistics
// block carries a critical row before the All Tests row, as Robot Framework
// writes it.
const robotReport = `<?xml version="1.0" encoding="UTF-8"?>
<robot generated="20260801 12:00:00.000">
  <suite name="Regression">
    <suite name="Login">
      <test id="s1-s1-t1" name="Valid credentials">
        <status status="PASS"/>
      </test>
      <test id="s1-s1-t2" name="Expired password">
        <status status="FAIL"/>
      </test>
    </suite>
    <test id="s1-t1" name="Smoke check">
      <status status="FAIL"/>
    </test>
  </suite>
  <statistics>
    <total>
      <stat pass="1" fail="1">Critical Tests</stat>
      <stat pass="1" fail="2">All Tests</stat>
    </total>
  </statistics>
</robot>`

func newRobot(t *testing.T, body string) *robotCollector {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	src := config.Source{SourceUUID: "source-1", Type: "robotframework", Endpoint: srv.URL}
	return &robotCollector{src: src, client: srv.Client()}
}

func TestRobot_ValueFromAllTestsRow(t *testing.T) {
	c := newRobot(t, robotReport)

	res := c.Collect(context.Background())
	if res.ConnectionError != "" || res.ParseError != "" {
		t.Fatalf("errors: conn=%q parse=%q", res.ConnectionError, res.ParseError)
	}
	if res.Value != "2" {
		t.Errorf("value: got %q, want 2 (All Tests row, not Critical Tests)", res.Value)
	}
	if res.Total != "3" {
		t.Errorf("total: got %q, want 3", res.Total)
	}
}

func TestRobot_FailedTestEntities(t *testing.T) {
	c := newRobot(t, robotReport)

	res := c.Collect(context.Background())
	if len(res.Entities) != 2 {
		t.Fatalf("entities: got %d, want 2", len(res.Entities))
	}
	// Document order: the nested suite's tests come before the root's own.
	if got := res.Entities[0].Key; got != "s1-s1-t2" {
		t.Errorf("first entity key: got %q, want s1-s1-t2", got)
	}
	if got := res.Entities[0].Attributes["name"]; got != "Expired password" {
		t.Errorf("first entity name: got %q, want Expired password", got)
	}
	if got := res.Entities[1].Key; got != "s1-t1" {
		t.Errorf("second entity key: got %q, want s1-t1", got)
	}
	for _, e := range res.Entities {
		if e.Attributes["failure_type"] != "fail" {
			t.Errorf("entity %s failure_type: got %q, want fail", e.Key, e.Attributes["failure_type"])
		}
	}
}

func TestRobot_NoStatisticsIsParseError(t *testing.T) {
	c := newRobot(t, `<?xml version="1.0"?><robot><suite name="Empty"/><statistics><total/></statistics></robot>`)

	res := c.Collect(context.Background())
	if res.ParseError == "" {
		t.Error("parse error: got empty, want set for report without total statistics")
	}
}

func TestRobot_MalformedXML(t *testing.T) {
	c := newRobot(t, `<html><body>login required</body></html>`)

	res := c.Collect(context.Background())
	if res.ParseError == "" {
		t.Error("parse error: got empty, want set for non-report body")
	}
}

func TestRobot_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	src := config.Source{SourceUUID: "source-1", Type: "robotframework", Endpoint: srv.URL}
	c := &robotCollector{src: src, client: srv.Client()}

	res := c.Collect(context.Background())
	if res.ConnectionError == "" {
		t.Error("connection error: got empty, want set")
	}
}

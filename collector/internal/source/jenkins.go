package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/qualtrack/qualtrack/collector/internal/config"
	"github.com/qualtrack/qualtrack/pkg/model"
)

// jenkinsCollector counts Jenkins jobs. The "mode" parameter selects what is
// counted: "failed" (default) counts jobs whose last build status is one of
// the configured failure types, "unused" counts jobs whose last build is
// older than the configured number of days.
type jenkinsCollector struct {
	src    config.Source
	client *http.Client
	now    func() time.Time // injectable for deterministic tests
}

type jenkinsJob struct {
	Name      string         `json:"name"`
	URL       string         `json:"url"`
	Buildable bool           `json:"buildable"`
	Color     string         `json:"color"`
	Builds    []jenkinsBuild `json:"builds"`
	Jobs      []jenkinsJob   `json:"jobs"`
}

type jenkinsBuild struct {
	Result    string `json:"result"`
	Timestamp int64  `json:"timestamp"` // milliseconds since epoch
}

const jenkinsJobAttrs = "buildable,color,url,name,builds[result,timestamp]"

// apiURL asks the Jenkins JSON API for jobs three folder levels deep, the
// same depth dashboards show.
func (c *jenkinsCollector) apiURL() string {
	return fmt.Sprintf("%s/api/json?tree=jobs[%[2]s,jobs[%[2]s,jobs[%[2]s]]]",
		strings.TrimSuffix(c.src.Endpoint, "/"), jenkinsJobAttrs)
}

func (c *jenkinsCollector) Collect(ctx context.Context) *model.SourceResult {
	res := newResult(c.src.SourceUUID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL(), nil)
	if err != nil {
		res.ConnectionError = err.Error()
		return res
	}
	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("source: jenkins fetch failed", "source", c.src.SourceUUID, "err", err)
		res.ConnectionError = err.Error()
		return res
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		res.ConnectionError = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return res
	}

	var body struct {
		Jobs []jenkinsJob `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		slog.Warn("source: jenkins parse failed", "source", c.src.SourceUUID, "err", err)
		res.ParseError = err.Error()
		return res
	}

	for _, counted := range c.countedJobs(body.Jobs) {
		res.Entities = append(res.Entities, c.entity(counted))
	}
	res.Value = strconv.Itoa(len(res.Entities))
	return res
}

// countedJob is one job that matched the count criteria, with its
// folder-qualified path.
type countedJob struct {
	job  jenkinsJob
	path string
}

// countedJobs walks the job tree with an explicit work stack (folder jobs
// nest arbitrarily deep) and returns the buildable jobs that match the
// configured mode.
func (c *jenkinsCollector) countedJobs(jobs []jenkinsJob) []countedJob {
	var counted []countedJob

	type item struct {
		job  jenkinsJob
		path string
	}
	stack := make([]item, 0, len(jobs))
	for i := len(jobs) - 1; i >= 0; i-- {
		stack = append(stack, item{job: jobs[i], path: jobs[i].Name})
	}

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if it.job.Buildable && c.countJob(it.job) {
			counted = append(counted, countedJob{job: it.job, path: it.path})
		}
		children := it.job.Jobs
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, item{job: children[i], path: it.path + "/" + children[i].Name})
		}
	}
	return counted
}

// countJob returns whether the job matches the configured count criteria.
func (c *jenkinsCollector) countJob(job jenkinsJob) bool {
	switch param(c.src, "mode", "failed") {
	case "unused":
		age, ok := c.buildAge(job)
		if !ok {
			return false
		}
		maxDays, err := strconv.Atoi(param(c.src, "inactive_days", "90"))
		if err != nil {
			maxDays = 90
		}
		return age > time.Duration(maxDays)*24*time.Hour

	default: // failed
		status := buildStatus(job)
		for _, failureType := range strings.Split(param(c.src, "failure_type", "Failure,Aborted,Unstable"), ",") {
			if status == strings.TrimSpace(failureType) {
				return true
			}
		}
		return false
	}
}

// entity maps a counted job to its measured entity. The key is the
// folder-qualified path; the bare job name is kept as the old key so
// annotations recorded before folder qualification still migrate.
func (c *jenkinsCollector) entity(counted countedJob) *model.Entity {
	job := counted.job
	buildAgeStr := ""
	if age, ok := c.buildAge(job); ok {
		buildAgeStr = strconv.Itoa(int(age.Hours() / 24))
	}
	buildDateStr := ""
	if dt, ok := buildDatetime(job); ok {
		buildDateStr = dt.Format("2006-01-02")
	}

	e := &model.Entity{
		Key: counted.path,
		Attributes: map[string]string{
			"name":         job.Name,
			"url":          job.URL,
			"build_status": buildStatus(job),
			"build_age":    buildAgeStr,
			"build_date":   buildDateStr,
		},
	}
	if counted.path != job.Name {
		e.OldKey = job.Name
	}
	return e
}

// buildAge returns the age of the job's most recent build.
func (c *jenkinsCollector) buildAge(job jenkinsJob) (time.Duration, bool) {
	dt, ok := buildDatetime(job)
	if !ok {
		return 0, false
	}
	return c.now().UTC().Sub(dt), true
}

// buildDatetime returns the date and time of the job's most recent build.
func buildDatetime(job jenkinsJob) (time.Time, bool) {
	if len(job.Builds) == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(job.Builds[0].Timestamp).UTC(), true
}

// buildStatus returns the status of the job's most recent build, e.g.
// "Failure" or "Not built". Jenkins reports results as upper snake case.
func buildStatus(job jenkinsJob) string {
	if len(job.Builds) > 0 && job.Builds[0].Result != "" {
		status := strings.ReplaceAll(strings.ToLower(job.Builds[0].Result), "_", " ")
		return strings.ToUpper(status[:1]) + status[1:]
	}
	return "Not built"
}

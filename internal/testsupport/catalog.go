package testsupport

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// Credentials accepted by FakeCatalog.
const (
	FakeUsername = "ingestor"
	FakePassword = "secret"
	FakeToken    = "tok-123"
)

// Submission is one model POST seen by FakeCatalog.
type Submission struct {
	Model string
	Token string
	Body  string
}

// FakeCatalog is an in-process catalog that records submissions.
type FakeCatalog struct {
	Server *httptest.Server

	mu          sync.Mutex
	logins      int
	submissions []Submission
	loginStatus int
	failModels  map[string]fakeFailure
	stalls      map[string]time.Duration
}

type fakeFailure struct {
	status int
	body   string
}

// NewFakeCatalog starts a catalog server closed at test cleanup.
func NewFakeCatalog(t testing.TB) *FakeCatalog {
	t.Helper()
	f := &FakeCatalog{failModels: make(map[string]fakeFailure), stalls: make(map[string]time.Duration)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the catalog base URL.
func (f *FakeCatalog) URL() string { return f.Server.URL + "/api/v3" }

// RejectLogin makes the login endpoint answer with status.
func (f *FakeCatalog) RejectLogin(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginStatus = status
}

// FailModel makes every POST to model answer status with body.
func (f *FakeCatalog) FailModel(model string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failModels[model] = fakeFailure{status: status, body: body}
}

// StallModel delays the answer to every POST to model by d. The submission
// is recorded once the delay has passed.
func (f *FakeCatalog) StallModel(model string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stalls[model] = d
}

// Logins returns how many login requests arrived.
func (f *FakeCatalog) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

// Submissions returns model POSTs in arrival order, failed ones included.
func (f *FakeCatalog) Submissions() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Submission(nil), f.submissions...)
}

// Models returns "Model:pid-or-datasetId" labels for each submission.
func (f *FakeCatalog) Models() []string {
	var out []string
	for _, s := range f.Submissions() {
		var doc struct {
			PID       string `json:"pid"`
			DatasetID string `json:"datasetId"`
		}
		_ = json.Unmarshal([]byte(s.Body), &doc)
		id := doc.PID
		if id == "" {
			id = doc.DatasetID
		}
		out = append(out, s.Model+":"+id)
	}
	return out
}

func (f *FakeCatalog) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	path := strings.TrimPrefix(r.URL.Path, "/api/v3/")
	w.Header().Set("Content-Type", "application/json")

	f.mu.Lock()
	stall := f.stalls[path]
	f.mu.Unlock()
	if stall > 0 {
		time.Sleep(stall)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if path == "Users/login" {
		f.logins++
		if f.loginStatus != 0 {
			w.WriteHeader(f.loginStatus)
			_, _ = w.Write([]byte(`{"error":{"message":"login failed"}}`))
			return
		}
		var creds map[string]string
		if err := json.Unmarshal(body, &creds); err != nil || creds["username"] != FakeUsername || creds["password"] != FakePassword {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"login failed"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"` + FakeToken + `"}`))
		return
	}

	f.submissions = append(f.submissions, Submission{
		Model: path,
		Token: r.URL.Query().Get("access_token"),
		Body:  string(body),
	})
	if failure, ok := f.failModels[path]; ok {
		w.WriteHeader(failure.status)
		_, _ = w.Write([]byte(failure.body))
		return
	}
	if r.URL.Query().Get("access_token") != FakeToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

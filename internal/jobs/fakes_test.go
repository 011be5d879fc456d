package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/openclaw/export-worker-go/internal/model"
	"github.com/openclaw/export-worker-go/internal/transport"
)

type fakeCredentials struct {
	mu           sync.Mutex
	creds        map[int64]*model.Credential
	touched      []int64
	unauthorized []int64
}

func newFakeCredentials(creds ...*model.Credential) *fakeCredentials {
	f := &fakeCredentials{creds: make(map[int64]*model.Credential)}
	for _, c := range creds {
		f.creds[c.OwnerID] = c
	}
	return f
}

func (f *fakeCredentials) Get(ctx context.Context, ownerID int64) (*model.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[ownerID]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCredentials) Touch(ctx context.Context, ownerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, ownerID)
	return nil
}

func (f *fakeCredentials) MarkUnauthorized(ctx context.Context, ownerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unauthorized = append(f.unauthorized, ownerID)
	if c, ok := f.creds[ownerID]; ok {
		c.IsAuthorized = false
	}
	return nil
}

func authorizedCredential(ownerID int64, analysisKey string) *model.Credential {
	return &model.Credential{
		OwnerID:      ownerID,
		AppID:        94575,
		AppSecret:    "a3406de8d171bb422bb6ddf3bbd800e2",
		SessionToken: "session",
		AnalysisKey:  analysisKey,
		IsConfigured: true,
		IsAuthorized: true,
	}
}

// fakeExporter writes a small CSV into the requested folder.
type fakeExporter struct {
	mu       sync.Mutex
	requests []transport.ExportRequest
	err      error
}

func (e *fakeExporter) Export(ctx context.Context, cred *model.Credential, req transport.ExportRequest) (string, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	if err := os.MkdirAll(req.OutputDir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(req.OutputDir, "demo_20260301_120000.csv")
	if err := os.WriteFile(path, []byte("date,author,text\n01-03-2026,alice,hello\n"), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, apiKey, contents, template string) (string, error) {
	args := m.Called(ctx, apiKey, contents, template)
	return args.String(0), args.Error(1)
}

type fileRenderer struct{}

func (fileRenderer) Render(report, outputPath, sourceLabel string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o700); err != nil {
		return err
	}
	return os.WriteFile(outputPath, []byte(fmt.Sprintf("%s\n%s", sourceLabel, report)), 0o600)
}

type sentFile struct {
	path    string
	caption string
}

type fakeNotifier struct {
	mu      sync.Mutex
	texts   map[int64][]string
	files   map[int64][]sentFile
	textErr error
	fileErr error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{texts: make(map[int64][]string), files: make(map[int64][]sentFile)}
}

func (n *fakeNotifier) SendText(ctx context.Context, ownerID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.textErr != nil {
		return n.textErr
	}
	n.texts[ownerID] = append(n.texts[ownerID], text)
	return nil
}

func (n *fakeNotifier) SendFile(ctx context.Context, ownerID int64, path, caption string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fileErr != nil {
		return n.fileErr
	}
	n.files[ownerID] = append(n.files[ownerID], sentFile{path: path, caption: caption})
	return nil
}

func (n *fakeNotifier) sentTexts(ownerID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts[ownerID]...)
}

func (n *fakeNotifier) sentFiles(ownerID int64) []sentFile {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentFile(nil), n.files[ownerID]...)
}
